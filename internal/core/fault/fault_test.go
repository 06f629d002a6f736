package fault

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassification(t *testing.T) {
	tests := []struct {
		code      Code
		transient bool
	}{
		{CodeFetchFailed, true},
		{CodeProviderTransient, true},
		{CodeRateLimited, false},
		{CodeContentTooSparse, false},
		{CodeProviderFatal, false},
		{CodeIncompleteCandidate, false},
		{CodeAllStrategiesExhausted, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := New(tt.code, "boom")
			assert.Equal(t, tt.transient, Transient(err))
			assert.Equal(t, tt.code, CodeOf(err))
		})
	}
}

func TestUnclassifiedErrorsAreFatal(t *testing.T) {
	err := errors.New("plain")
	assert.False(t, Transient(err))
	assert.Equal(t, CodeProviderFatal, CodeOf(err))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(CodeFetchFailed, cause, "fetching %s", "http://example.com")

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "FETCH_FAILED")
	assert.Contains(t, err.Error(), "http://example.com")
	assert.Contains(t, err.Error(), "connection reset")
}

func TestClassificationSurvivesWrapping(t *testing.T) {
	inner := New(CodeProviderTransient, "overloaded")
	outer := fmt.Errorf("calling provider: %w", inner)

	assert.True(t, Transient(outer))
	assert.Equal(t, CodeProviderTransient, CodeOf(outer))
}

func TestRetryAfter(t *testing.T) {
	err := New(CodeProviderTransient, "rate limited")
	err.RetryAfter = 7 * time.Second

	assert.Equal(t, 7*time.Second, RetryAfterOf(fmt.Errorf("wrapped: %w", err)))
	assert.Equal(t, time.Duration(0), RetryAfterOf(errors.New("plain")))
}
