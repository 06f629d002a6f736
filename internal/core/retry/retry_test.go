package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipeengine/internal/core/fault"
)

var fastCfg = Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastCfg, nil, func(ctx context.Context, attempt int) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransientUpToMaxAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastCfg, nil, func(ctx context.Context, attempt int) error {
		calls++
		assert.Equal(t, calls, attempt)
		return fault.New(fault.CodeProviderTransient, "overloaded")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, fault.CodeProviderTransient, fault.CodeOf(err))
}

func TestDoRecoversMidway(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastCfg, nil, func(ctx context.Context, attempt int) error {
		calls++
		if calls < 3 {
			return fault.New(fault.CodeFetchFailed, "flaky")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoFatalAbortsImmediately(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastCfg, nil, func(ctx context.Context, attempt int) error {
		calls++
		return fault.New(fault.CodeProviderFatal, "bad request")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoNotifiesBeforeEachWait(t *testing.T) {
	var notified []int
	notify := func(attempt int, delay time.Duration, err error) {
		notified = append(notified, attempt)
		assert.Greater(t, delay, time.Duration(0))
	}
	_ = Do(context.Background(), fastCfg, notify, func(ctx context.Context, attempt int) error {
		return fault.New(fault.CodeProviderTransient, "busy")
	})
	// No notification after the final attempt: there is no wait to announce.
	assert.Equal(t, []int{1, 2}, notified)
}

func TestDoStopsWhenCancelledMidWait(t *testing.T) {
	cfg := Config{MaxAttempts: 3, BaseDelay: time.Hour, MaxDelay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, cfg, nil, func(ctx context.Context, attempt int) error {
			calls++
			return fault.New(fault.CodeProviderTransient, "busy")
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancellation")
	}
	assert.Equal(t, 1, calls)
}

func TestDelayExponentialWithCap(t *testing.T) {
	cfg := Config{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 4 * time.Second}
	err := fault.New(fault.CodeProviderTransient, "busy")

	assertBetween := func(attempt int, lo, hi time.Duration) {
		d := cfg.Delay(attempt, err)
		assert.GreaterOrEqual(t, d, lo, "attempt %d", attempt)
		assert.LessOrEqual(t, d, hi, "attempt %d", attempt)
	}

	// base * 2^(n-1), capped at max, plus up to 10% jitter.
	assertBetween(1, time.Second, 1100*time.Millisecond)
	assertBetween(2, 2*time.Second, 2200*time.Millisecond)
	assertBetween(3, 4*time.Second, 4400*time.Millisecond)
	assertBetween(4, 4*time.Second, 4400*time.Millisecond)
}

func TestDelayHonorsProviderSuggestion(t *testing.T) {
	cfg := Config{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}

	suggested := fault.New(fault.CodeProviderTransient, "rate limited")
	suggested.RetryAfter = 12 * time.Second
	assert.Equal(t, 12*time.Second, cfg.Delay(1, suggested))

	// The suggestion never exceeds the configured ceiling.
	excessive := fault.New(fault.CodeProviderTransient, "rate limited")
	excessive.RetryAfter = 5 * time.Minute
	assert.Equal(t, 30*time.Second, cfg.Delay(1, excessive))
}

func TestDoZeroMaxAttemptsRunsOnce(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{}, nil, func(ctx context.Context, attempt int) error {
		calls++
		return fault.New(fault.CodeProviderTransient, "busy")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
