package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipeengine/internal/core/fault"
	"recipeengine/internal/core/recipe"
)

func TestCleanJSONString(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"title":"Soup"}`, `{"title":"Soup"}`},
		{"fenced", "```json\n{\"title\":\"Soup\"}\n```", `{"title":"Soup"}`},
		{"fenced no language", "```\n{\"title\":\"Soup\"}\n```", `{"title":"Soup"}`},
		{"surrounding whitespace", "  {\"title\":\"Soup\"}\n", `{"title":"Soup"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanJSONString(tt.in))
		})
	}
}

func TestDecodeCandidate(t *testing.T) {
	cand, err := decodeCandidate("```json\n" + `{
		"title": "  Tomato Soup ",
		"ingredients": ["4 tomatoes", "  "],
		"steps": ["Simmer"]
	}` + "\n```")
	require.NoError(t, err)
	assert.Equal(t, "Tomato Soup", cand.Title)
	assert.Equal(t, []string{"4 tomatoes"}, cand.Ingredients)
}

func TestDecodeCandidateUnparseableIsFatal(t *testing.T) {
	_, err := decodeCandidate("Sorry, I could not find a recipe on that page.")
	require.Error(t, err)
	assert.Equal(t, fault.CodeProviderFatal, fault.CodeOf(err))
	assert.False(t, fault.Transient(err))
}

func TestDecodeCandidateIncompleteIsRejected(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"no title", `{"ingredients":["x"],"steps":["y"]}`},
		{"empty ingredients", `{"title":"Soup","ingredients":[],"steps":["y"]}`},
		{"blank steps", `{"title":"Soup","ingredients":["x"],"steps":["  "]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeCandidate(tt.raw)
			require.Error(t, err)
			assert.Equal(t, fault.CodeIncompleteCandidate, fault.CodeOf(err))
		})
	}
}

func TestEstimateCost(t *testing.T) {
	u := &Usage{PromptTokens: 1_000_000, ResponseTokens: 1_000_000}
	assert.InDelta(t, 0.075+0.30, u.EstimateCost("gemini-1.5-flash"), 1e-9)
	assert.InDelta(t, 3.00+15.00, u.EstimateCost("claude-3-5-sonnet-latest"), 1e-9)
	assert.Zero(t, u.EstimateCost("unknown-model"))

	var nilUsage *Usage
	assert.Zero(t, nilUsage.EstimateCost("gemini-1.5-flash"))
}

func TestRegistry(t *testing.T) {
	a := &staticAdapter{name: "gemini"}
	reg := NewRegistry(a)

	got, err := reg.Get("gemini")
	require.NoError(t, err)
	assert.Same(t, Adapter(a), got)

	_, err = reg.Get("mistral")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mistral")
}

type staticAdapter struct{ name string }

func (a *staticAdapter) Name() string         { return a.name }
func (a *staticAdapter) Model() string        { return a.name }
func (a *staticAdapter) SupportsVision() bool { return false }
func (a *staticAdapter) Extract(context.Context, Content) (*recipe.Recipe, *Usage, error) {
	return nil, nil, nil
}

func TestClassifyGeminiError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"rate limited", errors.New("googleapi: Error 429: RESOURCE_EXHAUSTED"), true},
		{"unavailable", errors.New("rpc error: code = Unavailable"), true},
		{"overloaded", errors.New("the model is overloaded"), true},
		{"timeout", errors.New("request timeout"), true},
		{"invalid argument", errors.New("invalid request payload"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := classifyGeminiError(tt.err)
			assert.Equal(t, tt.transient, fault.Transient(classified))
			assert.ErrorIs(t, classified, tt.err)
		})
	}
}

func TestClassifyContextErrorsPassThrough(t *testing.T) {
	assert.Equal(t, context.Canceled, classifyGeminiError(context.Canceled))
	assert.Equal(t, context.DeadlineExceeded, classifyAnthropicError(context.DeadlineExceeded))
}

func TestClassifyAnthropicNetworkError(t *testing.T) {
	classified := classifyAnthropicError(errors.New("dial tcp: connection refused"))
	assert.True(t, fault.Transient(classified))

	classified = classifyAnthropicError(errors.New("invalid api key"))
	assert.False(t, fault.Transient(classified))
	assert.Equal(t, fault.CodeProviderFatal, fault.CodeOf(classified))
}
