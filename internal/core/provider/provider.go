// Package provider defines the uniform AI-provider contract and the two
// reference adapters (gemini, anthropic). Adapters format their own requests
// and parse their own responses but never retry; retrying belongs to the
// retry policy.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"recipeengine/internal/core/fault"
	"recipeengine/internal/core/recipe"
)

// ContentKind tells an adapter how to interpret the payload.
type ContentKind string

const (
	// KindURL hands the URL itself to a provider able to retrieve it.
	KindURL ContentKind = "url"
	// KindText is locally fetched and cleaned page text.
	KindText ContentKind = "text"
	// KindImage is one or more photos of a recipe.
	KindImage ContentKind = "image"
)

// Content is the prepared payload for one extraction call.
type Content struct {
	Kind ContentKind
	// URL for KindURL, Text for KindText.
	URL  string
	Text string
	// Images and MimeType for KindImage. Multiple images are pages of the
	// same recipe.
	Images   [][]byte
	MimeType string
}

// Usage is per-call token accounting. Nil on results where the provider
// reported nothing.
type Usage struct {
	PromptTokens   int64 `json:"prompt_tokens"`
	ResponseTokens int64 `json:"response_tokens"`
}

// modelPricing holds per-million-token pricing for known models.
var modelPricing = map[string][2]float64{
	// model -> {input $/MTok, output $/MTok}
	"gemini-1.5-flash":           {0.075, 0.30},
	"gemini-1.5-pro":             {1.25, 5.00},
	"gemini-2.0-flash":           {0.10, 0.40},
	"claude-3-5-haiku-latest":    {0.80, 4.00},
	"claude-3-5-sonnet-latest":   {3.00, 15.00},
	"claude-sonnet-4-5-20250929": {3.00, 15.00},
}

// EstimateCost computes an estimated cost in USD for a call against model.
// Returns 0 for unknown models.
func (u *Usage) EstimateCost(model string) float64 {
	if u == nil {
		return 0
	}
	pricing, ok := modelPricing[model]
	if !ok {
		return 0
	}
	return (float64(u.PromptTokens)/1e6)*pricing[0] + (float64(u.ResponseTokens)/1e6)*pricing[1]
}

// Adapter is the uniform extraction contract. Extract returns a normalized
// candidate or a classified *fault.Error; usage may be nil.
type Adapter interface {
	Name() string
	Model() string
	// SupportsVision reports whether KindImage content is accepted.
	SupportsVision() bool
	Extract(ctx context.Context, content Content) (*recipe.Recipe, *Usage, error)
}

// Registry maps provider names to adapters. Unknown names are rejected when
// plans are built, not when they run.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (known: %s)", name, strings.Join(r.Names(), ", "))
	}
	return a, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		names = append(names, n)
	}
	return names
}

// cleanJSONString removes markdown code fences models wrap around JSON.
func cleanJSONString(str string) string {
	trimmed := strings.TrimSpace(str)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.Index(trimmed, "\n"); idx != -1 {
			trimmed = trimmed[idx+1:]
		}
	}
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

// decodeCandidate parses a model response into a normalized candidate.
// Unparseable output is PROVIDER_FATAL; a parseable but incomplete candidate
// is INCOMPLETE_CANDIDATE.
func decodeCandidate(raw string) (*recipe.Recipe, error) {
	cleaned := cleanJSONString(raw)
	var cand recipe.Recipe
	if err := json.Unmarshal([]byte(cleaned), &cand); err != nil {
		return nil, fault.Wrap(fault.CodeProviderFatal, err, "unparseable model response")
	}
	cand.Normalize()
	if !cand.Valid() {
		return nil, fault.New(fault.CodeIncompleteCandidate, "candidate missing title, ingredients or steps")
	}
	return &cand, nil
}
