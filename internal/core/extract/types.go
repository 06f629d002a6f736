package extract

import (
	"time"

	"recipeengine/internal/core/recipe"
	"recipeengine/internal/core/strategy"
)

// Request is one extraction job. Immutable once created.
type Request struct {
	ID       string             `json:"id"`
	Kind     strategy.InputKind `json:"kind"`
	Identity string             `json:"identity"`

	// Exactly one of the payload fields is set, matching Kind.
	URL    string   `json:"url,omitempty"`
	HTML   string   `json:"html,omitempty"`
	Images [][]byte `json:"-"`
	// ImageMime applies to all supplied images.
	ImageMime string `json:"image_mime,omitempty"`

	ForceStrategy      string   `json:"force_strategy,omitempty"`
	PreferredProviders []string `json:"preferred_providers,omitempty"`
}

// Attempt is one completed (strategy, provider) trial. Append-only; never
// mutated after completion.
type Attempt struct {
	Strategy    string    `json:"strategy"`
	Provider    string    `json:"provider"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	Outcome     string    `json:"outcome"`
	ErrorCode   string    `json:"error_code,omitempty"`

	// Token usage may be absent when the provider reported nothing.
	PromptTokens     int64   `json:"prompt_tokens,omitempty"`
	ResponseTokens   int64   `json:"response_tokens,omitempty"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd,omitempty"`

	RawBytes     int `json:"raw_bytes,omitempty"`
	CleanedChars int `json:"cleaned_chars,omitempty"`
	SentChars    int `json:"sent_chars,omitempty"`
}

// EventType discriminates progress stream events.
type EventType string

const (
	EventProgress EventType = "progress"
	EventSuccess  EventType = "success"
	EventError    EventType = "error"
)

// Event is one progress stream entry. Exactly one terminal (success or
// error) event closes every stream.
type Event struct {
	Type    EventType `json:"type"`
	Percent int       `json:"percent"`
	Message string    `json:"message,omitempty"`

	// Success payload.
	Recipe       *recipe.Recipe `json:"recipe,omitempty"`
	StrategyUsed string         `json:"strategy_used,omitempty"`

	// Terminal events carry the full attempt history.
	Attempts []Attempt `json:"attempts,omitempty"`

	// Error payload.
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Type == EventSuccess || e.Type == EventError
}
