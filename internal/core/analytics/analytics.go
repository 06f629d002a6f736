// Package analytics records machine-auditable events for every extraction
// attempt. Recording is best effort: a slow or failing sink must never add
// latency or failures to the extraction path.
package analytics

import (
	"context"
	"time"
)

// Event types.
const (
	EventAttempt         = "attempt"
	EventFinal           = "final"
	EventRateLimitDenied = "rate_limit_denied"
)

// Outcomes for attempt and final events.
const (
	OutcomeSuccess          = "SUCCESS"
	OutcomeTransientFailure = "TRANSIENT_FAILURE"
	OutcomeFatalFailure     = "FATAL_FAILURE"
)

// Event is one analytics record. Attempt events carry the full timing and
// token breakdown; final events summarize the request.
type Event struct {
	RequestID string `json:"request_id"`
	Identity  string `json:"identity"`
	Type      string `json:"type"`

	Strategy  string `json:"strategy,omitempty"`
	Provider  string `json:"provider,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMS  int64     `json:"duration_ms"`

	PromptTokens     int64   `json:"prompt_tokens,omitempty"`
	ResponseTokens   int64   `json:"response_tokens,omitempty"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd,omitempty"`

	RawBytes     int `json:"raw_bytes,omitempty"`
	CleanedChars int `json:"cleaned_chars,omitempty"`
	SentChars    int `json:"sent_chars,omitempty"`

	TotalAttempts int `json:"total_attempts,omitempty"`
}

// Recorder accepts events. Implementations must be non-blocking from the
// caller's perspective and swallow their own errors.
type Recorder interface {
	Record(ctx context.Context, event Event)
}
