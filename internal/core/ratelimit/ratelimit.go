// Package ratelimit enforces the per-identity daily extraction quota. The
// check-and-reserve is atomic so two concurrent requests cannot both slip
// past the quota boundary.
package ratelimit

import (
	"context"
	"time"
)

// Result is the admission decision for one request.
type Result struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// Limiter admits or denies a request before orchestration begins. A denied
// request consumes no quota beyond the reservation that denied it.
type Limiter interface {
	CheckAndReserve(ctx context.Context, identity string) (Result, error)
	// Status reports current standing without reserving.
	Status(ctx context.Context, identity string) (Result, error)
}

// dayWindow returns the current UTC day stamp and the next rollover.
func dayWindow(now time.Time) (string, time.Time) {
	now = now.UTC()
	reset := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
	return now.Format("20060102"), reset
}
