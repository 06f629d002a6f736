// Package retry bounds a single plan execution: classified transient
// failures are retried with exponential backoff, fatal failures abort the
// plan immediately.
package retry

import (
	"context"
	"math/rand"
	"time"

	"recipeengine/internal/core/fault"
)

// Config holds the policy parameters. All call sites share one config
// sourced from the service configuration.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// AttemptFunc runs one attempt. attempt is 1-based.
type AttemptFunc func(ctx context.Context, attempt int) error

// NotifyFunc is called before each backoff wait with the attempt that just
// failed and the delay about to be taken.
type NotifyFunc func(attempt int, delay time.Duration, err error)

// Delay computes the wait after a failed attempt:
// min(base * 2^(attempt-1), max) plus up to 10% jitter, unless the error
// carries a provider-suggested delay, which wins (capped at max).
func (c Config) Delay(attempt int, err error) time.Duration {
	if suggested := fault.RetryAfterOf(err); suggested > 0 {
		if suggested > c.MaxDelay {
			return c.MaxDelay
		}
		return suggested
	}

	delay := c.BaseDelay
	for i := 1; i < attempt && delay < c.MaxDelay; i++ {
		delay *= 2
	}
	if delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	jitter := time.Duration(rand.Float64() * 0.1 * float64(delay))
	return delay + jitter
}

// Do runs fn up to MaxAttempts times. Only transient failures are retried;
// a fatal failure or context cancellation returns immediately. The last
// error is returned when attempts are exhausted.
func Do(ctx context.Context, c Config, notify NotifyFunc, fn AttemptFunc) error {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}

	var err error
	for attempt := 1; attempt <= c.MaxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		err = fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if !fault.Transient(err) || attempt == c.MaxAttempts {
			return err
		}

		delay := c.Delay(attempt, err)
		if notify != nil {
			notify(attempt, delay, err)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
