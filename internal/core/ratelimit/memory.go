package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is the in-process implementation, used in tests and
// single-node deployments without redis.
type MemoryLimiter struct {
	mu     sync.Mutex
	quota  int
	day    string
	counts map[string]int
	now    func() time.Time
}

func NewMemoryLimiter(quota int) *MemoryLimiter {
	return &MemoryLimiter{quota: quota, counts: make(map[string]int), now: time.Now}
}

// SetClock overrides the time source, for day-rollover tests.
func (l *MemoryLimiter) SetClock(now func() time.Time) { l.now = now }

// rollover resets all counters when the UTC day changes. Caller holds mu.
func (l *MemoryLimiter) rollover(day string) {
	if l.day != day {
		l.day = day
		l.counts = make(map[string]int)
	}
}

func (l *MemoryLimiter) CheckAndReserve(_ context.Context, identity string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	day, reset := dayWindow(l.now())
	l.rollover(day)

	l.counts[identity]++
	count := l.counts[identity]

	remaining := l.quota - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= l.quota,
		Remaining: remaining,
		ResetAt:   reset,
	}, nil
}

func (l *MemoryLimiter) Status(_ context.Context, identity string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	day, reset := dayWindow(l.now())
	l.rollover(day)

	count := l.counts[identity]
	remaining := l.quota - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count < l.quota,
		Remaining: remaining,
		ResetAt:   reset,
	}, nil
}

var _ Limiter = (*MemoryLimiter)(nil)
