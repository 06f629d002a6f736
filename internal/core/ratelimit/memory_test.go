package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuotaBoundary(t *testing.T) {
	l := NewMemoryLimiter(3)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res, err := l.CheckAndReserve(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d should be admitted", i)
		assert.Equal(t, 3-i, res.Remaining)
	}

	res, err := l.CheckAndReserve(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, res.Allowed, "request over quota must be denied")
	assert.Equal(t, 0, res.Remaining)
}

func TestIdentitiesAreIndependent(t *testing.T) {
	l := NewMemoryLimiter(1)
	ctx := context.Background()

	res, _ := l.CheckAndReserve(ctx, "u1")
	assert.True(t, res.Allowed)
	res, _ = l.CheckAndReserve(ctx, "u1")
	assert.False(t, res.Allowed)

	res, _ = l.CheckAndReserve(ctx, "u2")
	assert.True(t, res.Allowed, "a different identity keeps its own counter")
}

func TestStatusDoesNotReserve(t *testing.T) {
	l := NewMemoryLimiter(2)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res, err := l.Status(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 2, res.Remaining)
	}

	res, _ := l.CheckAndReserve(ctx, "u1")
	assert.True(t, res.Allowed)
	res, _ = l.Status(ctx, "u1")
	assert.Equal(t, 1, res.Remaining)
}

func TestDayRolloverResetsCounters(t *testing.T) {
	l := NewMemoryLimiter(1)
	ctx := context.Background()

	now := time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)
	l.SetClock(func() time.Time { return now })

	res, _ := l.CheckAndReserve(ctx, "u1")
	assert.True(t, res.Allowed)
	res, _ = l.CheckAndReserve(ctx, "u1")
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), res.ResetAt)

	// Two minutes later the UTC day has flipped and the quota is fresh.
	now = now.Add(2 * time.Minute)
	res, _ = l.CheckAndReserve(ctx, "u1")
	assert.True(t, res.Allowed)
	assert.Equal(t, time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), res.ResetAt)
}

func TestConcurrentReservationsNeverOverAdmit(t *testing.T) {
	const quota = 10
	const callers = 50

	l := NewMemoryLimiter(quota)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.CheckAndReserve(ctx, "u1")
			assert.NoError(t, err)
			results <- res.Allowed
		}()
	}
	wg.Wait()
	close(results)

	admitted := 0
	for allowed := range results {
		if allowed {
			admitted++
		}
	}
	assert.Equal(t, quota, admitted)
}

func TestDayWindow(t *testing.T) {
	day, reset := dayWindow(time.Date(2026, 8, 30, 15, 4, 5, 0, time.FixedZone("UTC+9", 9*3600)))
	assert.Equal(t, "20260830", day)
	assert.Equal(t, time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), reset)
}
