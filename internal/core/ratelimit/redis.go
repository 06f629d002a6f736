package ratelimit

import (
	"context"
	"fmt"
	"time"

	"recipeengine/internal/platform/redis"
)

// RedisLimiter counts requests in redis with one key per (identity, day).
// Keys expire at day rollover so stale identities clean themselves up.
type RedisLimiter struct {
	rds   *redis.Service
	quota int
}

func NewRedisLimiter(rds *redis.Service, quota int) *RedisLimiter {
	return &RedisLimiter{rds: rds, quota: quota}
}

func (l *RedisLimiter) key(identity, day string) string {
	return fmt.Sprintf("ratelimit:%s:%s", identity, day)
}

func (l *RedisLimiter) CheckAndReserve(ctx context.Context, identity string) (Result, error) {
	day, reset := dayWindow(time.Now())
	count, err := l.rds.IncrWithExpiry(ctx, l.key(identity, day), time.Until(reset))
	if err != nil {
		return Result{}, err
	}

	remaining := l.quota - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   int(count) <= l.quota,
		Remaining: remaining,
		ResetAt:   reset,
	}, nil
}

func (l *RedisLimiter) Status(ctx context.Context, identity string) (Result, error) {
	day, reset := dayWindow(time.Now())
	count, err := l.rds.GetCount(ctx, l.key(identity, day))
	if err != nil {
		return Result{}, err
	}

	remaining := l.quota - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   int(count) < l.quota,
		Remaining: remaining,
		ResetAt:   reset,
	}, nil
}

var _ Limiter = (*RedisLimiter)(nil)
