package ratelimit

import (
	"context"
	"time"
)

// WindowStore 固定窗口计数存储，由 pkg/redis.Client 实现
type WindowStore interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	PeekWindow(ctx context.Context, key string) (int64, time.Duration, error)
	ResetWindow(ctx context.Context, key string) (bool, error)
}

const redisKeyPrefix = "rate_limit:recognition:"

// RedisLimiter 基于 Redis 的限流器，多实例共享计数
type RedisLimiter struct {
	store  WindowStore
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRedisLimiter 创建 Redis 限流器
func NewRedisLimiter(store WindowStore, limit int, windowSize time.Duration) *RedisLimiter {
	return &RedisLimiter{store: store, limit: limit, window: windowSize, now: time.Now}
}

func (l *RedisLimiter) Check(ctx context.Context, actorID string) (Result, error) {
	n, ttl, err := l.store.IncrWindow(ctx, redisKeyPrefix+actorID, l.window)
	if err != nil {
		return Result{}, err
	}
	return l.result(int(n), ttl, true), nil
}

func (l *RedisLimiter) Status(ctx context.Context, actorID string) (Result, error) {
	n, ttl, err := l.store.PeekWindow(ctx, redisKeyPrefix+actorID)
	if err != nil {
		return Result{}, err
	}
	if n == 0 {
		return fresh(l.limit, l.window), nil
	}
	return l.result(int(n), ttl, false), nil
}

func (l *RedisLimiter) Reset(ctx context.Context, actorID string) (bool, error) {
	return l.store.ResetWindow(ctx, redisKeyPrefix+actorID)
}

// result Redis 中超限后计数仍会自增，对外展示时截断到 limit
func (l *RedisLimiter) result(n int, ttl time.Duration, consumed bool) Result {
	allowed := n <= l.limit
	if !consumed {
		allowed = n < l.limit
	}
	count := n
	if count > l.limit {
		count = l.limit
	}

	res := Result{
		Allowed:   allowed,
		Count:     count,
		Limit:     l.limit,
		Remaining: remaining(l.limit, n),
		Window:    l.window,
		ResetAt:   l.now().Add(ttl),
	}
	if !allowed {
		res.RetryAfter = ttl
	}
	return res
}
