package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter 进程内限流器，单实例部署或 Redis 不可用时使用
type MemoryLimiter struct {
	mu      sync.Mutex
	entries map[string]*window
	limit   int
	window  time.Duration
	now     func() time.Time

	scheduler *gocron.Scheduler
}

// Option MemoryLimiter 可选项
type Option func(*MemoryLimiter)

// WithClock 注入时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(l *MemoryLimiter) { l.now = now }
}

// NewMemoryLimiter 创建进程内限流器
func NewMemoryLimiter(limit int, windowSize time.Duration, opts ...Option) *MemoryLimiter {
	l := &MemoryLimiter{
		entries: make(map[string]*window),
		limit:   limit,
		window:  windowSize,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *MemoryLimiter) Check(_ context.Context, actorID string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.entries[actorID]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(l.window)}
		l.entries[actorID] = w
	}

	res := Result{Limit: l.limit, Window: l.window, ResetAt: w.resetAt}
	if w.count >= l.limit {
		res.Count = w.count
		res.RetryAfter = w.resetAt.Sub(now)
		return res, nil
	}

	w.count++
	res.Allowed = true
	res.Count = w.count
	res.Remaining = remaining(l.limit, w.count)
	return res, nil
}

func (l *MemoryLimiter) Status(_ context.Context, actorID string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.entries[actorID]
	if !ok || !now.Before(w.resetAt) {
		return fresh(l.limit, l.window), nil
	}

	res := Result{
		Allowed:   w.count < l.limit,
		Count:     w.count,
		Limit:     l.limit,
		Remaining: remaining(l.limit, w.count),
		Window:    l.window,
		ResetAt:   w.resetAt,
	}
	if !res.Allowed {
		res.RetryAfter = w.resetAt.Sub(now)
	}
	return res, nil
}

func (l *MemoryLimiter) Reset(_ context.Context, actorID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.entries[actorID]
	delete(l.entries, actorID)
	return ok, nil
}

// Sweep 清理已过期的窗口，返回清理数量
func (l *MemoryLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	n := 0
	for id, w := range l.entries {
		if !now.Before(w.resetAt) {
			delete(l.entries, id)
			n++
		}
	}
	return n
}

// Len 当前计数条目数
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// StartSweeper 按 interval 定期清理过期窗口
func (l *MemoryLimiter) StartSweeper(interval time.Duration, logger *zap.Logger) error {
	s := gocron.NewScheduler(time.UTC)
	if _, err := s.Every(interval).Do(func() {
		if n := l.Sweep(); n > 0 {
			logger.Debug("清理过期限流窗口", zap.Int("count", n))
		}
	}); err != nil {
		return err
	}
	s.StartAsync()
	l.scheduler = s
	return nil
}

// Stop 停止定期清理
func (l *MemoryLimiter) Stop() {
	if l.scheduler != nil {
		l.scheduler.Stop()
	}
}
