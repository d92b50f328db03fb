package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeStore 模拟 Redis INCR + PEXPIRE 语义
type fakeStore struct {
	counts map[string]int64
	ttl    time.Duration
	err    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{counts: map[string]int64{}}
}

func (s *fakeStore) IncrWindow(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if s.err != nil {
		return 0, 0, s.err
	}
	s.counts[key]++
	if s.ttl == 0 {
		s.ttl = window
	}
	return s.counts[key], s.ttl, nil
}

func (s *fakeStore) PeekWindow(_ context.Context, key string) (int64, time.Duration, error) {
	return s.counts[key], s.ttl, s.err
}

func (s *fakeStore) ResetWindow(_ context.Context, key string) (bool, error) {
	_, ok := s.counts[key]
	delete(s.counts, key)
	return ok, s.err
}

func TestRedisLimiter_Check(t *testing.T) {
	store := newFakeStore()
	l := NewRedisLimiter(store, 2, time.Hour)
	ctx := context.Background()

	res, err := l.Check(ctx, "t1")
	if err != nil {
		t.Fatalf("Check 失败: %v", err)
	}
	if !res.Allowed || res.Remaining != 1 {
		t.Errorf("第一次请求结果不正确: %+v", res)
	}
	if _, ok := store.counts["rate_limit:recognition:t1"]; !ok {
		t.Error("计数键名不正确")
	}

	res, _ = l.Check(ctx, "t1")
	if !res.Allowed || res.Remaining != 0 {
		t.Errorf("第二次请求结果不正确: %+v", res)
	}

	res, _ = l.Check(ctx, "t1")
	if res.Allowed || res.Count != 2 || res.RetryAfter != time.Hour {
		t.Errorf("超限结果不正确: %+v", res)
	}
}

func TestRedisLimiter_StatusAndReset(t *testing.T) {
	store := newFakeStore()
	l := NewRedisLimiter(store, 2, time.Hour)
	ctx := context.Background()

	res, _ := l.Status(ctx, "t1")
	if !res.Allowed || res.Remaining != 2 || !res.ResetAt.IsZero() {
		t.Errorf("初始状态不正确: %+v", res)
	}

	_, _ = l.Check(ctx, "t1")
	_, _ = l.Check(ctx, "t1")
	res, _ = l.Status(ctx, "t1")
	if res.Allowed || res.Remaining != 0 {
		t.Errorf("用尽后状态不正确: %+v", res)
	}

	ok, err := l.Reset(ctx, "t1")
	if err != nil {
		t.Fatalf("Reset 失败: %v", err)
	}
	if !ok {
		t.Error("Reset 应返回 true")
	}
	if res, _ = l.Status(ctx, "t1"); !res.Allowed {
		t.Errorf("重置后应放行: %+v", res)
	}
}

func TestRedisLimiter_StoreError(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("connection refused")
	l := NewRedisLimiter(store, 2, time.Hour)

	if _, err := l.Check(context.Background(), "t1"); err == nil {
		t.Error("存储出错时应返回错误")
	}
}
