// Package ratelimit 识别接口的固定窗口限流。
//
// 每个调用方（教师）在窗口内最多执行 limit 次识别；计数在首次请求时创建，
// 窗口到期后重置，也可由管理员手动清零。
package ratelimit

import (
	"context"
	"time"
)

// Result 一次限流检查或查询的结果
type Result struct {
	Allowed    bool
	Count      int
	Limit      int
	Remaining  int
	Window     time.Duration
	ResetAt    time.Time // 无计数时为零值
	RetryAfter time.Duration
}

// Limiter 固定窗口限流器
type Limiter interface {
	// Check 消耗一次额度；超限时 Allowed=false 且不增加计数
	Check(ctx context.Context, actorID string) (Result, error)
	// Status 查询当前额度，不修改状态
	Status(ctx context.Context, actorID string) (Result, error)
	// Reset 手动清零，返回此前是否存在计数
	Reset(ctx context.Context, actorID string) (bool, error)
}

func fresh(limit int, window time.Duration) Result {
	return Result{Allowed: true, Limit: limit, Remaining: limit, Window: window}
}

func remaining(limit, count int) int {
	if count >= limit {
		return 0
	}
	return limit - count
}
