package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/KYogeshPandey/snaptick-attendance-system/pkg/redis"
	"github.com/KYogeshPandey/snaptick-attendance-system/pkg/response"
)

// localBucketsMax 本地令牌桶数量上限，超过后整体清空
const localBucketsMax = 10000

// localBuckets Redis 不可用时按 IP 的进程内令牌桶
type localBuckets struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets map[string]*rate.Limiter
}

func newLocalBuckets(limit int, window time.Duration) *localBuckets {
	return &localBuckets{
		limit:   rate.Every(window / time.Duration(limit)),
		burst:   limit,
		buckets: make(map[string]*rate.Limiter),
	}
}

func (b *localBuckets) allow(key string) bool {
	b.mu.Lock()
	l, ok := b.buckets[key]
	if !ok {
		if len(b.buckets) >= localBucketsMax {
			b.buckets = make(map[string]*rate.Limiter)
		}
		l = rate.NewLimiter(b.limit, b.burst)
		b.buckets[key] = l
	}
	b.mu.Unlock()
	return l.Allow()
}

// RateLimit 基于 Redis 固定窗口的速率限制中间件
// limit: 窗口内允许的最大请求数
// window: 窗口时长
// rdb 为 nil 或 Redis 出错时降级为进程内令牌桶
func RateLimit(rdb *redis.Client, limit int, window time.Duration) gin.HandlerFunc {
	local := newLocalBuckets(limit, window)

	return func(c *gin.Context) {
		key := fmt.Sprintf("rate_limit:%s:%s", c.ClientIP(), c.FullPath())

		var allowed bool
		if rdb != nil {
			ok, err := rdb.CheckRateLimit(c.Request.Context(), key, limit, window)
			if err != nil {
				allowed = local.allow(key)
			} else {
				allowed = ok
			}
		} else {
			allowed = local.allow(key)
		}

		if !allowed {
			c.Header("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			response.Error(c, http.StatusTooManyRequests, 10004, "请求过于频繁，请稍后再试")
			c.Abort()
			return
		}

		c.Next()
	}
}
