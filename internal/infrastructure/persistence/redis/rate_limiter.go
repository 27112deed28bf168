package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
)

// slidingWindow 在一次往返内完成清理、计数与登记
//
// KEYS[1] 窗口键；ARGV: 当前毫秒、窗口毫秒、上限、本次请求的成员
// 返回 {是否放行, 剩余配额}
var slidingWindow = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', KEYS[1], 0, now - window)
local count = redis.call('ZCARD', KEYS[1])
if count >= limit then
  return {0, 0}
end
redis.call('ZADD', KEYS[1], now, ARGV[4])
redis.call('PEXPIRE', KEYS[1], window * 2)
return {1, limit - count - 1}
`)

// RateLimiter 基于有序集合的滑动窗口限流
type RateLimiter struct {
	client *Client
	now    func() time.Time
}

func NewRateLimiter(client *Client) *RateLimiter {
	return &RateLimiter{client: client, now: time.Now}
}

// Allow 登记一次请求，返回是否放行及窗口内剩余配额
func (l *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	ctx, span := tracer.Start(ctx, "ratelimit.Allow")
	defer span.End()
	span.SetAttributes(
		attribute.String("ratelimit.key", key),
		attribute.Int("ratelimit.limit", limit),
	)

	now := l.now().UnixMilli()
	// 同一毫秒内的请求靠随机后缀区分
	member := fmt.Sprintf("%d-%s", now, uuid.NewString())
	res, err := slidingWindow.Run(ctx, l.client.rdb, []string{key},
		now, window.Milliseconds(), limit, member).Int64Slice()
	if err != nil {
		span.RecordError(err)
		return false, 0, err
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("ratelimit: unexpected script reply %v", res)
	}

	allowed := res[0] == 1
	span.SetAttributes(attribute.Bool("ratelimit.allowed", allowed))
	return allowed, int(res[1]), nil
}

// BuildUserRateLimitKey 按用户（匿名时为 ip:地址）与限流范围组成键
func BuildUserRateLimitKey(subject, scope string) string {
	return "ratelimit:" + subject + ":" + scope
}
