package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"site-gen-ai-api/internal/infrastructure/persistence/redis"
	"site-gen-ai-api/pkg/errors"
	"site-gen-ai-api/pkg/logger"
	"site-gen-ai-api/pkg/metrics"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled bool
	Limit   int
	Window  time.Duration
	// Scope 限流范围名，同时作为 Redis 键的一部分
	Scope string
}

// RateLimiter 限流器接口
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error)
}

// RateLimit 按用户限流，需放在 Auth 之后
func RateLimit(cfg RateLimitConfig, limiter RateLimiter) gin.HandlerFunc {
	if !cfg.Enabled || limiter == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 10
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Scope == "" {
		cfg.Scope = "default"
	}

	return func(c *gin.Context) {
		userID := c.GetString(ctxKeyUserID)
		if userID == "" {
			userID = "ip:" + c.ClientIP()
		}

		allowed, remaining, err := limiter.Allow(c.Request.Context(), redis.BuildUserRateLimitKey(userID, cfg.Scope), cfg.Limit, cfg.Window)
		if err != nil {
			// 限流器故障时放行
			logger.Warn(c.Request.Context(), "rate limiter unavailable", "error", err.Error())
			c.Next()
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !allowed {
			metrics.RateLimitRejected.WithLabelValues(cfg.Scope).Inc()
			c.Header("Retry-After", strconv.Itoa(int(cfg.Window.Seconds())))
			abortWithError(c, errors.ErrTooManyRequests)
			return
		}

		c.Next()
	}
}
