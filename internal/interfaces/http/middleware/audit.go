package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"site-gen-ai-api/pkg/logger"
)

// probePaths 探针与指标抓取路径，不进入审计、追踪
var probePaths = map[string]struct{}{
	"/health":  {},
	"/ready":   {},
	"/live":    {},
	"/metrics": {},
}

func isProbePath(path string) bool {
	_, ok := probePaths[path]
	return ok
}

// AuditConfig 审计配置
type AuditConfig struct {
	Enabled bool
	// SkipPaths 在探针路径之外额外跳过的路径
	SkipPaths []string
}

// Audit 每个请求结束时记录一条审计日志
//
// 5xx 记为 warn；生成记录相关的请求额外带上 generation_id，便于和部署日志对照。
func Audit(cfg AuditConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	extra := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		extra[p] = struct{}{}
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if _, skip := extra[path]; skip || isProbePath(path) {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		attrs := []any{
			"method", c.Request.Method,
			"route", route,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", c.ClientIP(),
		}
		if userID := c.GetString(ctxKeyUserID); userID != "" {
			attrs = append(attrs, "user_id", userID)
		}
		if gid := c.Param("gid"); gid != "" {
			attrs = append(attrs, "generation_id", gid)
		}

		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn(c.Request.Context(), "api audit", attrs...)
			return
		}
		logger.Info(c.Request.Context(), "api audit", attrs...)
	}
}
