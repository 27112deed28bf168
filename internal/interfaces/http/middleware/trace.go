package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"site-gen-ai-api/pkg/logger"
)

// TraceIDHeader 响应中回传的 trace ID
const TraceIDHeader = "X-Trace-ID"

// Trace 为业务请求创建服务端 span
//
// 探针、指标抓取与会话 SSE 长连接不追踪，后者一条连接可能持续数小时。
func Trace(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName, otelgin.WithFilter(traceable))
}

func traceable(r *http.Request) bool {
	if isProbePath(r.URL.Path) {
		return false
	}
	return !strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// TraceContext 把 trace 标识写入日志上下文，请求结束后给 span 补上用户与生成记录
func TraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		sc := span.SpanContext()
		if !sc.IsValid() {
			c.Next()
			return
		}

		traceID := sc.TraceID().String()
		c.Set(ctxKeyTraceID, traceID)
		c.Header(TraceIDHeader, traceID)

		ctx := logger.WithContext(c.Request.Context(), logger.TraceIDKey, traceID)
		c.Request = c.Request.WithContext(logger.WithContext(ctx, logger.SpanIDKey, sc.SpanID().String()))

		c.Next()

		// 鉴权中间件在 c.Next 内部才写入用户
		if userID := c.GetString(ctxKeyUserID); userID != "" {
			span.SetAttributes(attribute.String("enduser.id", userID))
		}
		if gid := c.Param("gid"); gid != "" {
			span.SetAttributes(attribute.String("generation.id", gid))
		}
	}
}
