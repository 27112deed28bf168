package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"site-gen-ai-api/pkg/errors"
	"site-gen-ai-api/pkg/logger"
)

// Recovery Panic 恢复中间件
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error(c.Request.Context(), "panic recovered",
					fmt.Errorf("%v", err),
					"stack", string(debug.Stack()),
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)

				abortWithError(c, errors.ErrInternalError)
			}
		}()

		c.Next()
	}
}

// abortWithError 以统一错误结构终止请求
func abortWithError(c *gin.Context, appErr *errors.AppError) {
	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	body := gin.H{
		"code":     appErr.Code,
		"message":  appErr.Message,
		"trace_id": c.GetString(ctxKeyTraceID),
	}
	if appErr.Detail != "" {
		body["detail"] = appErr.Detail
	}
	c.AbortWithStatusJSON(status, body)
}
