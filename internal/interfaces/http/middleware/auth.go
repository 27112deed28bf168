package middleware

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/gin-gonic/gin"

	"site-gen-ai-api/internal/application/auth"
	"site-gen-ai-api/internal/domain/entity"
	"site-gen-ai-api/pkg/errors"
	"site-gen-ai-api/pkg/logger"
)

// SessionRestorer 由访问令牌恢复会话
type SessionRestorer interface {
	Restore(ctx context.Context, accessToken string) (*entity.Session, error)
}

// bearerToken 读取 Authorization 头，SSE 连接无法设置请求头时退回 access_token 查询参数
func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if token := c.Query("access_token"); token != "" && c.GetHeader("Accept") == "text/event-stream" {
			return token, true
		}
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func attach(c *gin.Context, session *entity.Session) {
	ctx := auth.WithSession(c.Request.Context(), session)
	ctx = logger.WithContext(ctx, logger.UserIDKey, session.Identity.ID)
	c.Request = c.Request.WithContext(ctx)
	c.Set(ctxKeyUserID, session.Identity.ID)
}

// Auth 强制认证
func Auth(restorer SessionRestorer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			abortWithError(c, errors.ErrTokenMissing)
			return
		}

		session, err := restorer.Restore(c.Request.Context(), token)
		if err != nil {
			if stderrors.Is(err, auth.ErrNetworkFailure) {
				logger.Error(c.Request.Context(), "session store unavailable", err)
				abortWithError(c, errors.ErrServiceUnavailable)
				return
			}
			abortWithError(c, errors.ErrTokenInvalid)
			return
		}

		attach(c, session)
		c.Next()
	}
}

// OptionalAuth 有有效令牌时注入会话，否则按匿名继续
func OptionalAuth(restorer SessionRestorer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c); ok {
			if session, err := restorer.Restore(c.Request.Context(), token); err == nil {
				attach(c, session)
			}
		}
		c.Next()
	}
}
