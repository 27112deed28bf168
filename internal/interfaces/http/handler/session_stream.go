package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"site-gen-ai-api/internal/application/auth"
	"site-gen-ai-api/internal/domain/entity"
	"site-gen-ai-api/internal/interfaces/http/dto"
	"site-gen-ai-api/pkg/logger"
)

// StreamSession 以 SSE 推送会话变更：连接建立时推送一次恢复的会话，之后推送每次登录登出
// @Summary 会话变更流
// @Tags Auth
// @Produce text/event-stream
// @Param client_key query string false "未登录时用于接收登录完成事件的客户端标识"
// @Success 200 "SSE stream"
// @Failure 401 {object} dto.ErrorResponse
// @Router /v1/auth/session/stream [get]
func (h *AuthHandler) StreamSession(c *gin.Context) {
	ctx := c.Request.Context()
	events := make(chan *entity.SessionEvent, 8)

	sub, err := h.svc.OnSessionChanged(ctx, auth.SubscriptionKey{ClientKey: clientKey(c)}, func(event *entity.SessionEvent) {
		select {
		case events <- event:
		default:
			logger.Warn(ctx, "session stream lagging, event dropped", "type", event.Type)
		}
	})
	if err != nil {
		writeError(c, err)
		return
	}
	defer sub.Cancel()

	// 长连接不受服务器 WriteTimeout 约束
	if err := http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{}); err != nil {
		logger.Debug(ctx, "write deadline not cleared for session stream", "error", err.Error())
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	keepAlive := time.NewTicker(h.cfg.KeepAlive)
	defer keepAlive.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case event := <-events:
			c.SSEvent("session", dto.ToSessionEventDTO(event))
			return true
		case <-keepAlive.C:
			c.SSEvent("ping", gin.H{"ts": time.Now().Unix()})
			return true
		case <-sub.Done():
			return false
		case <-ctx.Done():
			return false
		}
	})
}
