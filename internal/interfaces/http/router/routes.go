package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(v1 *gin.RouterGroup, h Handlers, m Middlewares) {
	// 认证
	authGroup := v1.Group("/auth")
	{
		authGroup.GET("/signin/:provider", h.Auth.SignIn)
		authGroup.POST("/refresh", h.Auth.Refresh)
		authGroup.POST("/signout", m.Auth, h.Auth.SignOut)
		authGroup.GET("/session", m.OptionalAuth, h.Auth.Session)
		authGroup.GET("/session/stream", m.OptionalAuth, h.Auth.StreamSession) // SSE
	}

	// 模板目录
	v1.GET("/templates", h.Template.ListTemplates)

	// 站点生成
	generations := v1.Group("/generations", m.Auth)
	{
		generations.POST("", m.SubmitRateLimit, h.Generation.Submit)
		generations.GET("", h.Generation.List)
		generations.GET("/:gid", h.Generation.Get)
	}
}
