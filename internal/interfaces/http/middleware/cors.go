package middleware

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// 前端需要读到的响应头：限流重试时间、排障用的请求与 trace 标识
var exposedHeaders = []string{RequestIDHeader, TraceIDHeader, "Retry-After", "X-RateLimit-Remaining"}

// CORS 跨域中间件
//
// 刷新令牌走 Cookie，因此总是开启 AllowCredentials；通配来源会被忽略，
// 未配置任何来源时只接受同源请求。
func CORS(cfg CORSConfig) gin.HandlerFunc {
	methods := cfg.AllowedMethods
	if len(methods) == 0 {
		methods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	}
	headers := cfg.AllowedHeaders
	if len(headers) == 0 {
		headers = []string{"Origin", "Accept", "Content-Type", "Authorization", "Last-Event-ID", RequestIDHeader}
	}
	origins := slices.DeleteFunc(slices.Clone(cfg.AllowedOrigins), func(o string) bool {
		return o == "" || o == "*"
	})

	return cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return slices.Contains(origins, origin)
		},
		AllowMethods:     methods,
		AllowHeaders:     headers,
		ExposeHeaders:    exposedHeaders,
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}
