package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthChecker 依赖健康检查
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// NamedChecker 带名称的依赖；Optional 为 true 时失败只降级不影响就绪
type NamedChecker struct {
	Name     string
	Checker  HealthChecker
	Optional bool
}

// HealthHandler 健康检查处理器
type HealthHandler struct {
	version  string
	checkers []NamedChecker
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(version string, checkers ...NamedChecker) *HealthHandler {
	return &HealthHandler{version: version, checkers: checkers}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

type readinessCheck struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

type readinessResponse struct {
	Status string                     `json:"status"`
	Checks map[string]*readinessCheck `json:"checks,omitempty"`
}

// Health 健康检查接口
// @Summary 健康检查
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: h.version,
	})
}

// Ready 就绪检查接口：Postgres、Redis、认证后端
// @Summary 就绪检查
// @Tags System
// @Produce json
// @Success 200 {object} readinessResponse
// @Failure 503 {object} readinessResponse
// @Router /ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]*readinessCheck, len(h.checkers))
	ready := true

	for _, nc := range h.checkers {
		check := &readinessCheck{Status: "ok"}
		checks[nc.Name] = check

		if nc.Checker == nil {
			check.Status = "missing"
			check.Error = nc.Name + " not configured"
			ready = ready && nc.Optional
			continue
		}

		start := time.Now()
		err := nc.Checker.HealthCheck(ctx)
		check.LatencyMs = time.Since(start).Milliseconds()
		if err == nil {
			continue
		}
		check.Error = err.Error()
		if nc.Optional {
			check.Status = "degraded"
			continue
		}
		check.Status = "error"
		ready = false
	}

	resp := readinessResponse{Status: "ok", Checks: checks}
	if !ready {
		resp.Status = "not_ready"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Live 存活检查接口
// @Summary 存活检查
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /live [get]
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}
