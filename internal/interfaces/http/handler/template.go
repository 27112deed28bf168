package handler

import (
	"github.com/gin-gonic/gin"

	"site-gen-ai-api/internal/domain/entity"
	"site-gen-ai-api/internal/interfaces/http/dto"
)

// TemplateHandler 模板目录
type TemplateHandler struct{}

// NewTemplateHandler 创建模板处理器
func NewTemplateHandler() *TemplateHandler {
	return &TemplateHandler{}
}

// ListTemplates 列出可选模板
// @Summary 模板列表
// @Tags Templates
// @Produce json
// @Success 200 {object} dto.Response[[]dto.TemplateResponse]
// @Router /v1/templates [get]
func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	dto.Success(c, dto.ToTemplateResponses(entity.Templates()))
}
