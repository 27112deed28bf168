package handler

import (
	"context"
	stderrors "errors"

	"github.com/gin-gonic/gin"

	"site-gen-ai-api/internal/application/generation"
	"site-gen-ai-api/internal/domain/entity"
	"site-gen-ai-api/internal/domain/repository"
	"site-gen-ai-api/internal/interfaces/http/dto"
	"site-gen-ai-api/pkg/errors"
	"site-gen-ai-api/pkg/logger"
)

// GenerationService 生成编排
type GenerationService interface {
	Submit(ctx context.Context, prompt string, template entity.Template) (*generation.Result, error)
	Get(ctx context.Context, id string) (*entity.GenerationRequest, error)
	List(ctx context.Context, filter *repository.GenerationRequestFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.GenerationRequest], error)
}

// GenerationHandler 生成请求处理器
type GenerationHandler struct {
	svc GenerationService
}

// NewGenerationHandler 创建生成请求处理器
func NewGenerationHandler(svc GenerationService) *GenerationHandler {
	return &GenerationHandler{svc: svc}
}

// Submit 提交生成请求并等待部署结果
// @Summary 生成站点
// @Tags Generations
// @Accept json
// @Produce json
// @Param body body dto.CreateGenerationRequest true "描述与模板"
// @Success 201 {object} dto.Response[dto.SubmitGenerationResponse]
// @Success 202 {object} dto.Response[dto.SubmitGenerationResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 502 {object} dto.ErrorResponse
// @Router /v1/generations [post]
func (h *GenerationHandler) Submit(c *gin.Context) {
	var req dto.CreateGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := h.svc.Submit(c.Request.Context(), req.Prompt, entity.Template(req.Template))
	if err != nil {
		if result != nil && stderrors.Is(err, generation.ErrPersistenceInconsistent) {
			// 站点已发布，状态由对账进程补写
			logger.Warn(c.Request.Context(), "generation deployed with pending reconciliation", "request_id", result.RequestID)
			dto.Accepted(c, errors.ErrPersistenceInconsistent.Message, &dto.SubmitGenerationResponse{
				RequestID: result.RequestID,
				DeployURL: result.URL,
				Status:    string(entity.GenerationStatusProcessing),
			})
			return
		}
		if stderrors.Is(err, context.Canceled) {
			return
		}
		writeError(c, err)
		return
	}

	dto.Created(c, &dto.SubmitGenerationResponse{
		RequestID: result.RequestID,
		DeployURL: result.URL,
		Status:    string(entity.GenerationStatusCompleted),
	})
}

// Get 获取生成记录
// @Summary 生成记录详情
// @Tags Generations
// @Produce json
// @Param gid path string true "记录 ID"
// @Success 200 {object} dto.Response[dto.GenerationResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/generations/{gid} [get]
func (h *GenerationHandler) Get(c *gin.Context) {
	req, err := h.svc.Get(c.Request.Context(), dto.GenerationID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	dto.Success(c, dto.ToGenerationResponse(req))
}

// List 分页列出当前用户的生成记录
// @Summary 生成记录列表
// @Tags Generations
// @Produce json
// @Param status query []string false "状态过滤"
// @Param template query string false "模板过滤"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} dto.Response[[]dto.GenerationResponse]
// @Router /v1/generations [get]
func (h *GenerationHandler) List(c *gin.Context) {
	var query dto.ListGenerationsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		dto.BadRequest(c, "invalid query: "+err.Error())
		return
	}

	filter, reason, ok := query.Filter()
	if !ok {
		dto.BadRequest(c, reason)
		return
	}

	result, err := h.svc.List(c.Request.Context(), filter, query.Pagination())
	if err != nil {
		writeError(c, err)
		return
	}
	dto.SuccessWithPage(c, dto.ToGenerationResponses(result.Items), dto.NewPageMeta(result))
}
