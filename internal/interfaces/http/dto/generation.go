package dto

import (
	"time"

	"site-gen-ai-api/internal/domain/entity"
)

// CreateGenerationRequest 提交生成请求，内容校验交给业务层
type CreateGenerationRequest struct {
	Prompt   string `json:"prompt"`
	Template string `json:"template"`
}

// SubmitGenerationResponse 提交结果
type SubmitGenerationResponse struct {
	RequestID string `json:"request_id"`
	DeployURL string `json:"deploy_url"`
	Status    string `json:"status"`
}

// GenerationResponse 生成记录
type GenerationResponse struct {
	ID           string     `json:"id"`
	Prompt       string     `json:"prompt"`
	Template     string     `json:"template"`
	Status       string     `json:"status"`
	DeployURL    string     `json:"deploy_url,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// ToGenerationResponse 实体转响应
func ToGenerationResponse(req *entity.GenerationRequest) *GenerationResponse {
	if req == nil {
		return nil
	}
	return &GenerationResponse{
		ID:           req.ID,
		Prompt:       req.Prompt,
		Template:     string(req.Template),
		Status:       string(req.Status),
		DeployURL:    req.DeployURL,
		ErrorMessage: req.ErrorMessage,
		CreatedAt:    req.CreatedAt,
		UpdatedAt:    req.UpdatedAt,
		CompletedAt:  req.CompletedAt,
	}
}

// ToGenerationResponses 批量转换
func ToGenerationResponses(items []*entity.GenerationRequest) []*GenerationResponse {
	out := make([]*GenerationResponse, 0, len(items))
	for _, item := range items {
		out = append(out, ToGenerationResponse(item))
	}
	return out
}

// TemplateResponse 模板信息
type TemplateResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ToTemplateResponses 模板列表转换
func ToTemplateResponses(items []entity.TemplateInfo) []TemplateResponse {
	out := make([]TemplateResponse, 0, len(items))
	for _, item := range items {
		out = append(out, TemplateResponse{
			ID:          string(item.ID),
			Name:        item.Name,
			Description: item.Description,
		})
	}
	return out
}
