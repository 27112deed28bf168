package postgres

import (
	"time"

	"site-gen-ai-api/internal/domain/entity"
)

// GenerationRequestModel site_generations 表映射
type GenerationRequestModel struct {
	ID           string     `gorm:"column:id;type:uuid;primaryKey"`
	UserID       string     `gorm:"column:user_id;type:varchar(64);not null;index:idx_site_generations_user_created,priority:1"`
	Prompt       string     `gorm:"column:prompt;type:text;not null"`
	Template     string     `gorm:"column:template;type:varchar(32);not null"`
	Status       string     `gorm:"column:status;type:varchar(16);not null;index:idx_site_generations_status;check:chk_site_generations_status,status IN ('pending','processing','completed','failed')"`
	DeployURL    *string    `gorm:"column:deploy_url;type:text"`
	ErrorMessage *string    `gorm:"column:error_message;type:text"`
	CreatedAt    time.Time  `gorm:"column:created_at;not null;index:idx_site_generations_user_created,priority:2,sort:desc"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;not null"`
	CompletedAt  *time.Time `gorm:"column:completed_at"`
}

// TableName 表名
func (GenerationRequestModel) TableName() string {
	return "site_generations"
}

func toGenerationRequestModel(req *entity.GenerationRequest) *GenerationRequestModel {
	return &GenerationRequestModel{
		ID:           req.ID,
		UserID:       req.OwnerID,
		Prompt:       req.Prompt,
		Template:     string(req.Template),
		Status:       string(req.Status),
		DeployURL:    optionalString(req.DeployURL),
		ErrorMessage: optionalString(req.ErrorMessage),
		CreatedAt:    req.CreatedAt,
		UpdatedAt:    req.UpdatedAt,
		CompletedAt:  req.CompletedAt,
	}
}

func (m *GenerationRequestModel) toEntity() *entity.GenerationRequest {
	req := &entity.GenerationRequest{
		ID:          m.ID,
		OwnerID:     m.UserID,
		Prompt:      m.Prompt,
		Template:    entity.Template(m.Template),
		Status:      entity.GenerationStatus(m.Status),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
		CompletedAt: m.CompletedAt,
	}
	if m.DeployURL != nil {
		req.DeployURL = *m.DeployURL
	}
	if m.ErrorMessage != nil {
		req.ErrorMessage = *m.ErrorMessage
	}
	return req
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
