package repository

import (
	"context"

	"site-gen-ai-api/internal/domain/entity"
)

// GenerationRequestFilter 生成请求过滤条件
type GenerationRequestFilter struct {
	Statuses []entity.GenerationStatus
	Template entity.Template
}

// GenerationRequestRepository 生成请求仓储接口
// 所有读写都限定在所有者范围内，不属于该所有者的记录一律按不存在处理
type GenerationRequestRepository interface {
	// Create 以 processing 状态插入记录并返回分配的 ID
	Create(ctx context.Context, ownerID, prompt string, template entity.Template) (string, error)

	// UpdateStatus 按 ID 与所有者定位记录并在行锁下推进状态
	UpdateStatus(ctx context.Context, change *entity.StatusChange) error

	// Get 获取所有者的单条记录
	Get(ctx context.Context, ownerID, id string) (*entity.GenerationRequest, error)

	// ListByOwner 分页获取所有者的历史记录，按创建时间倒序
	ListByOwner(ctx context.Context, ownerID string, filter *GenerationRequestFilter, pagination Pagination) (*PagedResult[*entity.GenerationRequest], error)
}
