// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"site-gen-ai-api/internal/domain/entity"
	"site-gen-ai-api/internal/domain/repository"
)

// GenerationRequestRepository 生成请求仓储实现
type GenerationRequestRepository struct {
	client *Client
	now    func() time.Time
}

// NewGenerationRequestRepository 创建生成请求仓储
func NewGenerationRequestRepository(client *Client) *GenerationRequestRepository {
	return &GenerationRequestRepository{
		client: client,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

var _ repository.GenerationRequestRepository = (*GenerationRequestRepository)(nil)

// Create 以 processing 状态插入记录，不留停在 pending 的中间态
func (r *GenerationRequestRepository) Create(ctx context.Context, ownerID, prompt string, template entity.Template) (string, error) {
	ctx, span := tracer.Start(ctx, "postgres.GenerationRequestRepository.Create")
	defer span.End()

	now := r.now()
	req, err := entity.NewGenerationRequest(ownerID, prompt, template, now)
	if err != nil {
		return "", classifyEntityError("create", err)
	}
	if err := req.Start(now); err != nil {
		return "", classifyEntityError("create", err)
	}

	if err := getDB(ctx, r.client.db).Create(toGenerationRequestModel(req)).Error; err != nil {
		span.RecordError(err)
		return "", repository.NewStoreError(repository.StoreUnavailable, "create", err)
	}
	return req.ID, nil
}

// UpdateStatus 在行锁下推进状态
func (r *GenerationRequestRepository) UpdateStatus(ctx context.Context, change *entity.StatusChange) error {
	ctx, span := tracer.Start(ctx, "postgres.GenerationRequestRepository.UpdateStatus")
	defer span.End()

	if err := change.Validate(); err != nil {
		return classifyEntityError("update_status", err)
	}
	if _, err := uuid.Parse(change.RequestID); err != nil {
		return repository.NewStoreError(repository.StoreNotFound, "update_status", nil)
	}

	err := withTransaction(ctx, r.client.db, func(txCtx context.Context) error {
		db := getDB(txCtx, r.client.db).Clauses(clause.Locking{Strength: "UPDATE"})

		var model GenerationRequestModel
		if err := db.Where("id = ? AND user_id = ?", change.RequestID, change.OwnerID).First(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return repository.NewStoreError(repository.StoreNotFound, "update_status", nil)
			}
			return repository.NewStoreError(repository.StoreUnavailable, "update_status", err)
		}

		req := model.toEntity()
		if err := req.Apply(change, r.now()); err != nil {
			return classifyEntityError("update_status", err)
		}

		updates := map[string]interface{}{
			"status":        string(req.Status),
			"deploy_url":    optionalString(req.DeployURL),
			"error_message": optionalString(req.ErrorMessage),
			"updated_at":    req.UpdatedAt,
			"completed_at":  req.CompletedAt,
		}
		if err := getDB(txCtx, r.client.db).Model(&GenerationRequestModel{}).
			Where("id = ? AND user_id = ?", change.RequestID, change.OwnerID).
			Updates(updates).Error; err != nil {
			return repository.NewStoreError(repository.StoreUnavailable, "update_status", err)
		}
		return nil
	})
	if err != nil {
		var storeErr *repository.StoreError
		if !errors.As(err, &storeErr) {
			err = repository.NewStoreError(repository.StoreUnavailable, "update_status", err)
		}
		span.RecordError(err)
		return err
	}
	return nil
}

// Get 获取所有者的单条记录
func (r *GenerationRequestRepository) Get(ctx context.Context, ownerID, id string) (*entity.GenerationRequest, error) {
	ctx, span := tracer.Start(ctx, "postgres.GenerationRequestRepository.Get")
	defer span.End()

	if ownerID == "" {
		return nil, repository.NewStoreError(repository.StoreUnauthenticated, "get", nil)
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, repository.NewStoreError(repository.StoreNotFound, "get", nil)
	}

	var model GenerationRequestModel
	if err := getDB(ctx, r.client.db).Where("id = ? AND user_id = ?", id, ownerID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.NewStoreError(repository.StoreNotFound, "get", nil)
		}
		span.RecordError(err)
		return nil, repository.NewStoreError(repository.StoreUnavailable, "get", err)
	}
	return model.toEntity(), nil
}

// ListByOwner 分页获取所有者的历史记录
func (r *GenerationRequestRepository) ListByOwner(ctx context.Context, ownerID string, filter *repository.GenerationRequestFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.GenerationRequest], error) {
	ctx, span := tracer.Start(ctx, "postgres.GenerationRequestRepository.ListByOwner")
	defer span.End()

	if ownerID == "" {
		return nil, repository.NewStoreError(repository.StoreUnauthenticated, "list", nil)
	}

	query := getDB(ctx, r.client.db).Model(&GenerationRequestModel{}).Where("user_id = ?", ownerID)
	if filter != nil {
		if len(filter.Statuses) > 0 {
			statuses := make([]string, 0, len(filter.Statuses))
			for _, s := range filter.Statuses {
				statuses = append(statuses, string(s))
			}
			query = query.Where("status = ANY(?)", pq.Array(statuses))
		}
		if filter.Template != "" {
			query = query.Where("template = ?", string(filter.Template))
		}
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, repository.NewStoreError(repository.StoreUnavailable, "list", err)
	}

	var models []GenerationRequestModel
	if err := query.Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&models).Error; err != nil {
		span.RecordError(err)
		return nil, repository.NewStoreError(repository.StoreUnavailable, "list", err)
	}

	items := make([]*entity.GenerationRequest, 0, len(models))
	for i := range models {
		items = append(items, models[i].toEntity())
	}
	return repository.NewPagedResult(items, total, pagination), nil
}

// classifyEntityError 将实体校验错误映射为存储错误类别
func classifyEntityError(op string, err error) error {
	switch {
	case errors.Is(err, entity.ErrOwnerRequired):
		return repository.NewStoreError(repository.StoreUnauthenticated, op, err)
	case errors.Is(err, entity.ErrPromptRequired),
		errors.Is(err, entity.ErrPromptTooLong),
		errors.Is(err, entity.ErrUnknownTemplate):
		return repository.NewStoreError(repository.StoreValidationFailed, op, err)
	case errors.Is(err, entity.ErrRequestIDRequired),
		errors.Is(err, entity.ErrStatusChangeOwner),
		errors.Is(err, entity.ErrStatusChangeTarget):
		return repository.NewStoreError(repository.StoreNotFound, op, err)
	case errors.Is(err, entity.ErrIllegalTransition),
		errors.Is(err, entity.ErrDeployURLMismatch):
		return repository.NewStoreError(repository.StoreInvalidTransition, op, err)
	default:
		return repository.NewStoreError(repository.StoreUnavailable, op, err)
	}
}
