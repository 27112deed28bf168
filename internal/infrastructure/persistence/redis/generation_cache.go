package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"site-gen-ai-api/internal/domain/entity"
	"site-gen-ai-api/internal/domain/repository"
	"site-gen-ai-api/pkg/logger"
)

// CachedGenerationRequestRepository 为生成请求的单条读取提供 Read-Through 缓存
// 每次状态变更后删除对应缓存
type CachedGenerationRequestRepository struct {
	inner repository.GenerationRequestRepository
	cache *Cache
	ttl   time.Duration
}

// NewCachedGenerationRequestRepository 创建带缓存的仓储
func NewCachedGenerationRequestRepository(inner repository.GenerationRequestRepository, cache *Cache, ttl time.Duration) *CachedGenerationRequestRepository {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedGenerationRequestRepository{inner: inner, cache: cache, ttl: ttl}
}

var _ repository.GenerationRequestRepository = (*CachedGenerationRequestRepository)(nil)

// GenerationCacheKey 生成请求缓存键
func GenerationCacheKey(ownerID, id string) string {
	return fmt.Sprintf("generation:%s:%s", ownerID, id)
}

// Create 直接写入底层仓储
func (r *CachedGenerationRequestRepository) Create(ctx context.Context, ownerID, prompt string, template entity.Template) (string, error) {
	return r.inner.Create(ctx, ownerID, prompt, template)
}

// UpdateStatus 更新后删除缓存，更新失败同样删除以免残留旧状态
func (r *CachedGenerationRequestRepository) UpdateStatus(ctx context.Context, change *entity.StatusChange) error {
	err := r.inner.UpdateStatus(ctx, change)
	if delErr := r.cache.Invalidate(ctx, GenerationCacheKey(change.OwnerID, change.RequestID)); delErr != nil {
		logger.Warn(ctx, "failed to invalidate generation cache", "request_id", change.RequestID, "error", delErr.Error())
	}
	return err
}

// Get 先读缓存，未命中时回源；Redis 故障时降级为直接回源
//
// 只缓存已到终态的记录，pending 与 processing 的记录每次都回源。
func (r *CachedGenerationRequestRepository) Get(ctx context.Context, ownerID, id string) (*entity.GenerationRequest, error) {
	var req entity.GenerationRequest
	err := r.cache.Fetch(ctx, GenerationCacheKey(ownerID, id), r.ttl, &req, func(ctx context.Context) (any, bool, error) {
		loaded, err := r.inner.Get(ctx, ownerID, id)
		if err != nil {
			return nil, false, err
		}
		return loaded, loaded.Status.IsTerminal(), nil
	})
	if err != nil {
		var cacheErr *CacheError
		if errors.As(err, &cacheErr) {
			logger.Warn(ctx, "generation cache unavailable, reading from store", "request_id", id, "error", err.Error())
			return r.inner.Get(ctx, ownerID, id)
		}
		return nil, err
	}
	return &req, nil
}

// ListByOwner 列表结果不缓存
func (r *CachedGenerationRequestRepository) ListByOwner(ctx context.Context, ownerID string, filter *repository.GenerationRequestFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.GenerationRequest], error) {
	return r.inner.ListByOwner(ctx, ownerID, filter, pagination)
}
