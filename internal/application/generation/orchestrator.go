package generation

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"site-gen-ai-api/internal/domain/entity"
	"site-gen-ai-api/internal/domain/repository"
	"site-gen-ai-api/internal/domain/service"
	"site-gen-ai-api/pkg/logger"
	"site-gen-ai-api/pkg/metrics"
	"site-gen-ai-api/pkg/tracer"
)

// IdentitySource 提供当前请求的身份
type IdentitySource interface {
	CurrentIdentity(ctx context.Context) (*entity.Identity, bool)
}

// Reconciler 接收未能落库的状态变更，稍后重放
type Reconciler interface {
	Enqueue(ctx context.Context, change *entity.StatusChange) error
}

// Result 生成成功结果
type Result struct {
	RequestID string `json:"request_id"`
	URL       string `json:"deploy_url"`
}

// Config 编排参数
type Config struct {
	// ProviderName 部署提供方名称，用于指标与错误信息
	ProviderName  string
	DeployTimeout time.Duration
}

// Orchestrator 生成请求状态机
type Orchestrator struct {
	identities IdentitySource
	store      repository.GenerationRequestRepository
	provider   service.DeploymentProvider
	reconciler Reconciler
	cfg        Config

	inflight sync.WaitGroup
}

// NewOrchestrator 创建编排器，reconciler 可为 nil
func NewOrchestrator(identities IdentitySource, store repository.GenerationRequestRepository, provider service.DeploymentProvider, reconciler Reconciler, cfg Config) *Orchestrator {
	if cfg.DeployTimeout <= 0 {
		cfg.DeployTimeout = 2 * time.Minute
	}
	if cfg.ProviderName == "" {
		cfg.ProviderName = "default"
	}
	return &Orchestrator{
		identities: identities,
		store:      store,
		provider:   provider,
		reconciler: reconciler,
		cfg:        cfg,
	}
}

type outcome struct {
	result *Result
	err    error
}

// Submit 校验前置条件、创建记录并驱动部署，直到记录进入终态。
// 调用方放弃等待时返回 ctx.Err()，部署与终态落库仍会完成
func (o *Orchestrator) Submit(ctx context.Context, prompt string, template entity.Template) (*Result, error) {
	ctx, span := tracer.Start(ctx, "generation.Submit")
	defer span.End()

	identity, ok := o.identities.CurrentIdentity(ctx)
	if !ok || identity == nil || identity.ID == "" {
		return nil, &GenerationError{Kind: KindUnauthenticated}
	}
	prompt, err := entity.NormalizePrompt(prompt)
	if err != nil {
		return nil, &GenerationError{Kind: KindInvalidInput, Err: err}
	}
	if !template.IsValid() {
		return nil, &GenerationError{Kind: KindInvalidInput, Err: entity.ErrUnknownTemplate}
	}

	id, err := o.store.Create(ctx, identity.ID, prompt, template)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, classifyCreateError(err)
	}
	ctx = logger.WithContext(ctx, logger.GenerationIDKey, id)
	tracer.TagGeneration(span, id, string(template))

	logger.Info(ctx, "generation processing", "template", template)

	done := make(chan outcome, 1)
	o.inflight.Add(1)
	metrics.DeploysInFlight.Inc()
	go func() {
		defer o.inflight.Done()
		defer metrics.DeploysInFlight.Dec()
		result, err := o.deploy(context.WithoutCancel(ctx), identity.ID, id, prompt, template)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			tracer.RecordError(span, out.err)
		}
		return out.result, out.err
	case <-ctx.Done():
		logger.Warn(ctx, "caller stopped waiting for generation")
		return nil, ctx.Err()
	}
}

func classifyCreateError(err error) error {
	switch {
	case errors.Is(err, repository.ErrUnauthenticated):
		return &GenerationError{Kind: KindUnauthenticated, Err: err}
	case errors.Is(err, repository.ErrValidationFailed):
		return &GenerationError{Kind: KindInvalidInput, Err: err}
	default:
		return &GenerationError{Kind: KindPersistenceUnavailable, Err: err}
	}
}

// deploy 调用部署方并把结果写入终态
func (o *Orchestrator) deploy(ctx context.Context, ownerID, id, prompt string, template entity.Template) (*Result, error) {
	ctx, span := tracer.Start(ctx, "generation.deploy", trace.WithAttributes(
		tracer.AttrGenerationID.String(id),
		tracer.AttrDeployProvider.String(o.cfg.ProviderName),
	))
	defer span.End()

	deployCtx, cancel := context.WithTimeout(ctx, o.cfg.DeployTimeout)
	start := time.Now()
	url, err := o.provider.Deploy(deployCtx, prompt, template)
	cancel()

	if err != nil {
		deployErr := service.NewDeployError(o.cfg.ProviderName, err)
		tracer.RecordError(span, deployErr)
		metrics.DeployDuration.WithLabelValues(o.cfg.ProviderName, "failed").Observe(time.Since(start).Seconds())
		metrics.GenerationTotal.WithLabelValues(string(template), string(entity.GenerationStatusFailed)).Inc()
		logger.Error(ctx, "deployment failed", deployErr, "kind", deployErr.Kind)

		o.persist(ctx, &entity.StatusChange{
			RequestID:    id,
			OwnerID:      ownerID,
			Status:       entity.GenerationStatusFailed,
			ErrorMessage: deployErr.Error(),
		})
		return nil, &GenerationError{Kind: KindDeploymentFailed, RequestID: id, Err: deployErr}
	}

	metrics.DeployDuration.WithLabelValues(o.cfg.ProviderName, "success").Observe(time.Since(start).Seconds())
	metrics.GenerationTotal.WithLabelValues(string(template), string(entity.GenerationStatusCompleted)).Inc()

	result := &Result{RequestID: id, URL: url}
	if err := o.persist(ctx, &entity.StatusChange{
		RequestID: id,
		OwnerID:   ownerID,
		Status:    entity.GenerationStatusCompleted,
		DeployURL: url,
	}); err != nil {
		return result, &GenerationError{Kind: KindPersistenceInconsistent, RequestID: id, Err: err}
	}
	logger.Info(ctx, "generation completed", "deploy_url", url)
	return result, nil
}

// persist 写入终态，失败时交给对账队列
func (o *Orchestrator) persist(ctx context.Context, change *entity.StatusChange) error {
	err := o.store.UpdateStatus(ctx, change)
	if err == nil {
		return nil
	}
	logger.Error(ctx, "failed to persist terminal status", err, "status", change.Status)
	if o.reconciler == nil {
		return err
	}
	if qerr := o.reconciler.Enqueue(ctx, change); qerr != nil {
		logger.Error(ctx, "failed to enqueue reconciliation", qerr, "status", change.Status)
		return errors.Join(err, qerr)
	}
	logger.Warn(ctx, "terminal status queued for reconciliation", "status", change.Status)
	return err
}

// Drain 等待已启动的部署全部落库，ctx 结束时提前返回
func (o *Orchestrator) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get 获取当前用户的一条记录
func (o *Orchestrator) Get(ctx context.Context, id string) (*entity.GenerationRequest, error) {
	identity, ok := o.identities.CurrentIdentity(ctx)
	if !ok || identity == nil {
		return nil, &GenerationError{Kind: KindUnauthenticated}
	}
	return o.store.Get(ctx, identity.ID, id)
}

// List 分页获取当前用户的记录
func (o *Orchestrator) List(ctx context.Context, filter *repository.GenerationRequestFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.GenerationRequest], error) {
	identity, ok := o.identities.CurrentIdentity(ctx)
	if !ok || identity == nil {
		return nil, &GenerationError{Kind: KindUnauthenticated}
	}
	return o.store.ListByOwner(ctx, identity.ID, filter, pagination)
}
