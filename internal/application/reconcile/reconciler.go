// Package reconcile 重放未能落库的生成状态变更
package reconcile

import (
	"context"
	"errors"

	"site-gen-ai-api/internal/domain/entity"
	"site-gen-ai-api/internal/domain/repository"
	"site-gen-ai-api/internal/infrastructure/messaging"
	"site-gen-ai-api/pkg/logger"
	"site-gen-ai-api/pkg/metrics"
)

// 对账结果
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeConflict  = "conflict"
	OutcomeNotFound  = "not_found"
	OutcomeInvalid   = "invalid"
	OutcomeRetry     = "retry"
)

// Reconciler 对账处理器
type Reconciler struct {
	store repository.GenerationRequestRepository
}

// NewReconciler 创建对账处理器
func NewReconciler(store repository.GenerationRequestRepository) *Reconciler {
	return &Reconciler{store: store}
}

// HandleMessage 处理一条对账消息，返回错误时消息留待重试
func (r *Reconciler) HandleMessage(ctx context.Context, msg *messaging.Message) error {
	var change entity.StatusChange
	if err := msg.UnmarshalPayload(&change); err != nil {
		logger.Error(ctx, "dropping undecodable reconcile payload", err, "message_id", msg.ID)
		metrics.ReconcileTotal.WithLabelValues(OutcomeInvalid).Inc()
		return nil
	}

	outcome, err := r.Apply(ctx, &change)
	metrics.ReconcileTotal.WithLabelValues(outcome).Inc()
	return err
}

// Apply 重放状态变更；记录已处于目标状态时视为完成
func (r *Reconciler) Apply(ctx context.Context, change *entity.StatusChange) (string, error) {
	err := r.store.UpdateStatus(ctx, change)
	switch {
	case err == nil:
		logger.Info(ctx, "status change reconciled", "status", change.Status)
		return OutcomeApplied, nil

	case errors.Is(err, repository.ErrInvalidTransition):
		current, getErr := r.store.Get(ctx, change.OwnerID, change.RequestID)
		if getErr != nil {
			if errors.Is(getErr, repository.ErrNotFound) {
				return OutcomeNotFound, nil
			}
			return OutcomeRetry, getErr
		}
		if current.HasReached(change) {
			return OutcomeDuplicate, nil
		}
		logger.Warn(ctx, "reconcile target conflicts with stored status",
			"stored_status", current.Status,
			"target_status", change.Status,
		)
		return OutcomeConflict, nil

	case errors.Is(err, repository.ErrNotFound):
		logger.Warn(ctx, "reconcile target not found", "status", change.Status)
		return OutcomeNotFound, nil

	case errors.Is(err, repository.ErrValidationFailed), errors.Is(err, repository.ErrUnauthenticated):
		logger.Error(ctx, "dropping invalid status change", err)
		return OutcomeInvalid, nil

	default:
		return OutcomeRetry, err
	}
}
