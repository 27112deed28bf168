package handler

import (
	"context"
	stderrors "errors"

	"github.com/gin-gonic/gin"

	"site-gen-ai-api/internal/application/auth"
	"site-gen-ai-api/internal/application/generation"
	"site-gen-ai-api/internal/domain/repository"
	"site-gen-ai-api/internal/domain/service"
	"site-gen-ai-api/internal/interfaces/http/dto"
	"site-gen-ai-api/pkg/errors"
	"site-gen-ai-api/pkg/logger"
)

// toAppError 把各层错误映射为对外错误码，每类失败对应不同的状态码与消息
func toAppError(err error) *errors.AppError {
	var appErr *errors.AppError
	switch {
	case stderrors.As(err, &appErr):
		return appErr

	case stderrors.Is(err, auth.ErrProviderRejected):
		return errors.ErrProviderRejected.WithError(err)
	case stderrors.Is(err, auth.ErrNetworkFailure):
		return errors.ErrAuthNetwork.WithError(err)
	case stderrors.Is(err, auth.ErrUnauthenticated),
		stderrors.Is(err, generation.ErrUnauthenticated):
		return errors.ErrUnauthorized.WithError(err)

	case stderrors.Is(err, generation.ErrInvalidInput):
		return errors.ErrValidationFailed.WithDetail(rootCause(err).Error()).WithError(err)
	case stderrors.Is(err, generation.ErrDeploymentFailed):
		if stderrors.Is(err, service.ErrDeployTimeout) {
			return errors.ErrDeployTimeout.WithError(err)
		}
		return errors.ErrDeploymentFailed.WithError(err)
	case stderrors.Is(err, generation.ErrPersistenceInconsistent):
		return errors.ErrPersistenceInconsistent.WithError(err)
	case stderrors.Is(err, generation.ErrPersistenceUnavailable):
		return errors.ErrPersistenceDown.WithError(err)

	case stderrors.Is(err, repository.ErrNotFound):
		return errors.ErrGenerationNotFound.WithError(err)
	case stderrors.Is(err, repository.ErrInvalidTransition):
		return errors.ErrInvalidTransition.WithError(err)
	case stderrors.Is(err, repository.ErrValidationFailed):
		return errors.ErrValidationFailed.WithError(err)
	case stderrors.Is(err, repository.ErrUnauthenticated):
		return errors.ErrUnauthorized.WithError(err)
	case stderrors.Is(err, repository.ErrUnavailable):
		return errors.ErrPersistenceDown.WithError(err)

	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.ErrServiceUnavailable.WithError(err)
	default:
		return errors.ErrInternalError.WithError(err)
	}
}

func rootCause(err error) error {
	for {
		next := stderrors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

// writeError 记录并返回错误
func writeError(c *gin.Context, err error) {
	appErr := toAppError(err)
	if appErr.HTTPStatus >= 500 {
		logger.Error(c.Request.Context(), "request failed", err, "code", appErr.Code)
	} else {
		logger.Debug(c.Request.Context(), "request rejected", "code", appErr.Code, "error", err.Error())
	}
	dto.Fail(c, appErr)
}
