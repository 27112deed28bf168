// Package generation 编排站点生成请求的完整生命周期
package generation

import (
	"errors"
	"fmt"
)

// ErrorKind 生成错误类型
type ErrorKind string

const (
	KindUnauthenticated         ErrorKind = "unauthenticated"
	KindInvalidInput            ErrorKind = "invalid_input"
	KindDeploymentFailed        ErrorKind = "deployment_failed"
	KindPersistenceInconsistent ErrorKind = "persistence_inconsistent"
	KindPersistenceUnavailable  ErrorKind = "persistence_unavailable"
)

// GenerationError 生成请求失败
type GenerationError struct {
	Kind ErrorKind
	// RequestID 已创建记录的 ID，记录未创建时为空
	RequestID string
	Err       error
}

func (e *GenerationError) Error() string {
	msg := "generation: " + string(e.Kind)
	if e.RequestID != "" {
		msg = fmt.Sprintf("%s (request %s)", msg, e.RequestID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Is 按 Kind 匹配
func (e *GenerationError) Is(target error) bool {
	var t *GenerationError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrUnauthenticated         = &GenerationError{Kind: KindUnauthenticated}
	ErrInvalidInput            = &GenerationError{Kind: KindInvalidInput}
	ErrDeploymentFailed        = &GenerationError{Kind: KindDeploymentFailed}
	ErrPersistenceInconsistent = &GenerationError{Kind: KindPersistenceInconsistent}
	ErrPersistenceUnavailable  = &GenerationError{Kind: KindPersistenceUnavailable}
)
