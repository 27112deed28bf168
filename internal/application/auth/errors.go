// Package auth 实现登录会话上下文：第三方登录握手、会话签发与吊销、会话变更订阅
package auth

import (
	"errors"
	"fmt"
	"net/http"

	"site-gen-ai-api/internal/infrastructure/backend"
)

// ErrorKind 认证错误类型
type ErrorKind string

const (
	KindProviderRejected ErrorKind = "provider_rejected"
	KindNetworkFailure   ErrorKind = "network_failure"
	KindUnauthenticated  ErrorKind = "unauthenticated"
)

// AuthError 认证错误
type AuthError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("auth %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("auth %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is 按 Kind 匹配
func (e *AuthError) Is(target error) bool {
	var t *AuthError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrProviderRejected = &AuthError{Kind: KindProviderRejected}
	ErrNetworkFailure   = &AuthError{Kind: KindNetworkFailure}
	ErrUnauthenticated  = &AuthError{Kind: KindUnauthenticated}
)

func newError(kind ErrorKind, op string, err error) error {
	return &AuthError{Kind: kind, Op: op, Err: err}
}

// classifyBackendError 后端明确拒绝视为 ProviderRejected，传输失败与 5xx 视为 NetworkFailure
func classifyBackendError(op string, err error) error {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
		return newError(KindProviderRejected, op, err)
	}
	return newError(KindNetworkFailure, op, err)
}
