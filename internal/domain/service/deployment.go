// Package service 定义领域服务接口
package service

import (
	"context"
	"errors"
	"fmt"

	"site-gen-ai-api/internal/domain/entity"
)

// DeploymentProvider 站点构建与发布的外部协作方
// 成功时返回已发布站点的公开地址
type DeploymentProvider interface {
	Deploy(ctx context.Context, prompt string, template entity.Template) (string, error)
}

// DeployErrorKind 部署错误类别
type DeployErrorKind string

const (
	DeployProviderUnavailable DeployErrorKind = "provider_unavailable"
	DeployTimeout             DeployErrorKind = "timeout"
)

// DeployError 部署失败
type DeployError struct {
	Kind     DeployErrorKind
	Provider string
	Err      error
}

func (e *DeployError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("deploy %s: %s", e.Provider, e.Kind)
	}
	return fmt.Sprintf("deploy %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *DeployError) Unwrap() error {
	return e.Err
}

// Is 同类别的 DeployError 视为相等
func (e *DeployError) Is(target error) bool {
	var t *DeployError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// 哨兵错误
var (
	ErrProviderUnavailable = &DeployError{Kind: DeployProviderUnavailable}
	ErrDeployTimeout       = &DeployError{Kind: DeployTimeout}
)

// NewDeployError 创建部署错误，上下文超时统一归为 Timeout
func NewDeployError(provider string, err error) *DeployError {
	var de *DeployError
	if errors.As(err, &de) {
		return de
	}
	kind := DeployProviderUnavailable
	if errors.Is(err, context.DeadlineExceeded) {
		kind = DeployTimeout
	}
	return &DeployError{Kind: kind, Provider: provider, Err: err}
}
