// Package entity 定义领域实体
package entity

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxPromptLength 描述文本最大字符数
const MaxPromptLength = 4000

// 校验错误
var (
	ErrOwnerRequired      = errors.New("owner is required")
	ErrPromptRequired     = errors.New("prompt is required")
	ErrPromptTooLong      = fmt.Errorf("prompt exceeds %d characters", MaxPromptLength)
	ErrUnknownTemplate    = errors.New("unknown template")
	ErrIllegalTransition  = errors.New("illegal status transition")
	ErrDeployURLMismatch  = errors.New("deploy url must be set exactly when completed")
	ErrRequestIDRequired  = errors.New("request id is required")
	ErrStatusChangeOwner  = errors.New("status change owner does not match request")
	ErrStatusChangeTarget = errors.New("status change targets another request")
)

// GenerationStatus 生成请求状态
type GenerationStatus string

const (
	GenerationStatusPending    GenerationStatus = "pending"
	GenerationStatusProcessing GenerationStatus = "processing"
	GenerationStatusCompleted  GenerationStatus = "completed"
	GenerationStatusFailed     GenerationStatus = "failed"
)

// IsValid 检查状态是否已定义
func (s GenerationStatus) IsValid() bool {
	switch s {
	case GenerationStatusPending, GenerationStatusProcessing, GenerationStatusCompleted, GenerationStatusFailed:
		return true
	}
	return false
}

// IsTerminal 已完成或已失败为终态
func (s GenerationStatus) IsTerminal() bool {
	return s == GenerationStatusCompleted || s == GenerationStatusFailed
}

// CanTransitionTo 状态机：pending -> processing -> completed | failed
func (s GenerationStatus) CanTransitionTo(next GenerationStatus) bool {
	switch s {
	case GenerationStatusPending:
		return next == GenerationStatusProcessing
	case GenerationStatusProcessing:
		return next == GenerationStatusCompleted || next == GenerationStatusFailed
	default:
		return false
	}
}

// GenerationRequest 站点生成请求
type GenerationRequest struct {
	ID           string           `json:"id"`
	OwnerID      string           `json:"user_id"`
	Prompt       string           `json:"prompt"`
	Template     Template         `json:"template"`
	Status       GenerationStatus `json:"status"`
	DeployURL    string           `json:"deploy_url,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
}

// NormalizePrompt 去除首尾空白并校验长度
func NormalizePrompt(prompt string) (string, error) {
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return "", ErrPromptRequired
	}
	if utf8.RuneCountInString(trimmed) > MaxPromptLength {
		return "", ErrPromptTooLong
	}
	return trimmed, nil
}

// NewGenerationRequest 创建待处理的生成请求
func NewGenerationRequest(ownerID, prompt string, template Template, now time.Time) (*GenerationRequest, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrOwnerRequired
	}
	normalized, err := NormalizePrompt(prompt)
	if err != nil {
		return nil, err
	}
	if !template.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTemplate, template)
	}

	return &GenerationRequest{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Prompt:    normalized,
		Template:  template,
		Status:    GenerationStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Start 进入处理中，记录落库时即为此状态
func (r *GenerationRequest) Start(now time.Time) error {
	return r.Apply(&StatusChange{RequestID: r.ID, OwnerID: r.OwnerID, Status: GenerationStatusProcessing}, now)
}

// StatusChange 一次状态变更，按请求 ID 与所有者定位记录
type StatusChange struct {
	RequestID    string           `json:"request_id"`
	OwnerID      string           `json:"owner_id"`
	Status       GenerationStatus `json:"status"`
	DeployURL    string           `json:"deploy_url,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

// Validate 校验变更自身是否合法，不涉及当前状态
func (c *StatusChange) Validate() error {
	if c.RequestID == "" {
		return ErrRequestIDRequired
	}
	if c.OwnerID == "" {
		return ErrOwnerRequired
	}
	if !c.Status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrIllegalTransition, c.Status)
	}
	if (c.Status == GenerationStatusCompleted) != (c.DeployURL != "") {
		return ErrDeployURLMismatch
	}
	return nil
}

// Apply 将状态变更应用到请求上
func (r *GenerationRequest) Apply(change *StatusChange, now time.Time) error {
	if err := change.Validate(); err != nil {
		return err
	}
	if change.RequestID != r.ID {
		return ErrStatusChangeTarget
	}
	if change.OwnerID != r.OwnerID {
		return ErrStatusChangeOwner
	}
	if !r.Status.CanTransitionTo(change.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, r.Status, change.Status)
	}

	r.Status = change.Status
	r.DeployURL = change.DeployURL
	r.UpdatedAt = now
	if change.Status == GenerationStatusFailed {
		r.ErrorMessage = change.ErrorMessage
	}
	if change.Status.IsTerminal() {
		completed := now
		r.CompletedAt = &completed
	}
	return nil
}

// HasReached 记录是否已处于变更目标状态，用于对账时判断重复投递
func (r *GenerationRequest) HasReached(change *StatusChange) bool {
	if r.Status != change.Status {
		return false
	}
	return change.Status != GenerationStatusCompleted || r.DeployURL == change.DeployURL
}
