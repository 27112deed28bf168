package repository

import (
	"errors"
	"fmt"
)

// StoreErrorKind 存储错误类别
type StoreErrorKind string

const (
	StoreUnauthenticated   StoreErrorKind = "unauthenticated"
	StoreValidationFailed  StoreErrorKind = "validation_failed"
	StoreNotFound          StoreErrorKind = "not_found"
	StoreInvalidTransition StoreErrorKind = "invalid_transition"
	StoreUnavailable       StoreErrorKind = "unavailable"
)

// StoreError 存储层错误，可通过 errors.Is 与同类哨兵错误匹配
type StoreError struct {
	Kind StoreErrorKind
	Op   string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		if e.Op == "" {
			return fmt.Sprintf("store: %s", e.Kind)
		}
		return fmt.Sprintf("store %s: %s", e.Op, e.Kind)
	}
	if e.Op == "" {
		return fmt.Sprintf("store: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("store %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is 同类别的 StoreError 视为相等
func (e *StoreError) Is(target error) bool {
	var t *StoreError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// 哨兵错误
var (
	ErrUnauthenticated   = &StoreError{Kind: StoreUnauthenticated}
	ErrValidationFailed  = &StoreError{Kind: StoreValidationFailed}
	ErrNotFound          = &StoreError{Kind: StoreNotFound}
	ErrInvalidTransition = &StoreError{Kind: StoreInvalidTransition}
	ErrUnavailable       = &StoreError{Kind: StoreUnavailable}
)

// NewStoreError 创建存储错误
func NewStoreError(kind StoreErrorKind, op string, err error) *StoreError {
	return &StoreError{Kind: kind, Op: op, Err: err}
}
