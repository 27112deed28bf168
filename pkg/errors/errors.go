// Package errors 定义对外暴露的错误码及其 HTTP 映射
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码，按首位数字分组
type ErrorCode string

const (
	// 通用 (1xxx)
	CodeSuccess            ErrorCode = "0"
	CodeUnknown            ErrorCode = "1000"
	CodeInvalidParam       ErrorCode = "1001"
	CodeUnauthorized       ErrorCode = "1002"
	CodeTooManyRequests    ErrorCode = "1006"
	CodeInternalError      ErrorCode = "1007"
	CodeServiceUnavailable ErrorCode = "1008"

	// 登录 (2xxx)
	CodeTokenInvalid     ErrorCode = "2002"
	CodeTokenMissing     ErrorCode = "2003"
	CodeProviderRejected ErrorCode = "2005"
	CodeAuthNetwork      ErrorCode = "2006"

	// 生成记录 (3xxx)
	CodeGenerationNotFound ErrorCode = "3001"

	// 生成与部署流程 (4xxx)
	CodeDeploymentFailed        ErrorCode = "4001"
	CodeValidationFailed        ErrorCode = "4002"
	CodeInvalidTransition       ErrorCode = "4003"
	CodePersistenceInconsistent ErrorCode = "4004"

	// 依赖不可用 (5xxx)
	CodeDeployTimeout   ErrorCode = "5005"
	CodePersistenceDown ErrorCode = "5006"
)

// httpStatus 未列出的错误码一律按 500 返回
var httpStatus = map[ErrorCode]int{
	CodeSuccess:            http.StatusOK,
	CodeInvalidParam:       http.StatusBadRequest,
	CodeValidationFailed:   http.StatusBadRequest,
	CodeUnauthorized:       http.StatusUnauthorized,
	CodeTokenInvalid:       http.StatusUnauthorized,
	CodeTokenMissing:       http.StatusUnauthorized,
	CodeProviderRejected:   http.StatusForbidden,
	CodeGenerationNotFound: http.StatusNotFound,
	CodeInvalidTransition:  http.StatusConflict,
	CodeTooManyRequests:    http.StatusTooManyRequests,
	CodeDeploymentFailed:   http.StatusBadGateway,
	CodeAuthNetwork:        http.StatusBadGateway,
	CodeDeployTimeout:      http.StatusGatewayTimeout,
	CodeServiceUnavailable: http.StatusServiceUnavailable,
	CodePersistenceDown:    http.StatusServiceUnavailable,
}

// AppError 返回给调用方的错误
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Err        error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail 返回附带详细信息的副本，预定义错误不会被修改
func (e *AppError) WithDetail(detail string) *AppError {
	cp := *e
	cp.Detail = detail
	return &cp
}

// WithError 返回附带底层错误的副本
func (e *AppError) WithError(err error) *AppError {
	cp := *e
	cp.Err = err
	return &cp
}

// New 创建错误并按错误码确定 HTTP 状态
func New(code ErrorCode, message string) *AppError {
	status, ok := httpStatus[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	return &AppError{Code: code, Message: message, HTTPStatus: status}
}

// 预定义错误
var (
	ErrInvalidParam       = New(CodeInvalidParam, "invalid parameter")
	ErrUnauthorized       = New(CodeUnauthorized, "unauthorized")
	ErrTooManyRequests    = New(CodeTooManyRequests, "too many requests")
	ErrInternalError      = New(CodeInternalError, "internal server error")
	ErrServiceUnavailable = New(CodeServiceUnavailable, "service unavailable")

	ErrTokenInvalid     = New(CodeTokenInvalid, "token invalid")
	ErrTokenMissing     = New(CodeTokenMissing, "token missing")
	ErrProviderRejected = New(CodeProviderRejected, "sign-in provider rejected the request")
	ErrAuthNetwork      = New(CodeAuthNetwork, "sign-in provider unreachable")

	ErrGenerationNotFound = New(CodeGenerationNotFound, "generation request not found")

	ErrDeploymentFailed        = New(CodeDeploymentFailed, "site deployment failed")
	ErrDeployTimeout           = New(CodeDeployTimeout, "site deployment timed out")
	ErrValidationFailed        = New(CodeValidationFailed, "validation failed")
	ErrInvalidTransition       = New(CodeInvalidTransition, "invalid status transition")
	ErrPersistenceInconsistent = New(CodePersistenceInconsistent, "site deployed but status not yet persisted")
	ErrPersistenceDown         = New(CodePersistenceDown, "generation storage unavailable")
)

// AsAppError 取出错误链上的 AppError，没有时归为未知错误
func AsAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return New(CodeUnknown, "unknown error").WithError(err)
}
