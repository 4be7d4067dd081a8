// Package errors 提供统一的错误定义
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误 (1xxx)
	CodeSuccess            ErrorCode = "0"
	CodeUnknown            ErrorCode = "1000"
	CodeInvalidParam       ErrorCode = "1001"
	CodeNotFound           ErrorCode = "1004"
	CodeTooManyRequests    ErrorCode = "1006"
	CodeInternalError      ErrorCode = "1007"
	CodeServiceUnavailable ErrorCode = "1008"
	CodeTimeout            ErrorCode = "1009"

	// 业务错误 (4xxx)
	CodeGenerationUnavailable ErrorCode = "4001"
	CodeRetrievalUnavailable  ErrorCode = "4003"
	CodeMemoryWriteFailed     ErrorCode = "4004"
	CodeLLMCallFailed         ErrorCode = "4005"
	CodeEmbeddingFailed       ErrorCode = "4006"
	CodeMemoryUnavailable     ErrorCode = "4007"
	CodeMalformedMetadata     ErrorCode = "4008"
	CodeIngestFailed          ErrorCode = "4009"

	// 外部服务错误 (5xxx)
	CodeCacheError       ErrorCode = "5002"
	CodeVectorDBError    ErrorCode = "5003"
	CodeLLMProviderError ErrorCode = "5005"
	CodeMessagingError   ErrorCode = "5006"
)

// AppError 应用错误
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Err        error     `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 按错误码比较，使 errors.Is(err, ErrRetrievalUnavailable) 对包装后的实例成立
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetail 返回带详细信息的副本（预定义错误为共享实例，不能原地修改）
func (e *AppError) WithDetail(detail string) *AppError {
	cp := *e
	cp.Detail = detail
	return &cp
}

// New 创建新的应用错误
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Err:        err,
	}
}

// codeToHTTPStatus 错误码转 HTTP 状态码
func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case CodeSuccess:
		return http.StatusOK
	case CodeInvalidParam:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	case CodeMalformedMetadata:
		return http.StatusUnprocessableEntity
	case CodeGenerationUnavailable, CodeLLMProviderError:
		return http.StatusBadGateway
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeServiceUnavailable, CodeRetrievalUnavailable, CodeMemoryUnavailable, CodeVectorDBError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// 预定义错误
var (
	ErrInvalidParam       = New(CodeInvalidParam, "invalid parameter")
	ErrNotFound           = New(CodeNotFound, "resource not found")
	ErrTooManyRequests    = New(CodeTooManyRequests, "too many requests")
	ErrInternalError      = New(CodeInternalError, "internal server error")
	ErrServiceUnavailable = New(CodeServiceUnavailable, "service unavailable")

	ErrRetrievalUnavailable  = New(CodeRetrievalUnavailable, "vector retrieval unavailable")
	ErrMemoryUnavailable     = New(CodeMemoryUnavailable, "memory service unavailable")
	ErrGenerationUnavailable = New(CodeGenerationUnavailable, "answer generation unavailable")
	ErrMalformedMetadata     = New(CodeMalformedMetadata, "malformed metadata")
	ErrEmbeddingFailed       = New(CodeEmbeddingFailed, "embedding failed")
	ErrLLMCallFailed         = New(CodeLLMCallFailed, "LLM call failed")
)

// IsAppError 检查错误链中是否有 AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError 将错误转换为 AppError
func AsAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, CodeUnknown, "unknown error")
}
