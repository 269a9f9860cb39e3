// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType 表示错误类型
type ErrorType string

const (
	// ErrorTypeValidation 请求或输入校验失败
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeNotFound 资源不存在
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeError 处理过程中的内部错误
	ErrorTypeError ErrorType = "processing_error"
	// ErrorTypeConflict 资源冲突
	ErrorTypeConflict ErrorType = "conflict"
	// ErrorTypeTooLarge 上传内容超出限制
	ErrorTypeTooLarge ErrorType = "too_large"
	// ErrorTypeUnsupported 不支持的文件类型
	ErrorTypeUnsupported ErrorType = "unsupported_media"
)

// AppError 应用错误
type AppError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
	Code    string    `json:"code,omitempty"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 支持 errors.Is / errors.As
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError 创建应用错误
func NewAppError(errType ErrorType, message string, err error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     err,
		Code:    generateErrorCode(errType),
	}
}

// NewValidationError 创建验证错误
func NewValidationError(message string, err error) *AppError {
	return NewAppError(ErrorTypeValidation, message, err)
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string, err error) *AppError {
	return NewAppError(ErrorTypeNotFound, message, err)
}

// NewProcessingError 创建处理错误
func NewProcessingError(message string, err error) *AppError {
	return NewAppError(ErrorTypeError, message, err)
}

// NewConflictError 创建冲突错误
func NewConflictError(message string, err error) *AppError {
	return NewAppError(ErrorTypeConflict, message, err)
}

// NewTooLargeError 创建超限错误
func NewTooLargeError(message string, err error) *AppError {
	return NewAppError(ErrorTypeTooLarge, message, err)
}

// NewUnsupportedError 创建不支持类型错误
func NewUnsupportedError(message string, err error) *AppError {
	return NewAppError(ErrorTypeUnsupported, message, err)
}

// TypeOf 返回错误链中第一个 AppError 的类型，非 AppError 时为 ErrorTypeError
func TypeOf(err error) ErrorType {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type
	}
	return ErrorTypeError
}

// IsValidationError 检查是否为验证错误
func IsValidationError(err error) bool {
	return err != nil && TypeOf(err) == ErrorTypeValidation
}

// IsNotFoundError 检查是否为未找到错误
func IsNotFoundError(err error) bool {
	return err != nil && TypeOf(err) == ErrorTypeNotFound
}

// IsConflictError 检查是否为冲突错误
func IsConflictError(err error) bool {
	return err != nil && TypeOf(err) == ErrorTypeConflict
}

func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeError:
		return "PROCESSING_ERROR"
	case ErrorTypeConflict:
		return "CONFLICT"
	case ErrorTypeTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case ErrorTypeUnsupported:
		return "UNSUPPORTED_MEDIA_TYPE"
	default:
		return "UNKNOWN_ERROR"
	}
}

// WrapError 包装现有错误，保留已有 AppError 的类型
func WrapError(err error, message string, errType ErrorType) error {
	if err == nil {
		return nil
	}

	var appError *AppError
	if errors.As(err, &appError) {
		return &AppError{
			Type:    appError.Type,
			Message: fmt.Sprintf("%s: %s", message, appError.Message),
			Err:     appError,
			Code:    appError.Code,
		}
	}
	return NewAppError(errType, message, err)
}
