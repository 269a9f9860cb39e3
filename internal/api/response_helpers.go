// internal/api/response_helpers.go
package api

import (
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	"github.com/Corphon/NovelGenPage/internal/errors"
	"github.com/Corphon/NovelGenPage/internal/utils"
	"github.com/gin-gonic/gin"
)

// APIResponse 标准API响应格式
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// APIError 标准错误格式
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ResponseHelper 响应助手类
type ResponseHelper struct{}

// NewResponseHelper 创建响应助手
func NewResponseHelper() *ResponseHelper {
	return &ResponseHelper{}
}

// Success 成功响应
func (rh *ResponseHelper) Success(c *gin.Context, data interface{}, message ...string) {
	rh.write(c, http.StatusOK, data, message...)
}

// Created 创建成功响应
func (rh *ResponseHelper) Created(c *gin.Context, data interface{}, message ...string) {
	if len(message) == 0 {
		message = []string{"资源创建成功"}
	}
	rh.write(c, http.StatusCreated, data, message...)
}

func (rh *ResponseHelper) write(c *gin.Context, status int, data interface{}, message ...string) {
	response := &APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}
	if len(message) > 0 {
		response.Message = message[0]
	}
	c.JSON(status, response)
}

// sanitizeErrorMessage 去掉错误信息中的本地路径
func sanitizeErrorMessage(message string) string {
	lower := strings.ToLower(message)
	for _, pattern := range []string{"api_key", "secret", "token", "password"} {
		if strings.Contains(lower, pattern) {
			return "An internal error occurred"
		}
	}
	fields := strings.Fields(message)
	for i, f := range fields {
		if strings.Count(f, "/") > 1 || strings.Contains(f, `\`) {
			fields[i] = "<path>"
		}
	}
	return strings.Join(fields, " ")
}

// Error 错误响应
func (rh *ResponseHelper) Error(c *gin.Context, statusCode int, errorCode, message string, details ...string) {
	apiError := &APIError{
		Code:    errorCode,
		Message: sanitizeErrorMessage(message),
	}
	if len(details) > 0 && details[0] != "" {
		apiError.Details = sanitizeErrorMessage(details[0])
	}

	c.JSON(statusCode, &APIResponse{
		Success:   false,
		Error:     apiError,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	})
}

// BadRequest 400错误响应
func (rh *ResponseHelper) BadRequest(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusBadRequest, ErrorBadRequest, message, details...)
}

// NotFound 404错误响应
func (rh *ResponseHelper) NotFound(c *gin.Context, resource string, details ...string) {
	rh.Error(c, http.StatusNotFound, rh.getResourceNotFoundCode(resource), resource+"不存在", details...)
}

// InternalError 500错误响应
func (rh *ResponseHelper) InternalError(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusInternalServerError, ErrorInternalError, message, details...)
}

// Conflict 409错误响应
func (rh *ResponseHelper) Conflict(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusConflict, ErrorConflict, message, details...)
}

// HandleError 按 AppError 类型映射 HTTP 状态
func (rh *ResponseHelper) HandleError(c *gin.Context, err error, code string) {
	message := err.Error()
	detail := ""
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		message = appErr.Message
		if appErr.Err != nil {
			detail = appErr.Err.Error()
		}
	}

	switch errors.TypeOf(err) {
	case errors.ErrorTypeValidation:
		rh.Error(c, http.StatusBadRequest, code, message, detail)
	case errors.ErrorTypeNotFound:
		rh.Error(c, http.StatusNotFound, code, message)
	case errors.ErrorTypeConflict:
		rh.Error(c, http.StatusConflict, code, message)
	case errors.ErrorTypeTooLarge:
		rh.Error(c, http.StatusRequestEntityTooLarge, ErrorFileTooLarge, message)
	case errors.ErrorTypeUnsupported:
		rh.Error(c, http.StatusUnsupportedMediaType, ErrorFileInvalid, message)
	default:
		utils.GetLogger().Error("请求处理失败", map[string]interface{}{
			"path":       c.FullPath(),
			"error":      err.Error(),
			"request_id": rh.getRequestID(c),
		})
		rh.InternalError(c, "服务器内部错误")
	}
}

// getRequestID 获取请求ID
func (rh *ResponseHelper) getRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// getResourceNotFoundCode 根据资源类型生成错误代码
func (rh *ResponseHelper) getResourceNotFoundCode(resource string) string {
	switch resource {
	case "剧本", "scenario":
		return ErrorScenarioNotFound
	default:
		return ErrorNotFound
	}
}

// scenarioErrorCode 剧本接口的错误代码
func scenarioErrorCode(err error) string {
	switch errors.TypeOf(err) {
	case errors.ErrorTypeNotFound:
		return ErrorScenarioNotFound
	case errors.ErrorTypeConflict:
		return ErrorScenarioConflict
	default:
		return ErrorScenarioInvalid
	}
}
