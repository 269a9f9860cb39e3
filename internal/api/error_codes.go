// internal/api/error_codes.go
package api

// API错误代码常量
const (
	// 通用错误
	ErrorBadRequest        = "BAD_REQUEST"
	ErrorNotFound          = "NOT_FOUND"
	ErrorInternalError     = "INTERNAL_ERROR"
	ErrorConflict          = "CONFLICT"
	ErrorRateLimitExceeded = "RATE_LIMIT_EXCEEDED"

	// 剧本相关错误
	ErrorScenarioNotFound = "SCENARIO_NOT_FOUND"
	ErrorScenarioInvalid  = "SCENARIO_INVALID"
	ErrorScenarioConflict = "SCENARIO_CONFLICT"

	// 转换相关错误
	ErrorDocumentInvalid = "DOCUMENT_INVALID"

	// 文件相关错误
	ErrorFileUploadFailed = "FILE_UPLOAD_FAILED"
	ErrorFileInvalid      = "FILE_INVALID"
	ErrorFileTooLarge     = "FILE_TOO_LARGE"

	// 配置相关错误
	ErrorSettingsInvalid = "SETTINGS_INVALID"
)
