// internal/services/structs.go
package services

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

// SaveScenarioRequest 保存剧本请求
type SaveScenarioRequest struct {
	ID      string `json:"id,omitempty" validate:"omitempty,max=64,scenarioid"`
	Title   string `json:"title,omitempty" validate:"max=200"`
	Content string `json:"content" validate:"required,max=2097152"`
	// BaseDigest 非空时要求与已保存内容的摘要一致，否则视为冲突
	BaseDigest string `json:"base_digest,omitempty" validate:"omitempty,hexadecimal,len=64"`
}

// ConversionReport 往返转换结果
type ConversionReport struct {
	Source     string `json:"source"`
	FixedPoint bool   `json:"fixed_point"`
	Digest     string `json:"digest"`
}

var scenarioIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// newValidator 创建带剧本 ID 规则的校验器
func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("scenarioid", func(fl validator.FieldLevel) bool {
		return scenarioIDPattern.MatchString(fl.Field().String())
	})
	return v
}

// ValidScenarioID 检查路径参数中的剧本 ID
func ValidScenarioID(id string) bool {
	return len(id) > 0 && len(id) <= 64 && scenarioIDPattern.MatchString(id)
}
