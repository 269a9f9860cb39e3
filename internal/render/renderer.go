package render

import (
	"strings"
	"sync/atomic"

	"github.com/Corphon/NovelGenPage/internal/utils"
)

// Options 渲染器配置
type Options struct {
	// Engine 外部引擎：FuncEngine、ParseEngine 或 nil
	Engine any
	// OnFallback 使用内置格式化器时回调，可为空
	OnFallback func(err error)
}

// Renderer 源文本到 HTML 的渲染器，引擎形态在创建时识别一次
type Renderer struct {
	engine     engineAdapter
	engineErr  error
	hook       LinkHook
	onFallback func(error)
	fallbacks  atomic.Int64
}

// New 创建渲染器
func New(opts Options) *Renderer {
	r := &Renderer{
		hook:       sceneLinkHook{},
		onFallback: opts.OnFallback,
	}
	r.engine, r.engineErr = selectEngine(opts.Engine)
	if r.engineErr != nil && opts.Engine != nil {
		utils.GetLogger().Warn("markdown engine rejected, using built-in formatter", map[string]interface{}{
			"error": r.engineErr.Error(),
		})
	}
	return r
}

// ToHTML 渲染源文本；引擎缺失、出错或 panic 时退回内置格式化器，不会失败
func ToHTML(source string, opts Options) string {
	return New(opts).ToHTML(source)
}

// EngineName 当前使用的引擎
func (r *Renderer) EngineName() string {
	if r.engine == nil {
		return "fallback"
	}
	return r.engine.name()
}

// Fallbacks 退回内置格式化器的次数
func (r *Renderer) Fallbacks() int64 {
	return r.fallbacks.Load()
}

// ToHTML 渲染源文本
func (r *Renderer) ToHTML(source string) string {
	if strings.TrimSpace(source) == "" {
		return ""
	}

	err := r.engineErr
	if r.engine != nil {
		out, renderErr := safeRender(r.engine, source, r.hook)
		if renderErr == nil {
			return out
		}
		err = renderErr
		utils.GetLogger().Warn("markdown engine failed, using built-in formatter", map[string]interface{}{
			"engine": r.engine.name(),
			"error":  renderErr.Error(),
		})
	}

	r.fallbacks.Add(1)
	if r.onFallback != nil {
		r.onFallback(err)
	}
	return FallbackHTML(source)
}
