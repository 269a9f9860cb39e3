// internal/services/conversion_service.go
package services

import (
	"sync/atomic"
	"time"

	"github.com/Corphon/NovelGenPage/internal/config"
	"github.com/Corphon/NovelGenPage/internal/render"
	"github.com/Corphon/NovelGenPage/internal/scenario"
	"github.com/Corphon/NovelGenPage/internal/utils"
)

// ConversionService 封装源文本、区块、文档模型与 HTML 之间的转换并记录指标
type ConversionService struct {
	current atomic.Pointer[engineState]
	metrics *utils.ConversionMetrics
}

type engineState struct {
	engine   any
	renderer *render.Renderer
}

// EngineFor 按配置选择 Markdown 引擎，none 返回 nil（使用内置格式化器）
func EngineFor(cfg *config.AppConfig) any {
	if cfg == nil || cfg.MarkdownEngine != config.EngineGoldmark {
		return nil
	}
	return render.NewGoldmarkEngine(cfg.HardWraps)
}

// NewConversionService 创建转换服务
func NewConversionService(engine any, metrics *utils.ConversionMetrics) *ConversionService {
	if metrics == nil {
		metrics = utils.NewConversionMetrics()
	}
	s := &ConversionService{metrics: metrics}
	s.SetEngine(engine)
	return s
}

// SetEngine 切换 Markdown 引擎，进行中的渲染继续使用旧引擎
func (s *ConversionService) SetEngine(engine any) {
	metrics := s.metrics
	s.current.Store(&engineState{
		engine: engine,
		renderer: render.New(render.Options{
			Engine: engine,
			OnFallback: func(err error) {
				metrics.RecordFallback(err.Error())
			},
		}),
	})
}

// Engine 当前配置的引擎，供编辑会话复用
func (s *ConversionService) Engine() any {
	return s.current.Load().engine
}

// Renderer 底层渲染器
func (s *ConversionService) Renderer() *render.Renderer {
	return s.current.Load().renderer
}

// Metrics 转换指标
func (s *ConversionService) Metrics() *utils.ConversionMetrics {
	return s.metrics
}

// Blocks 源文本 → 区块
func (s *ConversionService) Blocks(source string) []scenario.Block {
	defer s.track("blocks", len(source), time.Now())
	return scenario.ParseBlocks(source)
}

// Delta 源文本 → 文档模型
func (s *ConversionService) Delta(source string) scenario.Document {
	defer s.track("delta", len(source), time.Now())
	return scenario.ToDocumentModel(scenario.ParseBlocks(source))
}

// Source 文档模型 → 源文本
func (s *ConversionService) Source(doc scenario.Document) string {
	start := time.Now()
	out := scenario.ToSource(doc)
	s.track("source", len(out), start)
	return out
}

// HTML 源文本 → HTML
func (s *ConversionService) HTML(source string) string {
	defer s.track("html", len(source), time.Now())
	return s.Renderer().ToHTML(source)
}

// RoundTrip 源文本经文档模型往返一次，并检查结果是否为不动点
func (s *ConversionService) RoundTrip(source string) ConversionReport {
	defer s.track("roundtrip", len(source), time.Now())
	once := normalize(source)
	return ConversionReport{
		Source:     once,
		FixedPoint: normalize(once) == once,
		Digest:     utils.ContentDigest(once),
	}
}

func normalize(source string) string {
	return scenario.ToSource(scenario.ToDocumentModel(scenario.ParseBlocks(source)))
}

func (s *ConversionService) track(kind string, size int, start time.Time) {
	s.metrics.RecordConversion(kind, size, time.Since(start))
}
