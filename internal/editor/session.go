// Package editor 编辑器一侧的文档会话：应用变更、插入模板与图片，并在每次修改后刷新预览。
package editor

import (
	"slices"
	"sync"

	"github.com/Corphon/NovelGenPage/internal/render"
	"github.com/Corphon/NovelGenPage/internal/scenario"
	"github.com/Corphon/NovelGenPage/internal/utils"
)

// Config 会话依赖，显式传入
type Config struct {
	// Engine 外部 Markdown 引擎，nil 时使用内置格式化器
	Engine any
	// Navigate 预览中点击场景链接时调用
	Navigate render.NavigateFunc
	// Upload 图片上传函数，nil 时不支持上传
	Upload UploadFunc
	// Retry 上传重试策略，零值使用默认值
	Retry RetryPolicy
}

// Snapshot 一次修改后的文档状态
type Snapshot struct {
	Revision int64              `json:"revision"`
	Ops      []scenario.Op      `json:"ops"`
	Source   string             `json:"source"`
	HTML     string             `json:"html"`
	Scenes   []render.SceneLink `json:"scenes,omitempty"`
}

// Session 一个编辑会话的可变文档，所有修改串行执行
type Session struct {
	mu        sync.Mutex
	cfg       Config
	doc       scenario.Document
	renderer  *render.Renderer
	preview   *render.Container
	listeners []func(Snapshot)
	last      Snapshot
	uploads   sync.WaitGroup
	logger    *utils.Logger
}

// New 创建会话，初始文档为空
func New(cfg Config) *Session {
	s := &Session{
		cfg:      cfg,
		renderer: render.New(render.Options{Engine: cfg.Engine}),
		preview:  render.NewContainer(),
		logger:   utils.GetLogger().With(map[string]interface{}{"component": "editor"}),
	}
	if cfg.Navigate != nil {
		render.AttachSceneNavigation(s.preview, cfg.Navigate)
	}

	s.mu.Lock()
	s.doc = scenario.ToDocumentModel(nil)
	s.refreshLocked()
	s.mu.Unlock()
	return s
}

// OnChange 注册修改监听器，在每次修改后调用
func (s *Session) OnChange(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Load 用源文本替换整个文档
func (s *Session) Load(source string) Snapshot {
	return s.mutate(func() {
		s.doc = scenario.ToDocumentModel(scenario.ParseBlocks(source))
	})
}

// SetOps 用操作列表替换整个文档
func (s *Session) SetOps(ops []scenario.Op) Snapshot {
	return s.mutate(func() {
		s.doc = scenario.Document{}.Compose(insertsOnly(ops))
	})
}

// ApplyChange 应用 retain/insert/delete 变更
func (s *Session) ApplyChange(change []scenario.Op) Snapshot {
	return s.mutate(func() {
		s.doc = s.doc.Compose(change)
	})
}

// InsertText 在 index 处插入文本
func (s *Session) InsertText(index int, text string, attrs scenario.Attrs) Snapshot {
	return s.mutate(func() {
		s.doc = s.doc.Compose(at(s.doc, index, scenario.TextOp(text, attrs)))
	})
}

// InsertEmbed 在 index 处插入嵌入对象
func (s *Session) InsertEmbed(index int, embedType string, value any) Snapshot {
	return s.mutate(func() {
		s.doc = s.doc.Compose(at(s.doc, index, scenario.EmbedOp(embedType, value, nil)))
	})
}

// DeleteText 从 index 起删除 length 个单位
func (s *Session) DeleteText(index, length int) Snapshot {
	return s.mutate(func() {
		if length <= 0 {
			return
		}
		s.doc = s.doc.Compose(at(s.doc, index, scenario.DeleteOp(length)))
	})
}

// Document 当前文档的副本
func (s *Session) Document() scenario.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return scenario.Document{Ops: append([]scenario.Op(nil), s.doc.Ops...)}
}

// Ops 当前操作列表的副本
func (s *Session) Ops() []scenario.Op {
	return s.Document().Ops
}

// Length 文档长度（UTF-16 单位）
func (s *Session) Length() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Length()
}

// Snapshot 最近一次刷新后的状态
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Source 当前源文本
func (s *Session) Source() string {
	return s.Snapshot().Source
}

// HTML 当前预览 HTML
func (s *Session) HTML() string {
	return s.Snapshot().HTML
}

// Preview 预览容器
func (s *Session) Preview() *render.Container {
	return s.preview
}

// ClickScene 在预览中点击场景链接
func (s *Session) ClickScene(sceneID string) bool {
	return s.preview.ClickScene(sceneID)
}

// mutate 在锁内修改文档并刷新，监听器在锁外调用
func (s *Session) mutate(fn func()) Snapshot {
	s.mu.Lock()
	fn()
	snap := s.refreshLocked()
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
	return snap
}

func (s *Session) refreshLocked() Snapshot {
	source := scenario.ToSource(s.doc)
	html := s.renderer.ToHTML(source)
	if err := s.preview.SetHTML(html); err != nil {
		s.logger.Warn("刷新预览失败", map[string]interface{}{"error": err.Error()})
	}
	s.last = Snapshot{
		Revision: s.last.Revision + 1,
		Ops:      append([]scenario.Op(nil), s.doc.Ops...),
		Source:   source,
		HTML:     html,
		Scenes:   s.preview.SceneLinks(),
	}
	return s.last
}

// at 构造在 index 处执行 op 的变更，index 限制在最后的换行之前
func at(doc scenario.Document, index int, op scenario.Op) []scenario.Op {
	index = max(0, min(index, doc.Length()-1))
	if index == 0 {
		return []scenario.Op{op}
	}
	return []scenario.Op{scenario.RetainOp(index, nil), op}
}

// insertsOnly 文档只包含插入操作
func insertsOnly(ops []scenario.Op) []scenario.Op {
	out := make([]scenario.Op, 0, len(ops))
	for _, op := range ops {
		if op.IsInsert() {
			out = append(out, op)
		}
	}
	return out
}
