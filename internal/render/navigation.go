package render

import (
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// NavigateFunc 场景跳转回调，由外部叙事引擎提供
type NavigateFunc func(sceneID, label string)

// SceneLink 预览中的场景链接
type SceneLink struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Active bool   `json:"active,omitempty"`
}

// ClickEvent 容器内的点击事件
type ClickEvent struct {
	Target           *goquery.Selection
	defaultPrevented bool
}

// PreventDefault 阻止默认行为（链接跳转）
func (e *ClickEvent) PreventDefault() {
	e.defaultPrevented = true
}

// DefaultPrevented 是否已阻止默认行为
func (e *ClickEvent) DefaultPrevented() bool {
	return e.defaultPrevented
}

// ClickListener 点击监听器
type ClickListener func(e *ClickEvent)

// Container 预览容器，持有渲染结果的节点树，点击在容器上委托处理
type Container struct {
	mu        sync.Mutex
	doc       *goquery.Document
	listeners []ClickListener
	sceneNav  bool
}

// NewContainer 创建空容器
func NewContainer() *Container {
	c := &Container{}
	c.doc = goquery.NewDocumentFromNode(newRoot())
	return c
}

func newRoot() *html.Node {
	return &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
}

// SetHTML 替换容器内容，监听器保留
func (c *Container) SetHTML(fragment string) error {
	root := newRoot()
	nodes, err := html.ParseFragment(strings.NewReader(fragment), newRoot())
	if err != nil {
		return fmt.Errorf("解析预览片段失败: %w", err)
	}
	for _, n := range nodes {
		root.AppendChild(n)
	}

	c.mu.Lock()
	c.doc = goquery.NewDocumentFromNode(root)
	c.mu.Unlock()
	return nil
}

// HTML 容器当前内容
func (c *Container) HTML() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out, err := c.doc.Selection.Html()
	if err != nil {
		return ""
	}
	return out
}

// Find 在容器内查找；返回的选择集在并发点击时不应再读取
func (c *Container) Find(selector string) *goquery.Selection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc.Find(selector)
}

// view 在锁内访问节点树，节点的读取和 class 修改都经过这里
func (c *Container) view(fn func(doc *goquery.Document)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.doc)
}

// AddClickListener 注册容器级点击监听器
func (c *Container) AddClickListener(l ClickListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Click 模拟点击 target，事件冒泡到容器后交给监听器
// 返回 false 表示默认行为被阻止
func (c *Container) Click(target *goquery.Selection) bool {
	if target == nil || target.Length() == 0 {
		return true
	}
	c.mu.Lock()
	listeners := append([]ClickListener(nil), c.listeners...)
	c.mu.Unlock()

	e := &ClickEvent{Target: target.First()}
	for _, l := range listeners {
		l(e)
	}
	return !e.DefaultPrevented()
}

// ClickScene 点击指定 ID 的场景链接
func (c *Container) ClickScene(sceneID string) bool {
	var link *goquery.Selection
	c.view(func(doc *goquery.Document) {
		link = doc.Find(`.scene-link[data-scene-id="` + sceneID + `"]`)
	})
	if link.Length() == 0 {
		return false
	}
	return !c.Click(link)
}

// SceneLinks 列出预览中的场景链接
func (c *Container) SceneLinks() []SceneLink {
	var links []SceneLink
	c.view(func(doc *goquery.Document) {
		doc.Find(".scene-link").Each(func(_ int, s *goquery.Selection) {
			id := s.AttrOr("data-scene-id", "")
			links = append(links, SceneLink{ID: id, Label: sceneLabel(s, id), Active: s.HasClass("active")})
		})
	})
	return links
}

// AttachSceneNavigation 在容器上挂载场景链接的委托点击处理
// 每个容器只挂载一次，重复调用返回 false
func AttachSceneNavigation(c *Container, onNavigate NavigateFunc) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sceneNav {
		return false
	}
	c.sceneNav = true
	c.listeners = append(c.listeners, func(e *ClickEvent) {
		var id, label string
		c.view(func(doc *goquery.Document) {
			link := e.Target.Closest(".scene-link")
			if link.Length() == 0 {
				return
			}
			e.PreventDefault()

			id = link.AttrOr("data-scene-id", "")
			if id == "" {
				return
			}
			doc.Find(".scene-link.active").RemoveClass("active")
			link.AddClass("active")
			label = sceneLabel(link, id)
		})

		// 回调在锁外执行
		if id != "" && onNavigate != nil {
			onNavigate(id, label)
		}
	})
	return true
}

func sceneLabel(link *goquery.Selection, id string) string {
	if label := strings.TrimSpace(link.Text()); label != "" {
		return label
	}
	return "シーン " + id
}
