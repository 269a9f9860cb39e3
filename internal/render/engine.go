package render

import (
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/Corphon/NovelGenPage/internal/scenario"
)

// ErrEngineUnavailable 没有可用的外部引擎，或引擎执行失败
var ErrEngineUnavailable = errors.New("markdown engine unavailable")

// Token 引擎传给链接钩子的子令牌
type Token struct {
	Type   string  `json:"type"`
	Raw    string  `json:"raw,omitempty"`
	Text   string  `json:"text,omitempty"`
	Href   string  `json:"href,omitempty"`
	Tokens []Token `json:"tokens,omitempty"`
}

// LinkToken 令牌约定下的链接参数；Text 为空时由 Tokens 重组标签
type LinkToken struct {
	Href   string  `json:"href"`
	Title  string  `json:"title,omitempty"`
	Text   string  `json:"text,omitempty"`
	Tokens []Token `json:"tokens,omitempty"`
}

// LinkHook 链接钩子，引擎可按任一约定调用
// 返回 false 表示不处理，由引擎输出默认链接
type LinkHook interface {
	Positional(href, title, label string) (string, bool)
	Token(tok LinkToken) (string, bool)
}

// FuncEngine 函数形式的引擎
type FuncEngine func(source string, hook LinkHook) (string, error)

// ParseEngine 对象形式的引擎
type ParseEngine interface {
	Parse(source string, hook LinkHook) (string, error)
}

// engineAdapter 引擎适配策略，构建渲染器时选定一次
type engineAdapter interface {
	render(source string, hook LinkHook) (string, error)
	name() string
}

type funcAdapter struct {
	fn FuncEngine
}

func (a funcAdapter) render(source string, hook LinkHook) (string, error) {
	return a.fn(source, hook)
}

func (a funcAdapter) name() string { return "func" }

type parseAdapter struct {
	engine ParseEngine
}

func (a parseAdapter) render(source string, hook LinkHook) (string, error) {
	return a.engine.Parse(source, hook)
}

func (a parseAdapter) name() string {
	if n, ok := a.engine.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", a.engine)
}

// selectEngine 识别引擎形态
func selectEngine(engine any) (engineAdapter, error) {
	switch e := engine.(type) {
	case nil:
		return nil, ErrEngineUnavailable
	case FuncEngine:
		if e == nil {
			return nil, ErrEngineUnavailable
		}
		return funcAdapter{fn: e}, nil
	case func(string, LinkHook) (string, error):
		if e == nil {
			return nil, ErrEngineUnavailable
		}
		return funcAdapter{fn: e}, nil
	case ParseEngine:
		return parseAdapter{engine: e}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported engine type %T", ErrEngineUnavailable, engine)
	}
}

// safeRender 调用引擎，panic 转为错误
func safeRender(a engineAdapter, source string, hook LinkHook) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: engine %s panicked: %v", ErrEngineUnavailable, a.name(), r)
		}
	}()
	out, err = a.render(source, hook)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	return out, nil
}

// sceneLinkHook 只拦截 scene:<数字> 链接
type sceneLinkHook struct{}

func (sceneLinkHook) Positional(href, _, label string) (string, bool) {
	return sceneAnchor(href, label)
}

func (sceneLinkHook) Token(tok LinkToken) (string, bool) {
	label := tok.Text
	if label == "" {
		label = assembleLabel(tok.Tokens)
	}
	return sceneAnchor(tok.Href, label)
}

// SceneAnchor 场景链接的 HTML
func SceneAnchor(id, labelHTML string) string {
	return `<a href="#" class="scene-link" data-scene-id="` + html.EscapeString(id) + `">` + labelHTML + `</a>`
}

func sceneAnchor(href, label string) (string, bool) {
	id, ok := scenario.SceneID(href)
	if !ok {
		return "", false
	}
	return SceneAnchor(id, label), true
}

// assembleLabel 由子令牌重组标签 HTML
func assembleLabel(tokens []Token) string {
	var sb strings.Builder
	for _, t := range tokens {
		inner := func() string {
			if len(t.Tokens) > 0 {
				return assembleLabel(t.Tokens)
			}
			return html.EscapeString(t.Text)
		}
		switch t.Type {
		case "strong":
			sb.WriteString("<strong>" + inner() + "</strong>")
		case "em":
			sb.WriteString("<em>" + inner() + "</em>")
		case "del":
			sb.WriteString("<del>" + inner() + "</del>")
		case "codespan":
			sb.WriteString("<code>" + html.EscapeString(t.Text) + "</code>")
		case "image":
			sb.WriteString(`<img src="` + html.EscapeString(t.Href) + `" alt="` + html.EscapeString(t.Text) + `">`)
		case "br":
			sb.WriteString("<br>")
		case "html":
			sb.WriteString(t.Raw)
		default:
			sb.WriteString(inner())
		}
	}
	return sb.String()
}
