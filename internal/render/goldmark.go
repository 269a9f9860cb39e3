package render

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/renderer"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// GoldmarkEngine 基于 goldmark 的外部引擎，链接按令牌约定交给钩子
type GoldmarkEngine struct {
	md          goldmark.Markdown
	htmlOptions []gmhtml.Option
}

// NewGoldmarkEngine 创建引擎；hardWraps 为 true 时段落内换行输出 <br>
func NewGoldmarkEngine(hardWraps bool) *GoldmarkEngine {
	var opts []gmhtml.Option
	if hardWraps {
		opts = append(opts, gmhtml.WithHardWraps())
	}
	return &GoldmarkEngine{
		md:          goldmark.New(goldmark.WithExtensions(extension.Strikethrough)),
		htmlOptions: opts,
	}
}

// Name 引擎名称
func (e *GoldmarkEngine) Name() string {
	return "goldmark"
}

// Parse 渲染源文本
func (e *GoldmarkEngine) Parse(source string, hook LinkHook) (string, error) {
	src := []byte(source)
	doc := e.md.Parser().Parse(text.NewReader(src))

	r := renderer.NewRenderer(renderer.WithNodeRenderers(
		util.Prioritized(gmhtml.NewRenderer(e.htmlOptions...), 1000),
		util.Prioritized(extension.NewStrikethroughHTMLRenderer(), 500),
		util.Prioritized(&linkNodeRenderer{hook: hook, handled: make(map[ast.Node]bool)}, 100),
	))

	var buf bytes.Buffer
	if err := r.Render(&buf, src, doc); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// linkNodeRenderer 覆盖 goldmark 的链接渲染，每次渲染新建
type linkNodeRenderer struct {
	hook    LinkHook
	handled map[ast.Node]bool
}

// RegisterFuncs implements renderer.NodeRenderer.
func (r *linkNodeRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindLink, r.renderLink)
}

func (r *linkNodeRenderer) renderLink(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	n := node.(*ast.Link)
	if !entering {
		if !r.handled[node] {
			_, _ = w.WriteString("</a>")
		}
		return ast.WalkContinue, nil
	}

	if r.hook != nil {
		tok := LinkToken{
			Href:   string(n.Destination),
			Title:  string(n.Title),
			Tokens: childTokens(n, source),
		}
		if out, ok := r.hook.Token(tok); ok {
			r.handled[node] = true
			_, _ = w.WriteString(out)
			return ast.WalkSkipChildren, nil
		}
	}

	_, _ = w.WriteString(`<a href="`)
	if !gmhtml.IsDangerousURL(n.Destination) {
		_, _ = w.Write(util.EscapeHTML(util.URLEscape(n.Destination, true)))
	}
	_ = w.WriteByte('"')
	if n.Title != nil {
		_, _ = w.WriteString(` title="`)
		_, _ = w.Write(util.EscapeHTML(n.Title))
		_ = w.WriteByte('"')
	}
	_ = w.WriteByte('>')
	return ast.WalkContinue, nil
}

// childTokens 把链接的子节点转成令牌，供钩子重组标签
func childTokens(parent ast.Node, source []byte) []Token {
	var tokens []Token
	for c := parent.FirstChild(); c != nil; c = c.NextSibling() {
		switch v := c.(type) {
		case *ast.Text:
			tokens = append(tokens, Token{Type: "text", Text: string(v.Segment.Value(source))})
		case *ast.String:
			tokens = append(tokens, Token{Type: "text", Text: string(v.Value)})
		case *ast.Emphasis:
			typ := "em"
			if v.Level == 2 {
				typ = "strong"
			}
			tokens = append(tokens, Token{Type: typ, Tokens: childTokens(v, source)})
		case *east.Strikethrough:
			tokens = append(tokens, Token{Type: "del", Tokens: childTokens(v, source)})
		case *ast.CodeSpan:
			tokens = append(tokens, Token{Type: "codespan", Text: segmentsText(v, source)})
		case *ast.Image:
			tokens = append(tokens, Token{Type: "image", Href: string(v.Destination), Text: segmentsText(v, source)})
		case *ast.RawHTML:
			// 非 unsafe 模式下原始 HTML 不输出
		default:
			tokens = append(tokens, Token{Type: "text", Tokens: childTokens(c, source)})
		}
	}
	return tokens
}

func segmentsText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch v := c.(type) {
		case *ast.Text:
			buf.Write(v.Segment.Value(source))
		case *ast.String:
			buf.Write(v.Value)
		default:
			buf.WriteString(segmentsText(c, source))
		}
	}
	return buf.String()
}
