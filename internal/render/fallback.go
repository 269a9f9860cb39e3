package render

import (
	"html"
	"strconv"
	"strings"

	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/Corphon/NovelGenPage/internal/scenario"
)

// FallbackHTML 内置格式化器，外部引擎不可用时使用
// 覆盖标题、列表、选项、强调、链接（含场景链接）、图片、引用、代码与段落换行
func FallbackHTML(source string) string {
	blocks := scenario.ParseBlocks(source)
	var sb strings.Builder

	for i := 0; i < len(blocks); {
		b := blocks[i]
		switch b.Kind {
		case scenario.BlockHeading:
			level := strconv.Itoa(max(1, min(6, b.Level)))
			sb.WriteString("<h" + level + ">" + runsHTML(b.Runs) + "</h" + level + ">\n")
			i++

		case scenario.BlockListItem, scenario.BlockChoice:
			ordered := b.Kind == scenario.BlockListItem && b.Ordered
			tag := "ul"
			if ordered {
				tag = "ol"
			}
			sb.WriteString("<" + tag + ">\n")
			for ; i < len(blocks) && sameList(blocks[i], ordered); i++ {
				item := blocks[i]
				if item.Kind == scenario.BlockChoice {
					sb.WriteString(`<li class="choice">` + choiceHTML(item) + "</li>\n")
					continue
				}
				sb.WriteString("<li>" + runsHTML(item.Runs) + "</li>\n")
			}
			sb.WriteString("</" + tag + ">\n")

		case scenario.BlockBlockquote:
			lines := []string{runsHTML(b.Runs)}
			for i++; i < len(blocks) && continues(blocks[i], scenario.BlockBlockquote); i++ {
				lines = append(lines, runsHTML(blocks[i].Runs))
			}
			sb.WriteString("<blockquote>\n<p>" + strings.Join(lines, "<br>\n") + "</p>\n</blockquote>\n")

		case scenario.BlockCode:
			if b.Lang != "" {
				sb.WriteString(`<pre><code class="language-` + html.EscapeString(b.Lang) + `">`)
			} else {
				sb.WriteString("<pre><code>")
			}
			if b.Raw != "" {
				sb.WriteString(html.EscapeString(b.Raw) + "\n")
			}
			sb.WriteString("</code></pre>\n")
			i++

		default:
			lines := []string{runsHTML(b.Runs)}
			for i++; i < len(blocks) && continues(blocks[i], scenario.BlockParagraph); i++ {
				lines = append(lines, runsHTML(blocks[i].Runs))
			}
			sb.WriteString("<p>" + strings.Join(lines, "<br>\n") + "</p>\n")
		}
	}
	return sb.String()
}

func sameList(b scenario.Block, ordered bool) bool {
	switch b.Kind {
	case scenario.BlockChoice:
		return !ordered
	case scenario.BlockListItem:
		return b.Ordered == ordered
	}
	return false
}

// continues 同类块且中间没有空行
func continues(b scenario.Block, kind scenario.BlockKind) bool {
	return b.Kind == kind && !b.BlankBefore
}

func choiceHTML(b scenario.Block) string {
	label := runsHTML(stripLinks(b.Runs))
	if b.Target == nil {
		return label
	}
	if b.Target.IsScene() {
		return SceneAnchor(b.Target.ID, label)
	}
	return externalAnchor(b.Target.URL, label)
}

func stripLinks(runs []scenario.InlineRun) []scenario.InlineRun {
	out := make([]scenario.InlineRun, len(runs))
	for i, r := range runs {
		r.Attrs.Link = ""
		out[i] = r
	}
	return out
}

// runsHTML 行内片段转 HTML，相邻同链接片段共用一个锚点
func runsHTML(runs []scenario.InlineRun) string {
	runs = scenario.MergeRuns(runs)
	var sb strings.Builder
	for i := 0; i < len(runs); {
		link := runs[i].Attrs.Link
		j := i
		var inner strings.Builder
		for ; j < len(runs) && runs[j].Attrs.Link == link; j++ {
			inner.WriteString(runHTML(runs[j]))
		}
		switch {
		case link == "":
			sb.WriteString(inner.String())
		default:
			ref := scenario.ResolveLink(link, runs[i:j])
			if ref.IsScene() {
				sb.WriteString(SceneAnchor(ref.ID, inner.String()))
			} else {
				sb.WriteString(externalAnchor(ref.URL, inner.String()))
			}
		}
		i = j
	}
	return sb.String()
}

func runHTML(r scenario.InlineRun) string {
	var s string
	if r.IsImage() {
		s = `<img src="` + safeURL(r.Image) + `" alt="` + html.EscapeString(r.Text) + `">`
	} else {
		s = html.EscapeString(r.Text)
	}
	if r.Attrs.Code && !r.IsImage() {
		s = "<code>" + s + "</code>"
	}
	if r.Attrs.Underline {
		s = "<u>" + s + "</u>"
	}
	if r.Attrs.Strike {
		s = "<del>" + s + "</del>"
	}
	if r.Attrs.Italic {
		s = "<em>" + s + "</em>"
	}
	if r.Attrs.Bold {
		s = "<strong>" + s + "</strong>"
	}
	return s
}

func externalAnchor(url, labelHTML string) string {
	return `<a href="` + safeURL(url) + `">` + labelHTML + `</a>`
}

func safeURL(url string) string {
	if gmhtml.IsDangerousURL([]byte(url)) {
		return ""
	}
	return html.EscapeString(url)
}
