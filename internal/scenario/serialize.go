package scenario

import (
	"strconv"
	"strings"
)

type lineKind int

const (
	lineEmpty lineKind = iota
	linePlain
	lineHeading
	lineBullet
	lineOrdered
	lineQuote
	lineCode
)

func (k lineKind) isList() bool {
	return k == lineBullet || k == lineOrdered
}

// docLine 文档中的一行：行内片段加上换行符携带的块属性
type docLine struct {
	runs  []InlineRun
	attrs Attrs
}

func (l docLine) kind() lineKind {
	switch {
	case l.attrs[AttrCodeBlock] != nil && l.attrs[AttrCodeBlock] != false:
		return lineCode
	case l.attrs[AttrHeader] != nil:
		return lineHeading
	case l.attrs.String(AttrList) == ListOrdered:
		return lineOrdered
	case l.attrs[AttrList] != nil:
		return lineBullet
	case l.attrs.Bool(AttrBlockquote):
		return lineQuote
	case len(l.runs) == 0:
		return lineEmpty
	}
	return linePlain
}

func (l docLine) codeLang() string {
	return l.attrs.String(AttrCodeBlock)
}

// ToSource 把文档模型序列化为源文本
// 同类列表行连续输出；列表类型变化或进出列表时插入空行；代码行按语言合并到同一围栏
func ToSource(doc Document) string {
	lines := documentLines(doc)

	var (
		out     []string
		prev    = lineEmpty
		blank   bool
		ordinal int
		marker  string
	)
	for i := 0; i < len(lines); i++ {
		ln := lines[i]
		kind := ln.kind()
		if kind == lineEmpty {
			blank = len(out) > 0
			continue
		}

		separated := len(out) > 0 && (blank || (prev.isList() && kind != prev) || (kind.isList() && !prev.isList()))
		if separated {
			out = append(out, "")
		}
		blank = false

		switch kind {
		case lineCode:
			lang := ln.codeLang()
			out = append(out, "```"+lang)
			j := i
			for ; j < len(lines) && lines[j].kind() == lineCode && lines[j].codeLang() == lang; j++ {
				out = append(out, PlainText(lines[j].runs))
			}
			out = append(out, "```")
			i = j - 1
		case lineHeading:
			level, ok := ln.attrs.Int(AttrHeader)
			if !ok {
				level = 1
			}
			out = append(out, strings.Repeat("#", clampLevel(level))+" "+SerializeInline(ln.runs))
		case lineBullet:
			if prev != lineBullet {
				marker = bulletMarker(lines[i:])
			}
			out = append(out, marker+SerializeInline(ln.runs))
		case lineOrdered:
			if separated || prev != lineOrdered {
				ordinal = 0
			}
			ordinal++
			out = append(out, strconv.Itoa(ordinal)+". "+SerializeInline(ln.runs))
		case lineQuote:
			text := SerializeInline(ln.runs)
			if text == "" {
				out = append(out, ">")
			} else {
				out = append(out, "> "+text)
			}
		default:
			out = append(out, SerializeInline(ln.runs))
		}
		prev = kind
	}

	if len(out) == 0 {
		return ""
	}
	return strings.Join(out, "\n") + "\n"
}

// bulletMarker 整个无序列表使用同一标记
// 列表中有单个普通链接的项目时用 "* "，否则 "- " 开头会被读回段落
func bulletMarker(lines []docLine) string {
	for _, ln := range lines {
		switch ln.kind() {
		case lineEmpty:
		case lineBullet:
			line := "- " + SerializeInline(ln.runs)
			if choicePattern.MatchString(line) {
				continue
			}
			if _, ok := linkLine(line); ok {
				return "* "
			}
		default:
			return "- "
		}
	}
	return "- "
}

// documentLines 按换行切分插入操作；换行操作的属性即该行的块属性
func documentLines(doc Document) []docLine {
	var (
		lines []docLine
		cur   []InlineRun
	)
	for _, op := range doc.Ops {
		if !op.IsInsert() {
			continue
		}
		if op.Embed != nil {
			if r, ok := embedRun(op); ok {
				cur = append(cur, r)
			}
			continue
		}
		parts := strings.Split(op.Insert, "\n")
		for i, part := range parts {
			if part != "" {
				cur = append(cur, InlineRun{Text: part, Attrs: runAttributes(op.Attributes)})
			}
			if i < len(parts)-1 {
				lines = append(lines, docLine{runs: MergeRuns(cur), attrs: blockAttrs(op.Attributes)})
				cur = nil
			}
		}
	}
	if len(cur) > 0 {
		lines = append(lines, docLine{runs: MergeRuns(cur)})
	}
	return lines
}

// embedRun 嵌入转为行内片段，未知嵌入类型丢弃
func embedRun(op Op) (InlineRun, bool) {
	if op.Embed.Type != EmbedImage {
		return InlineRun{}, false
	}
	url, ok := op.Embed.Value.(string)
	if !ok || url == "" {
		return InlineRun{}, false
	}
	return InlineRun{Text: op.Attributes.String("alt"), Attrs: runAttributes(op.Attributes), Image: url}, true
}

func blockAttrs(a Attrs) Attrs {
	out := Attrs{}
	for _, key := range []string{AttrHeader, AttrList, AttrBlockquote, AttrCodeBlock} {
		if v, ok := a[key]; ok && v != nil {
			out[key] = v
		}
	}
	return out
}
