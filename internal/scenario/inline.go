package scenario

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokText tokenKind = iota
	tokDelim
	tokRuns
)

// inlineToken 行内解析的中间记号
type inlineToken struct {
	kind  tokenKind
	text  string
	runs  []InlineRun
	attrs Attributes

	// 分隔符串（* 或 ~）
	char     byte
	length   int
	origLen  int
	canOpen  bool
	canClose bool
}

// ParseInline 把一行行内标记解析为格式片段
// 识别顺序：图片、链接、粗体、斜体、删除线、行内代码；未闭合的标记按原文保留
func ParseInline(line string) []InlineRun {
	if line == "" {
		return nil
	}
	tokens := tokenizeInline(line)
	processEmphasis(tokens)
	return flattenTokens(tokens)
}

func tokenizeInline(s string) []*inlineToken {
	var (
		tokens []*inlineToken
		text   strings.Builder
	)
	flush := func() {
		if text.Len() > 0 {
			tokens = append(tokens, &inlineToken{kind: tokText, text: text.String()})
			text.Reset()
		}
	}

	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '!' && i+1 < len(s) && s[i+1] == '[':
			if alt, url, end, ok := scanLink(s, i+1); ok {
				flush()
				tokens = append(tokens, &inlineToken{kind: tokRuns, runs: []InlineRun{{Text: alt, Image: url}}})
				i = end
				continue
			}
		case c == '[':
			if label, url, end, ok := scanLink(s, i); ok {
				if runs := ParseInline(label); len(runs) > 0 {
					for j := range runs {
						runs[j].Attrs.Link = url
					}
					flush()
					tokens = append(tokens, &inlineToken{kind: tokRuns, runs: runs})
					i = end
					continue
				}
			}
		case c == '`':
			if code, end, ok := scanCodeSpan(s, i); ok {
				flush()
				tokens = append(tokens, &inlineToken{kind: tokRuns, runs: []InlineRun{{Text: code, Attrs: Attributes{Code: true}}}})
				i = end
				continue
			}
			n := runLength(s, i, '`')
			text.WriteString(s[i : i+n])
			i += n
			continue
		case c == '*' || c == '~':
			n := runLength(s, i, c)
			if c == '~' && n < 2 {
				break
			}
			flush()
			tokens = append(tokens, newDelimiter(s, i, n))
			i += n
			continue
		}
		text.WriteByte(c)
		i++
	}
	flush()
	return tokens
}

func runLength(s string, i int, c byte) int {
	n := 0
	for i+n < len(s) && s[i+n] == c {
		n++
	}
	return n
}

func newDelimiter(s string, i, n int) *inlineToken {
	tok := &inlineToken{kind: tokDelim, char: s[i], length: n, origLen: n}
	if i > 0 {
		prev, _ := utf8.DecodeLastRuneInString(s[:i])
		tok.canClose = !unicode.IsSpace(prev)
	}
	if i+n < len(s) {
		next, _ := utf8.DecodeRuneInString(s[i+n:])
		tok.canOpen = !unicode.IsSpace(next)
	}
	return tok
}

// scanLink 扫描 [label](url)，open 指向 '['
func scanLink(s string, open int) (label, url string, end int, ok bool) {
	depth := 0
	closeBracket := -1
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
		}
		if depth == 0 {
			closeBracket = i
			break
		}
	}
	if closeBracket < 0 || closeBracket+1 >= len(s) || s[closeBracket+1] != '(' {
		return "", "", 0, false
	}
	depth = 0
	for i := closeBracket + 1; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				url = s[closeBracket+2 : i]
				if url == "" {
					return "", "", 0, false
				}
				return s[open+1 : closeBracket], url, i + 1, true
			}
		}
	}
	return "", "", 0, false
}

// scanCodeSpan 扫描等长反引号包围的代码片段
func scanCodeSpan(s string, i int) (string, int, bool) {
	n := runLength(s, i, '`')
	for j := i + n; j < len(s); {
		if s[j] != '`' {
			j++
			continue
		}
		m := runLength(s, j, '`')
		if m == n {
			content := s[i+n : j]
			if len(content) >= 2 && content[0] == ' ' && content[len(content)-1] == ' ' && strings.TrimSpace(content) != "" {
				content = content[1 : len(content)-1]
			}
			if content == "" {
				return "", 0, false
			}
			return content, j + m, true
		}
		j += m
	}
	return "", 0, false
}

// processEmphasis 分隔符配对：最近的可用开符优先，两侧都至少两个时取粗体
func processEmphasis(tokens []*inlineToken) {
	for ci, closer := range tokens {
		if closer.kind != tokDelim || !closer.canClose {
			continue
		}
		for closer.length > 0 {
			oi := findOpener(tokens, ci)
			if oi < 0 {
				break
			}
			opener := tokens[oi]

			use := 1
			if opener.length >= 2 && closer.length >= 2 {
				use = 2
			}
			var attr Attributes
			switch {
			case closer.char == '~':
				attr.Strike = true
			case use == 2:
				attr.Bold = true
			default:
				attr.Italic = true
			}

			for k := oi + 1; k < ci; k++ {
				tokens[k].attrs = tokens[k].attrs.merge(attr)
				if tokens[k].kind == tokDelim {
					tokens[k].canOpen = false
					tokens[k].canClose = false
				}
			}
			opener.length -= use
			closer.length -= use
		}
	}
}

func findOpener(tokens []*inlineToken, ci int) int {
	closer := tokens[ci]
	for oi := ci - 1; oi >= 0; oi-- {
		o := tokens[oi]
		if o.kind != tokDelim || o.char != closer.char || !o.canOpen || o.length == 0 {
			continue
		}
		if closer.char == '~' {
			if o.length < 2 || closer.length < 2 {
				continue
			}
			return oi
		}
		// 能开能闭的分隔符串，长度和为 3 的倍数时不配对（两者都是 3 的倍数除外）
		if (o.canClose || closer.canOpen) &&
			(o.origLen+closer.origLen)%3 == 0 &&
			!(o.origLen%3 == 0 && closer.origLen%3 == 0) {
			continue
		}
		return oi
	}
	return -1
}

func flattenTokens(tokens []*inlineToken) []InlineRun {
	var runs []InlineRun
	for _, t := range tokens {
		switch t.kind {
		case tokText:
			runs = appendRun(runs, InlineRun{Text: t.text, Attrs: t.attrs})
		case tokDelim:
			if t.length > 0 {
				runs = appendRun(runs, InlineRun{Text: strings.Repeat(string(t.char), t.length), Attrs: t.attrs})
			}
		case tokRuns:
			for _, r := range t.runs {
				r.Attrs = r.Attrs.merge(t.attrs)
				runs = appendRun(runs, r)
			}
		}
	}
	return runs
}

// appendRun 追加片段，与前一个属性相同的文本片段合并
func appendRun(runs []InlineRun, r InlineRun) []InlineRun {
	if r.IsImage() {
		return append(runs, r)
	}
	if r.Text == "" {
		return runs
	}
	if n := len(runs); n > 0 && !runs[n-1].IsImage() && runs[n-1].Attrs == r.Attrs {
		runs[n-1].Text += r.Text
		return runs
	}
	return append(runs, r)
}

// MergeRuns 规范化片段序列
func MergeRuns(runs []InlineRun) []InlineRun {
	var out []InlineRun
	for _, r := range runs {
		out = appendRun(out, r)
	}
	return out
}

// markLayer 强调标记层，按嵌套顺序由外到内
type markLayer struct {
	marker string
	has    func(Attributes) bool
	clear  func(*Attributes)
}

var markLayers = []markLayer{
	{"**", func(a Attributes) bool { return a.Bold }, func(a *Attributes) { a.Bold = false }},
	{"*", func(a Attributes) bool { return a.Italic }, func(a *Attributes) { a.Italic = false }},
	{"~~", func(a Attributes) bool { return a.Strike }, func(a *Attributes) { a.Strike = false }},
}

// SerializeInline 把格式片段写回行内标记
// 嵌套顺序固定：链接最外层，其次粗体、斜体、删除线、行内代码
func SerializeInline(runs []InlineRun) string {
	var sb strings.Builder
	for _, g := range groupRuns(MergeRuns(runs), func(r InlineRun) string { return r.Attrs.Link }) {
		link := g[0].Attrs.Link
		if link == "" {
			writeMarks(&sb, g, 0)
			continue
		}
		sb.WriteString("[")
		writeMarks(&sb, stripAttr(g, func(a *Attributes) { a.Link = "" }), 0)
		sb.WriteString("](")
		sb.WriteString(link)
		sb.WriteString(")")
	}
	return sb.String()
}

func writeMarks(sb *strings.Builder, runs []InlineRun, level int) {
	if level == len(markLayers) {
		writeCode(sb, runs)
		return
	}
	layer := markLayers[level]
	key := func(r InlineRun) string {
		if layer.has(r.Attrs) {
			return layer.marker
		}
		return ""
	}
	for _, g := range groupRuns(runs, key) {
		if !layer.has(g[0].Attrs) {
			writeMarks(sb, g, level+1)
			continue
		}
		lead, body, trail := trimEdgeSpace(stripAttr(g, layer.clear))
		sb.WriteString(lead)
		if len(body) > 0 {
			sb.WriteString(layer.marker)
			writeMarks(sb, body, level+1)
			sb.WriteString(layer.marker)
		}
		sb.WriteString(trail)
	}
}

func writeCode(sb *strings.Builder, runs []InlineRun) {
	key := func(r InlineRun) string {
		if r.Attrs.Code && !r.IsImage() {
			return "code"
		}
		return ""
	}
	for _, g := range groupRuns(runs, key) {
		if key(g[0]) == "" {
			for _, r := range g {
				writePlain(sb, r)
			}
			continue
		}
		sb.WriteString(codeSpan(PlainText(g)))
	}
}

func writePlain(sb *strings.Builder, r InlineRun) {
	if r.IsImage() {
		sb.WriteString("![")
		sb.WriteString(r.Text)
		sb.WriteString("](")
		sb.WriteString(r.Image)
		sb.WriteString(")")
		return
	}
	sb.WriteString(r.Text)
}

func codeSpan(content string) string {
	longest, cur := 0, 0
	for i := 0; i < len(content); i++ {
		if content[i] == '`' {
			cur++
			if cur > longest {
				longest = cur
			}
		} else {
			cur = 0
		}
	}
	fence := strings.Repeat("`", longest+1)
	pad := strings.HasPrefix(content, "`") || strings.HasSuffix(content, "`") ||
		(len(content) >= 2 && content[0] == ' ' && content[len(content)-1] == ' ' && strings.TrimSpace(content) != "")
	if pad {
		return fence + " " + content + " " + fence
	}
	return fence + content + fence
}

// trimEdgeSpace 把格式区间两端的空白移到标记之外
func trimEdgeSpace(runs []InlineRun) (lead string, body []InlineRun, trail string) {
	body = append([]InlineRun(nil), runs...)
	for len(body) > 0 && !body[0].IsImage() && !body[0].Attrs.Code {
		t := body[0].Text
		trimmed := strings.TrimLeftFunc(t, unicode.IsSpace)
		lead += t[:len(t)-len(trimmed)]
		if trimmed != "" {
			body[0].Text = trimmed
			break
		}
		body = body[1:]
	}
	for len(body) > 0 && !body[len(body)-1].IsImage() && !body[len(body)-1].Attrs.Code {
		last := len(body) - 1
		t := body[last].Text
		trimmed := strings.TrimRightFunc(t, unicode.IsSpace)
		trail = t[len(trimmed):] + trail
		if trimmed != "" {
			body[last].Text = trimmed
			break
		}
		body = body[:last]
	}
	return lead, body, trail
}

func groupRuns(runs []InlineRun, key func(InlineRun) string) [][]InlineRun {
	var groups [][]InlineRun
	for i, r := range runs {
		if i > 0 && key(runs[i-1]) == key(r) {
			groups[len(groups)-1] = append(groups[len(groups)-1], r)
			continue
		}
		groups = append(groups, []InlineRun{r})
	}
	return groups
}

func stripAttr(runs []InlineRun, clear func(*Attributes)) []InlineRun {
	out := make([]InlineRun, len(runs))
	for i, r := range runs {
		clear(&r.Attrs)
		out[i] = r
	}
	return out
}
