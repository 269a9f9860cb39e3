package scenario

import (
	"regexp"
	"strings"
)

var (
	headingPattern  = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	choicePattern   = regexp.MustCompile(`^-\s+\[(.+?)\]\(scene:(\d+)\)$`)
	linkLinePattern = regexp.MustCompile(`^-\s+(\[.+\]\([^()\s]+\))$`)
	bulletPattern   = regexp.MustCompile(`^\s*[-*]\s+(.*)$`)
	orderedPattern  = regexp.MustCompile(`^\s*\d+\.\s+(.*)$`)
	quotePattern    = regexp.MustCompile(`^>\s?(.*)$`)
	fencePattern    = regexp.MustCompile("^\\s*```\\s*([^`\\s]*)\\s*$")
)

// ParseBlocks 把源文本解析为块序列
// 空行结束当前块且不产生块；无法识别的行按段落处理，不会失败
func ParseBlocks(source string) []Block {
	lines := splitLines(source)

	var (
		blocks    []Block
		blank     bool
		inChoices bool
	)
	push := func(b Block) {
		b.BlankBefore = blank && len(blocks) > 0
		blank = false
		blocks = append(blocks, b)
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if strings.TrimSpace(line) == "" {
			blank = true
			continue
		}

		if m := fencePattern.FindStringSubmatch(line); m != nil {
			var body []string
			j := i + 1
			for ; j < len(lines) && strings.TrimSpace(lines[j]) != "```"; j++ {
				body = append(body, lines[j])
			}
			push(Block{Kind: BlockCode, Raw: strings.Join(body, "\n"), Lang: m[1]})
			i = j
			continue
		}

		if m := headingPattern.FindStringSubmatch(line); m != nil {
			text := strings.Trim(m[2], " \t")
			inChoices = len(m[1]) == 3 && text == ChoicesHeading
			push(Block{Kind: BlockHeading, Level: len(m[1]), Runs: ParseInline(text)})
			continue
		}

		trimmed := strings.TrimRight(line, " \t")
		if m := choicePattern.FindStringSubmatch(trimmed); m != nil {
			label := ParseInline(m[1])
			ref := ResolveLink(SceneScheme+m[2], label)
			push(Block{Kind: BlockChoice, Runs: label, Target: &ref, InChoices: inChoices})
			continue
		}

		if runs, ok := linkLine(trimmed); ok {
			push(Block{Kind: BlockParagraph, Runs: runs})
			continue
		}

		if m := bulletPattern.FindStringSubmatch(line); m != nil {
			push(Block{Kind: BlockListItem, Runs: ParseInline(strings.TrimRight(m[1], " \t"))})
			continue
		}

		if m := orderedPattern.FindStringSubmatch(line); m != nil {
			push(Block{Kind: BlockListItem, Ordered: true, Runs: ParseInline(strings.TrimRight(m[1], " \t"))})
			continue
		}

		if m := quotePattern.FindStringSubmatch(line); m != nil {
			push(Block{Kind: BlockBlockquote, Runs: ParseInline(strings.Trim(m[1], " \t"))})
			continue
		}

		push(Block{Kind: BlockParagraph, Runs: ParseInline(strings.Trim(line, " \t"))})
	}
	return blocks
}

// linkLine 匹配 "- [文字](url)" 形式且整行只有一个链接的行
func linkLine(line string) ([]InlineRun, bool) {
	m := linkLinePattern.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	runs := ParseInline(m[1])
	return runs, isSingleLink(runs)
}

// isSingleLink 片段是否全部属于同一个链接
func isSingleLink(runs []InlineRun) bool {
	if len(runs) == 0 || runs[0].Attrs.Link == "" {
		return false
	}
	for _, r := range runs[1:] {
		if r.Attrs.Link != runs[0].Attrs.Link {
			return false
		}
	}
	return true
}

func splitLines(source string) []string {
	if source == "" {
		return nil
	}
	source = strings.ReplaceAll(source, "\r\n", "\n")
	return strings.Split(source, "\n")
}
