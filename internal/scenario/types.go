package scenario

import "strings"

// BlockKind 块类型
type BlockKind string

const (
	BlockHeading    BlockKind = "heading"
	BlockParagraph  BlockKind = "paragraph"
	BlockListItem   BlockKind = "list_item"
	BlockBlockquote BlockKind = "blockquote"
	BlockCode       BlockKind = "code_block"
	BlockChoice     BlockKind = "choice_item"
)

// ChoicesHeading 选项区标题
const ChoicesHeading = "選択肢"

// Attributes 行内属性，每个片段携带完整属性集合
type Attributes struct {
	Bold      bool   `json:"bold,omitempty" yaml:"bold,omitempty"`
	Italic    bool   `json:"italic,omitempty" yaml:"italic,omitempty"`
	Underline bool   `json:"underline,omitempty" yaml:"underline,omitempty"`
	Strike    bool   `json:"strike,omitempty" yaml:"strike,omitempty"`
	Code      bool   `json:"code,omitempty" yaml:"code,omitempty"`
	Link      string `json:"link,omitempty" yaml:"link,omitempty"`
}

// merge 叠加属性，链接以非空者为准
func (a Attributes) merge(b Attributes) Attributes {
	a.Bold = a.Bold || b.Bold
	a.Italic = a.Italic || b.Italic
	a.Underline = a.Underline || b.Underline
	a.Strike = a.Strike || b.Strike
	a.Code = a.Code || b.Code
	if b.Link != "" {
		a.Link = b.Link
	}
	return a
}

// InlineRun 一段具有相同格式的文本
// Image 非空时表示图片，Text 为替代文本
type InlineRun struct {
	Text  string     `json:"text" yaml:"text"`
	Attrs Attributes `json:"attrs" yaml:"attrs"`
	Image string     `json:"image,omitempty" yaml:"image,omitempty"`
}

// IsImage 是否为图片片段
func (r InlineRun) IsImage() bool {
	return r.Image != ""
}

// PlainText 拼接片段的纯文本
func PlainText(runs []InlineRun) string {
	var sb strings.Builder
	for _, r := range runs {
		sb.WriteString(r.Text)
	}
	return sb.String()
}

// Block 解析后的块
type Block struct {
	Kind        BlockKind   `json:"kind" yaml:"kind"`
	Level       int         `json:"level,omitempty" yaml:"level,omitempty"`
	Ordered     bool        `json:"ordered,omitempty" yaml:"ordered,omitempty"`
	Runs        []InlineRun `json:"runs,omitempty" yaml:"runs,omitempty"`
	Raw         string      `json:"raw,omitempty" yaml:"raw,omitempty"`
	Lang        string      `json:"lang,omitempty" yaml:"lang,omitempty"`
	Target      *SceneRef   `json:"target,omitempty" yaml:"target,omitempty"`
	BlankBefore bool        `json:"blank_before,omitempty" yaml:"blank_before,omitempty"`
	InChoices   bool        `json:"in_choices,omitempty" yaml:"in_choices,omitempty"`
}
