package scenario

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// roundTrip 源文本经块、文档模型再写回
func roundTrip(source string) string {
	return ToSource(ToDocumentModel(ParseBlocks(source)))
}

func TestToSource(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"choices get a blank line after heading", "### 選択肢\n- [次へ](scene:42)\n- [戻る](scene:1)",
			"### 選択肢\n\n- [次へ](scene:42)\n- [戻る](scene:1)\n"},
		{"list kind change", "1. 一\n3. 二\n* 三\n\n> 引用",
			"1. 一\n2. 二\n\n- 三\n\n> 引用\n"},
		{"paragraph lines stay together", "一行目\n二行目\n\n\n\n三行目",
			"一行目\n二行目\n\n三行目\n"},
		{"list after paragraph", "本文\n- 項目", "本文\n\n- 項目\n"},
		{"external link line", "- [公式](https://example.com)", "[公式](https://example.com)\n"},
		{"external link line with trailing space", "- [公式](https://example.com)  ", "[公式](https://example.com)\n"},
		{"star bullet link stays a list item", "* [公式](https://example.com)", "* [公式](https://example.com)\n"},
		{"indented bullet link", "  - [a](http://x)", "* [a](http://x)\n"},
		{"choice with trailing space", "- [次へ](scene:42) ", "- [次へ](scene:42)\n"},
		{"code fence", "```go\nx := 1\n\ny := 2\n```", "```go\nx := 1\n\ny := 2\n```\n"},
		{"empty fence", "```\n```", "```\n\n```\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, roundTrip(tt.in))
		})
	}
}

func TestToSourceDropsUnknownEmbeds(t *testing.T) {
	doc := Document{Ops: []Op{
		TextOp("前", nil),
		EmbedOp("video", "https://v.example/1", nil),
		TextOp("後\n", nil),
	}}
	assert.Equal(t, "前後\n", ToSource(doc))
}

func TestToSourceUnterminatedLine(t *testing.T) {
	doc := Document{Ops: []Op{TextOp("見出し", nil), TextOp("\n", Attrs{AttrHeader: 2}), TextOp("続き", nil)}}
	assert.Equal(t, "## 見出し\n続き\n", ToSource(doc))
}

func TestRoundTripFixedPoint(t *testing.T) {
	corpus := []string{
		sampleScenario,
		"",
		"\n\n\n",
		"# 題\n本文\n- a\n- b\n1. c\n> q\n>\n",
		"**bold without close\n*斜体* と `code` と ~~取消~~",
		"**a*b***\n*a***b**\nx***y**\n***both***",
		"![地図](/static/map.png)\n[![小](/s.png)](scene:3)",
		"- [x](scene:abc)\n- [**強い**選択](scene:7)\n* [y](scene:8)",
		"```\n# not a heading\n- nor a list",
		"```js\na\n```\n```go\nb\n```",
		"  # indented\n  > quote\n####### seven",
		"## 新しいシーン\n\nここにシーンの内容を記述してください。\n\n### 選択肢\n- [選択肢1](scene:1)\n- [選択肢2](scene:2)\n",
		"# \n- \n",
		"* [公式](https://example.com)",
		"  - [a](http://x)",
		"- [a](http://x) \n- [b](scene:2) \n",
		"本文 \n- 項目  \n  * [c](http://y)\n- [**太字**](http://z)",
		"- [x](scene:abc)\n* [x](scene:abc)",
	}

	for _, src := range corpus {
		once := roundTrip(src)
		assert.Equal(t, once, roundTrip(once), "source %q", src)
	}
}

func TestBulletLinkFromOps(t *testing.T) {
	bullet := TextOp("\n", Attrs{AttrList: ListBullet})
	doc := Document{Ops: []Op{
		TextOp("公式", Attrs{"link": "https://example.com"}),
		bullet,
		TextOp("次へ", Attrs{"link": "scene:42"}),
		bullet,
	}}

	// 同一列表使用同一标记
	src := ToSource(doc)
	assert.Equal(t, "* [公式](https://example.com)\n* [次へ](scene:42)\n", src)

	blocks := ParseBlocks(src)
	if assert.Len(t, blocks, 2) {
		assert.Equal(t, BlockListItem, blocks[0].Kind)
		assert.Equal(t, BlockListItem, blocks[1].Kind)
	}
	assert.Equal(t, doc.Ops, ToDocumentModel(blocks).Ops)
	assert.Equal(t, src, roundTrip(src))

	choices := Document{Ops: []Op{TextOp("次へ", Attrs{"link": "scene:42"}), bullet}}
	assert.Equal(t, "- [次へ](scene:42)\n", ToSource(choices))

	// 空行隔开的项目仍属同一列表
	loose := Document{Ops: []Op{TextOp("一", nil), bullet, TextOp("\n", nil), TextOp("公式", Attrs{"link": "https://example.com"}), bullet}}
	assert.Equal(t, "* 一\n\n* [公式](https://example.com)\n", ToSource(loose))
}
