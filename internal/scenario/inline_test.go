package scenario

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseInline(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []InlineRun
	}{
		{"plain", "ただの文章", []InlineRun{{Text: "ただの文章"}}},
		{"bold and italic", "**bold** and *it*", []InlineRun{
			{Text: "bold", Attrs: Attributes{Bold: true}},
			{Text: " and "},
			{Text: "it", Attrs: Attributes{Italic: true}},
		}},
		{"strike", "~~gone~~", []InlineRun{{Text: "gone", Attrs: Attributes{Strike: true}}}},
		{"code is atomic", "`a*b*`", []InlineRun{{Text: "a*b*", Attrs: Attributes{Code: true}}}},
		{"scene link", "[次へ](scene:42)", []InlineRun{{Text: "次へ", Attrs: Attributes{Link: "scene:42"}}}},
		{"image", "![地図](/static/map.png)", []InlineRun{{Text: "地図", Image: "/static/map.png"}}},
		{"unclosed bold", "**bold without close", []InlineRun{{Text: "**bold without close"}}},
		{"bold italic", "***both***", []InlineRun{{Text: "both", Attrs: Attributes{Bold: true, Italic: true}}}},
		{"formatted link label", "[**強調**リンク](https://example.com)", []InlineRun{
			{Text: "強調", Attrs: Attributes{Bold: true, Link: "https://example.com"}},
			{Text: "リンク", Attrs: Attributes{Link: "https://example.com"}},
		}},
		{"spaced asterisk", "a * b", []InlineRun{{Text: "a * b"}}},
		{"single tilde", "~single~", []InlineRun{{Text: "~single~"}}},
		{"unclosed link", "[not a link", []InlineRun{{Text: "[not a link"}}},
		{"leftover delimiter", "x***y**", []InlineRun{
			{Text: "x*"},
			{Text: "y", Attrs: Attributes{Bold: true}},
		}},
		{"nested emphasis", "**a*b***", []InlineRun{
			{Text: "a", Attrs: Attributes{Bold: true}},
			{Text: "b", Attrs: Attributes{Bold: true, Italic: true}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseInline(tt.in))
		})
	}
}

func TestParseInlineEmpty(t *testing.T) {
	assert.Nil(t, ParseInline(""))
}

func TestSerializeInline(t *testing.T) {
	t.Run("nesting order", func(t *testing.T) {
		runs := []InlineRun{
			{Text: "a", Attrs: Attributes{Bold: true}},
			{Text: "b", Attrs: Attributes{Bold: true, Italic: true}},
		}
		assert.Equal(t, "**a*b***", SerializeInline(runs))
	})

	t.Run("link outermost", func(t *testing.T) {
		runs := []InlineRun{{Text: "a", Attrs: Attributes{Bold: true, Link: "scene:3"}}}
		assert.Equal(t, "[**a**](scene:3)", SerializeInline(runs))
	})

	t.Run("edge whitespace moves outside markers", func(t *testing.T) {
		runs := []InlineRun{
			{Text: "x"},
			{Text: " y ", Attrs: Attributes{Bold: true}},
			{Text: "z"},
		}
		assert.Equal(t, "x **y** z", SerializeInline(runs))
	})

	t.Run("code span with backtick", func(t *testing.T) {
		runs := []InlineRun{{Text: "a`b", Attrs: Attributes{Code: true}}}
		assert.Equal(t, "``a`b``", SerializeInline(runs))
	})

	t.Run("underline has no markup", func(t *testing.T) {
		runs := []InlineRun{{Text: "u", Attrs: Attributes{Underline: true}}}
		assert.Equal(t, "u", SerializeInline(runs))
	})

	t.Run("image", func(t *testing.T) {
		runs := []InlineRun{{Text: "alt", Image: "/u.png"}}
		assert.Equal(t, "![alt](/u.png)", SerializeInline(runs))
	})
}

func TestInlineRoundTrip(t *testing.T) {
	inputs := []string{
		"**a*b***",
		"*a***b**",
		"x***y**",
		"***both***",
		"**bold without close",
		"`code` と **太字** と ~~取消~~",
		"[**強調**リンク](https://example.com) の後",
		"![地図](/static/map.png)",
		"` a `",
	}
	for _, in := range inputs {
		runs := ParseInline(in)
		out := SerializeInline(runs)
		assert.Equal(t, runs, ParseInline(out), "input %q serialized as %q", in, out)
	}
}
