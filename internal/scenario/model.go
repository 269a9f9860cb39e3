package scenario

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
)

// 块级属性键
const (
	AttrHeader     = "header"
	AttrList       = "list"
	AttrBlockquote = "blockquote"
	AttrCodeBlock  = "code-block"
)

// 列表类型
const (
	ListBullet  = "bullet"
	ListOrdered = "ordered"
)

// EmbedImage 图片嵌入类型
const EmbedImage = "image"

// Attrs 操作属性，值为 bool、string 或数字
type Attrs map[string]any

// Bool 读取布尔属性
func (a Attrs) Bool(key string) bool {
	v, _ := a[key].(bool)
	return v
}

// String 读取字符串属性
func (a Attrs) String(key string) string {
	v, _ := a[key].(string)
	return v
}

// Int 读取数字属性，兼容 JSON 解码得到的 float64
func (a Attrs) Int(key string) (int, bool) {
	switch v := a[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	}
	return 0, false
}

func (a Attrs) clone() Attrs {
	if len(a) == 0 {
		return nil
	}
	out := make(Attrs, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

func equalAttrs(a, b Attrs) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		w, ok := b[k]
		if !ok || !reflect.DeepEqual(normalizeValue(v), normalizeValue(w)) {
			return false
		}
	}
	return true
}

func normalizeValue(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	}
	return v
}

// Embed 嵌入对象，如图片
type Embed struct {
	Type  string
	Value any
}

// Op Delta 操作：插入文本、插入嵌入、保留或删除
type Op struct {
	Insert     string
	Embed      *Embed
	Retain     int
	Delete     int
	Attributes Attrs
}

// TextOp 文本插入
func TextOp(text string, attrs Attrs) Op {
	return Op{Insert: text, Attributes: attrs.clone()}
}

// EmbedOp 嵌入插入
func EmbedOp(embedType string, value any, attrs Attrs) Op {
	return Op{Embed: &Embed{Type: embedType, Value: value}, Attributes: attrs.clone()}
}

// RetainOp 保留 n 个单位，可附带格式变更（nil 值表示移除）
func RetainOp(n int, attrs Attrs) Op {
	return Op{Retain: n, Attributes: attrs.clone()}
}

// DeleteOp 删除 n 个单位
func DeleteOp(n int) Op {
	return Op{Delete: n}
}

// IsInsert 是否为插入操作
func (o Op) IsInsert() bool {
	return o.Retain == 0 && o.Delete == 0 && (o.Embed != nil || o.Insert != "")
}

// Length 操作长度，文本按 UTF-16 码元计，嵌入为 1
func (o Op) Length() int {
	switch {
	case o.Delete > 0:
		return o.Delete
	case o.Retain > 0:
		return o.Retain
	case o.Embed != nil:
		return 1
	}
	return utf16Len(o.Insert)
}

// MarshalJSON 输出 Quill Delta 形式
func (o Op) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, 2)
	switch {
	case o.Delete > 0:
		m["delete"] = o.Delete
	case o.Retain > 0:
		m["retain"] = o.Retain
	case o.Embed != nil:
		m["insert"] = map[string]any{o.Embed.Type: o.Embed.Value}
	default:
		m["insert"] = o.Insert
	}
	if len(o.Attributes) > 0 {
		m["attributes"] = o.Attributes
	}
	return json.Marshal(m)
}

// UnmarshalJSON 读取 Quill Delta 形式
func (o *Op) UnmarshalJSON(data []byte) error {
	var raw struct {
		Insert     json.RawMessage `json:"insert"`
		Retain     int             `json:"retain"`
		Delete     int             `json:"delete"`
		Attributes Attrs           `json:"attributes"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*o = Op{Retain: raw.Retain, Delete: raw.Delete, Attributes: raw.Attributes}

	insert := bytes.TrimSpace(raw.Insert)
	switch {
	case len(insert) == 0 || bytes.Equal(insert, []byte("null")):
		if o.Retain == 0 && o.Delete == 0 {
			return fmt.Errorf("op has no insert, retain or delete")
		}
	case insert[0] == '"':
		return json.Unmarshal(insert, &o.Insert)
	case insert[0] == '{':
		var embed map[string]any
		if err := json.Unmarshal(insert, &embed); err != nil {
			return err
		}
		for k, v := range embed {
			o.Embed = &Embed{Type: k, Value: v}
		}
		if o.Embed == nil {
			return fmt.Errorf("empty embed")
		}
	default:
		return fmt.Errorf("unsupported insert value %s", insert)
	}
	return nil
}

// Document 文档模型：有序的插入操作序列
type Document struct {
	Ops []Op `json:"ops"`
}

// Length 文档长度
func (d Document) Length() int {
	n := 0
	for _, op := range d.Ops {
		n += op.Length()
	}
	return n
}

// ToDocumentModel 由块序列构建文档模型
// 块属性挂在块末尾的换行操作上；空输入得到单个换行
func ToDocumentModel(blocks []Block) Document {
	var ops []Op
	newline := func(attrs Attrs) { ops = append(ops, TextOp("\n", attrs)) }

	for _, b := range blocks {
		if b.BlankBefore {
			newline(nil)
		}
		switch b.Kind {
		case BlockHeading:
			ops = appendRunOps(ops, b.Runs)
			newline(Attrs{AttrHeader: clampLevel(b.Level)})
		case BlockListItem:
			ops = appendRunOps(ops, b.Runs)
			if b.Ordered {
				newline(Attrs{AttrList: ListOrdered})
			} else {
				newline(Attrs{AttrList: ListBullet})
			}
		case BlockChoice:
			href := ""
			if b.Target != nil {
				href = b.Target.Href()
			}
			label := make([]InlineRun, len(b.Runs))
			for i, r := range b.Runs {
				r.Attrs.Link = href
				label[i] = r
			}
			ops = appendRunOps(ops, label)
			newline(Attrs{AttrList: ListBullet})
		case BlockBlockquote:
			ops = appendRunOps(ops, b.Runs)
			newline(Attrs{AttrBlockquote: true})
		case BlockCode:
			attrs := Attrs{AttrCodeBlock: true}
			if b.Lang != "" {
				attrs = Attrs{AttrCodeBlock: b.Lang}
			}
			for _, line := range strings.Split(b.Raw, "\n") {
				if line != "" {
					ops = append(ops, TextOp(line, nil))
				}
				newline(attrs)
			}
		default:
			ops = appendRunOps(ops, b.Runs)
			newline(nil)
		}
	}

	if len(ops) == 0 {
		return Document{Ops: []Op{TextOp("\n", nil)}}
	}
	return Document{Ops: compactOps(ops)}
}

func clampLevel(level int) int {
	return max(1, min(6, level))
}

func appendRunOps(ops []Op, runs []InlineRun) []Op {
	for _, r := range runs {
		attrs := inlineAttrs(r.Attrs)
		if r.IsImage() {
			if r.Text != "" {
				if attrs == nil {
					attrs = Attrs{}
				}
				attrs["alt"] = r.Text
			}
			ops = append(ops, EmbedOp(EmbedImage, r.Image, attrs))
			continue
		}
		if r.Text != "" {
			ops = append(ops, TextOp(r.Text, attrs))
		}
	}
	return ops
}

func inlineAttrs(a Attributes) Attrs {
	out := Attrs{}
	if a.Bold {
		out["bold"] = true
	}
	if a.Italic {
		out["italic"] = true
	}
	if a.Underline {
		out["underline"] = true
	}
	if a.Strike {
		out["strike"] = true
	}
	if a.Code {
		out["code"] = true
	}
	if a.Link != "" {
		out["link"] = a.Link
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func runAttributes(a Attrs) Attributes {
	return Attributes{
		Bold:      a.Bool("bold"),
		Italic:    a.Bool("italic"),
		Underline: a.Bool("underline"),
		Strike:    a.Bool("strike"),
		Code:      a.Bool("code"),
		Link:      a.String("link"),
	}
}

// compactOps 合并相邻且属性相同的文本插入
func compactOps(ops []Op) []Op {
	var out []Op
	for _, op := range ops {
		if op.IsInsert() && op.Embed == nil && len(out) > 0 {
			last := &out[len(out)-1]
			if last.IsInsert() && last.Embed == nil && equalAttrs(last.Attributes, op.Attributes) {
				last.Insert += op.Insert
				continue
			}
		}
		if op.Length() == 0 {
			continue
		}
		out = append(out, op)
	}
	return out
}

// LineAt 返回 index 所在行的起点、行尾换行符的位置和该行的块属性
func (d Document) LineAt(index int) (start, end int, attrs Attrs) {
	pos := 0
	for _, op := range d.Ops {
		if !op.IsInsert() {
			continue
		}
		if op.Embed != nil {
			pos++
			continue
		}
		for _, r := range op.Insert {
			if r == '\n' {
				if pos >= index {
					return start, pos, op.Attributes.clone()
				}
				start = pos + 1
			}
			pos += utf16Len(string(r))
		}
	}
	return start, pos, nil
}

// Compose 把变更（retain/insert/delete）应用到文档上
func (d Document) Compose(change []Op) Document {
	it := &opIterator{ops: d.Ops}
	var out []Op
	for _, c := range change {
		switch {
		case c.Delete > 0:
			for n := c.Delete; n > 0 && it.hasNext(); {
				n -= it.next(n).Length()
			}
		case c.Retain > 0:
			for n := c.Retain; n > 0 && it.hasNext(); {
				op := it.next(n)
				n -= op.Length()
				if len(c.Attributes) > 0 {
					op.Attributes = composeAttrs(op.Attributes, c.Attributes)
				}
				out = append(out, op)
			}
		case c.IsInsert():
			out = append(out, Op{Insert: c.Insert, Embed: c.Embed, Attributes: dropNil(c.Attributes)})
		}
	}
	for it.hasNext() {
		out = append(out, it.next(math.MaxInt))
	}

	out = compactOps(out)
	if len(out) == 0 || out[len(out)-1].Embed != nil || !strings.HasSuffix(out[len(out)-1].Insert, "\n") {
		out = compactOps(append(out, TextOp("\n", nil)))
	}
	return Document{Ops: out}
}

func composeAttrs(base, change Attrs) Attrs {
	out := base.clone()
	if out == nil {
		out = Attrs{}
	}
	for k, v := range change {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func dropNil(a Attrs) Attrs {
	return composeAttrs(nil, a)
}

// opIterator 按长度切分遍历插入操作
type opIterator struct {
	ops    []Op
	index  int
	offset int
}

func (it *opIterator) hasNext() bool {
	return it.index < len(it.ops)
}

func (it *opIterator) next(n int) Op {
	op := it.ops[it.index]
	remaining := op.Length() - it.offset
	if op.Embed != nil || n >= remaining {
		if op.Embed == nil && it.offset > 0 {
			op.Insert = sliceUTF16(op.Insert, it.offset, op.Length())
		}
		it.index++
		it.offset = 0
		op.Attributes = op.Attributes.clone()
		return op
	}
	op.Insert = sliceUTF16(op.Insert, it.offset, it.offset+n)
	it.offset += utf16Len(op.Insert)
	op.Attributes = op.Attributes.clone()
	return op
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// sliceUTF16 按 UTF-16 偏移截取，落在代理对中间时向后取整个字符
func sliceUTF16(s string, from, to int) string {
	pos, start, end := 0, -1, len(s)
	for i, r := range s {
		if start < 0 && pos >= from {
			start = i
		}
		if pos >= to {
			end = i
			break
		}
		if r >= 0x10000 {
			pos += 2
		} else {
			pos++
		}
	}
	if start < 0 {
		return ""
	}
	if end < start {
		end = start
	}
	return s[start:end]
}
