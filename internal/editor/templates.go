package editor

import (
	"fmt"
	"strings"

	"github.com/Corphon/NovelGenPage/internal/scenario"
)

// 编辑器工具栏插入的模板
const (
	SceneTemplate  = "\n## 新しいシーン\n\nここにシーンの内容を記述してください。\n"
	ChoiceTemplate = "\n### 選択肢\n- [選択肢1](scene:1)\n- [選択肢2](scene:2)\n"
)

// ChoiceList 生成指向给定场景的选择肢模板
func ChoiceList(targets ...string) string {
	var sb strings.Builder
	sb.WriteString("\n### 選択肢\n")
	for i, id := range targets {
		fmt.Fprintf(&sb, "- [選択肢%d](scene:%s)\n", i+1, id)
	}
	return sb.String()
}

// InsertSceneTemplate 在 index 处插入新场景模板
func (s *Session) InsertSceneTemplate(index int) Snapshot {
	return s.insertTemplate(index, SceneTemplate)
}

// InsertChoiceTemplate 在 index 处插入选择肢模板，未指定目标时使用默认的两项
func (s *Session) InsertChoiceTemplate(index int, targets ...string) Snapshot {
	if len(targets) == 0 {
		return s.insertTemplate(index, ChoiceTemplate)
	}
	return s.insertTemplate(index, ChoiceList(targets...))
}

// insertTemplate 把模板解析后的结构化操作插入 index 处，文档其余部分保持不变
// index 在行尾时插到下一行；在行中时先按当前行的块属性断行
func (s *Session) insertTemplate(index int, template string) Snapshot {
	ops := scenario.ToDocumentModel(scenario.ParseBlocks(template)).Ops
	return s.mutate(func() {
		index = max(0, min(index, s.doc.Length()-1))
		start, end, attrs := s.doc.LineAt(index)
		switch {
		case index == end && index > start:
			index = end + 1
		case index > start:
			ops = append([]scenario.Op{scenario.TextOp("\n", attrs)}, ops...)
		}

		var change []scenario.Op
		if index > 0 {
			change = append(change, scenario.RetainOp(index, nil))
		}
		s.doc = s.doc.Compose(append(change, ops...))
	})
}
