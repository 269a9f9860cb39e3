package scenario

import (
	"regexp"
	"strings"
)

// SceneRefKind 链接目标类型
type SceneRefKind string

const (
	RefScene    SceneRefKind = "scene"
	RefExternal SceneRefKind = "external"
)

// SceneScheme 场景伪协议前缀
const SceneScheme = "scene:"

var sceneTargetPattern = regexp.MustCompile(`^scene:(\d+)$`)

// SceneRef 链接目标，场景引用或外部 URL
type SceneRef struct {
	Kind  SceneRefKind `json:"kind" yaml:"kind"`
	ID    string       `json:"id,omitempty" yaml:"id,omitempty"`
	URL   string       `json:"url,omitempty" yaml:"url,omitempty"`
	Label string       `json:"label,omitempty" yaml:"label,omitempty"`
}

// IsScene 是否指向场景
func (r SceneRef) IsScene() bool {
	return r.Kind == RefScene
}

// Href 还原为链接目标
func (r SceneRef) Href() string {
	if r.IsScene() {
		return SceneScheme + r.ID
	}
	return r.URL
}

// ResolveLink 解析链接目标
// 只有 scene:<数字> 被视为场景，其余（包括 scene:abc）原样保留为外部链接
func ResolveLink(url string, label []InlineRun) SceneRef {
	ref := SceneRef{Label: PlainText(label)}
	if m := sceneTargetPattern.FindStringSubmatch(url); m != nil {
		ref.Kind = RefScene
		ref.ID = m[1]
		return ref
	}
	ref.Kind = RefExternal
	ref.URL = url
	return ref
}

// SceneID 返回场景 ID，非场景链接返回 false
func SceneID(url string) (string, bool) {
	if !strings.HasPrefix(url, SceneScheme) {
		return "", false
	}
	ref := ResolveLink(url, nil)
	return ref.ID, ref.IsScene()
}
