package scenario

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveLink(t *testing.T) {
	label := []InlineRun{{Text: "次へ"}}

	ref := ResolveLink("scene:42", label)
	assert.True(t, ref.IsScene())
	assert.Equal(t, "42", ref.ID)
	assert.Equal(t, "次へ", ref.Label)
	assert.Equal(t, "scene:42", ref.Href())

	for _, url := range []string{"scene:abc", "scene:", "scene:4a", "Scene:1", "https://example.com/scene:1"} {
		ref := ResolveLink(url, nil)
		assert.Equal(t, RefExternal, ref.Kind, url)
		assert.Equal(t, url, ref.URL, url)
		assert.Equal(t, url, ref.Href(), url)
	}
}

func TestSceneID(t *testing.T) {
	id, ok := SceneID("scene:007")
	assert.True(t, ok)
	assert.Equal(t, "007", id)

	_, ok = SceneID("scene:abc")
	assert.False(t, ok)
	_, ok = SceneID("#top")
	assert.False(t, ok)
}
