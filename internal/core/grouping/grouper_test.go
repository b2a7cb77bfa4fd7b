package grouping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/graphmerge/internal/core/model"
)

var dedup = []string{"name", "type"}

func key(t *testing.T, fields map[string]any) model.VertexKey {
	t.Helper()
	k, ok := model.NewVertexKey(fields, dedup)
	require.True(t, ok)
	return k
}

func TestGroup_VerticesAndEdges(t *testing.T) {
	host := map[string]any{"name": "host.com", "type": "domain"}
	ip := map[string]any{"name": "1.1.1.1", "type": "ip"}

	candidates := []model.Element{
		{"type": "vertex", "label": "host.com", "id": host},
		{"type": "vertex", "label": "1.1.1.1", "id": ip},
		{"type": "edge", "label": "dns-connection", "inV": host, "outV": ip},
	}

	groups := NewGrouper(dedup).Group(candidates)
	require.Len(t, groups, 2)

	assert.Equal(t, key(t, host), groups[0].Key)
	assert.Len(t, groups[0].Vertices, 1)
	assert.Equal(t, "host.com", groups[0].Vertices[0].Label())
	require.Len(t, groups[0].Edges, 1)
	assert.Equal(t, "dns-connection", groups[0].Edges[0].Element.Label())

	assert.Equal(t, key(t, ip), groups[1].Key)
	assert.Len(t, groups[1].Vertices, 1)
	require.Len(t, groups[1].Edges, 1)

	// both endpoint lists hold the same draft
	assert.Same(t, groups[0].Edges[0], groups[1].Edges[0])
	draft := groups[0].Edges[0]
	assert.Equal(t, key(t, host), draft.InKey)
	assert.Equal(t, key(t, ip), draft.OutKey)
	assert.False(t, draft.Resolved())

	draft.Element["marker"] = true
	_, touched := candidates[2]["marker"]
	assert.False(t, touched, "emitted candidates are not mutated")
}

func TestGroup_StructurallyEqualKeysShareGroup(t *testing.T) {
	candidates := []model.Element{
		{"type": "vertex", "label": "A", "id": map[string]any{"name": "a.com", "type": "domain"}},
		{"type": "vertex", "label": "A2", "id": map[string]any{"type": "domain", "name": "a.com"}},
	}
	groups := NewGrouper(dedup).Group(candidates)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Vertices, 2)
}

func TestGroup_DropsUnusableCandidates(t *testing.T) {
	candidates := []model.Element{
		{"label": "no type", "id": map[string]any{"name": "x"}},
		{"type": "vertex", "label": "no id"},
		{"type": "vertex", "label": "bad id", "id": []any{"x"}},
		{"type": "edge", "label": "no ends"},
		{"type": "edge", "label": "half", "inV": map[string]any{"name": "a"}, "outV": []any{1}},
		{"type": 7, "label": "bad type"},
	}
	assert.Empty(t, NewGrouper(dedup).Group(candidates))
}

func TestGroup_ScalarKeyUsesFirstDedupField(t *testing.T) {
	candidates := []model.Element{
		{"type": "vertex", "label": "alex", "id": "alex"},
	}
	groups := NewGrouper(dedup).Group(candidates)
	require.Len(t, groups, 1)
	assert.Equal(t, key(t, map[string]any{"name": "alex"}), groups[0].Key)
}

func TestGroup_SelfLoopListedOnce(t *testing.T) {
	a := map[string]any{"name": "a", "type": "t"}
	candidates := []model.Element{
		{"type": "edge", "label": "self", "inV": a, "outV": a},
	}
	groups := NewGrouper(dedup).Group(candidates)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Edges, 1)
	assert.Empty(t, groups[0].Vertices)
}

func TestKeys(t *testing.T) {
	groups := []*Group{{Key: "a"}, {Key: "b"}}
	keys := Keys(groups)
	assert.Len(t, keys, 2)
	assert.Contains(t, keys, model.VertexKey("a"))
}
