package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/graphmerge/internal/core/model"
)

func vkey(t *testing.T, name string) model.VertexKey {
	t.Helper()
	k, ok := model.NewVertexKey(map[string]any{"name": name}, []string{"name"})
	require.True(t, ok)
	return k
}

func draft(t *testing.T, label, in, out string) *model.EdgeDraft {
	t.Helper()
	el := model.Element{"type": "edge", "label": label, "inV": map[string]any{"name": in}, "outV": map[string]any{"name": out}}
	return model.NewEdgeDraft(el, vkey(t, in), vkey(t, out))
}

func TestRekey_ReleasesOnLastEndpoint(t *testing.T) {
	d := draft(t, "conn", "a", "b")

	groups := Rekey(vkey(t, "a"), 10, []*model.EdgeDraft{d})
	assert.Empty(t, groups)
	assert.True(t, d.InResolved)
	assert.False(t, d.OutResolved)
	assert.Equal(t, int64(10), d.Element["inV"])

	groups = Rekey(vkey(t, "b"), 20, []*model.EdgeDraft{d})
	require.Len(t, groups, 1)
	assert.Equal(t, model.EdgeKey{Label: "conn", In: vkey(t, "a"), Out: vkey(t, "b")}, groups[0].Key)
	require.Len(t, groups[0].Edges, 1)
	assert.Equal(t, int64(20), groups[0].Edges[0]["outV"])

	// released once only
	assert.Empty(t, Rekey(vkey(t, "b"), 20, []*model.EdgeDraft{d}))
	assert.Empty(t, Rekey(vkey(t, "a"), 10, []*model.EdgeDraft{d}))
}

func TestRekey_SelfLoop(t *testing.T) {
	d := draft(t, "self", "a", "a")
	groups := Rekey(vkey(t, "a"), 7, []*model.EdgeDraft{d})
	require.Len(t, groups, 1)
	assert.Equal(t, int64(7), d.Element["inV"])
	assert.Equal(t, int64(7), d.Element["outV"])
}

func TestRekey_GroupsByEdgeKey(t *testing.T) {
	d1 := draft(t, "conn", "a", "a")
	d2 := draft(t, "conn", "a", "a")
	d3 := draft(t, "other", "a", "a")
	d4 := draft(t, "conn", "a", "z")

	groups := Rekey(vkey(t, "a"), 1, []*model.EdgeDraft{d1, d2, d3, d4})
	require.Len(t, groups, 2)
	assert.Equal(t, "conn", groups[0].Key.Label)
	assert.Len(t, groups[0].Edges, 2)
	assert.Equal(t, "other", groups[1].Key.Label)
	assert.False(t, d4.Resolved())
}
