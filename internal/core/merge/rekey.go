package merge

import (
	"github.com/agenthands/graphmerge/internal/core/model"
)

// EdgeGroup is a set of fully resolved edge candidates sharing one identity.
type EdgeGroup struct {
	Key   model.EdgeKey
	Edges []model.Element
}

// Rekey points every endpoint of pending that references key at the store
// vertex id. Drafts whose other endpoint is already resolved become eligible
// and are returned grouped by edge identity, in order of first appearance. A
// draft is returned at most once over a pass: only the resolution of its last
// open endpoint releases it. A self-loop resolves both ends at once.
func Rekey(key model.VertexKey, id int64, pending []*model.EdgeDraft) []*EdgeGroup {
	var groups []*EdgeGroup
	byKey := make(map[model.EdgeKey]*EdgeGroup)

	for _, d := range pending {
		touched := false
		if !d.InResolved && d.InKey == key {
			d.InID, d.InResolved = id, true
			d.Element[model.FieldInV] = id
			touched = true
		}
		if !d.OutResolved && d.OutKey == key {
			d.OutID, d.OutResolved = id, true
			d.Element[model.FieldOutV] = id
			touched = true
		}
		if !touched || !d.Resolved() {
			continue
		}

		k := d.Key()
		grp, ok := byKey[k]
		if !ok {
			grp = &EdgeGroup{Key: k}
			byKey[k] = grp
			groups = append(groups, grp)
		}
		grp.Edges = append(grp.Edges, d.Element)
	}
	return groups
}
