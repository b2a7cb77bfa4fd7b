package grouping

import (
	"github.com/agenthands/graphmerge/internal/core/model"
)

// Group gathers the candidates that share one vertex identity: the vertex
// candidates for that key and every edge draft that touches it.
type Group struct {
	Key      model.VertexKey
	Vertices []model.Element
	Edges    []*model.EdgeDraft
}

type Grouper struct {
	DedupFields []string
}

func NewGrouper(dedupFields []string) *Grouper {
	return &Grouper{DedupFields: dedupFields}
}

// Group partitions candidates by vertex key, in order of first appearance.
// An edge is listed under both of its endpoint keys as one shared draft; a
// self-loop is listed once. Candidates with no usable type or key, and edges
// with a malformed endpoint, are dropped without error.
func (g *Grouper) Group(candidates []model.Element) []*Group {
	var groups []*Group
	byKey := make(map[model.VertexKey]*Group)

	get := func(k model.VertexKey) *Group {
		if grp, ok := byKey[k]; ok {
			return grp
		}
		grp := &Group{Key: k}
		byKey[k] = grp
		groups = append(groups, grp)
		return grp
	}

	for _, c := range candidates {
		kind, ok := c.Kind()
		if !ok {
			continue
		}
		switch kind {
		case model.KindVertex:
			k, ok := model.KeyFromValue(c[model.FieldID], g.DedupFields)
			if !ok {
				continue
			}
			grp := get(k)
			grp.Vertices = append(grp.Vertices, c)

		case model.KindEdge:
			inKey, inOK := model.KeyFromValue(c[model.FieldInV], g.DedupFields)
			outKey, outOK := model.KeyFromValue(c[model.FieldOutV], g.DedupFields)
			if !inOK || !outOK {
				continue
			}
			draft := model.NewEdgeDraft(c, inKey, outKey)
			grp := get(inKey)
			grp.Edges = append(grp.Edges, draft)
			if outKey != inKey {
				grp := get(outKey)
				grp.Edges = append(grp.Edges, draft)
			}
		}
	}
	return groups
}

// Keys returns the set of keys covered by groups.
func Keys(groups []*Group) map[model.VertexKey]struct{} {
	out := make(map[model.VertexKey]struct{}, len(groups))
	for _, g := range groups {
		out[g.Key] = struct{}{}
	}
	return out
}
