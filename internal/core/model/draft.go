package model

// EdgeDraft is an edge candidate waiting for both endpoints to resolve. One
// draft is shared by the groups of both endpoint keys; whichever endpoint
// resolves last makes it eligible for merge.
type EdgeDraft struct {
	// Element is a private copy of the emitted candidate. Its inV and outV
	// are rewritten to store ids as the endpoints resolve.
	Element Element

	InKey  VertexKey
	OutKey VertexKey

	InID        int64
	OutID       int64
	InResolved  bool
	OutResolved bool
}

func NewEdgeDraft(el Element, in, out VertexKey) *EdgeDraft {
	return &EdgeDraft{Element: el.Clone(), InKey: in, OutKey: out}
}

// Resolved reports whether both endpoints have store ids.
func (d *EdgeDraft) Resolved() bool {
	return d.InResolved && d.OutResolved
}

// Key is the edge identity. It is meaningful once the draft is resolved.
func (d *EdgeDraft) Key() EdgeKey {
	return EdgeKey{Label: d.Element.Label(), In: d.InKey, Out: d.OutKey}
}
