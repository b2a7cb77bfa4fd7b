package model

// MergeStats accumulates counters for one logical unit of work. The caller
// owns it and decides when to Reset; the merge core only increments.
type MergeStats struct {
	VerticesCreated  int64 `json:"vertices_created"`
	VerticesUpdated  int64 `json:"vertices_updated"`
	VerticesEmitted  int64 `json:"vertices_emitted"`
	VertexErrors     int64 `json:"vertex_errors"`
	EdgesCreated     int64 `json:"edges_created"`
	EdgesUpdated     int64 `json:"edges_updated"`
	EdgesEmitted     int64 `json:"edges_emitted"`
	EdgeErrors       int64 `json:"edge_errors"`
	EdgeMatchesFound int64 `json:"edge_matches_found"`
}

func (s *MergeStats) Reset() {
	*s = MergeStats{}
}

// Add folds other into s.
func (s *MergeStats) Add(other MergeStats) {
	s.VerticesCreated += other.VerticesCreated
	s.VerticesUpdated += other.VerticesUpdated
	s.VerticesEmitted += other.VerticesEmitted
	s.VertexErrors += other.VertexErrors
	s.EdgesCreated += other.EdgesCreated
	s.EdgesUpdated += other.EdgesUpdated
	s.EdgesEmitted += other.EdgesEmitted
	s.EdgeErrors += other.EdgeErrors
	s.EdgeMatchesFound += other.EdgeMatchesFound
}

// Created, Updated, Emitted and Failed bump the counter matching kind.
func (s *MergeStats) Created(kind ElementKind) {
	if kind == KindEdge {
		s.EdgesCreated++
	} else {
		s.VerticesCreated++
	}
}

func (s *MergeStats) Updated(kind ElementKind) {
	if kind == KindEdge {
		s.EdgesUpdated++
	} else {
		s.VerticesUpdated++
	}
}

func (s *MergeStats) Emitted(kind ElementKind) {
	if kind == KindEdge {
		s.EdgesEmitted++
	} else {
		s.VerticesEmitted++
	}
}

func (s *MergeStats) Failed(kind ElementKind) {
	if kind == KindEdge {
		s.EdgeErrors++
	} else {
		s.VertexErrors++
	}
}
