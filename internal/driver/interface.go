package driver

import (
	"context"
	"errors"

	"github.com/agenthands/graphmerge/internal/core/model"
)

var (
	ErrNotFound = errors.New("graph element not found")
	ErrTxClosed = errors.New("transaction already closed")
)

// Cardinality is how a property holds values.
type Cardinality int

const (
	// Single replaces any previous value.
	Single Cardinality = iota
	// Set adds the value unless an equal one is already present.
	Set
	// List appends the value.
	List
)

func (c Cardinality) String() string {
	switch c {
	case Set:
		return "set"
	case List:
		return "list"
	default:
		return "single"
	}
}

// StoreElement is a transient handle on a persisted vertex or edge. It holds
// a snapshot of the properties as of the last read or write through the
// owning transaction.
type StoreElement struct {
	ID         int64
	Kind       model.ElementKind
	Label      string
	OutV       int64
	InV        int64
	Properties map[string][]any
}

// Value returns the first value of a property.
func (e *StoreElement) Value(name string) (any, bool) {
	vals := e.Properties[name]
	if len(vals) == 0 {
		return nil, false
	}
	return vals[0], true
}

// Owners returns the owning-context tags of the element.
func (e *StoreElement) Owners() []string {
	var out []string
	for _, v := range e.Properties[model.PropOwners] {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Transaction is one unit of work against the graph store. A merge pass owns
// its transaction exclusively; implementations need not be goroutine-safe.
type Transaction interface {
	// QueryVertices returns every vertex whose property f holds one of
	// fields[f], for all f at once.
	QueryVertices(ctx context.Context, fields map[string][]any) ([]*StoreElement, error)
	AddVertex(ctx context.Context, label string) (*StoreElement, error)
	// AddEdge creates label from out to in.
	AddEdge(ctx context.Context, label string, out, in int64) (*StoreElement, error)
	GetProperty(ctx context.Context, el *StoreElement, name string) ([]any, error)
	SetProperty(ctx context.Context, el *StoreElement, name string, value any, card Cardinality) error
	// IncidentEdges returns the edges in and out of a vertex, self-loops once.
	IncidentEdges(ctx context.Context, vertexID int64) ([]*StoreElement, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type GraphDriver interface {
	Begin(ctx context.Context) (Transaction, error)
	BuildIndices(ctx context.Context, dedupFields []string) error
	Close(ctx context.Context) error
}

// applyValue folds value into current according to card.
func applyValue(current []any, value any, card Cardinality) []any {
	switch card {
	case Set:
		for _, v := range current {
			if valuesEqual(v, value) {
				return current
			}
		}
		return append(append([]any(nil), current...), value)
	case List:
		return append(append([]any(nil), current...), value)
	default:
		return []any{value}
	}
}

func valuesEqual(a, b any) bool {
	as, aok := model.NormalizeScalar(a)
	bs, bok := model.NormalizeScalar(b)
	if aok && bok {
		return as == bs
	}
	return false
}

// anyValueIn reports whether one of stored equals one of wanted.
func anyValueIn(stored, wanted []any) bool {
	for _, s := range stored {
		for _, w := range wanted {
			if valuesEqual(s, w) {
				return true
			}
		}
	}
	return false
}
