package driver

import (
	"context"
	"sort"
	"sync"

	"github.com/agenthands/graphmerge/internal/core/model"
)

// MemoryDriver keeps the graph in process memory. Transactions are
// serialized: Begin blocks until the previous transaction commits or rolls
// back, and a rollback restores the state captured at Begin.
type MemoryDriver struct {
	mu    sync.Mutex
	graph *memGraph
}

type memGraph struct {
	nextID   int64
	elements map[int64]*StoreElement
}

func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{graph: &memGraph{nextID: 1, elements: map[int64]*StoreElement{}}}
}

func (d *MemoryDriver) Begin(ctx context.Context) (Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	return &memoryTx{driver: d, snapshot: d.graph.clone(), graph: d.graph}, nil
}

func (d *MemoryDriver) BuildIndices(ctx context.Context, dedupFields []string) error {
	return nil
}

func (d *MemoryDriver) Close(ctx context.Context) error {
	return nil
}

// Count returns the number of stored elements of kind.
func (d *MemoryDriver) Count(kind model.ElementKind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, el := range d.graph.elements {
		if el.Kind == kind {
			n++
		}
	}
	return n
}

// Elements returns copies of the stored elements of kind ordered by id.
func (d *MemoryDriver) Elements(kind model.ElementKind) []*StoreElement {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*StoreElement
	for _, el := range d.graph.elements {
		if el.Kind == kind {
			out = append(out, cloneElement(el))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (g *memGraph) clone() *memGraph {
	out := &memGraph{nextID: g.nextID, elements: make(map[int64]*StoreElement, len(g.elements))}
	for id, el := range g.elements {
		out.elements[id] = cloneElement(el)
	}
	return out
}

func cloneElement(el *StoreElement) *StoreElement {
	cp := *el
	cp.Properties = make(map[string][]any, len(el.Properties))
	for k, v := range el.Properties {
		cp.Properties[k] = append([]any(nil), v...)
	}
	return &cp
}

type memoryTx struct {
	driver   *MemoryDriver
	snapshot *memGraph
	graph    *memGraph
	closed   bool
}

func (tx *memoryTx) QueryVertices(ctx context.Context, fields map[string][]any) ([]*StoreElement, error) {
	if tx.closed {
		return nil, ErrTxClosed
	}
	var out []*StoreElement
	for _, el := range tx.graph.elements {
		if el.Kind != model.KindVertex {
			continue
		}
		match := true
		for f, wanted := range fields {
			if !anyValueIn(el.Properties[f], wanted) {
				match = false
				break
			}
		}
		if match {
			out = append(out, cloneElement(el))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tx *memoryTx) add(el *StoreElement) *StoreElement {
	el.ID = tx.graph.nextID
	tx.graph.nextID++
	el.Properties = map[string][]any{}
	tx.graph.elements[el.ID] = el
	return cloneElement(el)
}

func (tx *memoryTx) AddVertex(ctx context.Context, label string) (*StoreElement, error) {
	if tx.closed {
		return nil, ErrTxClosed
	}
	return tx.add(&StoreElement{Kind: model.KindVertex, Label: label}), nil
}

func (tx *memoryTx) AddEdge(ctx context.Context, label string, out, in int64) (*StoreElement, error) {
	if tx.closed {
		return nil, ErrTxClosed
	}
	for _, id := range []int64{out, in} {
		if v, ok := tx.graph.elements[id]; !ok || v.Kind != model.KindVertex {
			return nil, ErrNotFound
		}
	}
	return tx.add(&StoreElement{Kind: model.KindEdge, Label: label, OutV: out, InV: in}), nil
}

func (tx *memoryTx) GetProperty(ctx context.Context, el *StoreElement, name string) ([]any, error) {
	if tx.closed {
		return nil, ErrTxClosed
	}
	stored, ok := tx.graph.elements[el.ID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]any(nil), stored.Properties[name]...), nil
}

func (tx *memoryTx) SetProperty(ctx context.Context, el *StoreElement, name string, value any, card Cardinality) error {
	if tx.closed {
		return ErrTxClosed
	}
	stored, ok := tx.graph.elements[el.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Properties[name] = applyValue(stored.Properties[name], value, card)
	if el.Properties == nil {
		el.Properties = map[string][]any{}
	}
	el.Properties[name] = append([]any(nil), stored.Properties[name]...)
	return nil
}

func (tx *memoryTx) IncidentEdges(ctx context.Context, vertexID int64) ([]*StoreElement, error) {
	if tx.closed {
		return nil, ErrTxClosed
	}
	var out []*StoreElement
	for _, el := range tx.graph.elements {
		if el.Kind == model.KindEdge && (el.InV == vertexID || el.OutV == vertexID) {
			out = append(out, cloneElement(el))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tx *memoryTx) Commit(ctx context.Context) error {
	if tx.closed {
		return ErrTxClosed
	}
	tx.closed = true
	tx.driver.mu.Unlock()
	return nil
}

func (tx *memoryTx) Rollback(ctx context.Context) error {
	if tx.closed {
		return ErrTxClosed
	}
	tx.closed = true
	tx.driver.graph = tx.snapshot
	tx.driver.mu.Unlock()
	return nil
}
