package matching

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/agenthands/graphmerge/internal/auth"
	"github.com/agenthands/graphmerge/internal/core/model"
	"github.com/agenthands/graphmerge/internal/driver"
	"github.com/agenthands/graphmerge/internal/logger"
)

// Options scope one lookup to the acting principal. DryRun marks a
// non-production pass: the store is not queried and no match is reported.
type Options struct {
	Principal string
	DryRun    bool
}

// Resolver finds the persisted vertices already carrying a set of keys.
type Resolver struct {
	DedupFields []string
	Auth        auth.Evaluator
	log         *logger.Logger
}

func NewResolver(dedupFields []string, ev auth.Evaluator, log *logger.Logger) *Resolver {
	if ev == nil {
		ev = auth.AllowAll{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Resolver{DedupFields: dedupFields, Auth: ev, log: log}
}

// FindMatches returns the visible stored vertices for each requested key,
// ordered by store id. Keys with no match are absent from the result.
//
// The lookup is two-phase. Keys sharing a field layout are folded into one
// query of the form "f1 IN (...) AND f2 IN (...)", which loses the pairing of
// values within a key and so returns a superset. Each result then has its
// key rebuilt from its stored values and is kept only if that key was asked
// for.
func (r *Resolver) FindMatches(ctx context.Context, tx driver.Transaction, keys map[model.VertexKey]struct{}, opts Options) (map[model.VertexKey][]*driver.StoreElement, error) {
	out := make(map[model.VertexKey][]*driver.StoreElement)
	if opts.DryRun || len(keys) == 0 {
		return out, nil
	}

	ctx, span := otel.Tracer("github.com/agenthands/graphmerge/internal/core/matching").Start(ctx, "graphmerge.resolve")
	defer span.End()
	span.SetAttributes(attribute.Int("keys", len(keys)))

	seen := make(map[int64]bool)
	for _, shape := range groupByShape(keys) {
		results, err := tx.QueryVertices(ctx, shape.query())
		if err != nil {
			return nil, fmt.Errorf("failed to query existing vertices: %w", err)
		}

		for _, el := range results {
			k, ok := deriveKey(el, shape.fields)
			if !ok {
				continue
			}
			if _, wanted := keys[k]; !wanted {
				r.log.Debug("Discarding tolerant match", "id", el.ID, "key", k.String())
				continue
			}
			if !auth.Allowed(r.Auth, opts.Principal, el.Owners()) {
				r.log.Debug("Discarding unauthorized match", "id", el.ID, "principal", opts.Principal)
				continue
			}
			if seen[el.ID] {
				continue
			}
			seen[el.ID] = true
			out[k] = append(out[k], el)
		}
	}

	for k := range out {
		sort.Slice(out[k], func(i, j int) bool { return out[k][i].ID < out[k][j].ID })
	}
	return out, nil
}

// Visible reports whether the acting principal may read and write el.
func (r *Resolver) Visible(el *driver.StoreElement, opts Options) bool {
	return auth.Allowed(r.Auth, opts.Principal, el.Owners())
}

type keyShape struct {
	fields []string
	values map[string][]any
}

func (s *keyShape) query() map[string][]any {
	return s.values
}

// groupByShape collects, per distinct set of key field names, the values
// requested for each field. Shapes and values come out in a stable order.
func groupByShape(keys map[model.VertexKey]struct{}) []*keyShape {
	sorted := make([]model.VertexKey, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var shapes []*keyShape
	byName := make(map[string]*keyShape)
	dedup := make(map[string]map[any]bool)
	for _, k := range sorted {
		names := k.FieldNames()
		id := strings.Join(names, "\x00")
		shape, ok := byName[id]
		if !ok {
			shape = &keyShape{fields: names, values: make(map[string][]any, len(names))}
			byName[id] = shape
			shapes = append(shapes, shape)
		}
		for f, v := range k.Fields() {
			seenKey := id + "\x00" + f
			if dedup[seenKey] == nil {
				dedup[seenKey] = make(map[any]bool)
			}
			if dedup[seenKey][v] {
				continue
			}
			dedup[seenKey][v] = true
			shape.values[f] = append(shape.values[f], v)
		}
	}
	return shapes
}

// deriveKey rebuilds a key from the stored values of fields.
func deriveKey(el *driver.StoreElement, fields []string) (model.VertexKey, bool) {
	stored := make(map[string]any, len(fields))
	for _, f := range fields {
		v, ok := el.Value(f)
		if !ok {
			return "", false
		}
		stored[f] = v
	}
	return model.NewVertexKey(stored, fields)
}
