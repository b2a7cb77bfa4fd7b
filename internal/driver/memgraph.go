package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/agenthands/graphmerge/internal/core/model"
	"github.com/agenthands/graphmerge/internal/logger"
)

type MemgraphDriver struct {
	Driver   neo4j.DriverWithContext
	Database string
	log      *logger.Logger
}

func NewMemgraphDriver(ctx context.Context, uri, username, password string, log *logger.Logger) (*MemgraphDriver, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create memgraph driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to verify memgraph connectivity: %w", err)
	}

	log.Info("Connected to Memgraph", "uri", uri)
	return &MemgraphDriver{Driver: driver, log: log.With("driver", "memgraph")}, nil
}

func (d *MemgraphDriver) Close(ctx context.Context) error {
	return d.Driver.Close(ctx)
}

func (d *MemgraphDriver) ExecuteQuery(ctx context.Context, query string, params map[string]any) (neo4j.EagerResult, error) {
	result, err := neo4j.ExecuteQuery(ctx, d.Driver, query, params, neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(d.Database))
	if err != nil {
		return neo4j.EagerResult{}, fmt.Errorf("failed to execute query: %w", err)
	}
	return *result, nil
}

func (d *MemgraphDriver) BuildIndices(ctx context.Context, dedupFields []string) error {
	queries := []string{
		"CREATE INDEX ON :" + vertexNodeLabel + ";",
		"CREATE INDEX ON :" + vertexNodeLabel + "(" + escapeName(model.PropOwners) + ");",
	}
	for _, f := range dedupFields {
		queries = append(queries, "CREATE INDEX ON :"+vertexNodeLabel+"("+escapeName(f)+");")
	}

	for _, q := range queries {
		if _, err := d.ExecuteQuery(ctx, q, nil); err != nil {
			// index may already exist
			d.log.Warn("failed to create index", "query", q, "error", err)
		}
	}
	return nil
}

func (d *MemgraphDriver) Begin(ctx context.Context) (Transaction, error) {
	session := d.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: d.Database,
	})
	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		_ = session.Close(ctx)
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return newMemgraphTx(&boltRunner{session: session, tx: tx}), nil
}

// cypherRunner runs statements inside one open transaction.
type cypherRunner interface {
	Run(ctx context.Context, query string, params map[string]any) ([]*neo4j.Record, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type boltRunner struct {
	session neo4j.SessionWithContext
	tx      neo4j.ExplicitTransaction
}

func (r *boltRunner) Run(ctx context.Context, query string, params map[string]any) ([]*neo4j.Record, error) {
	res, err := r.tx.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	return res.Collect(ctx)
}

func (r *boltRunner) Commit(ctx context.Context) error {
	defer r.session.Close(ctx)
	return r.tx.Commit(ctx)
}

func (r *boltRunner) Rollback(ctx context.Context) error {
	defer r.session.Close(ctx)
	return r.tx.Rollback(ctx)
}

type memgraphTx struct {
	runner cypherRunner
	closed bool
}

func newMemgraphTx(runner cypherRunner) *memgraphTx {
	return &memgraphTx{runner: runner}
}

func (tx *memgraphTx) run(ctx context.Context, query string, params map[string]any) ([]*neo4j.Record, error) {
	if tx.closed {
		return nil, ErrTxClosed
	}
	records, err := tx.runner.Run(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return records, nil
}

func (tx *memgraphTx) QueryVertices(ctx context.Context, fields map[string][]any) ([]*StoreElement, error) {
	names := make([]string, 0, len(fields))
	for f := range fields {
		names = append(names, f)
	}
	sort.Strings(names)

	params := make(map[string]any, len(names))
	predicates := make([]string, 0, len(names))
	for i, f := range names {
		p := fmt.Sprintf("p%d", i)
		predicates = append(predicates, fmt.Sprintf("n.%s IN $%s", escapeName(f), p))
		params[p] = fields[f]
	}
	where := "true"
	if len(predicates) > 0 {
		where = strings.Join(predicates, " AND ")
	}

	records, err := tx.run(ctx, fmt.Sprintf(QueryVerticesTemplate, where), params)
	if err != nil {
		return nil, err
	}

	out := make([]*StoreElement, 0, len(records))
	for _, rec := range records {
		id, _ := recordInt(rec, "id")
		props, _ := rec.Get("props")
		el := &StoreElement{ID: id, Kind: model.KindVertex}
		el.Label, el.Properties = decodeProperties(props)
		out = append(out, el)
	}
	return out, nil
}

func (tx *memgraphTx) AddVertex(ctx context.Context, label string) (*StoreElement, error) {
	records, err := tx.run(ctx, AddVertexQuery, map[string]any{"label": label})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("add vertex %q: no id returned", label)
	}
	id, _ := recordInt(records[0], "id")
	return &StoreElement{ID: id, Kind: model.KindVertex, Label: label, Properties: map[string][]any{}}, nil
}

func (tx *memgraphTx) AddEdge(ctx context.Context, label string, out, in int64) (*StoreElement, error) {
	query := fmt.Sprintf(AddEdgeQueryTemplate, escapeName(label))
	records, err := tx.run(ctx, query, map[string]any{"out": out, "in": in})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	id, _ := recordInt(records[0], "id")
	return &StoreElement{ID: id, Kind: model.KindEdge, Label: label, OutV: out, InV: in, Properties: map[string][]any{}}, nil
}

func (tx *memgraphTx) GetProperty(ctx context.Context, el *StoreElement, name string) ([]any, error) {
	query := GetVertexPropertiesQuery
	if el.Kind == model.KindEdge {
		query = GetEdgePropertiesQuery
	}
	records, err := tx.run(ctx, query, map[string]any{"id": el.ID})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	props, _ := records[0].Get("props")
	_, decoded := decodeProperties(props)
	return decoded[name], nil
}

func (tx *memgraphTx) SetProperty(ctx context.Context, el *StoreElement, name string, value any, card Cardinality) error {
	var stored any
	var values []any
	if card == Single {
		values = []any{value}
		stored = storableValue(value)
	} else {
		current, err := tx.GetProperty(ctx, el, name)
		if err != nil {
			return err
		}
		values = applyValue(current, value, card)
		list := make([]any, len(values))
		for i, v := range values {
			list[i] = storableValue(v)
		}
		stored = list
	}

	query := SetVertexPropertiesQuery
	if el.Kind == model.KindEdge {
		query = SetEdgePropertiesQuery
	}
	if _, err := tx.run(ctx, query, map[string]any{"id": el.ID, "props": map[string]any{name: stored}}); err != nil {
		return err
	}
	if el.Properties == nil {
		el.Properties = map[string][]any{}
	}
	el.Properties[name] = values
	return nil
}

func (tx *memgraphTx) IncidentEdges(ctx context.Context, vertexID int64) ([]*StoreElement, error) {
	records, err := tx.run(ctx, IncidentEdgesQuery, map[string]any{"id": vertexID})
	if err != nil {
		return nil, err
	}
	seen := map[int64]bool{}
	var out []*StoreElement
	for _, rec := range records {
		id, _ := recordInt(rec, "id")
		if seen[id] {
			continue
		}
		seen[id] = true
		label, _ := rec.Get("label")
		outV, _ := recordInt(rec, "out")
		inV, _ := recordInt(rec, "in")
		props, _ := rec.Get("props")
		el := &StoreElement{ID: id, Kind: model.KindEdge, OutV: outV, InV: inV}
		el.Label, _ = label.(string)
		_, el.Properties = decodeProperties(props)
		out = append(out, el)
	}
	return out, nil
}

func (tx *memgraphTx) Commit(ctx context.Context) error {
	if tx.closed {
		return ErrTxClosed
	}
	tx.closed = true
	if err := tx.runner.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (tx *memgraphTx) Rollback(ctx context.Context) error {
	if tx.closed {
		return ErrTxClosed
	}
	tx.closed = true
	return tx.runner.Rollback(ctx)
}

func recordInt(rec *neo4j.Record, key string) (int64, bool) {
	v, ok := rec.Get(key)
	if !ok {
		return 0, false
	}
	return model.AsID(v)
}

// decodeProperties splits the vertex label out of a property map and lifts
// every value into the multi-valued form. Stored lists are read as the
// values of a set or list property.
func decodeProperties(raw any) (string, map[string][]any) {
	out := map[string][]any{}
	m, ok := raw.(map[string]any)
	if !ok {
		return "", out
	}
	var label string
	for k, v := range m {
		if k == labelProperty {
			label, _ = v.(string)
			continue
		}
		if list, ok := v.([]any); ok {
			out[k] = list
		} else {
			out[k] = []any{v}
		}
	}
	return label, out
}

// storableValue flattens records into JSON text since bolt properties cannot
// hold maps.
func storableValue(v any) any {
	if model.IsObject(v) {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
	return v
}

func escapeName(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
