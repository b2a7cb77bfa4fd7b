package driver

import (
	"bytes"
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/agenthands/graphmerge/internal/core/model"
)

//go:embed schema.sql
var schemaSQL string

const currentSchemaVersion = 1

// SQLiteDriver stores the graph in two tables: elements and multi-valued
// properties. The pool holds a single connection, so transactions are
// serialized and never hit SQLITE_BUSY.
type SQLiteDriver struct {
	db *sql.DB
}

// OpenSQLite creates or opens the database at path and applies the schema.
// It is idempotent.
func OpenSQLite(path string) (*SQLiteDriver, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set schema version: %w", err)
	}
	return &SQLiteDriver{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func (d *SQLiteDriver) Close(ctx context.Context) error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// BuildIndices adds a partial index on the property values of each dedup
// field.
func (d *SQLiteDriver) BuildIndices(ctx context.Context, dedupFields []string) error {
	for i, f := range dedupFields {
		stmt := fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS idx_dedup_%d ON properties(value, element_id) WHERE name = '%s'",
			i, strings.ReplaceAll(f, "'", "''"))
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index for %q: %w", f, err)
		}
	}
	return nil
}

func (d *SQLiteDriver) Begin(ctx context.Context) (Transaction, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &sqliteTx{tx: tx}, nil
}

type sqliteTx struct {
	tx     *sql.Tx
	closed bool
}

func (t *sqliteTx) QueryVertices(ctx context.Context, fields map[string][]any) ([]*StoreElement, error) {
	if t.closed {
		return nil, ErrTxClosed
	}
	names := make([]string, 0, len(fields))
	for f := range fields {
		names = append(names, f)
	}
	sort.Strings(names)

	var sb strings.Builder
	args := []any{}
	sb.WriteString("SELECT e.id, e.label FROM elements e WHERE e.kind = 'vertex'")
	for _, f := range names {
		values := fields[f]
		if len(values) == 0 {
			return nil, nil
		}
		encoded := make([]string, 0, len(values))
		for _, v := range values {
			enc, err := encodeValue(v)
			if err != nil {
				return nil, err
			}
			encoded = append(encoded, enc)
		}
		list, err := jsonList(encoded)
		if err != nil {
			return nil, err
		}
		sb.WriteString(" AND EXISTS (SELECT 1 FROM properties p WHERE p.element_id = e.id AND p.name = ?" +
			" AND p.value IN (SELECT value FROM json_each(?)))")
		args = append(args, f, list)
	}
	sb.WriteString(" ORDER BY e.id")

	rows, err := t.tx.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vertices: %w", err)
	}
	var out []*StoreElement
	for rows.Next() {
		el := &StoreElement{Kind: model.KindVertex, Properties: map[string][]any{}}
		if err := rows.Scan(&el.ID, &el.Label); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan vertex: %w", err)
		}
		out = append(out, el)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if err := t.loadProperties(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *sqliteTx) loadProperties(ctx context.Context, els []*StoreElement) error {
	if len(els) == 0 {
		return nil
	}
	byID := make(map[int64]*StoreElement, len(els))
	ids := make([]int64, 0, len(els))
	for _, el := range els {
		byID[el.ID] = el
		ids = append(ids, el.ID)
	}
	list, err := jsonList(ids)
	if err != nil {
		return err
	}

	rows, err := t.tx.QueryContext(ctx, "SELECT element_id, name, value FROM properties"+
		" WHERE element_id IN (SELECT value FROM json_each(?)) ORDER BY element_id, name, seq", list)
	if err != nil {
		return fmt.Errorf("failed to load properties: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var name, raw string
		if err := rows.Scan(&id, &name, &raw); err != nil {
			return fmt.Errorf("failed to scan property: %w", err)
		}
		v, err := decodeValue(raw)
		if err != nil {
			return fmt.Errorf("failed to decode property %q: %w", name, err)
		}
		el := byID[id]
		if el.Properties == nil {
			el.Properties = map[string][]any{}
		}
		el.Properties[name] = append(el.Properties[name], v)
	}
	return rows.Err()
}

func (t *sqliteTx) insertElement(ctx context.Context, kind model.ElementKind, label string, out, in any) (int64, error) {
	res, err := t.tx.ExecContext(ctx,
		"INSERT INTO elements (kind, label, out_v, in_v) VALUES (?, ?, ?, ?)",
		string(kind), label, out, in)
	if err != nil {
		return 0, fmt.Errorf("failed to insert %s: %w", kind, err)
	}
	return res.LastInsertId()
}

func (t *sqliteTx) AddVertex(ctx context.Context, label string) (*StoreElement, error) {
	if t.closed {
		return nil, ErrTxClosed
	}
	id, err := t.insertElement(ctx, model.KindVertex, label, nil, nil)
	if err != nil {
		return nil, err
	}
	return &StoreElement{ID: id, Kind: model.KindVertex, Label: label, Properties: map[string][]any{}}, nil
}

func (t *sqliteTx) AddEdge(ctx context.Context, label string, out, in int64) (*StoreElement, error) {
	if t.closed {
		return nil, ErrTxClosed
	}
	var n int
	err := t.tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM elements WHERE kind = 'vertex' AND id IN (?, ?)", out, in).Scan(&n)
	if err != nil {
		return nil, fmt.Errorf("failed to check endpoints: %w", err)
	}
	want := 2
	if out == in {
		want = 1
	}
	if n != want {
		return nil, ErrNotFound
	}

	id, err := t.insertElement(ctx, model.KindEdge, label, out, in)
	if err != nil {
		return nil, err
	}
	return &StoreElement{ID: id, Kind: model.KindEdge, Label: label, OutV: out, InV: in, Properties: map[string][]any{}}, nil
}

func (t *sqliteTx) GetProperty(ctx context.Context, el *StoreElement, name string) ([]any, error) {
	if t.closed {
		return nil, ErrTxClosed
	}
	rows, err := t.tx.QueryContext(ctx,
		"SELECT value FROM properties WHERE element_id = ? AND name = ? ORDER BY seq", el.ID, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get property: %w", err)
	}
	defer rows.Close()
	var out []any
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		v, err := decodeValue(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (t *sqliteTx) SetProperty(ctx context.Context, el *StoreElement, name string, value any, card Cardinality) error {
	if t.closed {
		return ErrTxClosed
	}
	current, err := t.GetProperty(ctx, el, name)
	if err != nil {
		return err
	}
	next := applyValue(current, value, card)

	if card == Single {
		if _, err := t.tx.ExecContext(ctx,
			"DELETE FROM properties WHERE element_id = ? AND name = ?", el.ID, name); err != nil {
			return fmt.Errorf("failed to clear property: %w", err)
		}
		current = nil
	}
	if len(next) > len(current) {
		enc, err := encodeValue(value)
		if err != nil {
			return err
		}
		if _, err := t.tx.ExecContext(ctx,
			"INSERT INTO properties (element_id, name, seq, value) VALUES (?, ?, ?, ?)",
			el.ID, name, len(current), enc); err != nil {
			return fmt.Errorf("failed to set property: %w", err)
		}
	}

	if el.Properties == nil {
		el.Properties = map[string][]any{}
	}
	el.Properties[name] = next
	return nil
}

func (t *sqliteTx) IncidentEdges(ctx context.Context, vertexID int64) ([]*StoreElement, error) {
	if t.closed {
		return nil, ErrTxClosed
	}
	rows, err := t.tx.QueryContext(ctx,
		"SELECT id, label, out_v, in_v FROM elements WHERE kind = 'edge' AND (out_v = ? OR in_v = ?) ORDER BY id",
		vertexID, vertexID)
	if err != nil {
		return nil, fmt.Errorf("failed to query incident edges: %w", err)
	}
	var out []*StoreElement
	for rows.Next() {
		el := &StoreElement{Kind: model.KindEdge, Properties: map[string][]any{}}
		if err := rows.Scan(&el.ID, &el.Label, &el.OutV, &el.InV); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		out = append(out, el)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if err := t.loadProperties(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *sqliteTx) Commit(ctx context.Context) error {
	if t.closed {
		return ErrTxClosed
	}
	t.closed = true
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (t *sqliteTx) Rollback(ctx context.Context) error {
	if t.closed {
		return ErrTxClosed
	}
	t.closed = true
	return t.tx.Rollback()
}

// encodeValue writes scalars in normalized form so that equal values of
// different Go integer types share one encoding.
// jsonList binds a whole IN list as one JSON array parameter, so a lookup
// never runs into SQLite's host parameter limit however many keys it holds.
func jsonList[T any](vals []T) (string, error) {
	b, err := json.Marshal(vals)
	if err != nil {
		return "", fmt.Errorf("failed to encode lookup list: %w", err)
	}
	return string(b), nil
}

func encodeValue(v any) (string, error) {
	if s, ok := model.NormalizeScalar(v); ok {
		v = s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode value: %w", err)
	}
	return string(b), nil
}

func decodeValue(raw string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if s, ok := model.NormalizeScalar(v); ok {
		return s, nil
	}
	return v, nil
}
