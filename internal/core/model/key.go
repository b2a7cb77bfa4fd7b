package model

import (
	"bytes"
	"encoding/json"
	"sort"
)

// VertexKey is the identity of a logical vertex: the canonical JSON encoding
// of its deduplication fields. Structurally equal keys are equal strings,
// whatever order their fields were supplied in.
type VertexKey string

// EdgeKey identifies an edge once both endpoint keys have been resolved.
type EdgeKey struct {
	Label string
	In    VertexKey
	Out   VertexKey
}

// NewVertexKey builds a key from the dedup fields present in fields. It fails
// when no dedup field is present or when a present value is not a scalar.
func NewVertexKey(fields map[string]any, dedupFields []string) (VertexKey, bool) {
	out := make(map[string]any, len(dedupFields))
	for _, f := range dedupFields {
		v, ok := fields[f]
		if !ok {
			continue
		}
		s, ok := NormalizeScalar(v)
		if !ok {
			return "", false
		}
		out[f] = s
	}
	if len(out) == 0 {
		return "", false
	}
	return encodeKey(out)
}

// KeyFromValue converts the value of an "id", "inV" or "outV" field into a
// key. A bare scalar becomes a single-field key on the first dedup field.
func KeyFromValue(v any, dedupFields []string) (VertexKey, bool) {
	if v == nil || len(dedupFields) == 0 {
		return "", false
	}
	if o, ok := AsObject(v); ok {
		return NewVertexKey(o, dedupFields)
	}
	s, ok := NormalizeScalar(v)
	if !ok {
		return "", false
	}
	return encodeKey(map[string]any{dedupFields[0]: s})
}

// Fields decodes the key back into typed scalar values.
func (k VertexKey) Fields() map[string]any {
	out := map[string]any{}
	if k == "" {
		return out
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(k)))
	dec.UseNumber()
	raw := map[string]any{}
	if err := dec.Decode(&raw); err != nil {
		return out
	}
	for f, v := range raw {
		if s, ok := NormalizeScalar(v); ok {
			out[f] = s
		}
	}
	return out
}

// FieldNames returns the key's field names in sorted order.
func (k VertexKey) FieldNames() []string {
	fields := k.Fields()
	names := make([]string, 0, len(fields))
	for f := range fields {
		names = append(names, f)
	}
	sort.Strings(names)
	return names
}

func (k VertexKey) String() string { return string(k) }

// NormalizeScalar maps a scalar onto the value types used for matching:
// string, bool, int64 or float64. Records, arrays and nil are not scalars.
func NormalizeScalar(v any) (any, bool) {
	switch s := v.(type) {
	case string, bool, int64, float64:
		return s, true
	case float32:
		return float64(s), true
	case json.Number:
		if i, err := s.Int64(); err == nil {
			return i, true
		}
		f, err := s.Float64()
		if err != nil {
			return nil, false
		}
		return f, true
	}
	if id, ok := AsID(v); ok {
		return id, true
	}
	return nil, false
}

func encodeKey(fields map[string]any) (VertexKey, bool) {
	// encoding/json writes map keys in sorted order
	b, err := json.Marshal(fields)
	if err != nil {
		return "", false
	}
	return VertexKey(b), true
}

func (k EdgeKey) String() string {
	return k.Label + ":" + string(k.Out) + "->" + string(k.In)
}
