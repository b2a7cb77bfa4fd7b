package model

import (
	"encoding/json"
	"math"
)

// ElementKind is the value of an element's "type" field.
type ElementKind string

const (
	KindVertex ElementKind = "vertex"
	KindEdge   ElementKind = "edge"
)

// Field names of the candidate element document.
const (
	FieldType       = "type"
	FieldLabel      = "label"
	FieldID         = "id"
	FieldProperties = "properties"
	FieldInV        = "inV"
	FieldOutV       = "outV"
	FieldValue      = "value"
)

// Reserved property names written on every persisted element.
const (
	PropOwners     = "_owners"
	PropCreatedAt  = "_created_at"
	PropModifiedAt = "_modified_at"
	// PropLabel holds the element label on stores without native labels.
	PropLabel = "_label"
)

// IsReservedProperty reports whether name is managed by the merge core.
func IsReservedProperty(name string) bool {
	switch name {
	case PropOwners, PropCreatedAt, PropModifiedAt, PropLabel:
		return true
	}
	return false
}

// Record is one raw input object handed to a decomposition policy.
type Record map[string]any

// Element is a candidate vertex or edge in document form, as emitted by a
// decomposition or merge policy. Shape is checked by the validation package.
type Element map[string]any

// Kind returns the element kind and whether "type" held a known kind.
func (e Element) Kind() (ElementKind, bool) {
	s, ok := e[FieldType].(string)
	if !ok {
		return "", false
	}
	switch ElementKind(s) {
	case KindVertex, KindEdge:
		return ElementKind(s), true
	}
	return "", false
}

// Label returns the element label, or "" when missing or not text.
func (e Element) Label() string {
	s, _ := e[FieldLabel].(string)
	return s
}

// Properties returns the properties record, or nil when absent or malformed.
func (e Element) Properties() map[string]any {
	switch p := e[FieldProperties].(type) {
	case map[string]any:
		return p
	case Element:
		return p
	}
	return nil
}

// Clone returns a shallow copy with a copied properties record, so callers can
// rewrite endpoints or ids without touching the emitted original.
func (e Element) Clone() Element {
	out := make(Element, len(e))
	for k, v := range e {
		out[k] = v
	}
	if p := e.Properties(); p != nil {
		cp := make(map[string]any, len(p))
		for k, v := range p {
			cp[k] = v
		}
		out[FieldProperties] = cp
	}
	return out
}

// MergeRecord is one entry of the synthetic batch handed to a merge policy.
// Existing is set for elements re-serialized from the graph store.
type MergeRecord struct {
	Element  Element
	Existing bool
}

// AsID converts an integral identifier to int64. JSON decoders hand numbers
// over as float64, so a float holding a whole number within int64 range is an
// identifier too; 1.5 is not.
func AsID(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float32:
		return wholeFloat(float64(n))
	case float64:
		return wholeFloat(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

func wholeFloat(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// IsObject reports whether v is a record value.
func IsObject(v any) bool {
	switch v.(type) {
	case map[string]any, Element:
		return true
	}
	return false
}

// AsObject returns v as a plain record.
func AsObject(v any) (map[string]any, bool) {
	switch o := v.(type) {
	case map[string]any:
		return o, true
	case Element:
		return o, true
	}
	return nil, false
}
