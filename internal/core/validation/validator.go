package validation

import (
	"fmt"

	"github.com/agenthands/graphmerge/internal/core/model"
)

// Reason names why a field failed validation.
type Reason string

const (
	ReasonMissing            Reason = "missing"
	ReasonNotText            Reason = "not_text"
	ReasonNotObject          Reason = "not_object"
	ReasonMissingKeySubfield Reason = "missing_key_subfield"
	ReasonNotEdgeOrVertex    Reason = "not_edge_or_vertex"
)

// ShapeError reports a malformed candidate element. It is recoverable: the
// element is dropped and counted, the pass carries on.
type ShapeError struct {
	Field  string
	Reason Reason
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("invalid field '%s': %s", e.Field, e.Reason)
}

func shapeErr(field string, reason Reason) error {
	return &ShapeError{Field: field, Reason: reason}
}

type Validator struct {
	DedupFields []string
}

func NewValidator(dedupFields []string) *Validator {
	return &Validator{DedupFields: dedupFields}
}

// ValidateMerged checks an element chosen by a merge policy: type is vertex or
// edge, label is text, properties (optional) is a record. Identity fields are
// not checked since they were settled before the policy ran.
func (v *Validator) ValidateMerged(el model.Element) (model.Element, error) {
	if el == nil {
		return nil, shapeErr(model.FieldType, ReasonMissing)
	}

	t, ok := el[model.FieldType]
	if !ok || t == nil {
		return nil, shapeErr(model.FieldType, ReasonMissing)
	}
	ts, ok := t.(string)
	if !ok {
		return nil, shapeErr(model.FieldType, ReasonNotText)
	}
	if model.ElementKind(ts) != model.KindVertex && model.ElementKind(ts) != model.KindEdge {
		return nil, shapeErr(model.FieldType, ReasonNotEdgeOrVertex)
	}

	l, ok := el[model.FieldLabel]
	if !ok || l == nil {
		return nil, shapeErr(model.FieldLabel, ReasonMissing)
	}
	ls, ok := l.(string)
	if !ok {
		return nil, shapeErr(model.FieldLabel, ReasonNotText)
	}
	if ls == "" {
		return nil, shapeErr(model.FieldLabel, ReasonMissing)
	}

	if p, ok := el[model.FieldProperties]; ok && p != nil {
		if !model.IsObject(p) {
			return nil, shapeErr(model.FieldProperties, ReasonNotObject)
		}
	}

	return el, nil
}

// ValidateUser runs ValidateMerged, then checks identity: vertices need an id,
// edges need inV and outV, each an integral store id or a key record holding
// every dedup field.
func (v *Validator) ValidateUser(el model.Element) (model.Element, error) {
	if _, err := v.ValidateMerged(el); err != nil {
		return nil, err
	}

	kind, _ := el.Kind()
	fields := []string{model.FieldID}
	if kind == model.KindEdge {
		fields = []string{model.FieldInV, model.FieldOutV}
	}

	for _, f := range fields {
		if err := v.checkIdentity(f, el[f]); err != nil {
			return nil, err
		}
	}
	return el, nil
}

func (v *Validator) checkIdentity(field string, val any) error {
	if val == nil {
		return shapeErr(field, ReasonMissing)
	}
	if _, ok := model.AsID(val); ok {
		return nil
	}
	key, ok := model.AsObject(val)
	if !ok {
		return shapeErr(field, ReasonNotObject)
	}
	for _, f := range v.DedupFields {
		if _, ok := key[f]; !ok {
			return shapeErr(field, ReasonMissingKeySubfield)
		}
	}
	return nil
}
