package extraction

import (
	"context"
	"fmt"

	"github.com/agenthands/graphmerge/internal/config"
	"github.com/agenthands/graphmerge/internal/core/model"
)

// FieldDecomposer emits, for every rule and every record holding both of the
// rule's fields, a vertex for each field value and an edge between them. The
// vertex key is {name: value, type: rule type}.
type FieldDecomposer struct {
	Rules []config.DecompositionRule
}

func NewFieldDecomposer(rules []config.DecompositionRule) *FieldDecomposer {
	return &FieldDecomposer{Rules: rules}
}

func (d *FieldDecomposer) Decompose(ctx context.Context, records []model.Record) ([]model.Element, error) {
	var out []model.Element
	for _, rec := range records {
		for _, rule := range d.Rules {
			from, ok := rec[rule.FromField]
			if !ok || from == nil {
				continue
			}
			to, ok := rec[rule.ToField]
			if !ok || to == nil {
				continue
			}

			fromKey := map[string]any{"name": from, "type": rule.FromType}
			toKey := map[string]any{"name": to, "type": rule.ToType}
			out = append(out,
				vertex(fromKey, from),
				vertex(toKey, to),
				edge(rule.EdgeName, fromKey, toKey),
			)
			if rule.Bidirectional {
				out = append(out, edge(rule.EdgeName, toKey, fromKey))
			}
		}
	}
	return out, nil
}

func vertex(key map[string]any, name any) model.Element {
	return model.Element{
		model.FieldType:  string(model.KindVertex),
		model.FieldID:    key,
		model.FieldLabel: fmt.Sprint(name),
	}
}

func edge(label string, out, in map[string]any) model.Element {
	return model.Element{
		model.FieldType:  string(model.KindEdge),
		model.FieldLabel: label,
		model.FieldOutV:  out,
		model.FieldInV:   in,
	}
}
