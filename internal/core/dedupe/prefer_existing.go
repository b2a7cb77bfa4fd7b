package dedupe

import (
	"context"

	"github.com/agenthands/graphmerge/internal/core/model"
)

// PreferExistingPolicy keeps the oldest stored element (lowest id) when there
// is one, otherwise the first new candidate, and folds the properties of every
// new candidate into it in batch order.
type PreferExistingPolicy struct{}

func (PreferExistingPolicy) Merge(ctx context.Context, kind model.ElementKind, key string, batch []model.MergeRecord) ([]model.Element, error) {
	base := oldestExisting(batch)
	if base == nil {
		for _, r := range batch {
			if !r.Existing {
				base = r.Element
				break
			}
		}
	}
	if base == nil {
		return nil, nil
	}
	return []model.Element{overlay(base, batch)}, nil
}

func oldestExisting(batch []model.MergeRecord) model.Element {
	var best model.Element
	var bestID int64
	for _, r := range batch {
		if !r.Existing {
			continue
		}
		id, ok := model.AsID(r.Element[model.FieldID])
		if !ok {
			continue
		}
		if best == nil || id < bestID {
			best, bestID = r.Element, id
		}
	}
	return best
}

// overlay copies base and merges into it the properties of the new records.
func overlay(base model.Element, batch []model.MergeRecord) model.Element {
	winner := base.Clone()
	props := winner.Properties()
	if props == nil {
		props = map[string]any{}
	}
	for _, r := range batch {
		if r.Existing {
			continue
		}
		for k, v := range r.Element.Properties() {
			if model.IsReservedProperty(k) {
				continue
			}
			props[k] = v
		}
	}
	if len(props) > 0 {
		winner[model.FieldProperties] = props
	}
	return winner
}
