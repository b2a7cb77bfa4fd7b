package merge

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/agenthands/graphmerge/internal/core/model"
	"github.com/agenthands/graphmerge/internal/driver"
)

// persistVertex creates a vertex for el, or updates target in place, and
// writes the key fields so later passes can match it.
func (c *Coordinator) persistVertex(ctx context.Context, p *pass, key model.VertexKey, el model.Element, target *driver.StoreElement) (*driver.StoreElement, error) {
	v := target
	if v == nil {
		var err error
		if v, err = p.tx.AddVertex(ctx, el.Label()); err != nil {
			return nil, err
		}
	}
	if err := c.stamp(ctx, p, v); err != nil {
		return nil, err
	}

	fields := key.Fields()
	for _, f := range key.FieldNames() {
		if err := p.tx.SetProperty(ctx, v, f, fields[f], driver.Single); err != nil {
			return nil, err
		}
	}
	if err := writeProperties(ctx, p.tx, v, el.Properties()); err != nil {
		return nil, err
	}
	return v, nil
}

// persistEdge creates el between the vertices resolved for key, or updates
// target in place. Both endpoints must have resolved in this pass.
func (c *Coordinator) persistEdge(ctx context.Context, p *pass, key model.EdgeKey, el model.Element, target *driver.StoreElement) (*driver.StoreElement, error) {
	out, ok := p.vertices[key.Out]
	if !ok {
		return nil, &IdentityError{Label: el.Label(), Endpoint: "out", Key: key.Out}
	}
	in, ok := p.vertices[key.In]
	if !ok {
		return nil, &IdentityError{Label: el.Label(), Endpoint: "in", Key: key.In}
	}

	e := target
	if e == nil {
		var err error
		e, err = p.tx.AddEdge(ctx, el.Label(), out.ID, in.ID)
		if errors.Is(err, driver.ErrNotFound) {
			return nil, &IdentityError{Label: el.Label(), Endpoint: "out", Key: key.Out}
		}
		if err != nil {
			return nil, err
		}
	}
	if err := c.stamp(ctx, p, e); err != nil {
		return nil, err
	}
	if err := writeProperties(ctx, p.tx, e, el.Properties()); err != nil {
		return nil, err
	}
	return e, nil
}

// stamp tags el with the owning context and sets its timestamps. The
// creation time is written once, the modification time on every persist.
func (c *Coordinator) stamp(ctx context.Context, p *pass, el *driver.StoreElement) error {
	if p.opts.Bucket != "" {
		if err := p.tx.SetProperty(ctx, el, model.PropOwners, p.opts.Bucket, driver.Set); err != nil {
			return err
		}
	}

	now := c.now().UnixMilli()
	created, err := p.tx.GetProperty(ctx, el, model.PropCreatedAt)
	if err != nil {
		return err
	}
	if len(created) == 0 {
		if err := p.tx.SetProperty(ctx, el, model.PropCreatedAt, now, driver.Single); err != nil {
			return err
		}
	}
	return p.tx.SetProperty(ctx, el, model.PropModifiedAt, now, driver.Single)
}

// writeProperties stores user properties with single cardinality. Values of
// the form {"value": x} are stored as x; reserved names are skipped.
func writeProperties(ctx context.Context, tx driver.Transaction, el *driver.StoreElement, props map[string]any) error {
	names := make([]string, 0, len(props))
	for k := range props {
		names = append(names, k)
	}
	sort.Strings(names)

	for _, k := range names {
		if model.IsReservedProperty(k) {
			continue
		}
		v := props[k]
		if o, ok := model.AsObject(v); ok {
			if inner, ok := o[model.FieldValue]; ok {
				v = inner
			}
		}
		if v == nil {
			continue
		}
		if err := tx.SetProperty(ctx, el, k, v, driver.Single); err != nil {
			return fmt.Errorf("failed to set property %q: %w", k, err)
		}
	}
	return nil
}

// ToElement renders a stored element in candidate form so it can be handed
// to a merge policy next to the new candidates. Single values are unwrapped,
// multi-valued properties are kept as arrays.
func ToElement(s *driver.StoreElement) model.Element {
	props := make(map[string]any, len(s.Properties))
	for k, vals := range s.Properties {
		switch len(vals) {
		case 0:
		case 1:
			props[k] = vals[0]
		default:
			props[k] = append([]any(nil), vals...)
		}
	}

	el := model.Element{
		model.FieldType:       string(s.Kind),
		model.FieldLabel:      s.Label,
		model.FieldID:         s.ID,
		model.FieldProperties: props,
	}
	if s.Kind == model.KindEdge {
		el[model.FieldInV] = s.InV
		el[model.FieldOutV] = s.OutV
	}
	return el
}
