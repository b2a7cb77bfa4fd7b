package merge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agenthands/graphmerge/internal/core/dedupe"
	"github.com/agenthands/graphmerge/internal/core/grouping"
	"github.com/agenthands/graphmerge/internal/core/matching"
	"github.com/agenthands/graphmerge/internal/core/model"
	"github.com/agenthands/graphmerge/internal/core/validation"
	"github.com/agenthands/graphmerge/internal/driver"
	"github.com/agenthands/graphmerge/internal/logger"
)

type Config struct {
	DedupFields []string
	// FinalizeAll routes every group through the merge policy, including
	// unambiguous single candidates.
	FinalizeAll bool
}

// Options describe the context of one pass.
type Options struct {
	// Bucket is the owning-context tag written on every persisted element.
	Bucket    string
	Principal string
	DryRun    bool
}

// Coordinator resolves grouped candidates against the store and persists the
// winners. It holds no per-pass state and may be shared by concurrent passes
// on different transactions.
type Coordinator struct {
	cfg       Config
	validator *validation.Validator
	grouper   *grouping.Grouper
	resolver  *matching.Resolver
	policy    dedupe.MergePolicy
	log       *logger.Logger
	now       func() time.Time
}

func NewCoordinator(cfg Config, resolver *matching.Resolver, policy dedupe.MergePolicy, log *logger.Logger) *Coordinator {
	if policy == nil {
		policy = dedupe.PreferExistingPolicy{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Coordinator{
		cfg:       cfg,
		validator: validation.NewValidator(cfg.DedupFields),
		grouper:   grouping.NewGrouper(cfg.DedupFields),
		resolver:  resolver,
		policy:    policy,
		log:       log,
		now:       time.Now,
	}
}

// pass is the arena of one merge pass. Its maps never outlive Run.
type pass struct {
	tx    driver.Transaction
	opts  Options
	stats *model.MergeStats
	log   *logger.Logger

	// vertices maps each resolved key to the vertex chosen for it.
	vertices map[model.VertexKey]*driver.StoreElement
	// edges holds the stored edges incident to each resolved vertex.
	edges map[model.VertexKey][]*driver.StoreElement
}

// Run merges candidates into the graph through tx. Vertex groups are handled
// in order of first appearance; each edge is merged as soon as both of its
// endpoints have resolved. Shape, identity and policy failures are counted in
// stats and logged. A store failure aborts the pass and is returned; rolling
// back tx is up to the caller.
func (c *Coordinator) Run(ctx context.Context, tx driver.Transaction, candidates []model.Element, opts Options, stats *model.MergeStats) error {
	groups := c.grouper.Group(candidates)

	matches, err := c.resolver.FindMatches(ctx, tx, grouping.Keys(groups), matching.Options{
		Principal: opts.Principal,
		DryRun:    opts.DryRun,
	})
	if err != nil {
		return err
	}

	p := &pass{
		tx:       tx,
		opts:     opts,
		stats:    stats,
		log:      c.log.With("bucket", opts.Bucket),
		vertices: make(map[model.VertexKey]*driver.StoreElement),
		edges:    make(map[model.VertexKey][]*driver.StoreElement),
	}

	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.mergeGroup(ctx, p, g, matches[g.Key]); err != nil {
			return err
		}
	}

	counted := make(map[*model.EdgeDraft]bool)
	for _, g := range groups {
		for _, d := range g.Edges {
			if d.Resolved() || counted[d] {
				continue
			}
			counted[d] = true
			endpoint, key := "in", d.InKey
			if d.InResolved {
				endpoint, key = "out", d.OutKey
			}
			p.fail(model.KindEdge, d.Key().String(), &IdentityError{Label: d.Element.Label(), Endpoint: endpoint, Key: key})
		}
	}
	return nil
}

func (c *Coordinator) mergeGroup(ctx context.Context, p *pass, g *grouping.Group, existing []*driver.StoreElement) error {
	winners, err := c.resolve(ctx, p, model.KindVertex, g.Key.String(), g.Vertices, existing,
		func(el model.Element, target *driver.StoreElement) (*driver.StoreElement, error) {
			return c.persistVertex(ctx, p, g.Key, el, target)
		})
	if err != nil {
		return err
	}
	if len(winners) == 0 {
		// edges touching this key stay pending
		return nil
	}

	vertex := winners[0]
	p.vertices[g.Key] = vertex
	if len(g.Edges) == 0 {
		return nil
	}

	if !p.opts.DryRun {
		incident, err := p.tx.IncidentEdges(ctx, vertex.ID)
		if err != nil {
			return fmt.Errorf("failed to load edges of vertex %d: %w", vertex.ID, err)
		}
		p.edges[g.Key] = append(p.edges[g.Key], incident...)
	}

	for _, eg := range Rekey(g.Key, vertex.ID, g.Edges) {
		existingEdges := c.existingEdges(p, eg.Key)
		p.stats.EdgeMatchesFound += int64(len(existingEdges))

		key := eg.Key
		_, err := c.resolve(ctx, p, model.KindEdge, key.String(), eg.Edges, existingEdges,
			func(el model.Element, target *driver.StoreElement) (*driver.StoreElement, error) {
				return c.persistEdge(ctx, p, key, el, target)
			})
		if err != nil {
			return err
		}
	}
	return nil
}

// existingEdges returns the visible stored edges carrying key's label from
// its out vertex to its in vertex.
func (c *Coordinator) existingEdges(p *pass, key model.EdgeKey) []*driver.StoreElement {
	in, inOK := p.vertices[key.In]
	out, outOK := p.vertices[key.Out]
	if p.opts.DryRun || !inOK || !outOK {
		return nil
	}

	var found []*driver.StoreElement
	seen := make(map[int64]bool)
	for _, vk := range []model.VertexKey{key.In, key.Out} {
		for _, e := range p.edges[vk] {
			if seen[e.ID] || e.Label != key.Label || e.OutV != out.ID || e.InV != in.ID {
				continue
			}
			seen[e.ID] = true
			if !c.resolver.Visible(e, matching.Options{Principal: p.opts.Principal}) {
				continue
			}
			found = append(found, e)
		}
	}
	return found
}

type persistFunc func(el model.Element, target *driver.StoreElement) (*driver.StoreElement, error)

// resolve settles one group of kind. With no stored match and a single new
// candidate it persists that candidate directly; otherwise the merge policy
// picks the winners from the new candidates and the stored matches. Only store
// failures are returned.
func (c *Coordinator) resolve(ctx context.Context, p *pass, kind model.ElementKind, key string, fresh []model.Element, existing []*driver.StoreElement, persist persistFunc) ([]*driver.StoreElement, error) {
	if len(existing) == 0 && len(fresh) == 1 && !c.cfg.FinalizeAll {
		el, err := c.validator.ValidateUser(fresh[0])
		if err == nil {
			err = checkKind(el, kind)
		}
		if err != nil {
			p.fail(kind, key, err)
			return nil, nil
		}
		stored, err := persist(el, nil)
		if err != nil {
			return nil, p.recover(kind, key, err)
		}
		p.stats.Created(kind)
		return []*driver.StoreElement{stored}, nil
	}

	if len(existing) == 0 && len(fresh) == 0 {
		return nil, nil
	}

	batch := make([]model.MergeRecord, 0, len(fresh)+len(existing))
	for _, el := range fresh {
		batch = append(batch, model.MergeRecord{Element: el})
	}
	byID := make(map[int64]*driver.StoreElement, len(existing))
	for _, s := range existing {
		byID[s.ID] = s
		batch = append(batch, model.MergeRecord{Element: ToElement(s), Existing: true})
	}

	winners, err := c.policy.Merge(ctx, kind, key, batch)
	if err != nil {
		p.fail(kind, key, &PolicyError{Kind: kind, Key: key, Err: err})
		return nil, nil
	}

	var out []*driver.StoreElement
	for i, w := range winners {
		if i > 0 {
			p.stats.Emitted(kind)
		}
		el, err := c.validator.ValidateMerged(w)
		if err == nil {
			err = checkKind(el, kind)
		}
		if err != nil {
			p.fail(kind, key, err)
			continue
		}

		var target *driver.StoreElement
		if id, ok := model.AsID(el[model.FieldID]); ok {
			target = byID[id]
		}
		stored, err := persist(el, target)
		if err != nil {
			if err := p.recover(kind, key, err); err != nil {
				return out, err
			}
			continue
		}
		if target != nil {
			p.stats.Updated(kind)
		} else {
			p.stats.Created(kind)
		}
		out = append(out, stored)
	}
	return out, nil
}

func checkKind(el model.Element, kind model.ElementKind) error {
	if k, _ := el.Kind(); k != kind {
		return &validation.ShapeError{Field: model.FieldType, Reason: validation.ReasonNotEdgeOrVertex}
	}
	return nil
}

// recover counts identity failures and passes store failures through.
func (p *pass) recover(kind model.ElementKind, key string, err error) error {
	var idErr *IdentityError
	if errors.As(err, &idErr) {
		p.fail(kind, key, err)
		return nil
	}
	return fmt.Errorf("failed to persist %s %s: %w", kind, key, err)
}

func (p *pass) fail(kind model.ElementKind, key string, err error) {
	p.stats.Failed(kind)

	var shape *validation.ShapeError
	if errors.As(err, &shape) {
		p.log.Debug("Dropped invalid element", "kind", kind, "key", key, "field", shape.Field, "reason", shape.Reason)
		return
	}
	p.log.Debug("Dropped element", "kind", kind, "key", key, "error", err)
}
