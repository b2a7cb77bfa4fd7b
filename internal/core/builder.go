package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/agenthands/graphmerge/internal/core/extraction"
	"github.com/agenthands/graphmerge/internal/core/merge"
	"github.com/agenthands/graphmerge/internal/core/model"
	"github.com/agenthands/graphmerge/internal/core/validation"
	"github.com/agenthands/graphmerge/internal/driver"
	"github.com/agenthands/graphmerge/internal/logger"
)

const tracerName = "github.com/agenthands/graphmerge/internal/core"

// ErrNoBucket is returned by Build for a request without an owning context.
// Every persisted element must carry one.
var ErrNoBucket = errors.New("bucket is required")

// BuildRequest is one batch for one bucket. Records are decomposed into
// candidates first; Candidates, when set, are merged as given.
type BuildRequest struct {
	Bucket     string          `json:"bucket"`
	Principal  string          `json:"-"`
	Records    []model.Record  `json:"records,omitempty"`
	Candidates []model.Element `json:"candidates,omitempty"`
	DryRun     bool            `json:"dry_run"`
}

// Issue is one candidate rejected by validation.
type Issue struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

type GraphBuilder struct {
	Driver      driver.GraphDriver
	Extractor   *extraction.Extractor
	Coordinator *merge.Coordinator
	Validator   *validation.Validator
	// BulkLimit bounds the passes BuildBulk runs at once.
	BulkLimit     int
	DedupFields   []string
	UUIDGenerator func() string

	log    *logger.Logger
	tracer trace.Tracer
}

func NewGraphBuilder(d driver.GraphDriver, extractor *extraction.Extractor, coordinator *merge.Coordinator, dedupFields []string, log *logger.Logger) *GraphBuilder {
	if log == nil {
		log = logger.NewNop()
	}
	return &GraphBuilder{
		Driver:        d,
		Extractor:     extractor,
		Coordinator:   coordinator,
		Validator:     validation.NewValidator(dedupFields),
		BulkLimit:     1,
		DedupFields:   dedupFields,
		UUIDGenerator: func() string { return uuid.New().String() },
		log:           log,
		tracer:        otel.Tracer(tracerName),
	}
}

func (g *GraphBuilder) BuildIndices(ctx context.Context) error {
	return g.Driver.BuildIndices(ctx, g.DedupFields)
}

// Build runs one merge pass in its own transaction. The transaction commits
// unless the pass fails or the request is a dry run.
func (g *GraphBuilder) Build(ctx context.Context, req BuildRequest) (stats model.MergeStats, err error) {
	if req.Bucket == "" {
		return stats, ErrNoBucket
	}

	passID := g.UUIDGenerator()
	log := g.log.With("pass", passID, "bucket", req.Bucket)

	ctx, span := g.tracer.Start(ctx, "graphmerge.pass", trace.WithAttributes(
		attribute.String("pass.id", passID),
		attribute.String("bucket", req.Bucket),
		attribute.Bool("dry_run", req.DryRun),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	candidates, err := g.candidates(ctx, req)
	if err != nil {
		return stats, err
	}

	tx, err := g.Driver.Begin(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to begin pass: %w", err)
	}

	mctx, mspan := g.tracer.Start(ctx, "graphmerge.merge", trace.WithAttributes(attribute.Int("candidates", len(candidates))))
	err = g.Coordinator.Run(mctx, tx, candidates, merge.Options{
		Bucket:    req.Bucket,
		Principal: req.Principal,
		DryRun:    req.DryRun,
	}, &stats)
	mspan.End()

	if err != nil || req.DryRun {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			log.Warn("Rollback failed", "error", rbErr)
		}
		if err != nil {
			log.Error("Merge pass aborted", "error", err)
			return stats, fmt.Errorf("merge pass %s: %w", passID, err)
		}
		log.Info("Dry run finished", "stats", stats)
		return stats, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return stats, fmt.Errorf("merge pass %s: %w", passID, err)
	}
	log.Info("Merge pass committed", "stats", stats)
	return stats, nil
}

// BuildBulk runs one pass per request, at most BulkLimit at a time, and sums
// the stats of every pass that ran. The first failure cancels passes not yet
// started and is returned.
func (g *GraphBuilder) BuildBulk(ctx context.Context, reqs []BuildRequest) (model.MergeStats, error) {
	results := make([]model.MergeStats, len(reqs))

	eg, ctx := errgroup.WithContext(ctx)
	limit := g.BulkLimit
	if limit < 1 {
		limit = 1
	}
	eg.SetLimit(limit)

	for i, req := range reqs {
		i, req := i, req
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			stats, err := g.Build(ctx, req)
			results[i] = stats
			return err
		})
	}
	err := eg.Wait()

	var total model.MergeStats
	for _, s := range results {
		total.Add(s)
	}
	return total, err
}

// Validate decomposes records and reports every candidate the merge would
// reject for its shape.
func (g *GraphBuilder) Validate(ctx context.Context, req BuildRequest) ([]Issue, error) {
	candidates, err := g.candidates(ctx, req)
	if err != nil {
		return nil, err
	}
	issues := []Issue{}
	for i, c := range candidates {
		if _, err := g.Validator.ValidateUser(c); err != nil {
			issues = append(issues, Issue{Index: i, Error: err.Error()})
		}
	}
	return issues, nil
}

func (g *GraphBuilder) candidates(ctx context.Context, req BuildRequest) ([]model.Element, error) {
	if len(req.Records) == 0 {
		return req.Candidates, nil
	}
	if g.Extractor == nil {
		return nil, errors.New("records given but no decomposition policy configured")
	}

	ctx, span := g.tracer.Start(ctx, "graphmerge.extract", trace.WithAttributes(attribute.Int("records", len(req.Records))))
	defer span.End()

	candidates, err := g.Extractor.Extract(ctx, req.Records)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return append(candidates, req.Candidates...), nil
}
