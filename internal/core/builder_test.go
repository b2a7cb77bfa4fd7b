package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/graphmerge/internal/config"
	"github.com/agenthands/graphmerge/internal/core/model"
	"github.com/agenthands/graphmerge/internal/driver"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Decomposition.Elements = []config.DecompositionRule{{
		EdgeName:  "dns-connection",
		FromField: "ip",
		FromType:  "ip",
		ToField:   "host",
		ToType:    "domain",
	}}
	return cfg
}

func newTestBuilder(t *testing.T, d driver.GraphDriver) *GraphBuilder {
	t.Helper()
	b, err := NewFromConfig(testConfig(), d, nil, nil)
	require.NoError(t, err)
	n := 0
	b.UUIDGenerator = func() string {
		n++
		return fmt.Sprintf("pass-%d", n)
	}
	return b
}

func TestBuild_RecordsToGraph(t *testing.T) {
	d := driver.NewMemoryDriver()
	b := newTestBuilder(t, d)

	stats, err := b.Build(context.Background(), BuildRequest{
		Bucket: "/acme/dns",
		Records: []model.Record{
			{"ip": "1.1.1.1", "host": "one.one"},
			{"ip": "1.1.1.1", "host": "cloudflare-dns.com"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(3), stats.VerticesCreated)
	assert.Equal(t, int64(2), stats.EdgesCreated)
	assert.Equal(t, 3, d.Count(model.KindVertex))
	assert.Equal(t, 2, d.Count(model.KindEdge))
}

func TestBuild_RequiresBucket(t *testing.T) {
	d := driver.NewMemoryDriver()
	b := newTestBuilder(t, d)

	_, err := b.Build(context.Background(), BuildRequest{
		Records: []model.Record{{"ip": "1.1.1.1", "host": "one.one"}},
	})
	assert.ErrorIs(t, err, ErrNoBucket)
	assert.Equal(t, 0, d.Count(model.KindVertex))
}

func TestBuild_EveryElementIsOwned(t *testing.T) {
	d := driver.NewMemoryDriver()
	b := newTestBuilder(t, d)

	_, err := b.Build(context.Background(), BuildRequest{
		Bucket:  "/acme/dns",
		Records: []model.Record{{"ip": "1.1.1.1", "host": "one.one"}},
	})
	require.NoError(t, err)
	for _, kind := range []model.ElementKind{model.KindVertex, model.KindEdge} {
		for _, el := range d.Elements(kind) {
			assert.Equal(t, []string{"/acme/dns"}, el.Owners(), "element %d", el.ID)
		}
	}
}

func TestBuild_IntegralIDFromJSON(t *testing.T) {
	d := driver.NewMemoryDriver()
	b := newTestBuilder(t, d)

	var candidates []model.Element
	require.NoError(t, json.Unmarshal([]byte(`[{"type":"vertex","id":5,"label":"A"}]`), &candidates))

	issues, err := b.Validate(context.Background(), BuildRequest{Candidates: candidates})
	require.NoError(t, err)
	assert.Empty(t, issues)

	stats, err := b.Build(context.Background(), BuildRequest{Bucket: "/b", Candidates: candidates})
	require.NoError(t, err)
	assert.Equal(t, model.MergeStats{VerticesCreated: 1}, stats)
	assert.Equal(t, 1, d.Count(model.KindVertex))
}

func TestBuild_SecondBatchUpdates(t *testing.T) {
	d := driver.NewMemoryDriver()
	b := newTestBuilder(t, d)
	req := BuildRequest{Bucket: "/b", Records: []model.Record{{"ip": "1.1.1.1", "host": "one.one"}}}

	_, err := b.Build(context.Background(), req)
	require.NoError(t, err)
	stats, err := b.Build(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, model.MergeStats{VerticesUpdated: 2, EdgesUpdated: 1, EdgeMatchesFound: 1}, stats)
	assert.Equal(t, 2, d.Count(model.KindVertex))
	assert.Equal(t, 1, d.Count(model.KindEdge))
}

func TestBuild_DryRunLeavesStoreUntouched(t *testing.T) {
	d := driver.NewMemoryDriver()
	b := newTestBuilder(t, d)

	stats, err := b.Build(context.Background(), BuildRequest{
		Bucket:  "/b",
		DryRun:  true,
		Records: []model.Record{{"ip": "1.1.1.1", "host": "one.one"}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.VerticesCreated)
	assert.Equal(t, 0, d.Count(model.KindVertex))
}

func TestBuild_CandidatesPassThrough(t *testing.T) {
	d := driver.NewMemoryDriver()
	b := newTestBuilder(t, d)

	stats, err := b.Build(context.Background(), BuildRequest{
		Bucket: "/b",
		Candidates: []model.Element{
			{"type": "vertex", "label": "alice", "id": map[string]any{"name": "alice", "type": "person"}},
			{"type": "vertex", "id": map[string]any{"name": "bob", "type": "person"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.VerticesCreated)
	assert.Equal(t, int64(1), stats.VertexErrors)
}

type failingDriver struct {
	*driver.MemoryDriver
	rolledBack atomic.Int32
}

type failingTx struct {
	driver.Transaction
	d *failingDriver
}

func (f *failingDriver) Begin(ctx context.Context) (driver.Transaction, error) {
	tx, err := f.MemoryDriver.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &failingTx{Transaction: tx, d: f}, nil
}

func (t *failingTx) AddVertex(ctx context.Context, label string) (*driver.StoreElement, error) {
	return nil, errors.New("disk full")
}

func (t *failingTx) Rollback(ctx context.Context) error {
	t.d.rolledBack.Add(1)
	return t.Transaction.Rollback(ctx)
}

func TestBuild_StoreFailureRollsBack(t *testing.T) {
	d := &failingDriver{MemoryDriver: driver.NewMemoryDriver()}
	b := newTestBuilder(t, d)

	_, err := b.Build(context.Background(), BuildRequest{Bucket: "/b", Records: []model.Record{{"ip": "1", "host": "h"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Contains(t, err.Error(), "pass-1")
	assert.Equal(t, int32(1), d.rolledBack.Load())
	assert.Equal(t, 0, d.Count(model.KindVertex))
}

func TestBuildBulk_AggregatesStats(t *testing.T) {
	d := driver.NewMemoryDriver()
	b, err := NewFromConfig(testConfig(), d, nil, nil)
	require.NoError(t, err)
	b.BulkLimit = 3

	var reqs []BuildRequest
	for i := 0; i < 6; i++ {
		reqs = append(reqs, BuildRequest{
			Bucket:  fmt.Sprintf("/bucket/%d", i),
			Records: []model.Record{{"ip": fmt.Sprintf("10.0.0.%d", i), "host": "shared.example"}},
		})
	}

	stats, err := b.BuildBulk(context.Background(), reqs)
	require.NoError(t, err)

	// the shared host is created by the first pass and updated by the rest
	assert.Equal(t, int64(7), stats.VerticesCreated)
	assert.Equal(t, int64(5), stats.VerticesUpdated)
	assert.Equal(t, int64(6), stats.EdgesCreated)
	assert.Equal(t, 7, d.Count(model.KindVertex))
}

func TestBuildBulk_ReturnsFirstError(t *testing.T) {
	d := &failingDriver{MemoryDriver: driver.NewMemoryDriver()}
	b, err := NewFromConfig(testConfig(), d, nil, nil)
	require.NoError(t, err)

	_, err = b.BuildBulk(context.Background(), []BuildRequest{
		{Bucket: "/a", Records: []model.Record{{"ip": "1", "host": "h"}}},
		{Bucket: "/b", Records: []model.Record{{"ip": "2", "host": "h"}}},
	})
	assert.ErrorContains(t, err, "disk full")
}

func TestValidate(t *testing.T) {
	b := newTestBuilder(t, driver.NewMemoryDriver())

	issues, err := b.Validate(context.Background(), BuildRequest{
		Records: []model.Record{{"ip": "1.1.1.1", "host": "one.one"}},
		Candidates: []model.Element{
			{"type": "vertex", "label": "x", "id": map[string]any{"name": "x"}},
		},
	})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, 3, issues[0].Index)
}

func TestNewFromConfig_RejectsUnknownPolicies(t *testing.T) {
	cfg := testConfig()
	cfg.Merge.Policy = "coin_flip"
	_, err := NewFromConfig(cfg, driver.NewMemoryDriver(), nil, nil)
	assert.ErrorContains(t, err, "unknown merge policy")

	cfg = testConfig()
	cfg.Decomposition.Policy = "llm"
	_, err = NewFromConfig(cfg, driver.NewMemoryDriver(), nil, nil)
	assert.Error(t, err)
}
