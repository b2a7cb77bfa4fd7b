//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/graphmerge/internal/config"
	"github.com/agenthands/graphmerge/internal/core"
	"github.com/agenthands/graphmerge/internal/core/model"
	"github.com/agenthands/graphmerge/internal/driver"
	"github.com/agenthands/graphmerge/internal/logger"
)

func connect(t *testing.T) (*config.Config, driver.GraphDriver) {
	t.Helper()
	_ = godotenv.Load("../../.env")

	uri := os.Getenv("MEMGRAPH_URI")
	if uri == "" {
		t.Skip("Skipping integration test: MEMGRAPH_URI not set")
	}

	cfg := config.Default()
	cfg.ApplyEnv()
	cfg.Graph.Backend = "memgraph"
	cfg.Decomposition.Elements = []config.DecompositionRule{{
		EdgeName: "resolves", FromField: "host", FromType: "domain", ToField: "ip", ToType: "ip",
	}}

	d, err := driver.Open(context.Background(), cfg, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close(context.Background()) })
	return cfg, d
}

func TestFullFlow(t *testing.T) {
	cfg, d := connect(t)
	ctx := context.Background()

	g, err := core.NewFromConfig(cfg, d, nil, logger.NewNop())
	require.NoError(t, err)
	require.NoError(t, g.BuildIndices(ctx))

	// unique names keep runs against a shared database apart
	run := uuid.New().String()
	host := fmt.Sprintf("%s.example", run)
	req := core.BuildRequest{
		Bucket:  "/integration/" + run,
		Records: []model.Record{{"host": host, "ip": "10.0.0.1-" + run}},
	}

	stats, err := g.Build(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.VerticesCreated)
	assert.Equal(t, int64(1), stats.EdgesCreated)

	stats, err = g.Build(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, model.MergeStats{VerticesUpdated: 2, EdgesUpdated: 1, EdgeMatchesFound: 1}, stats)

	req.DryRun = true
	stats, err = g.Build(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.VerticesCreated, "dry runs never see stored matches")
}
