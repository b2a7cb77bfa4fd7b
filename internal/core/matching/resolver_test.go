package matching

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/graphmerge/internal/auth"
	"github.com/agenthands/graphmerge/internal/core/model"
	"github.com/agenthands/graphmerge/internal/driver"
)

var dedup = []string{"name", "type"}

type countingTx struct {
	driver.Transaction
	queries []map[string][]any
}

func (c *countingTx) QueryVertices(ctx context.Context, fields map[string][]any) ([]*driver.StoreElement, error) {
	c.queries = append(c.queries, fields)
	return c.Transaction.QueryVertices(ctx, fields)
}

func seed(t *testing.T, tx driver.Transaction, name, typ string, owners ...string) *driver.StoreElement {
	t.Helper()
	ctx := context.Background()
	v, err := tx.AddVertex(ctx, name)
	require.NoError(t, err)
	require.NoError(t, tx.SetProperty(ctx, v, "name", name, driver.Single))
	require.NoError(t, tx.SetProperty(ctx, v, "type", typ, driver.Single))
	for _, o := range owners {
		require.NoError(t, tx.SetProperty(ctx, v, model.PropOwners, o, driver.Set))
	}
	return v
}

func keyOf(t *testing.T, name, typ string) model.VertexKey {
	t.Helper()
	k, ok := model.NewVertexKey(map[string]any{"name": name, "type": typ}, dedup)
	require.True(t, ok)
	return k
}

func openTx(t *testing.T) *countingTx {
	t.Helper()
	tx, err := driver.NewMemoryDriver().Begin(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback(context.Background()) })
	return &countingTx{Transaction: tx}
}

func TestFindMatches_DiscardsFalsePositives(t *testing.T) {
	tx := openTx(t)
	ad := seed(t, tx, "a", "domain")
	bi := seed(t, tx, "b", "ip")
	seed(t, tx, "a", "ip")
	seed(t, tx, "b", "domain")
	seed(t, tx, "c", "domain")

	keys := map[model.VertexKey]struct{}{
		keyOf(t, "a", "domain"): {},
		keyOf(t, "b", "ip"):     {},
	}
	matches, err := NewResolver(dedup, nil, nil).FindMatches(context.Background(), tx, keys, Options{})
	require.NoError(t, err)

	require.Len(t, matches, 2)
	require.Len(t, matches[keyOf(t, "a", "domain")], 1)
	assert.Equal(t, ad.ID, matches[keyOf(t, "a", "domain")][0].ID)
	require.Len(t, matches[keyOf(t, "b", "ip")], 1)
	assert.Equal(t, bi.ID, matches[keyOf(t, "b", "ip")][0].ID)

	require.Len(t, tx.queries, 1, "one tolerant query for keys sharing a layout")
	assert.ElementsMatch(t, []any{"a", "b"}, tx.queries[0]["name"])
	assert.ElementsMatch(t, []any{"domain", "ip"}, tx.queries[0]["type"])
}

func TestFindMatches_AuthorizationFilter(t *testing.T) {
	tx := openTx(t)
	open := seed(t, tx, "a", "domain")
	seed(t, tx, "a", "domain", "/secret")
	mine := seed(t, tx, "a", "domain", "/team1/x")
	seed(t, tx, "a", "domain", "/team1/x", "/secret")

	ev := auth.NewRoleEvaluator([]auth.Grant{{Principal: "alice", Permissions: []string{"bucket:read,write:team1:*"}}})
	keys := map[model.VertexKey]struct{}{keyOf(t, "a", "domain"): {}}

	matches, err := NewResolver(dedup, ev, nil).FindMatches(context.Background(), tx, keys, Options{Principal: "alice"})
	require.NoError(t, err)

	got := matches[keyOf(t, "a", "domain")]
	require.Len(t, got, 2)
	assert.Equal(t, open.ID, got[0].ID)
	assert.Equal(t, mine.ID, got[1].ID)
}

func TestFindMatches_DryRunBypassesStore(t *testing.T) {
	tx := openTx(t)
	seed(t, tx, "a", "domain")

	keys := map[model.VertexKey]struct{}{keyOf(t, "a", "domain"): {}}
	matches, err := NewResolver(dedup, nil, nil).FindMatches(context.Background(), tx, keys, Options{DryRun: true})
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Empty(t, tx.queries)
}

func TestFindMatches_MixedKeyLayouts(t *testing.T) {
	tx := openTx(t)
	ctx := context.Background()
	alex, err := tx.AddVertex(ctx, "alex")
	require.NoError(t, err)
	require.NoError(t, tx.SetProperty(ctx, alex, "name", "alex", driver.Single))
	host := seed(t, tx, "host.com", "domain")

	scalar, ok := model.KeyFromValue("alex", dedup)
	require.True(t, ok)
	keys := map[model.VertexKey]struct{}{
		scalar:                        {},
		keyOf(t, "host.com", "domain"): {},
	}
	matches, err := NewResolver(dedup, nil, nil).FindMatches(ctx, tx, keys, Options{})
	require.NoError(t, err)

	require.Len(t, matches[scalar], 1)
	assert.Equal(t, alex.ID, matches[scalar][0].ID)
	require.Len(t, matches[keyOf(t, "host.com", "domain")], 1)
	assert.Equal(t, host.ID, matches[keyOf(t, "host.com", "domain")][0].ID)
	assert.Len(t, tx.queries, 2)
}

func TestFindMatches_NumericValuesNormalize(t *testing.T) {
	tx := openTx(t)
	ctx := context.Background()
	v, err := tx.AddVertex(ctx, "port")
	require.NoError(t, err)
	require.NoError(t, tx.SetProperty(ctx, v, "name", int32(443), driver.Single))
	require.NoError(t, tx.SetProperty(ctx, v, "type", "port", driver.Single))

	k, ok := model.NewVertexKey(map[string]any{"name": 443, "type": "port"}, dedup)
	require.True(t, ok)
	matches, err := NewResolver(dedup, nil, nil).FindMatches(ctx, tx, map[model.VertexKey]struct{}{k: {}}, Options{})
	require.NoError(t, err)
	assert.Len(t, matches[k], 1)
}
