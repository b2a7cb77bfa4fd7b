package dedupe

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/graphmerge/internal/core/model"
)

func newRecord(label string, props map[string]any) model.MergeRecord {
	return model.MergeRecord{Element: model.Element{
		"type":       "vertex",
		"label":      label,
		"id":         map[string]any{"name": "alice"},
		"properties": props,
	}}
}

func existingRecord(id int64, label string, props map[string]any) model.MergeRecord {
	return model.MergeRecord{Existing: true, Element: model.Element{
		"type":       "vertex",
		"label":      label,
		"id":         id,
		"properties": props,
	}}
}

func TestPreferExisting_PicksOldestAndOverlays(t *testing.T) {
	batch := []model.MergeRecord{
		newRecord("Alice", map[string]any{"age": 30, "city": "Paris"}),
		newRecord("Alice S", map[string]any{"city": "Rome", "_owners": "/evil"}),
		existingRecord(9, "alice-9", map[string]any{"city": "Oslo", "email": "a@x"}),
		existingRecord(4, "alice-4", map[string]any{"email": "a@y"}),
	}

	out, err := PreferExistingPolicy{}.Merge(context.Background(), model.KindVertex, "k", batch)
	require.NoError(t, err)
	require.Len(t, out, 1)

	w := out[0]
	assert.Equal(t, int64(4), w["id"])
	assert.Equal(t, "alice-4", w.Label())
	assert.Equal(t, map[string]any{"email": "a@y", "age": 30, "city": "Rome"}, w.Properties())

	// inputs untouched
	assert.Equal(t, map[string]any{"email": "a@y"}, batch[3].Element.Properties())
}

func TestPreferExisting_NoExistingKeepsFirstNew(t *testing.T) {
	batch := []model.MergeRecord{
		newRecord("first", map[string]any{"a": 1}),
		newRecord("second", map[string]any{"b": 2}),
	}
	out, err := PreferExistingPolicy{}.Merge(context.Background(), model.KindVertex, "k", batch)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "first", out[0].Label())
	assert.Equal(t, map[string]any{"name": "alice"}, out[0]["id"])
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, out[0].Properties())
}

func TestPreferExisting_EmptyBatch(t *testing.T) {
	out, err := PreferExistingPolicy{}.Merge(context.Background(), model.KindVertex, "k", nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestLLMMergePolicy_PicksWinner(t *testing.T) {
	mock := &MockLLMClient{Response: "Sure! ```json\n{\"winner_id\": 9}\n```"}
	p := NewLLMMergePolicy(mock, nil)

	batch := []model.MergeRecord{
		newRecord("Alice", map[string]any{"age": 30}),
		existingRecord(4, "alice-4", nil),
		existingRecord(9, "alice-9", nil),
	}
	out, err := p.Merge(context.Background(), model.KindVertex, `{"name":"alice"}`, batch)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(9), out[0]["id"])
	assert.Equal(t, map[string]any{"age": 30}, out[0].Properties())

	require.Len(t, mock.Prompts, 1)
	assert.Contains(t, mock.Prompts[0], `{"name":"alice"}`)
	assert.Contains(t, mock.Prompts[0], `"label":"alice-9"`)
}

func TestLLMMergePolicy_NoDuplicateCreatesNew(t *testing.T) {
	p := NewLLMMergePolicy(&MockLLMClient{Response: `{"winner_id": null}`}, nil)
	batch := []model.MergeRecord{
		newRecord("Alice", nil),
		existingRecord(4, "alice-4", nil),
	}
	out, err := p.Merge(context.Background(), model.KindVertex, "k", batch)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Alice", out[0].Label())
	_, isID := model.AsID(out[0]["id"])
	assert.False(t, isID)
}

func TestLLMMergePolicy_FallsBack(t *testing.T) {
	batch := []model.MergeRecord{
		newRecord("Alice", nil),
		existingRecord(9, "alice-9", nil),
		existingRecord(4, "alice-4", nil),
	}
	for name, mock := range map[string]*MockLLMClient{
		"error":       {Err: errors.New("rate limited")},
		"garbage":     {Response: "I cannot decide"},
		"unknown id":  {Response: `{"winner_id": 77}`},
	} {
		t.Run(name, func(t *testing.T) {
			out, err := NewLLMMergePolicy(mock, nil).Merge(context.Background(), model.KindVertex, "k", batch)
			require.NoError(t, err)
			require.Len(t, out, 1)
			assert.Equal(t, int64(4), out[0]["id"])
		})
	}
}

func TestLLMMergePolicy_SkipsModelWithoutExisting(t *testing.T) {
	mock := &MockLLMClient{Response: `{"winner_id": 1}`}
	out, err := NewLLMMergePolicy(mock, nil).Merge(context.Background(), model.KindVertex, "k",
		[]model.MergeRecord{newRecord("Alice", nil)})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Empty(t, mock.Prompts)
}

func TestNew(t *testing.T) {
	p, err := New("", Dependencies{})
	require.NoError(t, err)
	assert.IsType(t, PreferExistingPolicy{}, p)

	_, err = New("llm", Dependencies{})
	assert.Error(t, err)

	p, err = New("LLM", Dependencies{LLM: &MockLLMClient{}})
	require.NoError(t, err)
	assert.IsType(t, &LLMMergePolicy{}, p)

	_, err = New("nope", Dependencies{})
	assert.ErrorContains(t, err, "unknown merge policy")

	Register("drop_all", func(Dependencies) (MergePolicy, error) {
		return PolicyFunc(func(context.Context, model.ElementKind, string, []model.MergeRecord) ([]model.Element, error) {
			return nil, nil
		}), nil
	})
	p, err = New("drop_all", Dependencies{})
	require.NoError(t, err)
	out, err := p.Merge(context.Background(), model.KindVertex, "k", []model.MergeRecord{newRecord("a", nil)})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Contains(t, Names(), "drop_all")
}
