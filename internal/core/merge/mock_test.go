package merge

import (
	"context"
	"errors"

	"github.com/agenthands/graphmerge/internal/core/model"
	"github.com/agenthands/graphmerge/internal/driver"
)

var errStoreDown = errors.New("store down")

// FailingTx fails AddVertex after Allow successful calls.
type FailingTx struct {
	driver.Transaction
	Allow int
}

func (f *FailingTx) AddVertex(ctx context.Context, label string) (*driver.StoreElement, error) {
	if f.Allow <= 0 {
		return nil, errStoreDown
	}
	f.Allow--
	return f.Transaction.AddVertex(ctx, label)
}

// RecordingPolicy records every batch and delegates to Next.
type RecordingPolicy struct {
	Next    func(batch []model.MergeRecord) ([]model.Element, error)
	Batches [][]model.MergeRecord
	Keys    []string
}

func (r *RecordingPolicy) Merge(ctx context.Context, kind model.ElementKind, key string, batch []model.MergeRecord) ([]model.Element, error) {
	r.Batches = append(r.Batches, batch)
	r.Keys = append(r.Keys, key)
	return r.Next(batch)
}
