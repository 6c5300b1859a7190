package backfill

import (
	"context"

	"github.com/poiesic/lookbook/core"
	"github.com/poiesic/lookbook/storage"
)

// PendingIterator pages through items with at least one empty embedding
// slot, in SKU order.
type PendingIterator struct {
	features  storage.FeatureRepository
	batchSize int
}

// NewPendingIterator creates a new pending-item iterator.
// batchSize: number of items to fetch in each batch; <= 0 uses the default.
func NewPendingIterator(features storage.FeatureRepository, batchSize int) *PendingIterator {
	if batchSize <= 0 {
		batchSize = DefaultConfig().BatchSize
	}

	return &PendingIterator{
		features:  features,
		batchSize: batchSize,
	}
}

// ForEach calls fn with each batch of pending items whose SKU sorts after
// afterSKU. The cursor advances past every batch whether or not fn filled
// its slots, so items that cannot be completed do not stall the pass.
// Context cancellation is checked between batches.
func (it *PendingIterator) ForEach(ctx context.Context, afterSKU string, fn func([]*core.MissingItem) error) error {
	cursor := afterSKU
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := it.features.FindMissingEmbeddings(ctx, cursor, it.batchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		if err := fn(batch); err != nil {
			return err
		}
		cursor = batch[len(batch)-1].SKU

		if len(batch) < it.batchSize {
			return nil
		}
	}
}
