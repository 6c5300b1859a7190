package badger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/poiesic/lookbook/core"
	"github.com/poiesic/lookbook/filter"
	"github.com/poiesic/lookbook/storage"
)

// cancelCheckInterval is how many rows a scan visits between context checks.
const cancelCheckInterval = 256

// FeatureRepository implements storage.FeatureRepository for BadgerDB.
// Similarity search is an exact scan over every populated row.
type FeatureRepository struct {
	backend *Backend
	dims    core.SpaceDims
}

var _ storage.FeatureRepository = (*FeatureRepository)(nil)

// NewFeatureRepository creates a new FeatureRepository. A nil dims uses
// core.DefaultSpaceDims.
func NewFeatureRepository(backend *Backend, dims core.SpaceDims) *FeatureRepository {
	if dims == nil {
		dims = core.DefaultSpaceDims()
	}
	return &FeatureRepository{backend: backend, dims: dims}
}

// Dims returns the dimension table vectors are validated against.
func (r *FeatureRepository) Dims() core.SpaceDims {
	return r.dims
}

// UpsertFeatures merges partial into the row for sku in one transaction.
func (r *FeatureRepository) UpsertFeatures(ctx context.Context, sku string, partial core.FeatureVector) (*core.FeatureRow, error) {
	if err := r.validate(sku, partial); err != nil {
		return nil, err
	}
	var row *core.FeatureRow
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		row, err = r.mergeRow(tx, sku, partial, time.Now().UTC())
		if err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (r *FeatureRepository) validate(sku string, partial core.FeatureVector) error {
	if strings.TrimSpace(sku) == "" {
		return fmt.Errorf("%w: %w", core.ErrInvalidInput, core.ErrEmptySKU)
	}
	return core.ValidateFeatures(r.dims, partial)
}

// mergeRow applies a coalescing upsert inside tx and keeps the pending
// index in step with the row's completeness.
func (r *FeatureRepository) mergeRow(tx *badger.Txn, sku string, partial core.FeatureVector, now time.Time) (*core.FeatureRow, error) {
	key := makeFeatureKey(sku)
	row, found, err := readValue(tx, key, storage.UnmarshalFeatureRow)
	if err != nil {
		return nil, err
	}
	if !found {
		row = &core.FeatureRow{SKU: sku, CreatedAt: now}
	}
	row.Vectors.Merge(partial)
	row.UpdatedAt = now

	value, err := storage.MarshalFeatureRow(row)
	if err != nil {
		return nil, err
	}
	if err := tx.Set(key, value); err != nil {
		return nil, err
	}

	if row.Vectors.Complete() {
		if err := tx.Delete(makePendingKey(sku)); err != nil {
			return nil, err
		}
		return row, nil
	}
	// Rows without a catalog item are never pending.
	if _, err := tx.Get(makeItemKey(sku)); err == nil {
		if err := tx.Set(makePendingKey(sku), nil); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return nil, err
	}
	return row, nil
}

// NewFeatureWriter returns a writer that stages upserts in memory and applies
// them on Commit.
func (r *FeatureRepository) NewFeatureWriter(ctx context.Context) (storage.FeatureWriter, error) {
	return &featureWriter{repo: r, staged: make(map[string]core.FeatureVector)}, nil
}

// featureWriter stages coalescing upserts. Repeated upserts of one SKU are
// merged before they reach the store.
type featureWriter struct {
	repo   *FeatureRepository
	staged map[string]core.FeatureVector
}

func (w *featureWriter) Upsert(ctx context.Context, sku string, partial core.FeatureVector) error {
	if err := w.repo.validate(sku, partial); err != nil {
		return err
	}
	if partial.Empty() {
		return nil
	}
	fv := w.staged[sku]
	fv.Merge(partial)
	w.staged[sku] = fv
	return nil
}

func (w *featureWriter) Pending() int {
	return len(w.staged)
}

// Commit applies staged upserts in SKU order. Each row is written atomically.
// When the batch exceeds one badger transaction it is split: the rows already
// written stay committed and the remainder goes into a fresh transaction.
func (w *featureWriter) Commit() error {
	if len(w.staged) == 0 {
		return nil
	}
	skus := make([]string, 0, len(w.staged))
	for sku := range w.staged {
		skus = append(skus, sku)
	}
	slices.Sort(skus)

	now := time.Now().UTC()
	for len(skus) > 0 {
		var written int
		err := w.repo.backend.WithTx(func(tx *badger.Txn) error {
			for _, sku := range skus {
				_, err := w.repo.mergeRow(tx, sku, w.staged[sku], now)
				if errors.Is(err, badger.ErrTxnTooBig) && written > 0 {
					break
				}
				if err != nil {
					return err
				}
				written++
			}
			return tx.Commit()
		}, true)
		if err != nil {
			return fmt.Errorf("commit features: %w", err)
		}
		for _, sku := range skus[:written] {
			delete(w.staged, sku)
		}
		skus = skus[written:]
	}
	return nil
}

func (w *featureWriter) Discard() {
	clear(w.staged)
}

// GetFeatures retrieves rows by SKU, skipping SKUs without a row.
func (r *FeatureRepository) GetFeatures(ctx context.Context, skus ...string) ([]*core.FeatureRow, error) {
	results := make([]*core.FeatureRow, 0, len(skus))
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, sku := range skus {
			row, found, err := readValue(tx, makeFeatureKey(sku), storage.UnmarshalFeatureRow)
			if err != nil {
				return err
			}
			if found {
				results = append(results, row)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return results, nil
}

// FindMissingEmbeddings pages through the pending index in SKU order,
// starting strictly after afterSKU.
func (r *FeatureRepository) FindMissingEmbeddings(ctx context.Context, afterSKU string, limit int) ([]*core.MissingItem, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}
	var results []*core.MissingItem
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(pendingPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		seek := []byte(pendingPrefix)
		if afterSKU != "" {
			seek = makePendingKey(afterSKU)
		}
		for iter.Seek(seek); iter.Valid() && len(results) < limit; iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			sku := skuFromKey(iter.Item().Key(), pendingPrefix)
			if sku == afterSKU {
				continue
			}
			missing, err := r.missingItem(tx, sku)
			if err != nil {
				return err
			}
			if missing != nil {
				results = append(results, missing)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return results, nil
}

// missingItem joins a pending SKU with its item and row. Returns nil if the
// index entry is stale.
func (r *FeatureRepository) missingItem(tx *badger.Txn, sku string) (*core.MissingItem, error) {
	item, found, err := readValue(tx, makeItemKey(sku), storage.UnmarshalItem)
	if err != nil || !found {
		return nil, err
	}
	row, found, err := readValue(tx, makeFeatureKey(sku), storage.UnmarshalFeatureRow)
	if err != nil {
		return nil, err
	}
	missing := core.AllSpaces
	if found {
		missing = row.Vectors.Missing()
	}
	if len(missing) == 0 {
		return nil, nil
	}
	return &core.MissingItem{
		SKU:     item.SKU,
		Texts:   item.Texts,
		Image1:  item.Image1,
		Image2:  item.Image2,
		Missing: slices.Clone(missing),
	}, nil
}

// CountMissingEmbeddings returns the size of the pending index.
func (r *FeatureRepository) CountMissingEmbeddings(ctx context.Context) (int, error) {
	return countPrefix(r.backend, []byte(pendingPrefix))
}

// IterateComplete calls fn for every complete row that has a catalog item.
func (r *FeatureRepository) IterateComplete(ctx context.Context, fn func(item *core.Item, row *core.FeatureRow) error) error {
	return r.scanRows(ctx, func(tx *badger.Txn, row *core.FeatureRow) error {
		if !row.Vectors.Complete() {
			return nil
		}
		item, found, err := readValue(tx, makeItemKey(row.SKU), storage.UnmarshalItem)
		if err != nil || !found {
			return err
		}
		return fn(item, row)
	})
}

// SimilaritySearch scans every row populated in space, scores it by dot
// product against query, and keeps rows whose item matches predicate.
func (r *FeatureRepository) SimilaritySearch(ctx context.Context, space core.Space, query []float32, predicate *filter.Predicate, k int) ([]*core.SpaceMatch, error) {
	if err := core.ValidateVector(r.dims, space, query); err != nil {
		return nil, err
	}

	var matches []*core.SpaceMatch
	err := r.scanRows(ctx, func(tx *badger.Txn, row *core.FeatureRow) error {
		v := row.Vectors.Get(space)
		if len(v) == 0 {
			return nil
		}
		item, found, err := readValue(tx, makeItemKey(row.SKU), storage.UnmarshalItem)
		if err != nil || !found {
			return err
		}
		if !predicate.Matches(item) {
			return nil
		}
		matches = append(matches, &core.SpaceMatch{
			Item:  item,
			Score: core.DotProduct(query, v),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	storage.SortMatches(matches)
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (r *FeatureRepository) scanRows(ctx context.Context, fn func(tx *badger.Txn, row *core.FeatureRow) error) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(featurePrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		n := 0
		for iter.Rewind(); iter.Valid(); iter.Next() {
			if n%cancelCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			n++

			var row *core.FeatureRow
			err := iter.Item().Value(func(val []byte) error {
				var err error
				row, err = storage.UnmarshalFeatureRow(val)
				return err
			})
			if err != nil {
				return err
			}
			if err := fn(tx, row); err != nil {
				return err
			}
		}
		return nil
	}, false)
}
