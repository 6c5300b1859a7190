package badger

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/poiesic/lookbook/core"
	"github.com/poiesic/lookbook/storage"
)

// CatalogRepository implements storage.CatalogRepository for BadgerDB.
type CatalogRepository struct {
	backend *Backend
}

var _ storage.CatalogRepository = (*CatalogRepository)(nil)

// NewCatalogRepository creates a new CatalogRepository.
func NewCatalogRepository(backend *Backend) *CatalogRepository {
	return &CatalogRepository{backend: backend}
}

// UpsertItems inserts items or merges their non-empty attributes into the
// stored rows. A newly inserted item enters the pending-embeddings index
// unless a complete feature row already exists for its SKU.
func (r *CatalogRepository) UpsertItems(ctx context.Context, items ...*core.Item) ([]*core.Item, error) {
	for _, item := range items {
		if err := core.ValidateItem(item); err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrInvalidInput, err)
		}
	}

	result := make([]*core.Item, 0, len(items))
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		now := time.Now().UTC()
		for _, incoming := range items {
			key := makeItemKey(incoming.SKU)
			existing, found, err := readValue(tx, key, storage.UnmarshalItem)
			if err != nil {
				return err
			}

			var merged *core.Item
			if found {
				merged = mergeItem(existing, incoming)
			} else {
				merged = new(core.Item)
				*merged = *incoming
				merged.CreatedAt = now
				if err := r.indexPending(tx, merged.SKU); err != nil {
					return err
				}
			}
			merged.UpdatedAt = now

			value, err := storage.MarshalItem(merged)
			if err != nil {
				return err
			}
			if err := tx.Set(key, value); err != nil {
				return err
			}
			result = append(result, merged)
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// indexPending adds sku to the pending index if its feature row is absent
// or incomplete.
func (r *CatalogRepository) indexPending(tx *badger.Txn, sku string) error {
	row, found, err := readValue(tx, makeFeatureKey(sku), storage.UnmarshalFeatureRow)
	if err != nil {
		return err
	}
	if found && row.Vectors.Complete() {
		return nil
	}
	return tx.Set(makePendingKey(sku), nil)
}

// mergeItem overlays the non-empty attributes of incoming onto existing.
// A zero price is treated as absent.
func mergeItem(existing, incoming *core.Item) *core.Item {
	merged := *existing
	coalesce := func(dst *string, src string) {
		if strings.TrimSpace(src) != "" {
			*dst = src
		}
	}
	coalesce(&merged.Title, incoming.Title)
	coalesce(&merged.Brand, incoming.Brand)
	coalesce(&merged.Category, incoming.Category)
	coalesce(&merged.Color, incoming.Color)
	coalesce(&merged.URL, incoming.URL)
	coalesce(&merged.Image1, incoming.Image1)
	coalesce(&merged.Image2, incoming.Image2)
	coalesce(&merged.Text1, incoming.Text1)
	coalesce(&merged.Text2, incoming.Text2)
	coalesce(&merged.Text3, incoming.Text3)
	coalesce(&merged.Texts, incoming.Texts)
	if incoming.Price != 0 {
		merged.Price = incoming.Price
	}
	return &merged
}

// GetItem retrieves a single item by SKU.
func (r *CatalogRepository) GetItem(ctx context.Context, sku string) (*core.Item, error) {
	var result *core.Item
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, found, err := readValue(tx, makeItemKey(sku), storage.UnmarshalItem)
		if err != nil {
			return err
		}
		if !found {
			return storage.ErrNotFound
		}
		result = item
		return nil
	}, false)
	return result, err
}

// GetItems retrieves multiple items by SKU, skipping unknown SKUs.
func (r *CatalogRepository) GetItems(ctx context.Context, skus ...string) ([]*core.Item, error) {
	results := make([]*core.Item, 0, len(skus))
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, sku := range skus {
			item, found, err := readValue(tx, makeItemKey(sku), storage.UnmarshalItem)
			if err != nil {
				return err
			}
			if found {
				results = append(results, item)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return results, nil
}

// DistinctValues lists the distinct non-empty raw values of field, sorted.
func (r *CatalogRepository) DistinctValues(ctx context.Context, field storage.AttributeField) ([]string, error) {
	var get func(*core.Item) string
	switch field {
	case storage.FieldBrand:
		get = func(i *core.Item) string { return i.Brand }
	case storage.FieldCategory:
		get = func(i *core.Item) string { return i.Category }
	case storage.FieldColor:
		get = func(i *core.Item) string { return i.Color }
	default:
		return nil, fmt.Errorf("%w: unknown attribute field %d", storage.ErrInvalidQuery, int(field))
	}

	values := make(distinctSet)
	err := r.scanItems(ctx, func(item *core.Item) error {
		values.add(get(item))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return values.sorted(), nil
}

// Vocabulary collects the distinct brands, categories and colors.
func (r *CatalogRepository) Vocabulary(ctx context.Context) (*core.Vocabulary, error) {
	brands, categories, colors := make(distinctSet), make(distinctSet), make(distinctSet)
	err := r.scanItems(ctx, func(item *core.Item) error {
		brands.add(item.Brand)
		categories.add(item.Category)
		colors.add(item.Color)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &core.Vocabulary{Brands: brands.sorted(), Categories: categories.sorted(), Colors: colors.sorted()}, nil
}

type distinctSet map[string]struct{}

func (d distinctSet) add(v string) {
	if v = strings.TrimSpace(v); v != "" {
		d[v] = struct{}{}
	}
}

func (d distinctSet) sorted() []string {
	values := make([]string, 0, len(d))
	for v := range d {
		values = append(values, v)
	}
	slices.Sort(values)
	return values
}

// CountItems returns the number of items in the catalog.
func (r *CatalogRepository) CountItems(ctx context.Context) (int, error) {
	return countPrefix(r.backend, []byte(itemPrefix))
}

func (r *CatalogRepository) scanItems(ctx context.Context, fn func(*core.Item) error) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(itemPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var item *core.Item
			err := iter.Item().Value(func(val []byte) error {
				var err error
				item, err = storage.UnmarshalItem(val)
				return err
			})
			if err != nil {
				return err
			}
			if err := fn(item); err != nil {
				return err
			}
		}
		return nil
	}, false)
}

// countPrefix counts keys under prefix without loading values.
func countPrefix(backend *Backend, prefix []byte) (int, error) {
	count := 0
	err := backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}
