package storage

import (
	"context"
	"time"

	"github.com/poiesic/lookbook/core"
	"github.com/poiesic/lookbook/filter"
)

// AttributeField names an item attribute with a distinct-value listing.
type AttributeField int

const (
	FieldBrand AttributeField = iota + 1
	FieldCategory
	FieldColor
)

func (f AttributeField) String() string {
	switch f {
	case FieldBrand:
		return "brand"
	case FieldCategory:
		return "category"
	case FieldColor:
		return "color"
	}
	return "unknown"
}

// CatalogRepository provides read and ingest access to Item rows.
// Implementations must be thread-safe.
type CatalogRepository interface {
	// UpsertItems inserts items or merges their non-empty attributes into
	// existing rows keyed on SKU. Sets CreatedAt on insert and UpdatedAt always.
	UpsertItems(ctx context.Context, items ...*core.Item) ([]*core.Item, error)

	// GetItem retrieves a single item by SKU.
	// Returns ErrNotFound if the item doesn't exist.
	GetItem(ctx context.Context, sku string) (*core.Item, error)

	// GetItems retrieves multiple items by SKU.
	// Returns only the items that exist (no error for missing SKUs).
	GetItems(ctx context.Context, skus ...string) ([]*core.Item, error)

	// DistinctValues lists the distinct non-empty values of field, sorted.
	DistinctValues(ctx context.Context, field AttributeField) ([]string, error)

	// Vocabulary lists the distinct brands, categories and raw colors in one
	// pass over the catalog.
	Vocabulary(ctx context.Context) (*core.Vocabulary, error)

	// CountItems returns the number of items in the catalog.
	CountItems(ctx context.Context) (int, error)
}

// VectorSearcher scores rows of one embedding space against a query vector.
type VectorSearcher interface {
	// SimilaritySearch returns the top k rows by cosine similarity in space,
	// restricted to rows where the space is populated and predicate matches.
	// Results are ordered by score descending, then SKU ascending.
	// k <= 0 returns every qualifying row. A nil predicate matches all rows.
	SimilaritySearch(ctx context.Context, space core.Space, query []float32, predicate *filter.Predicate, k int) ([]*core.SpaceMatch, error)
}

// FeatureRepository owns FeatureRow storage.
type FeatureRepository interface {
	VectorSearcher

	// Dims returns the dimension table vectors are validated against.
	Dims() core.SpaceDims

	// UpsertFeatures merges the populated slots of partial into the row for
	// sku in a single atomic write. Slots absent from partial are preserved.
	UpsertFeatures(ctx context.Context, sku string, partial core.FeatureVector) (*core.FeatureRow, error)

	// NewFeatureWriter starts a batch of coalescing upserts that become
	// visible together on Commit.
	NewFeatureWriter(ctx context.Context) (FeatureWriter, error)

	// GetFeatures retrieves rows by SKU, skipping SKUs without a row.
	GetFeatures(ctx context.Context, skus ...string) ([]*core.FeatureRow, error)

	// FindMissingEmbeddings returns up to limit catalog items with at least
	// one empty slot whose SKU sorts after afterSKU, in SKU order.
	FindMissingEmbeddings(ctx context.Context, afterSKU string, limit int) ([]*core.MissingItem, error)

	// CountMissingEmbeddings returns the number of items with an empty slot.
	CountMissingEmbeddings(ctx context.Context) (int, error)

	// IterateComplete calls fn for every item whose row has all slots
	// populated, in SKU order. Iteration stops at the first error.
	IterateComplete(ctx context.Context, fn func(item *core.Item, row *core.FeatureRow) error) error
}

// FeatureWriter stages coalescing upserts. It is not safe for concurrent use.
type FeatureWriter interface {
	// Upsert stages a merge of partial into the row for sku.
	Upsert(ctx context.Context, sku string, partial core.FeatureVector) error

	// Pending returns the number of staged upserts.
	Pending() int

	// Commit makes every staged upsert durable and visible.
	// The writer may be reused after Commit.
	Commit() error

	// Discard drops staged upserts. Safe to call after Commit.
	Discard()
}

// ColorMappingRepository persists the source to target color table.
type ColorMappingRepository interface {
	// ReplaceColorMapping atomically swaps the whole table. Readers observe
	// either the previous table or the new one, never a mix.
	ReplaceColorMapping(ctx context.Context, mapping core.ColorMapping) error

	// LoadColorMapping returns the current table. Empty if never built.
	LoadColorMapping(ctx context.Context) (core.ColorMapping, error)

	// TargetColors returns the distinct targets of the current table, sorted.
	TargetColors(ctx context.Context) ([]string, error)
}

// CheckpointRepository persists resumable progress of batch jobs.
type CheckpointRepository interface {
	SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error

	// LoadCheckpoint returns nil, nil if no checkpoint exists for job.
	LoadCheckpoint(ctx context.Context, job string) (*core.Checkpoint, error)

	ClearCheckpoint(ctx context.Context, job string) error
}

// LockRepository provides expiring named locks for single-writer jobs.
type LockRepository interface {
	// AcquireLock takes the lock for owner. Returns ErrLockHeld if another
	// owner holds an unexpired lock. Re-acquiring by the same owner extends it.
	AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) error

	// RefreshLock extends a lock owner already holds.
	// Returns ErrLockNotHeld if owner does not hold it.
	RefreshLock(ctx context.Context, name, owner string, ttl time.Duration) error

	// ReleaseLock drops the lock if owner holds it.
	ReleaseLock(ctx context.Context, name, owner string) error
}

// IndexRow is one item and its vectors as mirrored into a secondary index.
type IndexRow struct {
	Item    *core.Item
	Vectors core.FeatureVector
}

// IndexWriter receives rows for a secondary search index.
type IndexWriter interface {
	// UpsertRows replaces the indexed copy of each row.
	UpsertRows(ctx context.Context, rows []IndexRow) error
}
