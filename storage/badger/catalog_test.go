package badger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/lookbook/core"
	"github.com/poiesic/lookbook/storage"
)

func TestCatalog_UpsertAndGet(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	items, err := repos.Catalog.UpsertItems(ctx,
		&core.Item{SKU: "A", Title: "Wool coat", Brand: "Acme", Price: 120},
		&core.Item{SKU: "B", Title: "Silk scarf", Brand: "Northwind", Price: 35},
	)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.False(t, items[0].CreatedAt.IsZero())
	assert.False(t, items[0].UpdatedAt.IsZero())

	got, err := repos.Catalog.GetItem(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "Wool coat", got.Title)
	assert.Equal(t, 120.0, got.Price)

	count, err := repos.Catalog.CountItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCatalog_UpsertCoalesces(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	_, err := repos.Catalog.UpsertItems(ctx, &core.Item{
		SKU: "A", Title: "Wool coat", Brand: "Acme", Color: "Camel", Price: 120, Texts: "warm coat",
	})
	require.NoError(t, err)

	_, err = repos.Catalog.UpsertItems(ctx, &core.Item{SKU: "A", Color: "Tan", Image2: "a/2.jpeg"})
	require.NoError(t, err)

	got, err := repos.Catalog.GetItem(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "Wool coat", got.Title)
	assert.Equal(t, "Acme", got.Brand)
	assert.Equal(t, "Tan", got.Color)
	assert.Equal(t, 120.0, got.Price)
	assert.Equal(t, "warm coat", got.Texts)
	assert.Equal(t, "a/2.jpeg", got.Image2)
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))
}

func TestCatalog_UpsertRejectsInvalid(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	tests := []struct {
		name string
		item *core.Item
		want error
	}{
		{"empty sku", &core.Item{SKU: "  "}, core.ErrEmptySKU},
		{"negative price", &core.Item{SKU: "A", Price: -1}, core.ErrNegativePrice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repos.Catalog.UpsertItems(ctx, tt.item)
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrInvalidInput))
			assert.True(t, errors.Is(err, tt.want))
		})
	}

	count, err := repos.Catalog.CountItems(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCatalog_GetMissing(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	_, err := repos.Catalog.GetItem(ctx, "nope")
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	_, err = repos.Catalog.UpsertItems(ctx, &core.Item{SKU: "A"})
	require.NoError(t, err)

	items, err := repos.Catalog.GetItems(ctx, "A", "nope")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "A", items[0].SKU)
}

func TestCatalog_DistinctValues(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	_, err := repos.Catalog.UpsertItems(ctx,
		&core.Item{SKU: "1", Brand: "Acme", Category: "Coats", Color: "Navy Blue"},
		&core.Item{SKU: "2", Brand: "Northwind", Category: "Coats", Color: "crimson"},
		&core.Item{SKU: "3", Brand: "Acme", Category: "Scarves"},
	)
	require.NoError(t, err)

	brands, err := repos.Catalog.DistinctValues(ctx, storage.FieldBrand)
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme", "Northwind"}, brands)

	colors, err := repos.Catalog.DistinctValues(ctx, storage.FieldColor)
	require.NoError(t, err)
	assert.Equal(t, []string{"Navy Blue", "crimson"}, colors)

	vocab, err := repos.Catalog.Vocabulary(ctx)
	require.NoError(t, err)
	assert.Equal(t, &core.Vocabulary{
		Brands:     []string{"Acme", "Northwind"},
		Categories: []string{"Coats", "Scarves"},
		Colors:     []string{"Navy Blue", "crimson"},
	}, vocab)

	_, err = repos.Catalog.DistinctValues(ctx, storage.AttributeField(99))
	assert.True(t, errors.Is(err, storage.ErrInvalidQuery))
}
