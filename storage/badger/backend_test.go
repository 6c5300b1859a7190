package badger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/lookbook/core"
	"github.com/poiesic/lookbook/storage"
)

// testDims keeps vectors short in tests.
var testDims = core.SpaceDims{
	core.SpaceClipImagePrimary:   2,
	core.SpaceClipImageSecondary: 2,
	core.SpaceClipText:           2,
	core.SpaceSemanticText:       3,
}

func newTestRepos(t *testing.T) *Repositories {
	t.Helper()
	repos, err := NewMemoryRepositoriesWithDims(testDims)
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })
	return repos
}

func TestOpenBackend_InMemory(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestOpenBackend_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "db")
	backend, err := OpenBackend(dir, false)
	require.NoError(t, err)
	defer backend.Close()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestOpenBackend_PathIsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	_, err := OpenBackend(path, false)
	assert.Error(t, err)
}

func TestBackend_ClosedRejectsTransactions(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	require.NoError(t, backend.Close())
	assert.True(t, backend.IsClosed())

	err = backend.WithTx(func(tx *badger.Txn) error { return nil }, false)
	assert.True(t, errors.Is(err, storage.ErrStorageClosed))
}

func TestRepositories_Persist(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	repos, err := NewRepositories(dir, testDims)
	require.NoError(t, err)
	_, err = repos.Catalog.UpsertItems(ctx, &core.Item{SKU: "A", Title: "Coat", Price: 10})
	require.NoError(t, err)
	require.NoError(t, repos.Close())

	repos, err = NewRepositories(dir, testDims)
	require.NoError(t, err)
	defer repos.Close()

	item, err := repos.Catalog.GetItem(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "Coat", item.Title)
}
