package badger

import "github.com/poiesic/lookbook/core"

// Repositories bundles every repository over one backend.
type Repositories struct {
	Backend     *Backend
	Catalog     *CatalogRepository
	Features    *FeatureRepository
	Colors      *ColorMappingRepository
	Checkpoints *CheckpointRepository
	Locks       *LockRepository
}

// NewRepositories opens a database at path and builds every repository.
// A nil dims uses core.DefaultSpaceDims.
func NewRepositories(path string, dims core.SpaceDims) (*Repositories, error) {
	backend, err := OpenBackend(path, false)
	if err != nil {
		return nil, err
	}
	return NewRepositoriesFromBackend(backend, dims), nil
}

// NewRepositoriesFromBackend builds every repository over an open backend.
// The returned Repositories owns backend.
func NewRepositoriesFromBackend(backend *Backend, dims core.SpaceDims) *Repositories {
	return &Repositories{
		Backend:     backend,
		Catalog:     NewCatalogRepository(backend),
		Features:    NewFeatureRepository(backend, dims),
		Colors:      NewColorMappingRepository(backend),
		Checkpoints: NewCheckpointRepository(backend),
		Locks:       NewLockRepository(backend),
	}
}

// Close closes the underlying backend.
func (r *Repositories) Close() error {
	return r.Backend.Close()
}
