package badger

import (
	"context"
	"encoding/binary"
	"fmt"
	"slices"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/poiesic/lookbook/core"
	"github.com/poiesic/lookbook/storage"
)

// ColorMappingRepository implements storage.ColorMappingRepository for BadgerDB.
//
// Each rebuild is written under a new generation prefix, then a single
// transaction flips the generation pointer. Readers resolve the pointer and
// the entries in one snapshot, so they see one generation in full. The
// replaced generation is kept until the following rebuild.
type ColorMappingRepository struct {
	backend *Backend
	mu      sync.Mutex // serializes rebuilds
}

var _ storage.ColorMappingRepository = (*ColorMappingRepository)(nil)

// NewColorMappingRepository creates a new ColorMappingRepository.
func NewColorMappingRepository(backend *Backend) *ColorMappingRepository {
	return &ColorMappingRepository{backend: backend}
}

// ReplaceColorMapping writes mapping as a new generation and swaps it in.
func (r *ColorMappingRepository) ReplaceColorMapping(ctx context.Context, mapping core.ColorMapping) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var current uint64
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		current, err = readGeneration(tx)
		return err
	}, false)
	if err != nil {
		return err
	}
	next := current + 1

	// Drop the generation retired by the previous rebuild.
	if current > 1 {
		if err := r.backend.DropPrefix(makeColorMapPrefix(current - 1)); err != nil {
			r.backend.logger.Warn("error dropping retired color mapping", "generation", current-1, "err", err)
		}
	}
	// Clear leftovers of an interrupted rebuild.
	if err := r.backend.DropPrefix(makeColorMapPrefix(next)); err != nil {
		return err
	}

	wb := r.backend.NewWriteBatch()
	defer wb.Cancel()
	for source, target := range mapping {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := wb.Set(makeColorMapKey(next, source), []byte(target)); err != nil {
			return fmt.Errorf("stage color mapping: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("write color mapping: %w", err)
	}

	err = r.backend.WithTx(func(tx *badger.Txn) error {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, next)
		if err := tx.Set([]byte(colorMapGenKey), buf); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return fmt.Errorf("swap color mapping: %w", err)
	}
	return nil
}

// LoadColorMapping returns the current generation of the mapping.
func (r *ColorMappingRepository) LoadColorMapping(ctx context.Context) (core.ColorMapping, error) {
	mapping := make(core.ColorMapping)
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		gen, err := readGeneration(tx)
		if err != nil || gen == 0 {
			return err
		}
		prefix := makeColorMapPrefix(gen)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			item := iter.Item()
			source := skuFromKey(item.Key(), string(prefix))
			err := item.Value(func(val []byte) error {
				mapping[source] = string(val)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return mapping, nil
}

// TargetColors returns the distinct targets of the current mapping, sorted.
func (r *ColorMappingRepository) TargetColors(ctx context.Context) ([]string, error) {
	mapping, err := r.LoadColorMapping(ctx)
	if err != nil {
		return nil, err
	}
	targets := mapping.Targets()
	slices.Sort(targets)
	return targets, nil
}

func readGeneration(tx *badger.Txn) (uint64, error) {
	gen, _, err := readValue(tx, []byte(colorMapGenKey), func(val []byte) (uint64, error) {
		if len(val) != 8 {
			return 0, fmt.Errorf("%w: bad color mapping generation", storage.ErrSerializationFailed)
		}
		return binary.BigEndian.Uint64(val), nil
	})
	return gen, err
}
