// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/poiesic/lookbook/core"
	"github.com/poiesic/lookbook/storage"
)

// CheckpointRepository stores one resumable cursor per batch job.
type CheckpointRepository struct {
	backend *Backend
}

var _ storage.CheckpointRepository = (*CheckpointRepository)(nil)

// NewCheckpointRepository creates a new CheckpointRepository.
func NewCheckpointRepository(backend *Backend) *CheckpointRepository {
	return &CheckpointRepository{backend: backend}
}

// SaveCheckpoint overwrites the checkpoint of checkpoint.Job and stamps
// UpdatedAt on the stored copy.
func (r *CheckpointRepository) SaveCheckpoint(_ context.Context, checkpoint *core.Checkpoint) error {
	if checkpoint == nil || checkpoint.Job == "" {
		return fmt.Errorf("%w: checkpoint job is required", storage.ErrInvalidQuery)
	}
	stored := *checkpoint
	stored.UpdatedAt = time.Now().UTC()
	value, err := storage.MarshalCheckpoint(&stored)
	if err != nil {
		return err
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeCheckpointKey(stored.Job), value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// LoadCheckpoint returns nil, nil when job has no checkpoint.
func (r *CheckpointRepository) LoadCheckpoint(_ context.Context, job string) (*core.Checkpoint, error) {
	var checkpoint *core.Checkpoint
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		cp, found, err := readValue(tx, makeCheckpointKey(job), storage.UnmarshalCheckpoint)
		if found {
			checkpoint = cp
		}
		return err
	}, false)
	return checkpoint, err
}

// ClearCheckpoint removes the checkpoint of job. Missing checkpoints are ignored.
func (r *CheckpointRepository) ClearCheckpoint(_ context.Context, job string) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Delete(makeCheckpointKey(job)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}
