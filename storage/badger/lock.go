package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/poiesic/lookbook/storage"
)

// lockRecord is the value stored under a lock key. Expiry is enforced by the
// entry TTL; ExpiresAt is informational.
type lockRecord struct {
	Owner     string
	ExpiresAt time.Time
}

// LockRepository implements storage.LockRepository with TTL entries.
// Concurrent acquirers race through badger's conflict detection: the loser's
// commit fails with ErrConflict and is reported as ErrLockHeld.
type LockRepository struct {
	backend *Backend
}

var _ storage.LockRepository = (*LockRepository)(nil)

// NewLockRepository creates a new LockRepository.
func NewLockRepository(backend *Backend) *LockRepository {
	return &LockRepository{backend: backend}
}

func (r *LockRepository) AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) error {
	return r.setLock(name, owner, ttl, false)
}

func (r *LockRepository) RefreshLock(ctx context.Context, name, owner string, ttl time.Duration) error {
	return r.setLock(name, owner, ttl, true)
}

func (r *LockRepository) setLock(name, owner string, ttl time.Duration, mustHold bool) error {
	if owner == "" || ttl <= 0 {
		return fmt.Errorf("%w: lock owner and ttl are required", storage.ErrInvalidQuery)
	}
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeLockKey(name)
		current, found, err := readLock(tx, key)
		if err != nil {
			return err
		}
		if found && current.Owner != owner {
			return storage.ErrLockHeld
		}
		if !found && mustHold {
			return storage.ErrLockNotHeld
		}

		value, err := storage.MarshalValue(&lockRecord{Owner: owner, ExpiresAt: time.Now().UTC().Add(ttl)})
		if err != nil {
			return err
		}
		if err := tx.SetEntry(badger.NewEntry(key, value).WithTTL(ttl)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if errors.Is(err, badger.ErrConflict) {
		return storage.ErrLockHeld
	}
	return err
}

// ReleaseLock drops the lock if owner holds it. Releasing an absent lock is a no-op.
func (r *LockRepository) ReleaseLock(ctx context.Context, name, owner string) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeLockKey(name)
		current, found, err := readLock(tx, key)
		if err != nil || !found {
			return err
		}
		if current.Owner != owner {
			return storage.ErrLockNotHeld
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

func readLock(tx *badger.Txn, key []byte) (*lockRecord, bool, error) {
	return readValue(tx, key, func(val []byte) (*lockRecord, error) {
		var rec lockRecord
		if err := storage.UnmarshalValue(val, &rec); err != nil {
			return nil, err
		}
		return &rec, nil
	})
}
