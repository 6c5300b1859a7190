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

package storage

import "errors"

// Sentinel errors returned by repository implementations.
var (
	// ErrNotFound is returned when a keyed lookup finds nothing.
	ErrNotFound = errors.New("record not found")

	// ErrStorageClosed is returned for any operation on a closed backend.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrInvalidQuery covers malformed repository arguments such as a
	// non-positive page size or a checkpoint without a job name.
	ErrInvalidQuery = errors.New("invalid query parameters")

	// ErrSerializationFailed wraps msgpack encode and decode failures.
	ErrSerializationFailed = errors.New("serialization failed")

	// ErrLockHeld indicates another owner holds an unexpired lock.
	ErrLockHeld = errors.New("lock held by another owner")

	// ErrLockNotHeld indicates the caller does not hold the lock it tried to refresh.
	ErrLockNotHeld = errors.New("lock not held")
)
