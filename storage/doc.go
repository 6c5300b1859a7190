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

// Package storage provides the storage abstraction layer for lookbook.
//
// The interfaces here decouple search and backfill from the backend. The
// badger package implements all of them on an embedded BadgerDB; the qdrant
// package implements VectorSearcher on a Qdrant collection that mirrors the
// complete feature rows.
//
// # Repositories
//
//   - CatalogRepository: Item rows and distinct attribute listings
//   - FeatureRepository: FeatureRow storage, coalescing upserts, the pending
//     index used by backfill, and exact similarity scans
//   - FeatureWriter: batched coalescing upserts committed together
//   - ColorMappingRepository: the source to target color table
//   - CheckpointRepository: resumable job progress
//   - LockRepository: expiring single-writer locks
//
// # Usage
//
//	repos, err := badger.NewRepositories("/path/to/db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer repos.Close()
//
// Use in tests with in-memory storage:
//
//	repos, err := badger.NewMemoryRepositories()
//
// # Serialization
//
// Records are encoded with msgpack. Decoded timestamps are normalized to UTC.
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines. FeatureWriter is the
// exception: a writer belongs to a single goroutine.
package storage
