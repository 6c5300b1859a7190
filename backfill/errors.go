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

package backfill

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrFeatureRepositoryRequired is returned when the feature repository is nil.
	ErrFeatureRepositoryRequired = errors.New("feature repository is required")

	// ErrCatalogRepositoryRequired is returned when the catalog repository is nil.
	ErrCatalogRepositoryRequired = errors.New("catalog repository is required")

	// ErrCheckpointRepositoryRequired is returned when the checkpoint repository is nil.
	ErrCheckpointRepositoryRequired = errors.New("checkpoint repository is required")

	// ErrLockRepositoryRequired is returned when the lock repository is nil.
	ErrLockRepositoryRequired = errors.New("lock repository is required")

	// ErrAIProviderRequired is returned when the AI provider is nil.
	ErrAIProviderRequired = errors.New("AI provider is required")

	// ErrImageResolverRequired is returned when the image resolver is nil.
	ErrImageResolverRequired = errors.New("image resolver is required")
)
