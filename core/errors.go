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

package core

import "errors"

// Error taxonomy shared by search and backfill.
var (
	// ErrInvalidInput indicates a user-correctable request error. Not retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmbedderUnavailable indicates an encoder failed or timed out. Retryable.
	ErrEmbedderUnavailable = errors.New("embedder unavailable")

	// ErrStoreUnavailable indicates the vector store could not serve the operation.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrDimensionMismatch indicates a vector length differs from its space's dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrUnknownSpace indicates an unrecognized embedding space.
	ErrUnknownSpace = errors.New("unknown embedding space")
)

// Domain validation errors
var (
	// ErrInvalidItem indicates an Item failed validation.
	ErrInvalidItem = errors.New("invalid item")

	// ErrEmptySKU indicates the SKU field is empty.
	ErrEmptySKU = errors.New("sku cannot be empty")

	// ErrNegativePrice indicates a negative price or price bound.
	ErrNegativePrice = errors.New("price cannot be negative")

	// ErrInvalidPriceRange indicates min_price exceeds max_price.
	ErrInvalidPriceRange = errors.New("min price exceeds max price")

	// ErrEmptyQuery indicates a search with neither text nor image.
	ErrEmptyQuery = errors.New("query has neither text nor image")
)
