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

import (
	"fmt"
	"strings"
)

// ValidateItem validates an Item according to domain rules.
//
// Validation rules:
//   - SKU must not be empty
//   - Price must not be negative
//
// NOT validated (optional attributes):
//   - Images and texts (items without them are skipped by backfill)
func ValidateItem(item *Item) error {
	if item == nil {
		return fmt.Errorf("%w: item is nil", ErrInvalidItem)
	}

	if strings.TrimSpace(item.SKU) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidItem, ErrEmptySKU)
	}

	if item.Price < 0 {
		return fmt.Errorf("%w: %w", ErrInvalidItem, ErrNegativePrice)
	}

	return nil
}

// ValidateVector checks that v has the dimension configured for space.
func ValidateVector(dims SpaceDims, space Space, v []float32) error {
	if !space.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownSpace, int(space))
	}
	want, ok := dims[space]
	if !ok {
		want = space.Dims()
	}
	if len(v) != want {
		return fmt.Errorf("%w: %s expects %d, got %d", ErrDimensionMismatch, space, want, len(v))
	}
	return nil
}

// ValidateFeatures checks every populated slot of f against dims.
func ValidateFeatures(dims SpaceDims, f FeatureVector) error {
	for _, s := range f.Spaces() {
		if err := ValidateVector(dims, s, f.Get(s)); err != nil {
			return err
		}
	}
	return nil
}

// ValidateFilters validates a Filters value.
//
// Validation rules:
//   - Price bounds must not be negative
//   - MinPrice must not exceed MaxPrice when both are set
func ValidateFilters(f *Filters) error {
	if f == nil {
		return nil
	}
	if (f.MinPrice != nil && *f.MinPrice < 0) || (f.MaxPrice != nil && *f.MaxPrice < 0) {
		return fmt.Errorf("%w: %w", ErrInvalidInput, ErrNegativePrice)
	}
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		return fmt.Errorf("%w: %w", ErrInvalidInput, ErrInvalidPriceRange)
	}
	return nil
}

// NormalizeValue canonicalizes an attribute value for case-insensitive comparison.
func NormalizeValue(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
