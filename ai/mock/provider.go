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

package mock

import (
	"github.com/poiesic/lookbook/ai"
	"github.com/poiesic/lookbook/core"
)

// MockProvider is a test double for ai.Provider.
// It aggregates mock embedder and extractor instances.
type MockProvider struct {
	clipText  *MockTextEmbedder
	semantic  *MockTextEmbedder
	image     *MockImageEmbedder
	extractor *MockFilterExtractor
}

// NewMockProvider creates a mock provider whose embedders produce vectors of
// the given dimensions. A nil dims uses core.DefaultSpaceDims.
//
// Returns the concrete type so tests can reach the mocks.
func NewMockProvider(dims core.SpaceDims) *MockProvider {
	if dims == nil {
		dims = core.DefaultSpaceDims()
	}
	return &MockProvider{
		clipText:  NewMockTextEmbedder(dims[core.SpaceClipText]),
		semantic:  NewMockTextEmbedder(dims[core.SpaceSemanticText]),
		image:     NewMockImageEmbedder(dims[core.SpaceClipImagePrimary]),
		extractor: NewMockFilterExtractor(),
	}
}

var _ ai.Provider = (*MockProvider)(nil)

func (p *MockProvider) ClipText() ai.TextEmbedder     { return p.clipText }
func (p *MockProvider) SemanticText() ai.TextEmbedder { return p.semantic }
func (p *MockProvider) Image() ai.ImageEmbedder       { return p.image }

// Extractor returns the mock extractor, or nil after WithoutExtractor.
func (p *MockProvider) Extractor() ai.FilterExtractor {
	if p.extractor == nil {
		return nil
	}
	return p.extractor
}

// Close is a no-op for mock provider.
func (p *MockProvider) Close() error {
	return nil
}

// WithoutExtractor drops the extractor, as a provider with no classifier.
func (p *MockProvider) WithoutExtractor() *MockProvider {
	p.extractor = nil
	return p
}

// GetClipText returns the clip_text mock for test assertions.
func (p *MockProvider) GetClipText() *MockTextEmbedder { return p.clipText }

// GetSemantic returns the semantic_text mock for test assertions.
func (p *MockProvider) GetSemantic() *MockTextEmbedder { return p.semantic }

// GetImage returns the image mock for test assertions.
func (p *MockProvider) GetImage() *MockImageEmbedder { return p.image }

// GetExtractor returns the extractor mock for test assertions.
func (p *MockProvider) GetExtractor() *MockFilterExtractor { return p.extractor }

// TotalCalls sums the embedding calls across every embedder.
func (p *MockProvider) TotalCalls() int {
	return p.clipText.CallCount() + p.semantic.CallCount() + p.image.CallCount()
}
