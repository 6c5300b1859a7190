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

package openai

import (
	"log/slog"

	"github.com/poiesic/lookbook/ai"
	"github.com/poiesic/lookbook/ai/clip"
)

// Provider implements ai.Provider using OpenAI-compatible services.
// The CLIP text tower and the image tower share ClipHost; the sentence
// encoder and classifier have their own hosts.
type Provider struct {
	config    *ai.Config
	clipText  *TextEmbedder
	semantic  *TextEmbedder
	image     *clip.ImageEmbedder
	extractor *FilterExtractor
	logger    *slog.Logger
}

var _ ai.Provider = (*Provider)(nil)

// NewProvider creates a new AI provider with OpenAI-compatible services.
// The config is validated and normalized before use. Filter extraction is
// disabled when config.ClassifierModel is empty.
func NewProvider(config *ai.Config) (*Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	clipText, err := newTextEmbedder(config.ClipHost, config.APIKey, config.ClipTextModel, config.EmbedBatchSize)
	if err != nil {
		return nil, err
	}
	semantic, err := newTextEmbedder(config.EmbeddingHost, config.APIKey, config.SemanticModel, config.EmbedBatchSize)
	if err != nil {
		return nil, err
	}
	image, err := clip.NewImageEmbedder(config)
	if err != nil {
		return nil, err
	}

	p := &Provider{
		config:   config,
		clipText: clipText,
		semantic: semantic,
		image:    image,
		logger:   slog.Default().With("component", "openai-provider"),
	}
	if config.ClassifierModel != "" {
		if p.extractor, err = newFilterExtractor(config); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// ClipText returns the CLIP text tower.
func (p *Provider) ClipText() ai.TextEmbedder {
	return p.clipText
}

// SemanticText returns the sentence encoder.
func (p *Provider) SemanticText() ai.TextEmbedder {
	return p.semantic
}

// Image returns the CLIP image tower.
func (p *Provider) Image() ai.ImageEmbedder {
	return p.image
}

// Extractor returns the filter extractor, or nil when no classifier is configured.
func (p *Provider) Extractor() ai.FilterExtractor {
	if p.extractor == nil {
		return nil
	}
	return p.extractor
}

// Close releases resources held by the provider.
// Currently a no-op as the underlying clients don't require explicit cleanup.
func (p *Provider) Close() error {
	p.logger.Debug("closing OpenAI provider")
	return nil
}
