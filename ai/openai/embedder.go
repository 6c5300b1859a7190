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
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/poiesic/lookbook/ai"
	"github.com/poiesic/lookbook/core"
)

// TextEmbedder implements ai.TextEmbedder using an OpenAI-compatible
// embeddings API. Vectors are L2-normalized.
type TextEmbedder struct {
	embedder embeddings.Embedder
	model    string
	logger   *slog.Logger
}

var _ ai.TextEmbedder = (*TextEmbedder)(nil)

// newTextEmbedder is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newTextEmbedder(host, apiKey, model string, batchSize int) (*TextEmbedder, error) {
	client, err := openai.New(
		openai.WithBaseURL(host),
		openai.WithToken(apiKey),
		openai.WithEmbeddingModel(model),
	)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(batchSize),
	)
	if err != nil {
		return nil, err
	}

	return &TextEmbedder{
		embedder: embedder,
		model:    model,
		logger:   slog.Default().With("component", "openai-embedder", "model", model),
	}, nil
}

// NewSemanticEmbedder creates the sentence encoder for the semantic_text space.
func NewSemanticEmbedder(config *ai.Config) (*TextEmbedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return newTextEmbedder(config.EmbeddingHost, config.APIKey, config.SemanticModel, config.EmbedBatchSize)
}

// NewClipTextEmbedder creates the CLIP text tower for the clip_text space.
// It shares the CLIP server with the image tower.
func NewClipTextEmbedder(config *ai.Config) (*TextEmbedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return newTextEmbedder(config.ClipHost, config.APIKey, config.ClipTextModel, config.EmbedBatchSize)
}

// EmbedTexts generates vector embeddings for multiple text strings in a batch.
func (e *TextEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %w", core.ErrEmbedderUnavailable, e.model, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: %s returned %d vectors for %d texts",
			core.ErrEmbedderUnavailable, e.model, len(vectors), len(texts))
	}

	for i, v := range vectors {
		vectors[i] = core.NormalizeVector(v)
	}
	return vectors, nil
}
