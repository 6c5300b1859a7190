package ai

import (
	"context"

	"github.com/poiesic/lookbook/core"
)

// TextEmbedder generates vector embeddings from text.
// Implementations must be thread-safe for concurrent use.
type TextEmbedder interface {
	// EmbedTexts generates one L2-normalized vector per input text, in input
	// order. Empty input returns empty output without a remote call.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// ImageEmbedder generates vector embeddings from images.
// Implementations must be thread-safe for concurrent use.
type ImageEmbedder interface {
	// EmbedImages generates one L2-normalized vector per image, in input
	// order. Empty input returns empty output without a remote call.
	EmbedImages(ctx context.Context, images []Image) ([][]float32, error)
}

// FilterExtractor turns free query text into structured filters.
// Implementations must be thread-safe for concurrent use.
type FilterExtractor interface {
	// ExtractFilters analyzes text and matches brand, category and color
	// against vocab. Values with no good match are left nil.
	// CleanQuery and StyleQuery are always populated.
	ExtractFilters(ctx context.Context, text string, vocab *core.Vocabulary) (*core.Filters, error)
}

// Provider aggregates the AI services the catalog needs.
// A provider is constructed once at process start and passed by reference.
type Provider interface {
	// ClipText returns the short-text encoder paired with the image encoder.
	ClipText() TextEmbedder

	// SemanticText returns the general sentence encoder.
	SemanticText() TextEmbedder

	// Image returns the image encoder.
	Image() ImageEmbedder

	// Extractor returns the filter extraction service. May be nil when the
	// provider has no classifier configured.
	Extractor() FilterExtractor

	// Close releases resources held by the provider and its services.
	Close() error
}

// TextEmbedderFunc adapts a function to TextEmbedder.
type TextEmbedderFunc func(ctx context.Context, texts []string) ([][]float32, error)

func (f TextEmbedderFunc) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return f(ctx, texts)
}
