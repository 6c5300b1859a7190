// Package color maps free-text catalog colors onto a fixed vocabulary.
//
// A Normalizer embeds the vocabulary once and classifies raw values by
// nearest neighbor in text-embedding space. A Mapper runs the normalizer over
// every distinct catalog color and swaps the result in as the color mapping
// table, so query-time filtering never embeds anything.
package color

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/poiesic/lookbook/ai"
	"github.com/poiesic/lookbook/core"
)

var (
	// ErrEmbedderRequired is returned when no embedder is supplied.
	ErrEmbedderRequired = errors.New("color: embedder is required")

	// ErrEmptyVocabulary is returned when the vocabulary has no entries.
	ErrEmptyVocabulary = errors.New("color: vocabulary is empty")
)

// Normalizer classifies raw color strings. Its vocabulary corpus is computed
// once in NewNormalizer and never changes afterwards, so a Normalizer is
// safe for concurrent use.
type Normalizer struct {
	embedder ai.TextEmbedder
	vocab    []string
	index    map[string]int // normalized vocab entry -> position
	corpus   [][]float32
	logger   *slog.Logger
}

// Option configures a Normalizer.
type Option func(*Normalizer) error

// WithVocabulary replaces the default vocabulary. Entries are kept in order.
func WithVocabulary(colors []string) Option {
	return func(n *Normalizer) error {
		if len(colors) == 0 {
			return ErrEmptyVocabulary
		}
		n.vocab = slices.Clone(colors)
		return nil
	}
}

// WithLogger sets the logger. A nil logger falls back to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Normalizer) error {
		if logger == nil {
			logger = slog.Default()
		}
		n.logger = logger
		return nil
	}
}

// NewNormalizer embeds the vocabulary with one batched call.
func NewNormalizer(ctx context.Context, embedder ai.TextEmbedder, opts ...Option) (*Normalizer, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	n := &Normalizer{
		embedder: embedder,
		vocab:    slices.Clone(Vocabulary),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(n); err != nil {
			return nil, err
		}
	}
	n.logger = n.logger.With("component", "color-normalizer")

	n.index = make(map[string]int, len(n.vocab))
	phrases := make([]string, len(n.vocab))
	for i, c := range n.vocab {
		key := core.NormalizeValue(c)
		if _, dup := n.index[key]; dup {
			return nil, fmt.Errorf("%w: duplicate vocabulary entry %q", core.ErrInvalidInput, c)
		}
		n.index[key] = i
		phrases[i] = Phrase(c)
	}

	corpus, err := n.embed(ctx, phrases)
	if err != nil {
		return nil, fmt.Errorf("embed color vocabulary: %w", err)
	}
	n.corpus = corpus
	n.logger.Debug("embedded color vocabulary", "size", len(n.vocab))
	return n, nil
}

// Vocabulary returns the normalizer's vocabulary in order.
func (n *Normalizer) Vocabulary() []string {
	return slices.Clone(n.vocab)
}

// Classify returns the vocabulary entry nearest to raw.
func (n *Normalizer) Classify(ctx context.Context, raw string) (string, error) {
	targets, err := n.ClassifyAll(ctx, []string{raw})
	if err != nil {
		return "", err
	}
	return targets[0], nil
}

// ClassifyAll classifies every raw value, returning targets aligned with
// raws. Values found verbatim in the vocabulary (ignoring case) map to
// themselves; the rest are embedded in one batched call.
func (n *Normalizer) ClassifyAll(ctx context.Context, raws []string) ([]string, error) {
	targets := make([]string, len(raws))
	var pending []int
	var phrases []string
	for i, raw := range raws {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return nil, fmt.Errorf("%w: empty color at position %d", core.ErrInvalidInput, i)
		}
		if pos, ok := n.index[core.NormalizeValue(raw)]; ok {
			targets[i] = n.vocab[pos]
			continue
		}
		pending = append(pending, i)
		phrases = append(phrases, Phrase(raw))
	}
	if len(pending) == 0 {
		return targets, nil
	}

	vectors, err := n.embed(ctx, phrases)
	if err != nil {
		return nil, err
	}
	for j, i := range pending {
		targets[i] = n.vocab[n.nearest(vectors[j])]
	}
	return targets, nil
}

// nearest returns the position of the corpus entry with the highest dot
// product against v. Ties keep the earliest position.
func (n *Normalizer) nearest(v []float32) int {
	best := 0
	bestScore := core.DotProduct(n.corpus[0], v)
	for i := 1; i < len(n.corpus); i++ {
		if score := core.DotProduct(n.corpus[i], v); score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

func (n *Normalizer) embed(ctx context.Context, phrases []string) ([][]float32, error) {
	vectors, err := n.embedder.EmbedTexts(ctx, phrases)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrEmbedderUnavailable, err)
	}
	if len(vectors) != len(phrases) {
		return nil, fmt.Errorf("%w: expected %d vectors, got %d", core.ErrEmbedderUnavailable, len(phrases), len(vectors))
	}
	return vectors, nil
}
