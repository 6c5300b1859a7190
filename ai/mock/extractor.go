package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/poiesic/lookbook/core"
)

// MockFilterExtractor is a test double for ai.FilterExtractor.
type MockFilterExtractor struct {
	// ExtractFiltersFunc is called by ExtractFilters if set.
	// If nil, returns filters with only CleanQuery and StyleQuery set to the text.
	ExtractFiltersFunc func(ctx context.Context, text string, vocab *core.Vocabulary) (*core.Filters, error)

	mu        sync.Mutex
	callCount int
	lastVocab *core.Vocabulary
}

// NewMockFilterExtractor creates a mock extractor with default behavior.
func NewMockFilterExtractor() *MockFilterExtractor {
	return &MockFilterExtractor{}
}

// WithExtractFiltersFunc sets custom behavior and returns the extractor.
func (m *MockFilterExtractor) WithExtractFiltersFunc(fn func(ctx context.Context, text string, vocab *core.Vocabulary) (*core.Filters, error)) *MockFilterExtractor {
	m.ExtractFiltersFunc = fn
	return m
}

func (m *MockFilterExtractor) ExtractFilters(ctx context.Context, text string, vocab *core.Vocabulary) (*core.Filters, error) {
	m.mu.Lock()
	m.callCount++
	m.lastVocab = vocab
	m.mu.Unlock()

	if m.ExtractFiltersFunc != nil {
		return m.ExtractFiltersFunc(ctx, text, vocab)
	}
	text = strings.TrimSpace(text)
	return &core.Filters{CleanQuery: text, StyleQuery: text}, nil
}

// CallCount returns the number of times ExtractFilters was called.
func (m *MockFilterExtractor) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// LastVocabulary returns the vocabulary passed to the latest call.
func (m *MockFilterExtractor) LastVocabulary() *core.Vocabulary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastVocab
}
