package mock

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/poiesic/lookbook/ai"
	"github.com/poiesic/lookbook/core"
)

// MockTextEmbedder is a test double for ai.TextEmbedder.
// It allows custom behavior injection via EmbedTextsFunc and records every call.
type MockTextEmbedder struct {
	// EmbedTextsFunc is called by EmbedTexts if set.
	// If nil, uses default deterministic behavior.
	EmbedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)

	dims int

	mu     sync.Mutex
	calls  int
	inputs [][]string
}

// NewMockTextEmbedder creates a mock text embedder producing dims-length vectors.
// Note: Returns concrete type to allow test assertions.
func NewMockTextEmbedder(dims int) *MockTextEmbedder {
	return &MockTextEmbedder{dims: dims}
}

// WithEmbedTextsFunc sets custom behavior and returns the embedder.
func (m *MockTextEmbedder) WithEmbedTextsFunc(fn func(ctx context.Context, texts []string) ([][]float32, error)) *MockTextEmbedder {
	m.EmbedTextsFunc = fn
	return m
}

// EmbedTexts generates deterministic unit vectors from a hash of each text.
// Empty input returns empty output and is not counted as a call.
func (m *MockTextEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	m.mu.Lock()
	m.calls++
	m.inputs = append(m.inputs, append([]string(nil), texts...))
	m.mu.Unlock()

	if m.EmbedTextsFunc != nil {
		return m.EmbedTextsFunc(ctx, texts)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = DeterministicVector(text, m.dims)
	}
	return vectors, nil
}

// CallCount returns the number of non-empty EmbedTexts calls.
func (m *MockTextEmbedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Inputs returns the texts passed to each call, in call order.
func (m *MockTextEmbedder) Inputs() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.inputs...)
}

// Reset clears recorded calls and custom behavior.
func (m *MockTextEmbedder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = 0
	m.inputs = nil
	m.EmbedTextsFunc = nil
}

// MockImageEmbedder is a test double for ai.ImageEmbedder. The default
// vector is derived from the image path, or from the data when there is no path.
type MockImageEmbedder struct {
	EmbedImagesFunc func(ctx context.Context, images []ai.Image) ([][]float32, error)

	dims int

	mu     sync.Mutex
	calls  int
	inputs [][]ai.Image
}

// NewMockImageEmbedder creates a mock image embedder producing dims-length vectors.
func NewMockImageEmbedder(dims int) *MockImageEmbedder {
	return &MockImageEmbedder{dims: dims}
}

// WithEmbedImagesFunc sets custom behavior and returns the embedder.
func (m *MockImageEmbedder) WithEmbedImagesFunc(fn func(ctx context.Context, images []ai.Image) ([][]float32, error)) *MockImageEmbedder {
	m.EmbedImagesFunc = fn
	return m
}

func (m *MockImageEmbedder) EmbedImages(ctx context.Context, images []ai.Image) ([][]float32, error) {
	if len(images) == 0 {
		return [][]float32{}, nil
	}
	m.mu.Lock()
	m.calls++
	m.inputs = append(m.inputs, append([]ai.Image(nil), images...))
	m.mu.Unlock()

	if m.EmbedImagesFunc != nil {
		return m.EmbedImagesFunc(ctx, images)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(images))
	for i, img := range images {
		seed := img.Path
		if seed == "" {
			seed = string(img.Data)
		}
		vectors[i] = DeterministicVector(seed, m.dims)
	}
	return vectors, nil
}

// CallCount returns the number of non-empty EmbedImages calls.
func (m *MockImageEmbedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Inputs returns the images passed to each call, in call order.
func (m *MockImageEmbedder) Inputs() [][]ai.Image {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]ai.Image(nil), m.inputs...)
}

// Reset clears recorded calls and custom behavior.
func (m *MockImageEmbedder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = 0
	m.inputs = nil
	m.EmbedImagesFunc = nil
}

// DeterministicVector creates a unit vector from seed. The same seed always
// produces the same vector.
func DeterministicVector(seed string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(seed))
	state := h.Sum32()

	vector := make([]float32, dim)
	for i := range vector {
		state = state*1664525 + 1013904223 // LCG constants
		vector[i] = float32(state%1000)/1000.0 + 0.001
	}
	return core.NormalizeVector(vector)
}

// UnitVector returns a dims-length vector with 1 at index i.
func UnitVector(dims, i int) []float32 {
	v := make([]float32, dims)
	v[i%dims] = 1
	return v
}
