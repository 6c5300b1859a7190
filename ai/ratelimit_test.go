package ai

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingText struct{ calls atomic.Int32 }

func (c *countingText) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1}
	}
	return out, nil
}

func TestNewRateLimitedText_DisabledReturnsInner(t *testing.T) {
	inner := &countingText{}
	assert.Same(t, inner, NewRateLimitedText(inner, 0, 1))
}

func TestRateLimitedText_Throttles(t *testing.T) {
	inner := &countingText{}
	limited := NewRateLimitedText(inner, 20, 1)
	ctx := context.Background()

	start := time.Now()
	for range 3 {
		out, err := limited.EmbedTexts(ctx, []string{"a"})
		require.NoError(t, err)
		assert.Len(t, out, 1)
	}
	// Burst of one at 20/s: the second and third calls wait ~50ms each.
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	assert.Equal(t, int32(3), inner.calls.Load())
}

func TestRateLimitedText_EmptyInputSkipsLimiter(t *testing.T) {
	inner := &countingText{}
	limited := NewRateLimitedText(inner, 1, 1)

	out, err := limited.EmbedTexts(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Zero(t, inner.calls.Load())
}

func TestRateLimitedText_CancelledWait(t *testing.T) {
	inner := &countingText{}
	limited := NewRateLimitedText(inner, 0.1, 1)

	_, err := limited.EmbedTexts(context.Background(), []string{"a"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = limited.EmbedTexts(ctx, []string{"b"})
	assert.Error(t, err)
	assert.Equal(t, int32(1), inner.calls.Load())
}
