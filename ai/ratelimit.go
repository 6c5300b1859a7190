package ai

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedText throttles calls to a TextEmbedder. Each EmbedTexts call
// takes one token.
type RateLimitedText struct {
	inner   TextEmbedder
	limiter *rate.Limiter
}

// NewRateLimitedText wraps inner with a limiter of rps calls per second.
// A non-positive rps returns inner unchanged.
func NewRateLimitedText(inner TextEmbedder, rps float64, burst int) TextEmbedder {
	if rps <= 0 {
		return inner
	}
	return &RateLimitedText{inner: inner, limiter: rate.NewLimiter(rate.Limit(rps), max(burst, 1))}
}

func (r *RateLimitedText) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.EmbedTexts(ctx, texts)
}

// RateLimitedImage throttles calls to an ImageEmbedder.
type RateLimitedImage struct {
	inner   ImageEmbedder
	limiter *rate.Limiter
}

// NewRateLimitedImage wraps inner with a limiter of rps calls per second.
// A non-positive rps returns inner unchanged.
func NewRateLimitedImage(inner ImageEmbedder, rps float64, burst int) ImageEmbedder {
	if rps <= 0 {
		return inner
	}
	return &RateLimitedImage{inner: inner, limiter: rate.NewLimiter(rate.Limit(rps), max(burst, 1))}
}

func (r *RateLimitedImage) EmbedImages(ctx context.Context, images []Image) ([][]float32, error) {
	if len(images) == 0 {
		return [][]float32{}, nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.EmbedImages(ctx, images)
}

// RateLimited wraps a Provider so its embedders share the throttle of a
// batch job. The extractor is passed through.
func RateLimited(p Provider, rps float64) Provider {
	if rps <= 0 {
		return p
	}
	return &rateLimitedProvider{
		Provider: p,
		clipText: NewRateLimitedText(p.ClipText(), rps, 1),
		semantic: NewRateLimitedText(p.SemanticText(), rps, 1),
		image:    NewRateLimitedImage(p.Image(), rps, 1),
	}
}

type rateLimitedProvider struct {
	Provider
	clipText TextEmbedder
	semantic TextEmbedder
	image    ImageEmbedder
}

func (p *rateLimitedProvider) ClipText() TextEmbedder     { return p.clipText }
func (p *rateLimitedProvider) SemanticText() TextEmbedder { return p.semantic }
func (p *rateLimitedProvider) Image() ImageEmbedder       { return p.image }
