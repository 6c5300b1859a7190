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

package backfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/poiesic/lookbook/ai"
	"github.com/poiesic/lookbook/core"
)

// slot is one empty vector field of one item.
type slot struct {
	sku   string
	space core.Space
}

// embedJob is one batched embedder call covering many slots.
type embedJob struct {
	name  string
	slots []slot
	embed func(ctx context.Context) ([][]float32, error)
}

// BatchResult is the outcome of embedding one batch.
type BatchResult struct {
	// Partials holds the newly computed vectors per SKU. Only filled slots
	// are set, so each partial is a valid coalescing upsert.
	Partials map[string]core.FeatureVector

	// Order lists the SKUs of Partials in batch order.
	Order      []string
	Skipped    int
	EmbedCalls int
	Failures   map[core.Space]int
	Err        error // Joined job errors, informational
}

// BatchProcessor groups the empty slots of a batch by modality and fills
// them with one embedder call per modality.
type BatchProcessor struct {
	clipText       ai.TextEmbedder
	semantic       ai.TextEmbedder
	image          ai.ImageEmbedder
	resolver       ImageResolver
	dims           core.SpaceDims
	pool           *ants.Pool
	maxRetries     int
	retryBaseDelay time.Duration
	logger         *slog.Logger
}

// NewBatchProcessor creates a new batch processor. Jobs run on pool.
// Returned vectors are checked against dims; a nil dims uses
// core.DefaultSpaceDims.
func NewBatchProcessor(provider ai.Provider, resolver ImageResolver, dims core.SpaceDims, pool *ants.Pool, maxRetries int, retryBaseDelay time.Duration, logger *slog.Logger) *BatchProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	if dims == nil {
		dims = core.DefaultSpaceDims()
	}
	return &BatchProcessor{
		clipText:       provider.ClipText(),
		semantic:       provider.SemanticText(),
		image:          provider.Image(),
		resolver:       resolver,
		dims:           dims,
		pool:           pool,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
		logger:         logger,
	}
}

// Process embeds every fillable slot of items. Embedding runs detached from
// ctx cancellation so a started batch always finishes. A failed modality is
// reported in Failures and leaves the other modalities' vectors intact.
func (bp *BatchProcessor) Process(ctx context.Context, items []*core.MissingItem) *BatchResult {
	result := &BatchResult{
		Partials: make(map[string]core.FeatureVector, len(items)),
		Failures: make(map[core.Space]int),
	}
	if len(items) == 0 {
		return result
	}
	ctx = context.WithoutCancel(ctx)

	jobs := []*embedJob{
		bp.textJob(items, core.SpaceClipText, bp.clipText, result),
		bp.textJob(items, core.SpaceSemanticText, bp.semantic, result),
		bp.imageJob(ctx, items, result),
	}

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		calls atomic.Int32
		errs  []error
	)
	record := func(job *embedJob, vectors [][]float32, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", job.name, err))
			for _, s := range job.slots {
				result.Failures[s.space]++
			}
			return
		}
		for i, s := range job.slots {
			fv := result.Partials[s.sku]
			fv.Set(s.space, core.NormalizeVector(vectors[i]))
			result.Partials[s.sku] = fv
		}
	}

	for _, job := range jobs {
		if job == nil || len(job.slots) == 0 {
			continue
		}
		wg.Add(1)
		err := bp.pool.Submit(func() {
			defer wg.Done()
			vectors, err := bp.run(ctx, job, &calls)
			record(job, vectors, err)
		})
		if err != nil {
			wg.Done()
			record(job, nil, err)
		}
	}
	wg.Wait()

	for _, item := range items {
		if _, ok := result.Partials[item.SKU]; ok {
			result.Order = append(result.Order, item.SKU)
		}
	}
	result.EmbedCalls = int(calls.Load())
	result.Err = errors.Join(errs...)
	return result
}

func (bp *BatchProcessor) run(ctx context.Context, job *embedJob, calls *atomic.Int32) ([][]float32, error) {
	ctx, span := tracer.Start(ctx, "backfill.embed", trace.WithAttributes(
		attribute.String("backfill.job", job.name),
		attribute.Int("backfill.slots", len(job.slots)),
	))
	defer span.End()

	var vectors [][]float32
	err := RetryWithBackoff(ctx, func(ctx context.Context) error {
		calls.Add(1)
		var err error
		vectors, err = job.embed(ctx)
		if err != nil {
			return err
		}
		if len(vectors) != len(job.slots) {
			return fmt.Errorf("%w: expected %d vectors, got %d", core.ErrEmbedderUnavailable, len(job.slots), len(vectors))
		}
		// Dimension mismatches are permanent and end the retry loop.
		for i, s := range job.slots {
			if err := core.ValidateVector(bp.dims, s.space, vectors[i]); err != nil {
				return fmt.Errorf("%s: %w", s.sku, err)
			}
		}
		return nil
	}, bp.maxRetries, bp.retryBaseDelay)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		bp.logger.Warn("embedding job failed, slots stay pending", "job", job.name, "slots", len(job.slots), "err", err)
		if !errors.Is(err, core.ErrEmbedderUnavailable) && !permanent(err) {
			err = fmt.Errorf("%w: %w", core.ErrEmbedderUnavailable, err)
		}
		return nil, err
	}
	return vectors, nil
}

// textJob embeds the texts field of every item missing space. Items with
// no text are skipped.
func (bp *BatchProcessor) textJob(items []*core.MissingItem, space core.Space, embedder ai.TextEmbedder, result *BatchResult) *embedJob {
	job := &embedJob{name: space.String()}
	var texts []string
	for _, item := range items {
		if !item.Needs(space) {
			continue
		}
		text := strings.TrimSpace(item.Texts)
		if text == "" {
			result.Skipped++
			continue
		}
		job.slots = append(job.slots, slot{sku: item.SKU, space: space})
		texts = append(texts, text)
	}
	job.embed = func(ctx context.Context) ([][]float32, error) {
		return embedder.EmbedTexts(ctx, texts)
	}
	return job
}

// imageJob resolves every empty image slot and embeds the found assets in
// one call. Absent assets are skipped.
func (bp *BatchProcessor) imageJob(ctx context.Context, items []*core.MissingItem, result *BatchResult) *embedJob {
	job := &embedJob{name: "image"}
	var images []ai.Image
	for _, item := range items {
		for _, space := range core.ImageSpaces {
			if !item.Needs(space) {
				continue
			}
			img, ok, err := bp.resolver.Resolve(ctx, item, space)
			if err != nil {
				bp.logger.Warn("error resolving image", "sku", item.SKU, "space", space, "err", err)
				result.Failures[space]++
				continue
			}
			if !ok {
				result.Skipped++
				continue
			}
			job.slots = append(job.slots, slot{sku: item.SKU, space: space})
			images = append(images, img)
		}
	}
	job.embed = func(ctx context.Context) ([][]float32, error) {
		return bp.image.EmbedImages(ctx, images)
	}
	return job
}
