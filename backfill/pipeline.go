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
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/poiesic/lookbook/ai"
	"github.com/poiesic/lookbook/core"
	"github.com/poiesic/lookbook/events"
	"github.com/poiesic/lookbook/storage"
)

// JobName keys the checkpoint and the run lock.
const JobName = "backfill"

var tracer = otel.Tracer("lookbook/backfill")

// Stats summarizes a run.
type Stats struct {
	RunID      string
	Batches    int
	Items      int // Pending items visited
	Upserted   int // Items that received at least one vector
	Skipped    int // Slots with no source text or image asset
	EmbedCalls int
	Failures   map[core.Space]int // Slots whose embedding failed
	Commits    int
	Resumed    bool
}

// Pipeline fills empty embedding slots of catalog items. Only one run may
// hold the lock at a time.
type Pipeline struct {
	features    storage.FeatureRepository
	catalog     storage.CatalogRepository
	checkpoints storage.CheckpointRepository
	locks       storage.LockRepository
	config      *Config
	progress    io.Writer
	pool        *ants.Pool
	processor   *BatchProcessor
	iterator    *PendingIterator
	publisher   events.Publisher
	mirror      storage.IndexWriter
	logger      *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithPublisher announces each commit on publisher.
func WithPublisher(publisher events.Publisher) Option {
	return func(p *Pipeline) error {
		if publisher != nil {
			p.publisher = publisher
		}
		return nil
	}
}

// WithMirror copies each committed row to a secondary index.
func WithMirror(mirror storage.IndexWriter) Option {
	return func(p *Pipeline) error {
		p.mirror = mirror
		return nil
	}
}

// NewPipeline creates a new backfill pipeline.
// progress: where to write progress output (typically os.Stderr); nil discards it.
// Call Release when done.
func NewPipeline(
	features storage.FeatureRepository,
	catalog storage.CatalogRepository,
	checkpoints storage.CheckpointRepository,
	locks storage.LockRepository,
	provider ai.Provider,
	resolver ImageResolver,
	config *Config,
	progress io.Writer,
	opts ...Option,
) (*Pipeline, error) {
	switch {
	case features == nil:
		return nil, ErrFeatureRepositoryRequired
	case catalog == nil:
		return nil, ErrCatalogRepositoryRequired
	case checkpoints == nil:
		return nil, ErrCheckpointRepositoryRequired
	case locks == nil:
		return nil, ErrLockRepositoryRequired
	case provider == nil:
		return nil, ErrAIProviderRequired
	case resolver == nil:
		return nil, ErrImageResolverRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidInput, err)
	}
	if progress == nil {
		progress = io.Discard
	}

	p := &Pipeline{
		features:    features,
		catalog:     catalog,
		checkpoints: checkpoints,
		locks:       locks,
		config:      config,
		progress:    progress,
		publisher:   events.Noop{},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "backfill")

	pool, err := ants.NewPool(config.Workers)
	if err != nil {
		return nil, err
	}
	p.pool = pool
	p.processor = NewBatchProcessor(provider, resolver, features.Dims(), pool, config.MaxRetries, config.RetryDelay, p.logger)
	p.iterator = NewPendingIterator(features, config.BatchSize)
	return p, nil
}

// Release frees the worker pool.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

// run holds the mutable state of one Run.
type run struct {
	stats       *Stats
	writer      storage.FeatureWriter
	cursor      string
	processed   int
	sinceCommit int
	staged      []string
	spaces      map[core.Space]struct{}
}

// Run fills every empty slot it can. It resumes after the last checkpoint,
// commits every CommitEvery batches, and clears the checkpoint once a full
// pass completes. Cancellation is honored between batches; work staged
// before the cancellation is committed.
func (p *Pipeline) Run(ctx context.Context) (*Stats, error) {
	stats := &Stats{RunID: uuid.NewString(), Failures: make(map[core.Space]int)}
	ctx, span := tracer.Start(ctx, "backfill.run", trace.WithAttributes(
		attribute.String("backfill.run_id", stats.RunID),
	))
	defer span.End()

	if err := p.locks.AcquireLock(ctx, JobName, stats.RunID, p.config.LockTTL); err != nil {
		return nil, fmt.Errorf("acquire %s lock: %w", JobName, err)
	}
	defer func() {
		if err := p.locks.ReleaseLock(context.WithoutCancel(ctx), JobName, stats.RunID); err != nil {
			p.logger.Warn("error releasing lock", "err", err)
		}
	}()

	err := p.run(ctx, stats)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return stats, err
	}
	return stats, nil
}

func (p *Pipeline) run(ctx context.Context, stats *Stats) error {
	r := &run{stats: stats, spaces: make(map[core.Space]struct{})}

	checkpoint, err := p.checkpoints.LoadCheckpoint(ctx, JobName)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	if checkpoint != nil {
		r.cursor = checkpoint.Cursor
		r.processed = checkpoint.Processed
		stats.Resumed = true
	}

	total, err := p.features.CountMissingEmbeddings(ctx)
	if err != nil {
		return fmt.Errorf("count pending items: %w", err)
	}
	if total == 0 {
		fmt.Fprintf(p.progress, "No items need embeddings (0 items)\n")
		return p.checkpoints.ClearCheckpoint(ctx, JobName)
	}

	if stats.Resumed {
		fmt.Fprintf(p.progress, "Resuming backfill after %s (%d pending items, batch size: %d)\n",
			r.cursor, total, p.config.BatchSize)
	} else {
		fmt.Fprintf(p.progress, "Starting backfill of %d pending items (batch size: %d)\n",
			total, p.config.BatchSize)
	}

	r.writer, err = p.features.NewFeatureWriter(ctx)
	if err != nil {
		return fmt.Errorf("open feature writer: %w", err)
	}
	defer r.writer.Discard()

	tracker := NewProgressTracker(p.progress, total, p.config.ReportInterval)
	tracker.Start()

	err = p.iterator.ForEach(ctx, r.cursor, func(batch []*core.MissingItem) error {
		upserted, err := p.processBatch(ctx, r, batch)
		if err != nil {
			return err
		}
		tracker.Add(len(batch), upserted)

		if r.sinceCommit >= p.config.CommitEvery {
			if err := p.commit(ctx, r); err != nil {
				return err
			}
		}
		return p.locks.RefreshLock(ctx, JobName, stats.RunID, p.config.LockTTL)
	})

	// Staged work is complete batches; keep it even when the pass stopped.
	if cerr := p.commit(context.WithoutCancel(ctx), r); cerr != nil {
		err = errors.Join(err, cerr)
	}
	tracker.Finish()
	if err != nil {
		return err
	}

	if err := p.checkpoints.ClearCheckpoint(ctx, JobName); err != nil {
		return fmt.Errorf("clear checkpoint: %w", err)
	}

	elapsed := tracker.Elapsed()
	fmt.Fprintf(p.progress, "Backfill complete. Visited %d items, upserted %d in %v (%d embed calls, %d slots skipped, %d failed)\n",
		stats.Items, stats.Upserted, elapsed.Round(time.Millisecond), stats.EmbedCalls, stats.Skipped, failures(stats))
	return nil
}

func (p *Pipeline) processBatch(ctx context.Context, r *run, batch []*core.MissingItem) (int, error) {
	ctx, span := tracer.Start(ctx, "backfill.batch", trace.WithAttributes(
		attribute.Int("backfill.items", len(batch)),
		attribute.String("backfill.first_sku", batch[0].SKU),
	))
	defer span.End()

	result := p.processor.Process(ctx, batch)
	if result.Err != nil {
		p.logger.Warn("batch embedded partially", "first", batch[0].SKU, "last", batch[len(batch)-1].SKU, "err", result.Err)
	}

	for _, sku := range result.Order {
		partial := result.Partials[sku]
		if err := r.writer.Upsert(ctx, sku, partial); err != nil {
			span.RecordError(err)
			return 0, fmt.Errorf("stage features for %s: %w", sku, err)
		}
		for _, space := range partial.Spaces() {
			r.spaces[space] = struct{}{}
		}
	}

	r.staged = append(r.staged, result.Order...)
	r.cursor = batch[len(batch)-1].SKU
	r.processed += len(batch)
	r.sinceCommit++

	r.stats.Batches++
	r.stats.Items += len(batch)
	r.stats.Upserted += len(result.Order)
	r.stats.Skipped += result.Skipped
	r.stats.EmbedCalls += result.EmbedCalls
	for space, n := range result.Failures {
		r.stats.Failures[space] += n
	}
	return len(result.Order), nil
}

// commit makes staged vectors durable, then records the checkpoint,
// mirrors the rows, and announces them.
func (p *Pipeline) commit(ctx context.Context, r *run) error {
	if r.sinceCommit == 0 {
		return nil
	}
	if err := r.writer.Commit(); err != nil {
		return fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}
	r.stats.Commits++

	err := p.checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{
		Job:       JobName,
		Cursor:    r.cursor,
		Processed: r.processed,
	})
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	skus := r.staged
	spaces := make([]string, 0, len(r.spaces))
	for _, space := range core.AllSpaces {
		if _, ok := r.spaces[space]; ok {
			spaces = append(spaces, space.String())
		}
	}
	r.staged = nil
	r.spaces = make(map[core.Space]struct{})
	r.sinceCommit = 0

	if len(skus) == 0 {
		return nil
	}
	p.mirrorRows(ctx, skus)

	event := events.FeaturesUpdated{RunID: r.stats.RunID, SKUs: skus, Spaces: spaces, At: time.Now().UTC()}
	if err := p.publisher.Publish(ctx, event); err != nil {
		p.logger.Warn("error publishing features update", "skus", len(skus), "err", err)
	}
	return nil
}

// mirrorRows copies committed rows to the mirror index. Mirror failures are
// logged; the next sync-index pass repairs them.
func (p *Pipeline) mirrorRows(ctx context.Context, skus []string) {
	if p.mirror == nil {
		return
	}
	rows, err := p.features.GetFeatures(ctx, skus...)
	if err != nil {
		p.logger.Warn("error loading rows to mirror", "err", err)
		return
	}
	items, err := p.catalog.GetItems(ctx, skus...)
	if err != nil {
		p.logger.Warn("error loading items to mirror", "err", err)
		return
	}
	bySKU := make(map[string]*core.Item, len(items))
	for _, item := range items {
		bySKU[item.SKU] = item
	}

	mirrored := make([]storage.IndexRow, 0, len(rows))
	for _, row := range rows {
		if item, ok := bySKU[row.SKU]; ok {
			mirrored = append(mirrored, storage.IndexRow{Item: item, Vectors: row.Vectors})
		}
	}
	if err := p.mirror.UpsertRows(ctx, mirrored); err != nil {
		p.logger.Warn("error mirroring rows", "rows", len(mirrored), "err", err)
	}
}

func failures(stats *Stats) int {
	total := 0
	for _, n := range stats.Failures {
		total += n
	}
	return total
}
