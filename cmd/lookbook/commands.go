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

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/nats-io/nats.go"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/lookbook"
	"github.com/poiesic/lookbook/ai"
	"github.com/poiesic/lookbook/ai/openai"
	"github.com/poiesic/lookbook/backfill"
	"github.com/poiesic/lookbook/color"
	"github.com/poiesic/lookbook/core"
	"github.com/poiesic/lookbook/events"
	"github.com/poiesic/lookbook/search"
	"github.com/poiesic/lookbook/storage"
	"github.com/poiesic/lookbook/storage/qdrant"
)

func aiConfig(c *cli.Context) *ai.Config {
	classifierHost := c.String("classifier-host")
	if classifierHost == "" {
		classifierHost = c.String("embedding-host")
	}
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.String("embedding-host")),
		ai.WithClipHost(c.String("clip-host")),
		ai.WithClassifierHost(classifierHost),
		ai.WithAPIKey(c.String("api-key")),
		ai.WithSemanticModel(c.String("semantic-model")),
		ai.WithClipModels(c.String("clip-text-model"), c.String("clip-image-model")),
		ai.WithClassifierModel(c.String("classifier-model")),
		ai.WithEmbedBatchSize(c.Int("embed-batch-size")),
	)
}

// openCatalog opens the database with an OpenAI-compatible provider,
// throttled to rps when rps is positive.
func openCatalog(c *cli.Context, rps float64) (*lookbook.Catalog, error) {
	config := aiConfig(c)
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid AI configuration: %w", err)
	}
	provider, err := openai.NewProvider(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create AI provider: %w", err)
	}

	catalog, err := lookbook.Open(c.String("db"), lookbook.WithProvider(ai.RateLimited(provider, rps)))
	if err != nil {
		provider.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return catalog, nil
}

// connectEvents returns a NATS publisher when url is set and a no-op
// publisher otherwise. The returned func closes the connection.
func connectEvents(url string) (events.Publisher, func(), error) {
	if url == "" {
		return events.Noop{}, func() {}, nil
	}
	nc, err := nats.Connect(url, nats.Name("lookbook"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	publisher, err := events.NewNATSPublisher(nc)
	if err != nil {
		nc.Close()
		return nil, nil, err
	}
	return publisher, func() {
		if err := nc.Drain(); err != nil {
			slog.Warn("error draining NATS connection", "err", err)
		}
	}, nil
}

func openIndex(ctx context.Context, addr, collection string, dims core.SpaceDims) (*qdrant.Index, error) {
	index, err := qdrant.New(addr, collection)
	if err != nil {
		return nil, err
	}
	if err := index.EnsureCollection(ctx, dims); err != nil {
		index.Close()
		return nil, err
	}
	return index, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func importCommand(c *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	var in io.Reader = os.Stdin
	if path := c.String("file"); path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		in = f
	}

	catalog, err := openCatalog(c, 0)
	if err != nil {
		return err
	}
	defer catalog.Close()

	stats, err := catalog.ImportItems(ctx, in, c.Int("batch-size"))
	if stats != nil {
		fmt.Fprintf(c.App.Writer, "Read %d records: %d upserted, %d rejected\n", stats.Read, stats.Upserted, stats.Rejected)
	}
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	return nil
}

func backfillCommand(c *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	config := &backfill.Config{
		BatchSize:      c.Int("batch-size"),
		CommitEvery:    c.Int("commit-every"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
		ReportInterval: c.Int("batch-size"),
		Workers:        c.Int("workers"),
		LockTTL:        backfill.DefaultConfig().LockTTL,
	}
	if err := config.Validate(); err != nil {
		return err
	}

	catalog, err := openCatalog(c, c.Float64("rps"))
	if err != nil {
		return err
	}
	defer catalog.Close()

	publisher, closeEvents, err := connectEvents(c.String("nats-url"))
	if err != nil {
		return err
	}
	defer closeEvents()

	opts := []backfill.Option{backfill.WithPublisher(publisher)}
	if addr := c.String("qdrant-addr"); addr != "" {
		index, err := openIndex(ctx, addr, c.String("collection"), catalog.Repositories().Features.Dims())
		if err != nil {
			return err
		}
		defer index.Close()
		opts = append(opts, backfill.WithMirror(index))
	}

	pipeline, err := catalog.NewPipeline(backfill.DirResolver{Root: c.String("image-dir")}, config, os.Stderr, opts...)
	if err != nil {
		return err
	}
	defer pipeline.Release()

	fmt.Fprintf(os.Stderr, "Database: %s\n", c.String("db"))
	fmt.Fprintf(os.Stderr, "Images: %s\n", c.String("image-dir"))
	fmt.Fprintln(os.Stderr)

	if _, err := pipeline.Run(ctx); err != nil {
		return fmt.Errorf("backfill failed: %w", err)
	}
	return nil
}

func mapColorsCommand(c *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	catalog, err := openCatalog(c, 0)
	if err != nil {
		return err
	}
	defer catalog.Close()

	publisher, closeEvents, err := connectEvents(c.String("nats-url"))
	if err != nil {
		return err
	}
	defer closeEvents()

	mapper, err := catalog.NewMapper(ctx, color.WithPublisher(publisher))
	if err != nil {
		return err
	}
	result, err := mapper.Run(ctx)
	if err != nil {
		return fmt.Errorf("color mapping failed: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "Mapped %d catalog colors onto %d targets\n", len(result.Mapping), len(result.Targets))
	return nil
}

func searchFilters(c *cli.Context) *core.Filters {
	filters := &core.Filters{}
	if v := c.String("brand"); v != "" {
		filters.Brand = &v
	}
	if v := c.String("category"); v != "" {
		filters.Category = &v
	}
	if v := c.String("color"); v != "" {
		filters.Color = &v
	}
	if c.IsSet("min-price") {
		v := c.Float64("min-price")
		filters.MinPrice = &v
	}
	if c.IsSet("max-price") {
		v := c.Float64("max-price")
		filters.MaxPrice = &v
	}
	return filters
}

func searchCommand(c *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	query := search.Query{
		Text:    c.String("text"),
		Filters: searchFilters(c),
		K:       c.Int("k"),
	}
	if path := c.String("image"); path != "" {
		img := ai.ImageFromPath(path)
		query.Image = &img
	}
	if query.Text == "" && query.Image == nil {
		return fmt.Errorf("one of --text or --image is required")
	}
	if c.Bool("extract") && query.Filters.IsEmpty() {
		query.Filters = nil
	}

	catalog, err := openCatalog(c, 0)
	if err != nil {
		return err
	}
	defer catalog.Close()

	opts := []search.Option{
		search.WithWeights(float32(c.Float64("clip-weight")), float32(c.Float64("semantic-weight"))),
	}
	if addr := c.String("qdrant-addr"); addr != "" {
		index, err := qdrant.New(addr, c.String("collection"))
		if err != nil {
			return err
		}
		defer index.Close()
		opts = append(opts, search.WithIndex(index))
	}

	searcher, err := catalog.NewSearcher(opts...)
	if err != nil {
		return err
	}
	result, err := searcher.Search(ctx, query)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	return printResult(c.App.Writer, result)
}

func printResult(w io.Writer, result *search.Result) error {
	fmt.Fprintf(w, "Mode: %s\n", result.Mode)
	if len(result.Unmatched) > 0 {
		fmt.Fprintf(w, "Unmatched filters: %s\n", strings.Join(result.Unmatched, ", "))
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tSKU\tSCORE\tSPACES\tBRAND\tCATEGORY\tCOLOR\tPRICE\tTITLE")
	for i, item := range result.Items {
		fmt.Fprintf(tw, "%d\t%s\t%.2f\t%s\t%s\t%s\t%s\t%.2f\t%s\n",
			i+1, item.SKU, item.Score, spaceScores(item.Scores),
			item.Brand, item.Category, item.Color, item.Price, item.Title)
	}
	return tw.Flush()
}

func spaceScores(scores map[core.Space]float32) string {
	parts := make([]string, 0, len(scores))
	for _, space := range core.AllSpaces {
		if score, ok := scores[space]; ok {
			parts = append(parts, fmt.Sprintf("%s=%.2f", space, score))
		}
	}
	return strings.Join(parts, " ")
}

func syncIndexCommand(c *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	batchSize := c.Int("batch-size")
	if batchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}

	catalog, err := openCatalog(c, 0)
	if err != nil {
		return err
	}
	defer catalog.Close()

	index, err := openIndex(ctx, c.String("qdrant-addr"), c.String("collection"), catalog.Repositories().Features.Dims())
	if err != nil {
		return err
	}
	defer index.Close()

	synced, err := syncRows(ctx, catalog.Repositories().Features, index, batchSize)
	fmt.Fprintf(c.App.Writer, "Mirrored %d rows to %s\n", synced, c.String("collection"))
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	return nil
}

// syncRows copies every complete row from features into index in batches.
func syncRows(ctx context.Context, features storage.FeatureRepository, index storage.IndexWriter, batchSize int) (int, error) {
	rows := make([]storage.IndexRow, 0, batchSize)
	synced := 0
	flush := func() error {
		if len(rows) == 0 {
			return nil
		}
		if err := index.UpsertRows(ctx, rows); err != nil {
			return err
		}
		synced += len(rows)
		rows = rows[:0]
		return nil
	}

	err := features.IterateComplete(ctx, func(item *core.Item, row *core.FeatureRow) error {
		rows = append(rows, storage.IndexRow{Item: item, Vectors: row.Vectors})
		if len(rows) >= batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return synced, err
	}
	return synced, flush()
}

func statsCommand(c *cli.Context) error {
	catalog, err := openCatalog(c, 0)
	if err != nil {
		return err
	}
	defer catalog.Close()

	stats, err := catalog.Stats(c.Context)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Items: %d\n", stats.Items)
	fmt.Fprintf(c.App.Writer, "Pending embeddings: %d\n", stats.Pending)
	fmt.Fprintf(c.App.Writer, "Mapped colors: %d (%d targets)\n", stats.MappedColors, stats.TargetColors)
	return nil
}
