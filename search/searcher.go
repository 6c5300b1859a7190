package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/poiesic/lookbook/ai"
	"github.com/poiesic/lookbook/core"
	"github.com/poiesic/lookbook/filter"
	"github.com/poiesic/lookbook/storage"
)

const defaultK = 9

var tracer = otel.Tracer("lookbook/search")

// Mode is the query modality of a search.
type Mode int

const (
	ModeText Mode = iota + 1
	ModeImage
)

func (m Mode) String() string {
	switch m {
	case ModeText:
		return "text"
	case ModeImage:
		return "image"
	}
	return "unknown"
}

// Query is a search request. Image takes precedence over Text when both
// are set. When Filters is nil and Text is set, filters are extracted from
// Text.
type Query struct {
	Text    string
	Image   *ai.Image
	Filters *core.Filters
	K       int
	Monitor SearchMonitor
}

// Result is a ranked result set with the filters that shaped it.
type Result struct {
	Items     []*core.ResultItem
	Filters   *core.Filters
	Unmatched []string // Filter names whose values matched nothing known
	Mode      Mode
}

// Searcher ranks catalog items against a text or image query. It holds no
// per-request state and is safe for concurrent use.
type Searcher struct {
	features       storage.FeatureRepository
	scanner        storage.VectorSearcher
	catalog        storage.CatalogRepository
	colors         storage.ColorMappingRepository
	clipText       ai.TextEmbedder
	semantic       ai.TextEmbedder
	image          ai.ImageEmbedder
	extractor      ai.FilterExtractor
	weights        Weights
	timeout        time.Duration
	candidateLimit int
	defaultK       int
	logger         *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithWeights sets the text fusion weights.
func WithWeights(clip, semantic float32) Option {
	return func(s *Searcher) error {
		w := Weights{Clip: clip, Semantic: semantic}
		if !w.valid() {
			return fmt.Errorf("%w: clip=%v semantic=%v", ErrInvalidWeights, clip, semantic)
		}
		s.weights = w
		return nil
	}
}

// WithTimeout bounds each search call. Zero means no bound beyond the
// caller's context.
func WithTimeout(d time.Duration) Option {
	return func(s *Searcher) error {
		if d < 0 {
			return fmt.Errorf("timeout cannot be negative: %v", d)
		}
		s.timeout = d
		return nil
	}
}

// WithIndex scans vectors through searcher instead of the feature repository.
func WithIndex(searcher storage.VectorSearcher) Option {
	return func(s *Searcher) error {
		if searcher != nil {
			s.scanner = searcher
		}
		return nil
	}
}

// WithCandidateLimit caps the rows taken from each space before fusion.
// Zero scans exhaustively. Rows one space cuts are rescored from the feature
// store, so fusion covers the union of candidates.
func WithCandidateLimit(n int) Option {
	return func(s *Searcher) error {
		if n < 0 {
			return fmt.Errorf("candidate limit cannot be negative: %d", n)
		}
		s.candidateLimit = n
		return nil
	}
}

// WithDefaultK sets the result count used when a call passes k <= 0.
func WithDefaultK(k int) Option {
	return func(s *Searcher) error {
		if k <= 0 {
			return fmt.Errorf("default k must be positive: %d", k)
		}
		s.defaultK = k
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(
	features storage.FeatureRepository,
	catalog storage.CatalogRepository,
	colors storage.ColorMappingRepository,
	provider ai.Provider,
	opts ...Option,
) (*Searcher, error) {
	if features == nil {
		return nil, ErrFeatureRepositoryRequired
	}
	if catalog == nil {
		return nil, ErrCatalogRepositoryRequired
	}
	if colors == nil {
		return nil, ErrColorRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	s := &Searcher{
		features:  features,
		scanner:   features,
		catalog:   catalog,
		colors:    colors,
		clipText:  provider.ClipText(),
		semantic:  provider.SemanticText(),
		image:     provider.Image(),
		extractor: provider.Extractor(),
		weights:   DefaultWeights,
		defaultK:  defaultK,
		logger:    slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "searcher")

	return s, nil
}

// Weights returns the configured text fusion weights.
func (s *Searcher) Weights() Weights {
	return s.weights
}

// SearchText ranks items against query text using the given filters as-is.
func (s *Searcher) SearchText(ctx context.Context, text string, filters *core.Filters, k int) (*Result, error) {
	return s.Search(ctx, Query{Text: text, Filters: orEmpty(filters), K: k})
}

// SearchImage ranks items against a query image using the given filters as-is.
func (s *Searcher) SearchImage(ctx context.Context, image ai.Image, filters *core.Filters, k int) (*Result, error) {
	return s.Search(ctx, Query{Image: &image, Filters: orEmpty(filters), K: k})
}

func orEmpty(f *core.Filters) *core.Filters {
	if f == nil {
		return &core.Filters{}
	}
	return f
}

// Search runs q. Filters are extracted from the text when q.Filters is nil;
// extraction failures degrade to no filters. Image queries take precedence,
// and text queries search the extracted CleanQuery when there is one.
func (s *Searcher) Search(ctx context.Context, q Query) (*Result, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" && q.Image == nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidInput, core.ErrEmptyQuery)
	}
	monitor := q.Monitor
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	k := q.K
	if k <= 0 {
		k = s.defaultK
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	mode := ModeText
	if q.Image != nil {
		mode = ModeImage
	}
	ctx, span := tracer.Start(ctx, "search."+mode.String(), trace.WithAttributes(
		attribute.Int("search.k", k),
	))
	defer span.End()

	monitor.Start(mode, text)
	result, err := s.search(ctx, mode, text, q, k, monitor)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("search.results", len(result.Items)))
	monitor.Finish(result.Items)
	return result, nil
}

func (s *Searcher) search(ctx context.Context, mode Mode, text string, q Query, k int, monitor SearchMonitor) (*Result, error) {
	var img ai.Image
	if mode == ModeImage {
		var err error
		if img, err = loadImage(*q.Image); err != nil {
			return nil, err
		}
	}

	filters := q.Filters
	if filters == nil {
		filters = s.extractFilters(ctx, text)
	}
	if err := core.ValidateFilters(filters); err != nil {
		return nil, err
	}
	predicate, err := s.buildPredicate(ctx, filters)
	if err != nil {
		return nil, err
	}
	monitor.AfterFilters(filters, predicate)

	var items []*core.ResultItem
	if mode == ModeImage {
		items, err = s.runImage(ctx, img, predicate, monitor)
	} else {
		query := text
		if clean := strings.TrimSpace(filters.CleanQuery); clean != "" && q.Filters == nil {
			query = clean
		}
		items, err = s.runText(ctx, query, predicate, monitor)
	}
	if err != nil {
		return nil, err
	}
	monitor.AfterFusion(len(items))

	return &Result{
		Items:     truncate(items, k),
		Filters:   filters,
		Unmatched: predicate.Unmatched(),
		Mode:      mode,
	}, nil
}

func loadImage(img ai.Image) (ai.Image, error) {
	data, err := img.Bytes()
	if err != nil {
		if errors.Is(err, core.ErrInvalidInput) {
			return ai.Image{}, err
		}
		return ai.Image{}, fmt.Errorf("%w: %w", core.ErrInvalidInput, err)
	}
	if _, err := ai.ValidateImage(data); err != nil {
		return ai.Image{}, err
	}
	return ai.Image{Path: img.Path, Data: data}, nil
}

// extractFilters asks the extractor for filters. Without an extractor, or
// when extraction fails, the query runs unfiltered.
func (s *Searcher) extractFilters(ctx context.Context, text string) *core.Filters {
	if text == "" || s.extractor == nil {
		return &core.Filters{}
	}
	ctx, span := tracer.Start(ctx, "search.extract_filters")
	defer span.End()

	vocab, err := s.vocabulary(ctx)
	if err != nil {
		s.logger.Warn("error loading vocabulary for extraction", "err", err)
		return &core.Filters{}
	}
	filters, err := s.extractor.ExtractFilters(ctx, text, vocab)
	if err != nil || filters == nil {
		s.logger.Warn("filter extraction failed, searching without filters", "err", err)
		span.RecordError(err)
		return &core.Filters{}
	}
	if err := core.ValidateFilters(filters); err != nil {
		s.logger.Warn("extracted filters are invalid, searching without filters", "err", err)
		return &core.Filters{CleanQuery: filters.CleanQuery, StyleQuery: filters.StyleQuery}
	}
	return filters
}

// vocabulary lists the values the extractor may choose from. Colors are the
// mapping targets, not raw catalog colors.
func (s *Searcher) vocabulary(ctx context.Context) (*core.Vocabulary, error) {
	vocab, err := s.catalog.Vocabulary(ctx)
	if err != nil {
		return nil, err
	}
	if vocab.Colors, err = s.colors.TargetColors(ctx); err != nil {
		return nil, err
	}
	return vocab, nil
}

func (s *Searcher) buildPredicate(ctx context.Context, filters *core.Filters) (*filter.Predicate, error) {
	var mapping core.ColorMapping
	if filters.Color != nil {
		var err error
		if mapping, err = s.colors.LoadColorMapping(ctx); err != nil {
			return nil, storeError("load color mapping", err)
		}
	}
	var vocab *core.Vocabulary
	if filters.Brand != nil || filters.Category != nil {
		var err error
		if vocab, err = s.catalog.Vocabulary(ctx); err != nil {
			return nil, storeError("list vocabulary", err)
		}
	}
	return filter.Build(filters, mapping, vocab)
}

func (s *Searcher) runText(ctx context.Context, text string, predicate *filter.Predicate, monitor SearchMonitor) ([]*core.ResultItem, error) {
	var clipVec, semVec []float32
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		clipVec, err = embedOne(gctx, s.clipText, text, core.SpaceClipText)
		return err
	})
	g.Go(func() error {
		var err error
		semVec, err = embedOne(gctx, s.semantic, text, core.SpaceSemanticText)
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("error embedding query text", "err", err)
		return nil, err
	}
	monitor.AfterEmbedding(core.TextSpaces)

	queries := map[core.Space][]float32{
		core.SpaceClipText:     clipVec,
		core.SpaceSemanticText: semVec,
	}
	matches, err := s.scan(ctx, predicate, queries, monitor)
	if err != nil {
		return nil, err
	}
	if err := s.complete(ctx, queries, matches); err != nil {
		return nil, err
	}
	return FuseText(matches[core.SpaceClipText], matches[core.SpaceSemanticText], s.weights), nil
}

func (s *Searcher) runImage(ctx context.Context, img ai.Image, predicate *filter.Predicate, monitor SearchMonitor) ([]*core.ResultItem, error) {
	vectors, err := s.image.EmbedImages(ctx, []ai.Image{img})
	if err != nil {
		s.logger.Error("error embedding query image", "err", err)
		return nil, embedderError(ctx, "image", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: image encoder returned %d vectors", core.ErrEmbedderUnavailable, len(vectors))
	}
	monitor.AfterEmbedding(core.ImageSpaces)

	queries := map[core.Space][]float32{
		core.SpaceClipImagePrimary:   vectors[0],
		core.SpaceClipImageSecondary: vectors[0],
	}
	matches, err := s.scan(ctx, predicate, queries, monitor)
	if err != nil {
		return nil, err
	}
	if err := s.complete(ctx, queries, matches); err != nil {
		return nil, err
	}
	return FuseImage(matches[core.SpaceClipImagePrimary], matches[core.SpaceClipImageSecondary]), nil
}

// scan searches every space in queries concurrently.
func (s *Searcher) scan(ctx context.Context, predicate *filter.Predicate, queries map[core.Space][]float32, monitor SearchMonitor) (map[core.Space][]*core.SpaceMatch, error) {
	spaces := make([]core.Space, 0, len(queries))
	for _, space := range core.AllSpaces {
		if _, ok := queries[space]; ok {
			spaces = append(spaces, space)
		}
	}

	results := make([][]*core.SpaceMatch, len(spaces))
	g, gctx := errgroup.WithContext(ctx)
	for i, space := range spaces {
		g.Go(func() error {
			ctx, span := tracer.Start(gctx, "search.scan", trace.WithAttributes(
				attribute.String("search.space", space.String()),
			))
			defer span.End()

			matches, err := s.scanner.SimilaritySearch(ctx, space, queries[space], predicate, s.candidateLimit)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				s.logger.Error("error scanning space", "space", space, "err", err)
				return storeError("scan "+space.String(), err)
			}
			results[i] = matches
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	bySpace := make(map[core.Space][]*core.SpaceMatch, len(spaces))
	for i, space := range spaces {
		bySpace[space] = results[i]
		monitor.AfterSpaceScan(space, len(results[i]))
	}
	return bySpace, nil
}

func embedOne(ctx context.Context, embedder ai.TextEmbedder, text string, space core.Space) ([]float32, error) {
	vectors, err := embedder.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, embedderError(ctx, space.String(), err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: %s encoder returned %d vectors", core.ErrEmbedderUnavailable, space, len(vectors))
	}
	return vectors[0], nil
}

// embedderError classifies an encoder failure. Cancellation by the caller is
// passed through unchanged.
func embedderError(ctx context.Context, what string, err error) error {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return err
	}
	return fmt.Errorf("%w: embed %s: %w", core.ErrEmbedderUnavailable, what, err)
}

// storeError classifies a storage failure. Input and cancellation errors
// are passed through unchanged.
func storeError(op string, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, core.ErrInvalidInput), errors.Is(err, core.ErrDimensionMismatch),
		errors.Is(err, core.ErrUnknownSpace):
		return err
	}
	return fmt.Errorf("%w: %s: %w", core.ErrStoreUnavailable, op, err)
}

// complete scores every candidate that one space returned but another space
// left out, reading the missing vectors from the feature store. Exhaustive
// scans of the feature store already list every scored row.
func (s *Searcher) complete(ctx context.Context, queries map[core.Space][]float32, matches map[core.Space][]*core.SpaceMatch) error {
	if s.candidateLimit == 0 && s.scanner == s.features {
		return nil
	}
	items := make(map[string]*core.Item)
	seen := make(map[core.Space]map[string]bool, len(matches))
	for space, list := range matches {
		seen[space] = make(map[string]bool, len(list))
		for _, m := range list {
			items[m.Item.SKU] = m.Item
			seen[space][m.Item.SKU] = true
		}
	}

	var missing []string
	for sku := range items {
		for space := range queries {
			if !seen[space][sku] {
				missing = append(missing, sku)
				break
			}
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)

	rows, err := s.features.GetFeatures(ctx, missing...)
	if err != nil {
		s.logger.Error("error reading candidate rows", "candidates", len(missing), "err", err)
		return storeError("read candidates", err)
	}
	for _, row := range rows {
		for _, space := range core.AllSpaces {
			query, ok := queries[space]
			if !ok || seen[space][row.SKU] || !row.Vectors.Has(space) {
				continue
			}
			matches[space] = append(matches[space], &core.SpaceMatch{
				Item:  items[row.SKU],
				Score: core.DotProduct(query, row.Vectors.Get(space)),
			})
		}
	}
	return nil
}
