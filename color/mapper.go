package color

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/poiesic/lookbook/core"
	"github.com/poiesic/lookbook/events"
	"github.com/poiesic/lookbook/storage"
)

var (
	ErrCatalogRequired    = errors.New("color: catalog repository is required")
	ErrColorRepoRequired  = errors.New("color: color mapping repository is required")
	ErrNormalizerRequired = errors.New("color: normalizer is required")
)

// MapResult summarizes one mapping run.
type MapResult struct {
	Mapping core.ColorMapping
	Targets []string // Distinct targets, sorted
}

// Mapper rebuilds the color mapping table from the catalog.
type Mapper struct {
	catalog    storage.CatalogRepository
	colors     storage.ColorMappingRepository
	normalizer *Normalizer
	publisher  events.Publisher
	logger     *slog.Logger
}

// MapperOption configures a Mapper.
type MapperOption func(*Mapper) error

// WithPublisher announces each rebuilt table.
func WithPublisher(p events.Publisher) MapperOption {
	return func(m *Mapper) error {
		if p != nil {
			m.publisher = p
		}
		return nil
	}
}

// WithMapperLogger sets the logger. A nil logger falls back to slog.Default.
func WithMapperLogger(logger *slog.Logger) MapperOption {
	return func(m *Mapper) error {
		if logger == nil {
			logger = slog.Default()
		}
		m.logger = logger
		return nil
	}
}

// NewMapper creates a Mapper.
func NewMapper(catalog storage.CatalogRepository, colors storage.ColorMappingRepository, normalizer *Normalizer, opts ...MapperOption) (*Mapper, error) {
	if catalog == nil {
		return nil, ErrCatalogRequired
	}
	if colors == nil {
		return nil, ErrColorRepoRequired
	}
	if normalizer == nil {
		return nil, ErrNormalizerRequired
	}
	m := &Mapper{
		catalog:    catalog,
		colors:     colors,
		normalizer: normalizer,
		publisher:  events.Noop{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	m.logger = m.logger.With("component", "color-mapper")
	return m, nil
}

// Run classifies every distinct catalog color and replaces the mapping table
// with the result. Re-running over an unchanged catalog yields the same table.
func (m *Mapper) Run(ctx context.Context) (*MapResult, error) {
	ctx, span := otel.Tracer("lookbook/color").Start(ctx, "color.map")
	defer span.End()

	result, err := m.run(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("colors.sources", len(result.Mapping)),
		attribute.Int("colors.targets", len(result.Targets)),
	)
	return result, nil
}

func (m *Mapper) run(ctx context.Context) (*MapResult, error) {
	raws, err := m.catalog.DistinctValues(ctx, storage.FieldColor)
	if err != nil {
		return nil, fmt.Errorf("list catalog colors: %w", err)
	}
	raws = distinctNormalized(raws)
	m.logger.Info("classifying catalog colors", "distinct", len(raws))

	targets, err := m.normalizer.ClassifyAll(ctx, raws)
	if err != nil {
		return nil, fmt.Errorf("classify colors: %w", err)
	}

	mapping := make(core.ColorMapping, len(raws))
	for i, raw := range raws {
		mapping[raw] = targets[i]
	}
	if err := m.colors.ReplaceColorMapping(ctx, mapping); err != nil {
		return nil, fmt.Errorf("replace color mapping: %w", err)
	}

	distinct := mapping.Targets()
	slices.Sort(distinct)
	m.logger.Info("replaced color mapping", "sources", len(mapping), "targets", len(distinct))

	event := events.ColorsRemapped{Sources: len(mapping), Targets: distinct, At: time.Now().UTC()}
	if err := m.publisher.Publish(ctx, event); err != nil {
		m.logger.Warn("error publishing color remap", "err", err)
	}
	return &MapResult{Mapping: mapping, Targets: distinct}, nil
}

// distinctNormalized folds catalog spellings that differ only in case or
// surrounding space onto one sorted key.
func distinctNormalized(raws []string) []string {
	out := make([]string, 0, len(raws))
	for _, raw := range raws {
		if v := core.NormalizeValue(raw); v != "" {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
