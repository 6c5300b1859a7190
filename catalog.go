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

// Package lookbook is a catalog search backend: hybrid vector search over
// text and image embeddings with structured filters, color normalization,
// and a resumable embedding backfill.
package lookbook

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/poiesic/lookbook/ai"
	"github.com/poiesic/lookbook/ai/openai"
	"github.com/poiesic/lookbook/backfill"
	"github.com/poiesic/lookbook/color"
	"github.com/poiesic/lookbook/core"
	"github.com/poiesic/lookbook/search"
	"github.com/poiesic/lookbook/storage/badger"
)

// Catalog owns an open store and the AI provider, and builds the
// components that work over them.
type Catalog struct {
	repos    *badger.Repositories
	provider ai.Provider
	logger   *slog.Logger
}

// Option configures a Catalog.
type Option func(*catalogOptions)

type catalogOptions struct {
	aiConfig *ai.Config
	provider ai.Provider
	dims     core.SpaceDims
	inMemory bool
	logger   *slog.Logger
}

// WithAIConfig sets the configuration of the OpenAI-compatible provider.
func WithAIConfig(config *ai.Config) Option {
	return func(o *catalogOptions) {
		o.aiConfig = config
	}
}

// WithProvider uses provider instead of building one from the AI config.
// The Catalog takes ownership and closes it.
func WithProvider(provider ai.Provider) Option {
	return func(o *catalogOptions) {
		o.provider = provider
	}
}

// WithSpaceDims overrides the per-space vector dimensions.
func WithSpaceDims(dims core.SpaceDims) Option {
	return func(o *catalogOptions) {
		o.dims = dims
	}
}

// WithInMemory opens a throwaway in-memory store; the path is ignored.
func WithInMemory() Option {
	return func(o *catalogOptions) {
		o.inMemory = true
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *catalogOptions) {
		o.logger = logger
	}
}

// Open opens the catalog database at path and builds the AI provider.
func Open(path string, opts ...Option) (*Catalog, error) {
	options := &catalogOptions{
		aiConfig: ai.DefaultConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	var backend *badger.Backend
	var err error
	if options.inMemory {
		backend, err = badger.OpenBackend("", true)
	} else {
		backend, err = badger.OpenBackend(path, false)
	}
	if err != nil {
		return nil, err
	}
	repos := badger.NewRepositoriesFromBackend(backend, options.dims)

	provider := options.provider
	if provider == nil {
		provider, err = openai.NewProvider(options.aiConfig)
		if err != nil {
			repos.Close()
			return nil, err
		}
	}

	return &Catalog{
		repos:    repos,
		provider: provider,
		logger:   options.logger.With("component", "catalog"),
	}, nil
}

// Close releases the provider and the store.
func (c *Catalog) Close() error {
	var errs []error
	if err := c.provider.Close(); err != nil {
		c.logger.Error("error closing AI provider", "err", err)
		errs = append(errs, err)
	}
	if err := c.repos.Close(); err != nil {
		c.logger.Error("error closing backend storage", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Repositories returns the underlying repositories.
func (c *Catalog) Repositories() *badger.Repositories {
	return c.repos
}

// Provider returns the AI provider.
func (c *Catalog) Provider() ai.Provider {
	return c.provider
}

// NewSearcher creates a searcher over the catalog.
func (c *Catalog) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	return search.NewSearcher(c.repos.Features, c.repos.Catalog, c.repos.Colors, c.provider, opts...)
}

// NewPipeline creates a backfill pipeline. Callers must Release it.
func (c *Catalog) NewPipeline(resolver backfill.ImageResolver, config *backfill.Config, progress io.Writer, opts ...backfill.Option) (*backfill.Pipeline, error) {
	return backfill.NewPipeline(
		c.repos.Features,
		c.repos.Catalog,
		c.repos.Checkpoints,
		c.repos.Locks,
		c.provider,
		resolver,
		config,
		progress,
		opts...,
	)
}

// NewNormalizer creates a color normalizer on the CLIP text tower.
func (c *Catalog) NewNormalizer(ctx context.Context, opts ...color.Option) (*color.Normalizer, error) {
	return color.NewNormalizer(ctx, c.provider.ClipText(), opts...)
}

// NewMapper creates a color mapping job with a default normalizer.
func (c *Catalog) NewMapper(ctx context.Context, opts ...color.MapperOption) (*color.Mapper, error) {
	normalizer, err := c.NewNormalizer(ctx)
	if err != nil {
		return nil, err
	}
	return color.NewMapper(c.repos.Catalog, c.repos.Colors, normalizer, opts...)
}
