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

package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/poiesic/lookbook/ai"
	"github.com/poiesic/lookbook/core"
)

const parseAttempts = 3

var (
	// ErrMalformedResponse is returned when the model never produced parseable JSON.
	ErrMalformedResponse = errors.New("malformed classifier response")

	// ErrExtractorUnavailable is returned when the chat model call fails.
	ErrExtractorUnavailable = errors.New("filter extractor unavailable")
)

// FilterExtractor implements ai.FilterExtractor using OpenAI-compatible chat APIs.
type FilterExtractor struct {
	client llms.Model
	logger *slog.Logger
}

var _ ai.FilterExtractor = (*FilterExtractor)(nil)

// extraction is the JSON object the model is asked to produce.
type extraction struct {
	Brand      *string  `json:"brand"`
	Category   *string  `json:"category"`
	Color      *string  `json:"color"`
	MinPrice   *float64 `json:"min_price"`
	MaxPrice   *float64 `json:"max_price"`
	CleanQuery string   `json:"clean_query"`
	StyleQuery string   `json:"style_query"`
}

// newFilterExtractor is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newFilterExtractor(config *ai.Config) (*FilterExtractor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.ClassifierHost),
		openai.WithToken(config.APIKey),
		openai.WithModel(config.ClassifierModel),
	)
	if err != nil {
		return nil, err
	}

	return &FilterExtractor{
		client: client,
		logger: slog.Default().With("component", "openai-extractor"),
	}, nil
}

// NewFilterExtractor creates a new filter extractor using the provided configuration.
func NewFilterExtractor(config *ai.Config) (*FilterExtractor, error) {
	return newFilterExtractor(config)
}

// ExtractFilters asks the model for structured filters matched against vocab.
// Malformed replies are retried; values are snapped to vocab casing when
// they match case-insensitively.
func (e *FilterExtractor) ExtractFilters(ctx context.Context, text string, vocab *core.Vocabulary) (*core.Filters, error) {
	text = scrubQuery(text)
	if text == "" {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidInput, core.ErrEmptyQuery)
	}

	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(buildFilterPrompt(vocab))},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(text)},
		},
	}

	var result extraction
	var lastErr error
	for attempt := 1; attempt <= parseAttempts; attempt++ {
		response, err := e.client.GenerateContent(ctx, content,
			llms.WithTemperature(0.0), llms.WithTopP(0), llms.WithJSONMode())
		if err != nil {
			e.logger.Error("failed to generate content", "attempt", attempt, "err", err)
			return nil, fmt.Errorf("%w: %w", ErrExtractorUnavailable, err)
		}
		if len(response.Choices) < 1 {
			lastErr = errors.New("no choices returned from model")
			continue
		}

		reply := repairJSON(stripFences(response.Choices[0].Content))
		if err := json.Unmarshal([]byte(reply), &result); err != nil {
			lastErr = err
			e.logger.Warn("error parsing classifier response", "attempt", attempt, "response", reply, "err", err)
			continue
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, lastErr)
	}

	filters := result.toFilters(text, vocab)
	e.logger.Debug("extracted filters", "query", text, "empty", filters.IsEmpty())
	return filters, nil
}

func (x extraction) toFilters(query string, vocab *core.Vocabulary) *core.Filters {
	if vocab == nil {
		vocab = &core.Vocabulary{}
	}
	f := &core.Filters{
		Brand:      snap(x.Brand, vocab.Brands),
		Category:   snap(x.Category, vocab.Categories),
		Color:      snap(x.Color, vocab.Colors),
		MinPrice:   price(x.MinPrice),
		MaxPrice:   price(x.MaxPrice),
		CleanQuery: strings.TrimSpace(x.CleanQuery),
		StyleQuery: strings.TrimSpace(x.StyleQuery),
	}
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		f.MinPrice, f.MaxPrice = f.MaxPrice, f.MinPrice
	}
	if f.CleanQuery == "" {
		f.CleanQuery = query
	}
	if f.StyleQuery == "" {
		f.StyleQuery = f.CleanQuery
	}
	return f
}

// snap returns the vocabulary spelling of v, or v itself when it has none.
// Blank and "null" values are dropped.
func snap(v *string, vocab []string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "none") {
		return nil
	}
	for _, known := range vocab {
		if strings.EqualFold(known, s) {
			return &known
		}
	}
	return &s
}

func price(v *float64) *float64 {
	if v == nil || *v < 0 {
		return nil
	}
	return v
}
