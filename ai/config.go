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

package ai

import (
	"errors"
	"strings"
)

// Config holds configuration for AI service providers.
type Config struct {
	// EmbeddingHost is the base URL of the OpenAI-compatible text embedding API.
	// Example: "http://localhost:11434/v1"
	EmbeddingHost string

	// ClipHost is the base URL of the multimodal CLIP embedding server.
	// Example: "http://localhost:8000/v1"
	ClipHost string

	// ClassifierHost is the base URL of the chat API used for filter extraction.
	ClassifierHost string

	// APIKey is sent as a bearer token. Local servers accept any value.
	APIKey string

	// SemanticModel is the sentence encoder for the semantic_text space.
	// Example: "all-MiniLM-L6-v2"
	SemanticModel string

	// ClipTextModel is the CLIP text tower for the clip_text space.
	ClipTextModel string

	// ClipImageModel is the CLIP image tower for both image spaces.
	ClipImageModel string

	// ClassifierModel is the chat model used for filter extraction.
	// Example: "qwen2.5:3b", "gpt-4o-mini"
	ClassifierModel string

	// EmbedBatchSize caps the number of inputs per remote embedding call.
	// Default: 256
	EmbedBatchSize int

	// RequestsPerSecond throttles remote embedding calls in batch jobs.
	// Zero disables throttling.
	RequestsPerSecond float64
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithEmbeddingHost sets the text embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithClipHost sets the CLIP embedding service host URL.
func WithClipHost(host string) ConfigOption {
	return func(c *Config) {
		c.ClipHost = host
	}
}

// WithClassifierHost sets the classifier service host URL.
func WithClassifierHost(host string) ConfigOption {
	return func(c *Config) {
		c.ClassifierHost = host
	}
}

// WithHost points every service at the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
		c.ClipHost = host
		c.ClassifierHost = host
	}
}

// WithAPIKey sets the bearer token.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithSemanticModel sets the sentence encoder model identifier.
func WithSemanticModel(model string) ConfigOption {
	return func(c *Config) {
		c.SemanticModel = model
	}
}

// WithClipModels sets the CLIP text and image model identifiers.
func WithClipModels(textModel, imageModel string) ConfigOption {
	return func(c *Config) {
		c.ClipTextModel = textModel
		c.ClipImageModel = imageModel
	}
}

// WithClassifierModel sets the classifier model identifier.
func WithClassifierModel(model string) ConfigOption {
	return func(c *Config) {
		c.ClassifierModel = model
	}
}

// WithEmbedBatchSize sets the per-call input cap.
func WithEmbedBatchSize(n int) ConfigOption {
	return func(c *Config) {
		c.EmbedBatchSize = n
	}
}

// WithRequestsPerSecond sets the batch-job throttle.
func WithRequestsPerSecond(rps float64) ConfigOption {
	return func(c *Config) {
		c.RequestsPerSecond = rps
	}
}

// DefaultConfig returns a Config with sensible defaults for local OpenAI-compatible services.
func DefaultConfig() *Config {
	defaultHost := "http://localhost:11434/v1"
	return &Config{
		EmbeddingHost:   defaultHost,
		ClipHost:        "http://localhost:8000/v1",
		ClassifierHost:  defaultHost,
		APIKey:          "none",
		SemanticModel:   "all-minilm",
		ClipTextModel:   "ViT-B-32",
		ClipImageModel:  "ViT-B-32",
		ClassifierModel: "qwen2.5:3b",
		EmbedBatchSize:  256,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithHost("http://localhost:11434/v1"),
//	    WithSemanticModel("nomic-embed-text"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures every host ends with /v1, which OpenAI-compatible
// servers (Ollama, LocalAI, vLLM) require.
func (c *Config) Normalize() {
	c.EmbeddingHost = withV1(c.EmbeddingHost)
	c.ClipHost = withV1(c.ClipHost)
	c.ClassifierHost = withV1(c.ClassifierHost)
}

func withV1(host string) string {
	if host == "" || strings.HasSuffix(host, "/v1") {
		return host
	}
	return strings.TrimSuffix(host, "/") + "/v1"
}

// Validate checks that the configuration is valid and complete.
// It normalizes the configuration first.
func (c *Config) Validate() error {
	c.Normalize()

	if c.EmbeddingHost == "" {
		return errors.New("ai config: EmbeddingHost is required")
	}
	if c.ClipHost == "" {
		return errors.New("ai config: ClipHost is required")
	}
	if c.SemanticModel == "" {
		return errors.New("ai config: SemanticModel is required")
	}
	if c.ClipTextModel == "" || c.ClipImageModel == "" {
		return errors.New("ai config: ClipTextModel and ClipImageModel are required")
	}
	if c.ClassifierModel != "" && c.ClassifierHost == "" {
		return errors.New("ai config: ClassifierHost is required when ClassifierModel is set")
	}
	if c.EmbedBatchSize <= 0 {
		return errors.New("ai config: EmbedBatchSize must be positive")
	}
	if c.RequestsPerSecond < 0 {
		return errors.New("ai config: RequestsPerSecond cannot be negative")
	}
	return nil
}
