package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
	assert.Equal(t, "http://localhost:8000/v1", cfg.ClipHost)
	assert.Equal(t, "http://localhost:11434/v1", cfg.ClassifierHost)
	assert.Equal(t, "all-minilm", cfg.SemanticModel)
	assert.Equal(t, 256, cfg.EmbedBatchSize)
	assert.Zero(t, cfg.RequestsPerSecond)
	assert.NoError(t, cfg.Validate())
}

func TestNewConfig(t *testing.T) {
	t.Run("with no options", func(t *testing.T) {
		cfg := NewConfig()
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("with shared host", func(t *testing.T) {
		cfg := NewConfig(WithHost("http://custom:8080/v1"))

		assert.Equal(t, "http://custom:8080/v1", cfg.EmbeddingHost)
		assert.Equal(t, "http://custom:8080/v1", cfg.ClipHost)
		assert.Equal(t, "http://custom:8080/v1", cfg.ClassifierHost)
	})

	t.Run("with separate hosts", func(t *testing.T) {
		cfg := NewConfig(
			WithEmbeddingHost("http://embed:8080/v1"),
			WithClipHost("http://clip:8000/v1"),
			WithClassifierHost("http://classify:9090/v1"),
		)

		assert.Equal(t, "http://embed:8080/v1", cfg.EmbeddingHost)
		assert.Equal(t, "http://clip:8000/v1", cfg.ClipHost)
		assert.Equal(t, "http://classify:9090/v1", cfg.ClassifierHost)
	})

	t.Run("with models and limits", func(t *testing.T) {
		cfg := NewConfig(
			WithSemanticModel("nomic-embed-text"),
			WithClipModels("clip-text", "clip-image"),
			WithClassifierModel("gpt-4o-mini"),
			WithAPIKey("secret"),
			WithEmbedBatchSize(64),
			WithRequestsPerSecond(2.5),
		)

		assert.Equal(t, "nomic-embed-text", cfg.SemanticModel)
		assert.Equal(t, "clip-text", cfg.ClipTextModel)
		assert.Equal(t, "clip-image", cfg.ClipImageModel)
		assert.Equal(t, "gpt-4o-mini", cfg.ClassifierModel)
		assert.Equal(t, "secret", cfg.APIKey)
		assert.Equal(t, 64, cfg.EmbedBatchSize)
		assert.Equal(t, 2.5, cfg.RequestsPerSecond)
	})
}

func TestConfigNormalize(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		expected string
	}{
		{name: "already has /v1", host: "http://localhost:11434/v1", expected: "http://localhost:11434/v1"},
		{name: "missing /v1", host: "http://localhost:11434", expected: "http://localhost:11434/v1"},
		{name: "has trailing slash", host: "http://localhost:11434/", expected: "http://localhost:11434/v1"},
		{name: "empty host", host: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{EmbeddingHost: tt.host, ClipHost: tt.host, ClassifierHost: tt.host}
			cfg.Normalize()

			assert.Equal(t, tt.expected, cfg.EmbeddingHost)
			assert.Equal(t, tt.expected, cfg.ClipHost)
			assert.Equal(t, tt.expected, cfg.ClassifierHost)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing embedding host", mutate: func(c *Config) { c.EmbeddingHost = "" }, wantErr: "EmbeddingHost"},
		{name: "missing clip host", mutate: func(c *Config) { c.ClipHost = "" }, wantErr: "ClipHost"},
		{name: "missing semantic model", mutate: func(c *Config) { c.SemanticModel = "" }, wantErr: "SemanticModel"},
		{name: "missing clip image model", mutate: func(c *Config) { c.ClipImageModel = "" }, wantErr: "ClipImageModel"},
		{name: "classifier without host", mutate: func(c *Config) { c.ClassifierHost = "" }, wantErr: "ClassifierHost"},
		{name: "no classifier at all", mutate: func(c *Config) { c.ClassifierHost, c.ClassifierModel = "", "" }},
		{name: "zero batch size", mutate: func(c *Config) { c.EmbedBatchSize = 0 }, wantErr: "EmbedBatchSize"},
		{name: "negative rps", mutate: func(c *Config) { c.RequestsPerSecond = -1 }, wantErr: "RequestsPerSecond"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("normalizes hosts", func(t *testing.T) {
		cfg := NewConfig(WithHost("http://localhost:11434"))
		assert.NoError(t, cfg.Validate())
		assert.Equal(t, "http://localhost:11434/v1", cfg.ClipHost)
	})
}
