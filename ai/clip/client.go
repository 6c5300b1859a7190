// Package clip is a client for an OpenAI-compatible multimodal embedding
// server hosting a CLIP image tower. Images are sent as base64 data URIs.
package clip

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/poiesic/lookbook/ai"
	"github.com/poiesic/lookbook/core"
)

const defaultTimeout = 60 * time.Second

// ImageEmbedder implements ai.ImageEmbedder over HTTP.
type ImageEmbedder struct {
	httpClient *http.Client
	endpoint   string
	model      string
	apiKey     string
	batchSize  int
	logger     *slog.Logger
}

var _ ai.ImageEmbedder = (*ImageEmbedder)(nil)

// Option configures an ImageEmbedder.
type Option func(*ImageEmbedder)

// WithHTTPClient replaces the default instrumented client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *ImageEmbedder) {
		if c != nil {
			e.httpClient = c
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *ImageEmbedder) {
		if logger != nil {
			e.logger = logger
		}
	}
}

type embeddingRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	EncodingFormat string   `json:"encoding_format"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewImageEmbedder creates a client for config.ClipHost using config.ClipImageModel.
func NewImageEmbedder(config *ai.Config, opts ...Option) (*ImageEmbedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	e := &ImageEmbedder{
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		endpoint:  strings.TrimSuffix(config.ClipHost, "/") + "/embeddings",
		model:     config.ClipImageModel,
		apiKey:    config.APIKey,
		batchSize: config.EmbedBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "clip-image-embedder", "model", e.model)
	return e, nil
}

// EmbedImages embeds images in requests of at most EmbedBatchSize inputs.
// Output vectors are L2-normalized and ordered like images.
func (e *ImageEmbedder) EmbedImages(ctx context.Context, images []ai.Image) ([][]float32, error) {
	if len(images) == 0 {
		return [][]float32{}, nil
	}

	inputs := make([]string, len(images))
	for i, img := range images {
		uri, err := dataURI(img)
		if err != nil {
			return nil, err
		}
		inputs[i] = uri
	}

	vectors := make([][]float32, 0, len(images))
	for chunk := range slices.Chunk(inputs, e.batchSize) {
		out, err := e.post(ctx, chunk)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, out...)
	}
	return vectors, nil
}

func (e *ImageEmbedder) post(ctx context.Context, inputs []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: e.model, Input: inputs, EncodingFormat: "float"})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	e.logger.Debug("embedding images", "count", len(inputs))
	resp, err := e.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", core.ErrEmbedderUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", core.ErrEmbedderUnavailable, err)
	}

	var parsed embeddingResponse
	decodeErr := json.Unmarshal(respBody, &parsed)
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(respBody))
		if decodeErr == nil && parsed.Error != nil {
			msg = parsed.Error.Message
		}
		e.logger.Error("image embedding request failed", "status", resp.StatusCode, "err", msg)
		class := core.ErrEmbedderUnavailable
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity {
			class = core.ErrInvalidInput
		}
		return nil, fmt.Errorf("%w: clip server returned %d: %s", class, resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: decode response: %w", core.ErrEmbedderUnavailable, decodeErr)
	}
	if len(parsed.Data) != len(inputs) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d",
			core.ErrEmbedderUnavailable, len(inputs), len(parsed.Data))
	}

	vectors := make([][]float32, len(inputs))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(vectors) || vectors[d.Index] != nil {
			return nil, fmt.Errorf("%w: bad embedding index %d", core.ErrEmbedderUnavailable, d.Index)
		}
		vectors[d.Index] = core.NormalizeVector(d.Embedding)
	}
	return vectors, nil
}

func dataURI(img ai.Image) (string, error) {
	data, err := img.Bytes()
	if err != nil {
		return "", err
	}
	format, err := ai.ValidateImage(data)
	if err != nil {
		if img.Path != "" {
			return "", fmt.Errorf("%s: %w", img.Path, err)
		}
		return "", err
	}
	return "data:" + ai.MimeType(format) + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
