package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/lookbook/ai"
	"github.com/poiesic/lookbook/core"
)

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func TestScrubQuery(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  red   dress ", "red dress"},
		{"red\ndress\tunder $50", "red dress under $50"},
		{"red\x00dress", "reddress"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, scrubQuery(tt.in), "input %q", tt.in)
	}
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences("```{\"a\":1}```"))
	assert.Equal(t, `{"a":1}`, stripFences(` {"a":1} `))
}

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"well formed", `{"brand": "Acme", "color": null}`, `{"brand": "Acme", "color": null}`},
		{"missing key quote", `{"brand": "Acme", color": "red"}`, `{"brand": "Acme", "color": "red"}`},
		{"python none", `{"brand": None}`, `{"brand": null}`},
		{"trailing comma", `{"brand": "Acme",}`, `{"brand": "Acme"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := repairJSON(tt.in)
			assert.Equal(t, tt.want, got)
			var v map[string]any
			assert.NoError(t, json.Unmarshal([]byte(got), &v))
		})
	}
}

func TestToFilters(t *testing.T) {
	vocab := &core.Vocabulary{
		Brands:     []string{"Acme"},
		Categories: []string{"Dress"},
		Colors:     []string{"Red"},
	}

	t.Run("snaps to vocabulary casing", func(t *testing.T) {
		f := extraction{Brand: strPtr("acme"), Category: strPtr(" dress "), Color: strPtr("RED")}.
			toFilters("acme red dress", vocab)
		assert.Equal(t, "Acme", *f.Brand)
		assert.Equal(t, "Dress", *f.Category)
		assert.Equal(t, "Red", *f.Color)
		assert.Equal(t, "acme red dress", f.CleanQuery)
		assert.Equal(t, "acme red dress", f.StyleQuery)
	})

	t.Run("drops null-like values", func(t *testing.T) {
		f := extraction{Brand: strPtr("null"), Category: strPtr(""), Color: strPtr("None")}.
			toFilters("dress", vocab)
		assert.Nil(t, f.Brand)
		assert.Nil(t, f.Category)
		assert.Nil(t, f.Color)
	})

	t.Run("keeps unknown values", func(t *testing.T) {
		f := extraction{Brand: strPtr("Zed")}.toFilters("zed", vocab)
		assert.Equal(t, "Zed", *f.Brand)
	})

	t.Run("prices", func(t *testing.T) {
		f := extraction{MinPrice: floatPtr(100), MaxPrice: floatPtr(20)}.toFilters("x", vocab)
		assert.Equal(t, 20.0, *f.MinPrice)
		assert.Equal(t, 100.0, *f.MaxPrice)

		f = extraction{MinPrice: floatPtr(-5), MaxPrice: floatPtr(50)}.toFilters("x", nil)
		assert.Nil(t, f.MinPrice)
		assert.Equal(t, 50.0, *f.MaxPrice)
	})

	t.Run("model queries win", func(t *testing.T) {
		f := extraction{CleanQuery: " summer dress ", StyleQuery: "flowy"}.toFilters("red summer dress", vocab)
		assert.Equal(t, "summer dress", f.CleanQuery)
		assert.Equal(t, "flowy", f.StyleQuery)
	})
}

func TestBuildFilterPrompt(t *testing.T) {
	prompt := buildFilterPrompt(&core.Vocabulary{
		Brands:     []string{"Acme", "Zed"},
		Categories: []string{"dress"},
	})
	assert.Contains(t, prompt, "Acme, Zed")
	assert.Contains(t, prompt, "dress")
	assert.NotContains(t, prompt, "{{")
}

// fakeAPI serves /v1/embeddings and /v1/chat/completions.
type fakeAPI struct {
	*httptest.Server
	embedCalls atomic.Int32
	chatCalls  atomic.Int32
	replies    []string
}

func newFakeAPI(t *testing.T, replies ...string) *fakeAPI {
	t.Helper()
	api := &fakeAPI{replies: replies}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		api.embedCalls.Add(1)
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			data[i] = map[string]any{"object": "embedding", "index": i, "embedding": []float32{3, 4}}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": "m"})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		n := int(api.chatCalls.Add(1)) - 1
		reply := api.replies[min(n, len(api.replies)-1)]
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chat-1",
			"object": "chat.completion",
			"model":  "m",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": reply},
			}},
		})
	})
	api.Server = httptest.NewServer(mux)
	t.Cleanup(api.Close)
	return api
}

func testConfig(host string) *ai.Config {
	return ai.NewConfig(ai.WithHost(host), ai.WithAPIKey("secret"), ai.WithEmbedBatchSize(2))
}

func TestTextEmbedder(t *testing.T) {
	api := newFakeAPI(t, "{}")
	e, err := NewSemanticEmbedder(testConfig(api.URL))
	require.NoError(t, err)

	vectors, err := e.EmbedTexts(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for _, v := range vectors {
		assert.InDeltaSlice(t, []float32{0.6, 0.8}, v, 1e-6)
	}
	assert.Equal(t, int32(2), api.embedCalls.Load())

	vectors, err = e.EmbedTexts(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
	assert.Equal(t, int32(2), api.embedCalls.Load())
}

func TestTextEmbedder_Unavailable(t *testing.T) {
	api := newFakeAPI(t, "{}")
	host := api.URL
	api.Close()

	e, err := NewClipTextEmbedder(testConfig(host))
	require.NoError(t, err)
	_, err = e.EmbedTexts(context.Background(), []string{"a"})
	assert.True(t, errors.Is(err, core.ErrEmbedderUnavailable))
}

func TestFilterExtractor(t *testing.T) {
	api := newFakeAPI(t,
		"```json\n{\"brand\": \"acme\", \"color\": \"red\", \"max_price\": 50, \"clean_query\": \"dress\",}\n```")
	e, err := NewFilterExtractor(testConfig(api.URL))
	require.NoError(t, err)

	f, err := e.ExtractFilters(context.Background(), "red acme dress under $50",
		&core.Vocabulary{Brands: []string{"Acme"}, Colors: []string{"Red"}})
	require.NoError(t, err)
	assert.Equal(t, "Acme", *f.Brand)
	assert.Equal(t, "Red", *f.Color)
	assert.Nil(t, f.Category)
	assert.Equal(t, 50.0, *f.MaxPrice)
	assert.Equal(t, "dress", f.CleanQuery)
	assert.Equal(t, "dress", f.StyleQuery)
	assert.Equal(t, int32(1), api.chatCalls.Load())
}

func TestFilterExtractor_RetriesMalformed(t *testing.T) {
	api := newFakeAPI(t, "not json at all", `{"category": "dress"}`)
	e, err := NewFilterExtractor(testConfig(api.URL))
	require.NoError(t, err)

	f, err := e.ExtractFilters(context.Background(), "a dress", nil)
	require.NoError(t, err)
	assert.Equal(t, "dress", *f.Category)
	assert.Equal(t, int32(2), api.chatCalls.Load())
}

func TestFilterExtractor_GivesUp(t *testing.T) {
	api := newFakeAPI(t, "still not json")
	e, err := NewFilterExtractor(testConfig(api.URL))
	require.NoError(t, err)

	_, err = e.ExtractFilters(context.Background(), "a dress", nil)
	assert.True(t, errors.Is(err, ErrMalformedResponse))
	assert.Equal(t, int32(parseAttempts), api.chatCalls.Load())
}

func TestFilterExtractor_Unavailable(t *testing.T) {
	api := newFakeAPI(t, "{}")
	host := api.URL
	api.Close()

	e, err := NewFilterExtractor(testConfig(host))
	require.NoError(t, err)
	_, err = e.ExtractFilters(context.Background(), "a dress", nil)
	assert.True(t, errors.Is(err, ErrExtractorUnavailable))
	assert.False(t, errors.Is(err, core.ErrEmbedderUnavailable))
}

func TestFilterExtractor_EmptyQuery(t *testing.T) {
	api := newFakeAPI(t, "{}")
	e, err := NewFilterExtractor(testConfig(api.URL))
	require.NoError(t, err)

	_, err = e.ExtractFilters(context.Background(), " \n\t ", nil)
	assert.True(t, errors.Is(err, core.ErrInvalidInput))
	assert.Zero(t, api.chatCalls.Load())
}

func TestNewProvider(t *testing.T) {
	api := newFakeAPI(t, "{}")

	p, err := NewProvider(testConfig(api.URL))
	require.NoError(t, err)
	defer p.Close()
	assert.NotNil(t, p.ClipText())
	assert.NotNil(t, p.SemanticText())
	assert.NotNil(t, p.Image())
	assert.NotNil(t, p.Extractor())

	cfg := testConfig(api.URL)
	cfg.ClassifierModel = ""
	p, err = NewProvider(cfg)
	require.NoError(t, err)
	assert.Nil(t, p.Extractor())

	_, err = NewProvider(ai.NewConfig(ai.WithEmbedBatchSize(-1)))
	assert.Error(t, err)
}
