package backfill

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/lookbook/ai"
	"github.com/poiesic/lookbook/ai/mock"
	"github.com/poiesic/lookbook/core"
	"github.com/poiesic/lookbook/events"
	"github.com/poiesic/lookbook/storage"
	badgerstore "github.com/poiesic/lookbook/storage/badger"
)

var testDims = core.SpaceDims{
	core.SpaceClipImagePrimary:   2,
	core.SpaceClipImageSecondary: 2,
	core.SpaceClipText:           2,
	core.SpaceSemanticText:       3,
}

func testConfig() *Config {
	return &Config{
		BatchSize:      2,
		CommitEvery:    2,
		MaxRetries:     2,
		RetryDelay:     time.Millisecond,
		ReportInterval: 1,
		Workers:        3,
		LockTTL:        time.Minute,
	}
}

// assets resolves every image slot whose SKU is in the set.
type assets map[string]bool

func (a assets) Resolve(_ context.Context, item *core.MissingItem, space core.Space) (ai.Image, bool, error) {
	if !a[item.SKU] {
		return ai.Image{}, false, nil
	}
	return ai.ImageFromPath(DirResolver{Root: "/catalog"}.Path(item.SKU, space)), true, nil
}

type env struct {
	repos    *badgerstore.Repositories
	provider *mock.MockProvider
	progress *bytes.Buffer
}

func newEnv(t *testing.T) *env {
	t.Helper()
	repos, err := badgerstore.NewMemoryRepositoriesWithDims(testDims)
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })
	return &env{repos: repos, provider: mock.NewMockProvider(testDims), progress: &bytes.Buffer{}}
}

func (e *env) pipeline(t *testing.T, resolver ImageResolver, config *Config, opts ...Option) *Pipeline {
	t.Helper()
	p, err := NewPipeline(e.repos.Features, e.repos.Catalog, e.repos.Checkpoints, e.repos.Locks,
		e.provider, resolver, config, e.progress, opts...)
	require.NoError(t, err)
	t.Cleanup(p.Release)
	return p
}

func (e *env) addItems(t *testing.T, items ...*core.Item) {
	t.Helper()
	_, err := e.repos.Catalog.UpsertItems(context.Background(), items...)
	require.NoError(t, err)
}

func (e *env) row(t *testing.T, sku string) *core.FeatureRow {
	t.Helper()
	rows, err := e.repos.Features.GetFeatures(context.Background(), sku)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	return rows[0]
}

func (e *env) pending(t *testing.T) int {
	t.Helper()
	n, err := e.repos.Features.CountMissingEmbeddings(context.Background())
	require.NoError(t, err)
	return n
}

func TestNewPipeline_Requirements(t *testing.T) {
	e := newEnv(t)
	r := e.repos
	res := assets{}

	tests := []struct {
		name string
		fn   func() (*Pipeline, error)
		want error
	}{
		{"features", func() (*Pipeline, error) {
			return NewPipeline(nil, r.Catalog, r.Checkpoints, r.Locks, e.provider, res, nil, nil)
		}, ErrFeatureRepositoryRequired},
		{"catalog", func() (*Pipeline, error) {
			return NewPipeline(r.Features, nil, r.Checkpoints, r.Locks, e.provider, res, nil, nil)
		}, ErrCatalogRepositoryRequired},
		{"checkpoints", func() (*Pipeline, error) {
			return NewPipeline(r.Features, r.Catalog, nil, r.Locks, e.provider, res, nil, nil)
		}, ErrCheckpointRepositoryRequired},
		{"locks", func() (*Pipeline, error) {
			return NewPipeline(r.Features, r.Catalog, r.Checkpoints, nil, e.provider, res, nil, nil)
		}, ErrLockRepositoryRequired},
		{"provider", func() (*Pipeline, error) {
			return NewPipeline(r.Features, r.Catalog, r.Checkpoints, r.Locks, nil, res, nil, nil)
		}, ErrAIProviderRequired},
		{"resolver", func() (*Pipeline, error) {
			return NewPipeline(r.Features, r.Catalog, r.Checkpoints, r.Locks, e.provider, nil, nil, nil)
		}, ErrImageResolverRequired},
		{"invalid config", func() (*Pipeline, error) {
			return NewPipeline(r.Features, r.Catalog, r.Checkpoints, r.Locks, e.provider, res, &Config{}, nil)
		}, core.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.fn()
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPipeline_Run(t *testing.T) {
	e := newEnv(t)
	rec := &events.Recorder{}
	mirror := &recordingMirror{}
	e.addItems(t,
		&core.Item{SKU: "A", Texts: "red dress"},
		&core.Item{SKU: "B", Texts: "navy shirt"},
		&core.Item{SKU: "C", Texts: "white sneakers"},
		&core.Item{SKU: "D", Texts: "black coat"},
		&core.Item{SKU: "E", Texts: "green scarf"},
	)
	p := e.pipeline(t, assets{"A": true, "B": true, "C": true, "D": true, "E": true}, testConfig(),
		WithPublisher(rec), WithMirror(mirror))

	stats, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Batches)
	assert.Equal(t, 5, stats.Items)
	assert.Equal(t, 5, stats.Upserted)
	assert.Equal(t, 2, stats.Commits)
	assert.Zero(t, stats.Skipped)
	assert.Empty(t, stats.Failures)
	assert.NotEmpty(t, stats.RunID)

	// One call per space per batch.
	assert.Equal(t, 3, e.provider.GetClipText().CallCount())
	assert.Equal(t, 3, e.provider.GetSemantic().CallCount())
	assert.Equal(t, 3, e.provider.GetImage().CallCount())
	assert.Equal(t, 9, stats.EmbedCalls)
	assert.Len(t, e.provider.GetImage().Inputs()[0], 4, "both slots of both items in one call")

	for _, sku := range []string{"A", "B", "C", "D", "E"} {
		row := e.row(t, sku)
		assert.True(t, row.Vectors.Complete(), sku)
		var norm float32
		for _, v := range row.Vectors.SemanticText {
			norm += v * v
		}
		assert.InDelta(t, 1.0, norm, 1e-4)
	}
	assert.Zero(t, e.pending(t))

	checkpoint, err := e.repos.Checkpoints.LoadCheckpoint(context.Background(), JobName)
	require.NoError(t, err)
	assert.Nil(t, checkpoint, "a completed pass clears its checkpoint")

	published := rec.Events()
	require.Len(t, published, 2)
	first := published[0].(events.FeaturesUpdated)
	assert.Equal(t, []string{"A", "B", "C", "D"}, first.SKUs)
	assert.Equal(t, stats.RunID, first.RunID)
	assert.Equal(t, []string{"clip_image_primary", "clip_image_secondary", "clip_text", "semantic_text"}, first.Spaces)

	assert.Equal(t, 5, mirror.count())
	assert.Contains(t, e.progress.String(), "Starting backfill of 5 pending items")
	assert.Contains(t, e.progress.String(), "5/5 items")
}

func TestPipeline_FillsOnlyMissingSlot(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addItems(t, &core.Item{SKU: "A", Texts: "red dress"})
	primary := []float32{0.6, 0.8}
	_, err := e.repos.Features.UpsertFeatures(ctx, "A", core.FeatureVector{
		ClipImagePrimary: primary,
		ClipText:         []float32{1, 0},
		SemanticText:     []float32{1, 0, 0},
	})
	require.NoError(t, err)

	p := e.pipeline(t, assets{"A": true}, testConfig())
	stats, err := p.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, e.provider.GetImage().CallCount())
	inputs := e.provider.GetImage().Inputs()
	require.Len(t, inputs[0], 1)
	assert.Equal(t, "/catalog/A/image2.jpeg", inputs[0][0].Path)
	assert.Zero(t, e.provider.GetClipText().CallCount())
	assert.Zero(t, e.provider.GetSemantic().CallCount())

	row := e.row(t, "A")
	assert.InDeltaSlice(t, primary, row.Vectors.ClipImagePrimary, 1e-6, "existing slot untouched")
	assert.Len(t, row.Vectors.ClipImageSecondary, 2)
	assert.True(t, row.Vectors.Complete())
	assert.Equal(t, 1, stats.Upserted)
}

func TestPipeline_NothingPending(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addItems(t, &core.Item{SKU: "A", Texts: "red dress"})
	_, err := e.repos.Features.UpsertFeatures(ctx, "A", core.FeatureVector{
		ClipImagePrimary:   []float32{1, 0},
		ClipImageSecondary: []float32{0, 1},
		ClipText:           []float32{1, 0},
		SemanticText:       []float32{1, 0, 0},
	})
	require.NoError(t, err)

	missing, err := e.repos.Features.FindMissingEmbeddings(ctx, "", 10)
	require.NoError(t, err)
	assert.Empty(t, missing)

	rec := &events.Recorder{}
	p := e.pipeline(t, assets{"A": true}, testConfig(), WithPublisher(rec))
	stats, err := p.Run(ctx)
	require.NoError(t, err)

	assert.Zero(t, e.provider.TotalCalls())
	assert.Zero(t, stats.Upserted)
	assert.Zero(t, stats.Commits)
	assert.Empty(t, rec.Events())
	assert.Contains(t, e.progress.String(), "0 items")
}

func TestPipeline_PartialFailure(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addItems(t,
		&core.Item{SKU: "A", Texts: "red dress"},
		&core.Item{SKU: "B", Texts: "navy shirt"},
	)
	e.provider.GetImage().WithEmbedImagesFunc(func(context.Context, []ai.Image) ([][]float32, error) {
		return nil, errors.New("connection refused")
	})

	p := e.pipeline(t, assets{"A": true, "B": true}, testConfig())
	stats, err := p.Run(ctx)
	require.NoError(t, err)

	// Text slots commit even though the image modality failed.
	assert.Equal(t, 2, stats.Upserted)
	assert.Equal(t, map[core.Space]int{
		core.SpaceClipImagePrimary:   2,
		core.SpaceClipImageSecondary: 2,
	}, stats.Failures)
	assert.Equal(t, 2, e.provider.GetImage().CallCount(), "retried MaxRetries times")

	row := e.row(t, "A")
	assert.Len(t, row.Vectors.ClipText, 2)
	assert.Len(t, row.Vectors.SemanticText, 3)
	assert.Nil(t, row.Vectors.ClipImagePrimary)
	assert.Equal(t, 2, e.pending(t))

	// The next run picks up only the image slots.
	e.provider.GetImage().Reset()
	e.provider.GetClipText().Reset()
	stats, err = p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, e.provider.GetImage().CallCount())
	assert.Zero(t, e.provider.GetClipText().CallCount())
	assert.Empty(t, stats.Failures)
	assert.Zero(t, e.pending(t))
}

func TestPipeline_WrongDimensionVectorsStayPending(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addItems(t, &core.Item{SKU: "A", Texts: "red dress"})
	// The image model returns 4 floats where the store expects 2.
	e.provider.GetImage().WithEmbedImagesFunc(func(_ context.Context, images []ai.Image) ([][]float32, error) {
		out := make([][]float32, len(images))
		for i := range images {
			out[i] = []float32{1, 0, 0, 0}
		}
		return out, nil
	})

	p := e.pipeline(t, assets{"A": true}, testConfig())
	stats, err := p.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, map[core.Space]int{
		core.SpaceClipImagePrimary:   1,
		core.SpaceClipImageSecondary: 1,
	}, stats.Failures)
	assert.Equal(t, 1, e.provider.GetImage().CallCount(), "mismatch is not retried")
	assert.GreaterOrEqual(t, stats.Commits, 1)

	row := e.row(t, "A")
	assert.Len(t, row.Vectors.ClipText, 2)
	assert.Len(t, row.Vectors.SemanticText, 3)
	assert.Nil(t, row.Vectors.ClipImagePrimary)
	assert.Nil(t, row.Vectors.ClipImageSecondary)
	assert.Equal(t, 1, e.pending(t))

	// A corrected model fills the remaining slots on the next run.
	e.provider.GetImage().Reset()
	stats, err = p.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, stats.Failures)
	assert.Zero(t, e.pending(t))
}

func TestPipeline_SkipsUnfillableItems(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addItems(t,
		&core.Item{SKU: "A"},
		&core.Item{SKU: "B"},
		&core.Item{SKU: "C", Texts: "white sneakers"},
	)

	p := e.pipeline(t, assets{"C": true}, testConfig())
	stats, err := p.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 8, stats.Skipped, "four slots each for A and B")
	assert.Equal(t, 1, stats.Upserted)
	assert.True(t, e.row(t, "C").Vectors.Complete())
	assert.Equal(t, 2, e.pending(t))

	// A second pass makes no embedder calls for the stuck items.
	e.provider.GetClipText().Reset()
	_, err = p.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, e.provider.GetClipText().CallCount())
}

func TestPipeline_ResumesFromCheckpoint(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addItems(t,
		&core.Item{SKU: "A", Texts: "red dress"},
		&core.Item{SKU: "B", Texts: "navy shirt"},
		&core.Item{SKU: "C", Texts: "white sneakers"},
	)
	require.NoError(t, e.repos.Checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{Job: JobName, Cursor: "B", Processed: 2}))

	p := e.pipeline(t, assets{}, testConfig())
	stats, err := p.Run(ctx)
	require.NoError(t, err)

	assert.True(t, stats.Resumed)
	assert.Equal(t, 1, stats.Items)
	assert.Equal(t, [][]string{{"white sneakers"}}, e.provider.GetClipText().Inputs())
	assert.Contains(t, e.progress.String(), "Resuming backfill after B")

	rows, err := e.repos.Features.GetFeatures(ctx, "A", "B")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestPipeline_LockHeld(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addItems(t, &core.Item{SKU: "A", Texts: "red dress"})
	require.NoError(t, e.repos.Locks.AcquireLock(ctx, JobName, "other-run", time.Minute))

	p := e.pipeline(t, assets{}, testConfig())
	_, err := p.Run(ctx)
	assert.ErrorIs(t, err, storage.ErrLockHeld)
	assert.Zero(t, e.provider.TotalCalls())

	// The lock is released after a run, so a later run can take it.
	require.NoError(t, e.repos.Locks.ReleaseLock(ctx, JobName, "other-run"))
	_, err = p.Run(ctx)
	require.NoError(t, err)
	require.NoError(t, e.repos.Locks.AcquireLock(ctx, JobName, "next-run", time.Minute))
}

func TestPipeline_CancelCommitsStagedBatches(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.addItems(t,
		&core.Item{SKU: "A", Texts: "red dress"},
		&core.Item{SKU: "B", Texts: "navy shirt"},
		&core.Item{SKU: "C", Texts: "white sneakers"},
		&core.Item{SKU: "D", Texts: "black coat"},
	)
	e.provider.GetClipText().WithEmbedTextsFunc(func(_ context.Context, texts []string) ([][]float32, error) {
		cancel()
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{1, 0}
		}
		return out, nil
	})

	config := testConfig()
	config.CommitEvery = 5
	p := e.pipeline(t, assets{}, config)
	stats, err := p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	// The started batch finished and was committed.
	assert.Equal(t, 1, stats.Batches)
	assert.Equal(t, 1, stats.Commits)
	assert.Equal(t, []float32{1, 0}, e.row(t, "A").Vectors.ClipText)
	assert.Len(t, e.row(t, "B").Vectors.SemanticText, 3)

	checkpoint, err := e.repos.Checkpoints.LoadCheckpoint(context.Background(), JobName)
	require.NoError(t, err)
	require.NotNil(t, checkpoint)
	assert.Equal(t, "B", checkpoint.Cursor)
	assert.Equal(t, 2, checkpoint.Processed)
}

type recordingMirror struct {
	mu   sync.Mutex
	rows []storage.IndexRow
}

func (m *recordingMirror) UpsertRows(_ context.Context, rows []storage.IndexRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, rows...)
	return nil
}

func (m *recordingMirror) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}
