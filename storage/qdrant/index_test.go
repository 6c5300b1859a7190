package qdrant

import (
	"context"
	"errors"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/poiesic/lookbook/core"
	"github.com/poiesic/lookbook/filter"
	"github.com/poiesic/lookbook/storage"
)

// --- Mocks ---

type mockPoints struct {
	upserts     []*pb.UpsertPoints
	upsertErr   error
	searchReq   *pb.SearchPoints
	searchResp  *pb.SearchResponse
	searchErr   error
	fieldIndexs []string
}

func (m *mockPoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.upserts = append(m.upserts, in)
	return &pb.PointsOperationResponse{}, m.upsertErr
}

func (m *mockPoints) Search(_ context.Context, in *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	m.searchReq = in
	return m.searchResp, m.searchErr
}

func (m *mockPoints) CreateFieldIndex(_ context.Context, in *pb.CreateFieldIndexCollection, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.fieldIndexs = append(m.fieldIndexs, in.GetFieldName())
	return &pb.PointsOperationResponse{}, nil
}

type mockCollections struct {
	listResp  *pb.ListCollectionsResponse
	listErr   error
	created   *pb.CreateCollection
	createErr error
}

func (m *mockCollections) List(_ context.Context, _ *pb.ListCollectionsRequest, _ ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	return m.listResp, m.listErr
}

func (m *mockCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.created = in
	return &pb.CollectionOperationResponse{Result: true}, m.createErr
}

func newTestIndex(t *testing.T, points *mockPoints, cols *mockCollections, opts ...Option) *Index {
	t.Helper()
	ix, err := newIndex(points, cols, "catalog", opts...)
	require.NoError(t, err)
	return ix
}

// --- Tests ---

func TestNewIndex_RequiresCollection(t *testing.T) {
	_, err := newIndex(&mockPoints{}, &mockCollections{}, "")
	assert.Error(t, err)

	_, err = newIndex(&mockPoints{}, &mockCollections{}, "c", WithMaxResults(0))
	assert.Error(t, err)
}

func TestEnsureCollection_AlreadyExists(t *testing.T) {
	points := &mockPoints{}
	cols := &mockCollections{listResp: &pb.ListCollectionsResponse{
		Collections: []*pb.CollectionDescription{{Name: "catalog"}},
	}}
	ix := newTestIndex(t, points, cols)

	require.NoError(t, ix.EnsureCollection(context.Background(), core.DefaultSpaceDims()))
	assert.Nil(t, cols.created)
	assert.Empty(t, points.fieldIndexs)
}

func TestEnsureCollection_CreatesNamedVectors(t *testing.T) {
	points := &mockPoints{}
	cols := &mockCollections{listResp: &pb.ListCollectionsResponse{}}
	ix := newTestIndex(t, points, cols)

	dims := core.DefaultSpaceDims()
	dims[core.SpaceSemanticText] = 768
	require.NoError(t, ix.EnsureCollection(context.Background(), dims))

	require.NotNil(t, cols.created)
	params := cols.created.GetVectorsConfig().GetParamsMap().GetMap()
	require.Len(t, params, 4)
	assert.Equal(t, uint64(512), params["clip_image_primary"].GetSize())
	assert.Equal(t, uint64(768), params["semantic_text"].GetSize())
	assert.Equal(t, pb.Distance_Cosine, params["clip_text"].GetDistance())
	assert.ElementsMatch(t, []string{"brand_key", "category_key", "color_key", "price"}, points.fieldIndexs)
}

func TestEnsureCollection_ListError(t *testing.T) {
	cols := &mockCollections{listErr: errors.New("unavailable")}
	ix := newTestIndex(t, &mockPoints{}, cols)
	assert.Error(t, ix.EnsureCollection(context.Background(), nil))
}

func TestUpsertRows(t *testing.T) {
	points := &mockPoints{}
	ix := newTestIndex(t, points, &mockCollections{})
	ix.upsertBatch = 2

	rows := []storage.IndexRow{
		{Item: &core.Item{SKU: "A", Brand: "Acme", Color: "Navy Blue", Price: 10}, Vectors: core.FeatureVector{ClipText: []float32{1, 0}}},
		{Item: &core.Item{SKU: "B"}, Vectors: core.FeatureVector{SemanticText: []float32{0, 1}}},
		{Item: &core.Item{SKU: "C"}, Vectors: core.FeatureVector{ClipImagePrimary: []float32{1}}},
	}
	require.NoError(t, ix.UpsertRows(context.Background(), rows))
	require.Len(t, points.upserts, 2)
	assert.Len(t, points.upserts[0].GetPoints(), 2)
	assert.Len(t, points.upserts[1].GetPoints(), 1)

	first := points.upserts[0].GetPoints()[0]
	assert.Equal(t, core.PointID("A"), first.GetId().GetNum())
	named := first.GetVectors().GetVectors().GetVectors()
	require.Len(t, named, 1)
	assert.Equal(t, []float32{1, 0}, named["clip_text"].GetDense().GetData())
	assert.Equal(t, "acme", first.GetPayload()["brand_key"].GetStringValue())
	assert.Equal(t, "navy blue", first.GetPayload()["color_key"].GetStringValue())
	assert.Equal(t, 10.0, first.GetPayload()["price"].GetDoubleValue())
}

func TestUpsertRows_Error(t *testing.T) {
	points := &mockPoints{upsertErr: errors.New("boom")}
	ix := newTestIndex(t, points, &mockCollections{})
	err := ix.UpsertRows(context.Background(), []storage.IndexRow{{Item: &core.Item{SKU: "A"}}})
	assert.Error(t, err)

	assert.NoError(t, ix.UpsertRows(context.Background(), nil))
}

func TestSimilaritySearch_BuildsRequest(t *testing.T) {
	points := &mockPoints{searchResp: &pb.SearchResponse{}}
	ix := newTestIndex(t, points, &mockCollections{}, WithExactSearch(true))

	brand := "Acme"
	maxPrice := 100.0
	mapping := core.ColorMapping{"Navy Blue": "navy"}
	color := "navy"
	p, err := filter.Build(&core.Filters{Brand: &brand, Color: &color, MaxPrice: &maxPrice}, mapping, nil)
	require.NoError(t, err)

	_, err = ix.SimilaritySearch(context.Background(), core.SpaceClipText, []float32{1, 0}, p, 5)
	require.NoError(t, err)

	req := points.searchReq
	require.NotNil(t, req)
	assert.Equal(t, "catalog", req.GetCollectionName())
	assert.Equal(t, "clip_text", req.GetVectorName())
	assert.Equal(t, uint64(5), req.GetLimit())
	assert.True(t, req.GetParams().GetExact())

	must := req.GetFilter().GetMust()
	require.Len(t, must, 4)
	assert.Equal(t, "clip_text", must[0].GetHasVector().GetHasVector())
	assert.Equal(t, "brand_key", must[1].GetField().GetKey())
	assert.Equal(t, "acme", must[1].GetField().GetMatch().GetKeyword())
	assert.Equal(t, []string{"navy blue"}, must[2].GetField().GetMatch().GetKeywords().GetStrings())
	assert.Equal(t, 100.0, must[3].GetField().GetRange().GetLte())
	assert.Nil(t, must[3].GetField().GetRange().Gte)
}

func TestSimilaritySearch_ExhaustiveUsesMaxResults(t *testing.T) {
	points := &mockPoints{searchResp: &pb.SearchResponse{}}
	ix := newTestIndex(t, points, &mockCollections{}, WithMaxResults(50))

	_, err := ix.SimilaritySearch(context.Background(), core.SpaceSemanticText, []float32{1}, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), points.searchReq.GetLimit())
	assert.Len(t, points.searchReq.GetFilter().GetMust(), 1)
}

func TestSimilaritySearch_UnmatchedColorSkipsRequest(t *testing.T) {
	points := &mockPoints{}
	ix := newTestIndex(t, points, &mockCollections{})

	color := "chartreuse"
	p, err := filter.Build(&core.Filters{Color: &color}, core.ColorMapping{"Navy Blue": "navy"}, nil)
	require.NoError(t, err)

	matches, err := ix.SimilaritySearch(context.Background(), core.SpaceClipText, []float32{1}, p, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Nil(t, points.searchReq)
}

func TestSimilaritySearch_ParsesAndSortsHits(t *testing.T) {
	hit := func(sku string, score float32) *pb.ScoredPoint {
		return &pb.ScoredPoint{
			Id:      pb.NewIDNum(core.PointID(sku)),
			Score:   score,
			Payload: pb.NewValueMap(map[string]any{"sku": sku, "title": "t-" + sku, "price": 12.5, "image2": "worn.jpeg"}),
		}
	}
	points := &mockPoints{searchResp: &pb.SearchResponse{Result: []*pb.ScoredPoint{
		hit("C", 0.5), hit("B", 0.9), hit("A", 0.5),
	}}}
	ix := newTestIndex(t, points, &mockCollections{})

	matches, err := ix.SimilaritySearch(context.Background(), core.SpaceClipImagePrimary, []float32{1}, nil, 3)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "B", matches[0].Item.SKU)
	assert.Equal(t, "A", matches[1].Item.SKU)
	assert.Equal(t, "C", matches[2].Item.SKU)
	assert.Equal(t, "t-B", matches[0].Item.Title)
	assert.Equal(t, 12.5, matches[0].Item.Price)
	assert.Equal(t, "worn.jpeg", matches[0].Item.DisplayImage())
}

func TestSimilaritySearch_Errors(t *testing.T) {
	points := &mockPoints{searchErr: errors.New("unavailable")}
	ix := newTestIndex(t, points, &mockCollections{})

	_, err := ix.SimilaritySearch(context.Background(), core.SpaceClipText, []float32{1}, nil, 5)
	assert.Error(t, err)

	_, err = ix.SimilaritySearch(context.Background(), core.Space(42), []float32{1}, nil, 5)
	assert.True(t, errors.Is(err, core.ErrUnknownSpace))
}
