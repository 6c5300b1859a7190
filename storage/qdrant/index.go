package qdrant

import (
	"context"
	"fmt"
	"log/slog"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/poiesic/lookbook/core"
	"github.com/poiesic/lookbook/filter"
	"github.com/poiesic/lookbook/storage"
)

const (
	defaultUpsertBatch = 256
	defaultMaxResults  = 10000
)

// pointsAPI is the subset of pb.PointsClient the index uses.
type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	CreateFieldIndex(ctx context.Context, in *pb.CreateFieldIndexCollection, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
}

// collectionsAPI is the subset of pb.CollectionsClient the index uses.
type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// Index mirrors complete feature rows into a Qdrant collection with one named
// cosine vector per space, and serves similarity search from it.
type Index struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
	maxResults  int
	upsertBatch int
	exact       bool
	logger      *slog.Logger
}

var (
	_ storage.VectorSearcher = (*Index)(nil)
	_ storage.IndexWriter    = (*Index)(nil)
)

// Option configures an Index.
type Option func(*Index) error

// WithLogger sets the logger. A nil logger falls back to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(ix *Index) error {
		if logger == nil {
			logger = slog.Default()
		}
		ix.logger = logger
		return nil
	}
}

// WithMaxResults caps the number of hits requested when k <= 0.
func WithMaxResults(n int) Option {
	return func(ix *Index) error {
		if n <= 0 {
			return fmt.Errorf("qdrant: max results must be positive, got %d", n)
		}
		ix.maxResults = n
		return nil
	}
}

// WithExactSearch makes qdrant bypass the HNSW graph and score every point.
func WithExactSearch(exact bool) Option {
	return func(ix *Index) error {
		ix.exact = exact
		return nil
	}
}

// New creates an Index connected to Qdrant at the given gRPC address.
func New(addr, collection string, opts ...Option) (*Index, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant: dial %s: %w", addr, err)
	}
	ix, err := newIndex(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), collection, opts...)
	if err != nil {
		conn.Close()
		return nil, err
	}
	ix.conn = conn
	return ix, nil
}

func newIndex(points pointsAPI, collections collectionsAPI, collection string, opts ...Option) (*Index, error) {
	if collection == "" {
		return nil, fmt.Errorf("qdrant: collection name is required")
	}
	ix := &Index{
		points:      points,
		collections: collections,
		collection:  collection,
		maxResults:  defaultMaxResults,
		upsertBatch: defaultUpsertBatch,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(ix); err != nil {
			return nil, err
		}
	}
	ix.logger = ix.logger.With("component", "qdrant", "collection", collection)
	return ix, nil
}

// Close closes the underlying gRPC connection.
func (ix *Index) Close() error {
	if ix.conn == nil {
		return nil
	}
	return ix.conn.Close()
}

// EnsureCollection creates the collection and its payload indexes if the
// collection doesn't exist.
func (ix *Index) EnsureCollection(ctx context.Context, dims core.SpaceDims) error {
	list, err := ix.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("qdrant: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == ix.collection {
			return nil
		}
	}

	params := make(map[string]*pb.VectorParams, len(core.AllSpaces))
	for _, space := range core.AllSpaces {
		size, ok := dims[space]
		if !ok {
			size = space.Dims()
		}
		params[space.String()] = &pb.VectorParams{
			Size:     uint64(size),
			Distance: pb.Distance_Cosine,
		}
	}
	_, err = ix.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: ix.collection,
		VectorsConfig:  pb.NewVectorsConfigMap(params),
	})
	if err != nil {
		return fmt.Errorf("qdrant: create collection %s: %w", ix.collection, err)
	}

	fields := []struct {
		name string
		typ  pb.FieldType
	}{
		{payloadBrandKey, pb.FieldType_FieldTypeKeyword},
		{payloadCategoryKey, pb.FieldType_FieldTypeKeyword},
		{payloadColorKey, pb.FieldType_FieldTypeKeyword},
		{payloadPrice, pb.FieldType_FieldTypeFloat},
	}
	wait := true
	for _, f := range fields {
		typ := f.typ
		_, err := ix.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
			CollectionName: ix.collection,
			Wait:           &wait,
			FieldName:      f.name,
			FieldType:      &typ,
		})
		if err != nil {
			return fmt.Errorf("qdrant: index field %s: %w", f.name, err)
		}
	}
	ix.logger.Info("created collection", "spaces", len(params))
	return nil
}

// UpsertRows replaces the points of rows. Each point carries only the
// populated vectors of its row.
func (ix *Index) UpsertRows(ctx context.Context, rows []storage.IndexRow) error {
	for start := 0; start < len(rows); start += ix.upsertBatch {
		end := min(start+ix.upsertBatch, len(rows))
		points := make([]*pb.PointStruct, 0, end-start)
		for _, row := range rows[start:end] {
			point, err := toPoint(row)
			if err != nil {
				return err
			}
			points = append(points, point)
		}

		wait := true
		_, err := ix.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: ix.collection,
			Wait:           &wait,
			Points:         points,
		})
		if err != nil {
			return fmt.Errorf("qdrant: upsert %d points: %w", len(points), err)
		}
	}
	return nil
}

func toPoint(row storage.IndexRow) (*pb.PointStruct, error) {
	if row.Item == nil {
		return nil, fmt.Errorf("qdrant: row has no item")
	}
	vectors := make(map[string]*pb.Vector, len(core.AllSpaces))
	for _, space := range row.Vectors.Spaces() {
		vectors[space.String()] = pb.NewVectorDense(row.Vectors.Get(space))
	}
	payload, err := pb.TryValueMap(itemPayload(row.Item))
	if err != nil {
		return nil, fmt.Errorf("qdrant: payload for %s: %w", row.Item.SKU, err)
	}
	return &pb.PointStruct{
		Id:      pb.NewIDNum(core.PointID(row.Item.SKU)),
		Vectors: pb.NewVectorsMap(vectors),
		Payload: payload,
	}, nil
}

// SimilaritySearch queries the named vector of space. Hits are re-sorted so
// equal scores come back in SKU order.
func (ix *Index) SimilaritySearch(ctx context.Context, space core.Space, query []float32, predicate *filter.Predicate, k int) ([]*core.SpaceMatch, error) {
	if !space.Valid() {
		return nil, fmt.Errorf("%w: %d", core.ErrUnknownSpace, int(space))
	}
	flt, ok := compileFilter(space, predicate)
	if !ok {
		return nil, nil
	}

	limit := k
	if limit <= 0 {
		limit = ix.maxResults
	}
	name := space.String()
	req := &pb.SearchPoints{
		CollectionName: ix.collection,
		Vector:         query,
		VectorName:     &name,
		Filter:         flt,
		Limit:          uint64(limit),
		WithPayload:    pb.NewWithPayload(true),
	}
	if ix.exact {
		exact := true
		req.Params = &pb.SearchParams{Exact: &exact}
	}

	resp, err := ix.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("qdrant: search %s: %w", name, err)
	}

	matches := make([]*core.SpaceMatch, 0, len(resp.GetResult()))
	for _, hit := range resp.GetResult() {
		matches = append(matches, &core.SpaceMatch{
			Item:  itemFromPayload(hit.GetPayload()),
			Score: hit.GetScore(),
		})
	}
	storage.SortMatches(matches)
	return matches, nil
}
