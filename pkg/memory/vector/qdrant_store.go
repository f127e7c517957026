package vector

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const contentPayloadKey = "__content"

// QdrantStore implements Store backed by a Qdrant instance over gRPC
type QdrantStore struct {
	conn        *grpc.ClientConn
	collections pb.CollectionsClient
	points      pb.PointsClient
	collection  string
	dimension   int
}

// NewQdrantStore dials the Qdrant gRPC endpoint and ensures the configured
// collection exists. Options: "address" (host:port) and "collection".
func NewQdrantStore(ctx context.Context, config Config) (Store, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive")
	}

	address, ok := config.Options["address"].(string)
	if !ok || address == "" {
		return nil, fmt.Errorf("address is required for Qdrant store")
	}

	collection, ok := config.Options["collection"].(string)
	if !ok || collection == "" {
		return nil, fmt.Errorf("collection is required for Qdrant store")
	}

	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect %s: %w", address, err)
	}

	s := &QdrantStore{
		conn:        conn,
		collections: pb.NewCollectionsClient(conn),
		points:      pb.NewPointsClient(conn),
		collection:  collection,
		dimension:   config.Dimension,
	}

	if err := s.ensureCollection(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	return s, nil
}

// ensureCollection creates the collection if it does not already exist
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	_, err := s.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: s.collection})
	if err == nil {
		return nil
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(s.dimension),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", s.collection, err)
	}
	return nil
}

// Insert implements Store.Insert
func (s *QdrantStore) Insert(ctx context.Context, docs ...Document) error {
	points := make([]*pb.PointStruct, 0, len(docs))
	for _, doc := range docs {
		if len(doc.Vector) != s.dimension {
			return fmt.Errorf("vector dimension mismatch: expected %d, got %d", s.dimension, len(doc.Vector))
		}
		points = append(points, s.toPoint(doc))
	}

	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upsert points: %w", err)
	}
	return nil
}

// Search implements Store.Search
func (s *QdrantStore) Search(ctx context.Context, queryVector Vector, limit int, filter Filter) ([]SearchResult, error) {
	if len(queryVector) != s.dimension {
		return nil, fmt.Errorf("query vector dimension mismatch: expected %d, got %d", s.dimension, len(queryVector))
	}

	req := &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         queryVector,
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if cond := toQdrantFilter(filter); cond != nil {
		req.Filter = cond
	}

	resp, err := s.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", s.collection, err)
	}

	results := make([]SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, SearchResult{
			Document: fromPayload(r.Id.GetUuid(), r.Payload),
			Score:    r.Score,
		})
	}
	return results, nil
}

// Get implements Store.Get
func (s *QdrantStore) Get(ctx context.Context, id string) (*Document, error) {
	resp, err := s.points.Get(ctx, &pb.GetPoints{
		CollectionName: s.collection,
		Ids:            []*pb.PointId{{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}},
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("get point %s: %w", id, err)
	}
	if len(resp.Result) == 0 {
		return nil, fmt.Errorf("document not found: %s", id)
	}

	doc := fromPayload(id, resp.Result[0].Payload)
	return &doc, nil
}

// Update implements Store.Update. Qdrant upserts are idempotent, so an
// update is the same operation as an insert.
func (s *QdrantStore) Update(ctx context.Context, docs ...Document) error {
	return s.Insert(ctx, docs...)
}

// Delete implements Store.Delete
func (s *QdrantStore) Delete(ctx context.Context, ids ...string) error {
	pointIDs := make([]*pb.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}})
	}

	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collection,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: pointIDs},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("delete points: %w", err)
	}
	return nil
}

// DeleteWhere implements Store.DeleteWhere
func (s *QdrantStore) DeleteWhere(ctx context.Context, filter Filter) error {
	cond := toQdrantFilter(filter)
	if cond == nil {
		return s.Clear(ctx)
	}

	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collection,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{Filter: cond},
		},
	})
	if err != nil {
		return fmt.Errorf("delete by filter: %w", err)
	}
	return nil
}

// Count implements Store.Count
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	resp, err := s.points.Count(ctx, &pb.CountPoints{CollectionName: s.collection})
	if err != nil {
		return 0, fmt.Errorf("count points: %w", err)
	}
	return int(resp.Result.Count), nil
}

// Clear implements Store.Clear by dropping and recreating the collection
func (s *QdrantStore) Clear(ctx context.Context) error {
	_, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: s.collection})
	if err != nil {
		return fmt.Errorf("drop collection %s: %w", s.collection, err)
	}
	return s.ensureCollection(ctx)
}

// Close implements Store.Close
func (s *QdrantStore) Close() error {
	return s.conn.Close()
}

func (s *QdrantStore) toPoint(doc Document) *pb.PointStruct {
	payload := make(map[string]*pb.Value, len(doc.Metadata)+1)
	for k, v := range doc.Metadata {
		payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
	}
	payload[contentPayloadKey] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: doc.Content}}

	return &pb.PointStruct{
		Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: doc.ID}},
		Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: doc.Vector}}},
		Payload: payload,
	}
}

func fromPayload(id string, payload map[string]*pb.Value) Document {
	doc := Document{ID: id, Metadata: make(map[string]string)}
	for k, v := range payload {
		sv, ok := v.Kind.(*pb.Value_StringValue)
		if !ok {
			continue
		}
		if k == contentPayloadKey {
			doc.Content = sv.StringValue
			continue
		}
		doc.Metadata[k] = sv.StringValue
	}
	return doc
}

func toQdrantFilter(filter Filter) *pb.Filter {
	if len(filter) == 0 {
		return nil
	}

	conditions := make([]*pb.Condition, 0, len(filter))
	for k, v := range filter {
		conditions = append(conditions, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key:   k,
					Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: v}},
				},
			},
		})
	}
	return &pb.Filter{Must: conditions}
}
