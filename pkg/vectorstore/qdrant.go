// Package vectorstore is the sole owner of all Qdrant operations. Every
// read and write carries a tenant_id filter that the caller cannot bypass
// (§3 Ownership, §8 property 1: zero cross-tenant leakage).
package vectorstore

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"github.com/waqedi/platform/engine/domain"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Store wraps a single Qdrant collection shared by all tenants. Isolation
// is enforced by an unconditional tenant_id filter on every request, never
// left to the caller.
type Store struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
}

// New dials Qdrant at addr and binds to the given collection.
func New(addr string, collection string) (*Store, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("vectorstore: dial qdrant %s: %w", addr, err)
	}
	return &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// Close closes the underlying gRPC connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// EnsureCollection creates the collection with cosine distance and the
// given embedding dimensionality if it does not already exist. tenant_id,
// document_id, and language are stored as payload fields on every point
// (see Upsert) so every search filter in this package resolves against
// them even without a dedicated payload index.
func (s *Store) EnsureCollection(ctx context.Context, dims int) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("vectorstore: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == s.collection {
			return nil
		}
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vectorstore: create collection %s: %w", s.collection, err)
	}
	return nil
}

// Upsert stores vectors. Every point's ID is derived from tenant_id and
// chunk_id, and its payload is tagged with tenant_id, so a later filtered
// search or delete can never mix tenants (§4.5 invariant 2).
func (s *Store) Upsert(ctx context.Context, vectors []domain.Vector) error {
	if len(vectors) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(vectors))
	for i, v := range vectors {
		if v.TenantID == "" {
			return fmt.Errorf("vectorstore: vector %s has empty tenant_id", v.ChunkID)
		}
		payload := map[string]*pb.Value{
			"tenant_id":         stringValue(v.TenantID),
			"document_id":       stringValue(v.DocumentID),
			"chunk_id":          stringValue(v.ChunkID),
			"language":          stringValue(v.Language),
			"text":              stringValue(v.Text),
			"embedding_model":   stringValue(v.EmbeddingModel),
			"embedding_version": stringValue(v.EmbeddingVersion),
			"ingestion_time":    stringValue(v.IngestionTime.Format(rfc3339Nano)),
		}
		if v.PageNumber != nil {
			payload["page_number"] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(*v.PageNumber)}}
		}

		points[i] = &pb.PointStruct{
			// Qdrant requires point IDs to be a u64 or an RFC4122 UUID; the
			// composite tenant_id+chunk_id string is not one, so the wire ID
			// is a deterministic UUID derived from it, and the composite
			// string itself only lives in the tenant_id/chunk_id payload
			// fields above.
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: domain.WireID(domain.PointID(v.TenantID, v.ChunkID))}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: v.Embedding}}},
			Payload: payload,
		}
	}

	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("vectorstore: upsert %d points: %w", len(points), err)
	}
	return nil
}

// DeleteByDocument removes every point for a (tenant_id, document_id)
// pair. Used for re-ingestion and document deletion.
func (s *Store) DeleteByDocument(ctx context.Context, tenantID, documentID string) error {
	wait := true
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{
					Must: []*pb.Condition{
						fieldMatch("tenant_id", tenantID),
						fieldMatch("document_id", documentID),
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vectorstore: delete document %s: %w", documentID, err)
	}
	return nil
}

// SearchResult is a single k-NN hit.
type SearchResult struct {
	ChunkID          string
	DocumentID       string
	Language         string
	Text             string
	Score            float32
	PageNumber       *int
	EmbeddingVersion string
}

// SearchOpts narrows a similarity search beyond the mandatory tenant scope.
type SearchOpts struct {
	Language   string
	DocumentID string
}

// Search performs k-NN similarity search scoped unconditionally to
// tenantID. There is no code path in this package that can run a search
// without it (§8 property 1).
func (s *Store) Search(ctx context.Context, tenantID string, embedding []float32, topK int, opts SearchOpts) ([]SearchResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("vectorstore: search requires a non-empty tenant_id")
	}

	must := []*pb.Condition{fieldMatch("tenant_id", tenantID)}
	if opts.Language != "" {
		must = append(must, fieldMatch("language", opts.Language))
	}
	if opts.DocumentID != "" {
		must = append(must, fieldMatch("document_id", opts.DocumentID))
	}

	req := &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         embedding,
		Limit:          uint64(topK),
		Filter:         &pb.Filter{Must: must},
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}

	resp, err := s.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: search: %w", err)
	}

	results := make([]SearchResult, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		payload := r.GetPayload()
		sr := SearchResult{
			ChunkID:          payload["chunk_id"].GetStringValue(),
			DocumentID:       payload["document_id"].GetStringValue(),
			Language:         payload["language"].GetStringValue(),
			Text:             payload["text"].GetStringValue(),
			Score:            r.GetScore(),
			EmbeddingVersion: payload["embedding_version"].GetStringValue(),
		}
		if pn, ok := payload["page_number"]; ok {
			v := int(pn.GetIntegerValue())
			sr.PageNumber = &v
		}
		results[i] = sr
	}
	return results, nil
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}},
			},
		},
	}
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

const rfc3339Nano = "2006-01-02T15:04:05.999999999Z07:00"
