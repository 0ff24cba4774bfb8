// Package indexing implements S5: embedding chunks and upserting the
// resulting vectors into the tenant-filtered vector store (§4.5).
package indexing

import (
	"context"
	"fmt"
	"time"

	"github.com/waqedi/platform/engine/domain"
	"github.com/waqedi/platform/engine/events"
)

// batchSize bounds each embed+upsert round trip per §4.5 step 3.
const batchSize = 100

// Embedder batch-encodes chunk text, recording the model identifier and
// version every vector it produces carries (§4.5 step 1).
type Embedder interface {
	Model() string
	Version() string
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorUpserter writes vectors into the tenant-filtered vector store.
type VectorUpserter interface {
	Upsert(ctx context.Context, vectors []domain.Vector) error
}

// EventPublisher emits the document pipeline's bus events.
type EventPublisher interface {
	Publish(ctx context.Context, documentID, tenantID, correlationID string, eventType events.EventType, payload any) error
}

// Service runs S5 over a document's chunks.
type Service struct {
	embedder  Embedder
	vectors   VectorUpserter
	publisher EventPublisher
	clock     func() time.Time
}

// New builds a Service.
func New(embedder Embedder, vectors VectorUpserter, publisher EventPublisher) *Service {
	return &Service{embedder: embedder, vectors: vectors, publisher: publisher, clock: time.Now}
}

// Process embeds chunks in bounded batches of batchSize, upserts each
// batch as it completes so a failed batch only loses its own chunks
// rather than the whole document, and publishes document.indexed /
// document.indexing_failed.
func (s *Service) Process(ctx context.Context, documentID, tenantID, correlationID, collection string, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return s.fail(ctx, documentID, tenantID, correlationID, fmt.Errorf("indexing: no chunks to index"))
	}

	indexed := 0
	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		embeddings, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return s.fail(ctx, documentID, tenantID, correlationID, domain.Wrap(domain.KindTransientDependency, "", "indexing: embed batch", err))
		}
		if len(embeddings) != len(batch) {
			return s.fail(ctx, documentID, tenantID, correlationID, fmt.Errorf("indexing: expected %d embeddings, got %d", len(batch), len(embeddings)))
		}

		vectors := make([]domain.Vector, len(batch))
		now := s.clock()
		for i, c := range batch {
			vectors[i] = domain.Vector{
				PointID:          domain.PointID(tenantID, c.ChunkID),
				TenantID:         tenantID,
				DocumentID:       documentID,
				ChunkID:          c.ChunkID,
				Language:         c.Language,
				Text:             c.Text,
				PageNumber:       c.PageNumber,
				IngestionTime:    now,
				EmbeddingModel:   s.embedder.Model(),
				EmbeddingVersion: s.embedder.Version(),
				Embedding:        embeddings[i],
			}
		}

		if err := s.vectors.Upsert(ctx, vectors); err != nil {
			return s.fail(ctx, documentID, tenantID, correlationID, domain.Wrap(domain.KindTransientDependency, "", "indexing: upsert vectors", err))
		}
		indexed += len(vectors)
	}

	return s.publisher.Publish(ctx, documentID, tenantID, correlationID, events.DocumentIndexed, events.IndexedPayload{
		DocumentID:     documentID,
		VectorsIndexed: indexed,
		Collection:     collection,
	})
}

func (s *Service) fail(ctx context.Context, documentID, tenantID, correlationID string, cause error) error {
	_ = s.publisher.Publish(ctx, documentID, tenantID, correlationID, events.DocumentIndexingFailed, events.IndexingFailedPayload{
		DocumentID: documentID,
		Error:      cause.Error(),
	})
	return cause
}
