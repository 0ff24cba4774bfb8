// Package retrieval implements S6: tenant-scoped vector search over the
// query path (§4.6).
package retrieval

import (
	"context"
	"fmt"

	"github.com/waqedi/platform/engine/domain"
	"github.com/waqedi/platform/pkg/vectorstore"
)

// Config bounds the over-fetch and relevance floor (§4.6 steps 3-4).
type Config struct {
	OverfetchMultiplier int
	MaxFetch            int
	MinRelevanceScore   float32
}

// DefaultConfig returns the documented defaults: fetch 2x top_k capped at
// 200, drop anything scoring below 0.5.
func DefaultConfig() Config {
	return Config{OverfetchMultiplier: 2, MaxFetch: 200, MinRelevanceScore: 0.5}
}

// QueryEmbedder embeds query text with the same model family used at
// indexing.
type QueryEmbedder interface {
	Version() string
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorSearcher performs the mandatory tenant-scoped k-NN search.
type VectorSearcher interface {
	Search(ctx context.Context, tenantID string, embedding []float32, topK int, opts vectorstore.SearchOpts) ([]vectorstore.SearchResult, error)
}

// RetrievedChunk is one ranked hit returned to the answering path.
type RetrievedChunk struct {
	ChunkID    string
	DocumentID string
	Text       string
	Language   string
	Score      float32
	PageNumber *int
}

// Filters narrows retrieval beyond the mandatory tenant scope (§4.6).
type Filters struct {
	Language   string
	DocumentID string
}

// Service runs S6. There is no method here, or anywhere in this package,
// that can reach VectorSearcher.Search without a tenant_id: Retrieve's
// signature requires one and passes it straight through, with no
// "unfiltered" variant exposed (§4.6, §8 property 1).
type Service struct {
	embedder QueryEmbedder
	vectors  VectorSearcher
	cfg      Config
}

// New builds a Service.
func New(embedder QueryEmbedder, vectors VectorSearcher, cfg Config) *Service {
	return &Service{embedder: embedder, vectors: vectors, cfg: cfg}
}

// Retrieve runs the §4.6 contract: embed, version-check, over-fetch,
// filter by minimum relevance. The returned set may exceed topK — the
// over-fetch exists so the answering path has a larger candidate pool to
// rerank from (§4.7c); callers that need exactly topK truncate after
// reranking, not here.
func (s *Service) Retrieve(ctx context.Context, tenantID, queryText string, topK int, filters Filters) ([]RetrievedChunk, error) {
	if tenantID == "" {
		return nil, domain.New(domain.KindValidation, domain.TypeValidation, "retrieval requires a non-empty tenant_id")
	}
	if topK <= 0 {
		topK = 10
	}

	embeddings, err := s.embedder.EmbedBatch(ctx, []string{queryText})
	if err != nil {
		return nil, domain.Wrap(domain.KindTransientDependency, "", "retrieval: embed query", err)
	}
	if len(embeddings) != 1 {
		return nil, fmt.Errorf("retrieval: expected 1 query embedding, got %d", len(embeddings))
	}

	fetchK := topK * s.cfg.OverfetchMultiplier
	if fetchK <= 0 {
		fetchK = topK
	}
	if s.cfg.MaxFetch > 0 && fetchK > s.cfg.MaxFetch {
		fetchK = s.cfg.MaxFetch
	}

	hits, err := s.vectors.Search(ctx, tenantID, embeddings[0], fetchK, vectorstore.SearchOpts{
		Language:   filters.Language,
		DocumentID: filters.DocumentID,
	})
	if err != nil {
		return nil, domain.Wrap(domain.KindTransientDependency, "", "retrieval: vector search", err)
	}

	queryVersion := s.embedder.Version()
	results := make([]RetrievedChunk, 0, len(hits))
	for _, h := range hits {
		if h.EmbeddingVersion != "" && h.EmbeddingVersion != queryVersion {
			return nil, domain.Wrap(domain.KindConflict, "", fmt.Sprintf(
				"retrieval: chunk %s was indexed with embedding version %q, query uses %q", h.ChunkID, h.EmbeddingVersion, queryVersion,
			), domain.ErrEmbeddingVersionSkew)
		}
		if h.Score < s.cfg.MinRelevanceScore {
			continue
		}
		results = append(results, RetrievedChunk{
			ChunkID:    h.ChunkID,
			DocumentID: h.DocumentID,
			Text:       h.Text,
			Language:   h.Language,
			Score:      h.Score,
			PageNumber: h.PageNumber,
		})
	}

	return results, nil
}
