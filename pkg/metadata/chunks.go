package metadata

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/waqedi/platform/engine/domain"
	"github.com/waqedi/platform/pkg/repo"
)

// ChunkStore persists Chunk rows for exactly one tenant. It is the
// source of truth for chunk_index density (§4.4 invariant 2); the
// vector store is a derived, rebuildable projection of these rows.
type ChunkStore struct {
	tenantID string
	repo     *repo.TenantNeo4jRepo[domain.Chunk]
}

func NewChunkStore(driver neo4j.DriverWithContext, tenantID string) *ChunkStore {
	return &ChunkStore{
		tenantID: tenantID,
		repo:     repo.NewTenantNeo4jRepo[domain.Chunk](driver, tenantID, "Chunk", "chunk_id", chunkToMap, chunkFromRecord),
	}
}

func (s *ChunkStore) PutAll(ctx context.Context, chunks []domain.Chunk) ([]domain.Chunk, error) {
	out := make([]domain.Chunk, 0, len(chunks))
	for _, c := range chunks {
		c.TenantID = s.tenantID
		saved, err := s.repo.Upsert(ctx, c.ChunkID, c)
		if err != nil {
			return out, fmt.Errorf("metadata: put chunk %s: %w", c.ChunkID, err)
		}
		out = append(out, saved)
	}
	return out, nil
}

func (s *ChunkStore) Get(ctx context.Context, chunkID string) (domain.Chunk, error) {
	return s.repo.Get(ctx, chunkID)
}

func (s *ChunkStore) ListByDocument(ctx context.Context, documentID string, opts repo.ListOpts) ([]domain.Chunk, error) {
	all, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, err
	}
	filtered := all[:0]
	for _, c := range all {
		if c.DocumentID == documentID {
			filtered = append(filtered, c)
		}
	}
	return filtered, nil
}

func chunkToMap(c domain.Chunk) map[string]any {
	m := map[string]any{
		"chunk_id":    c.ChunkID,
		"document_id": c.DocumentID,
		"tenant_id":   c.TenantID,
		"text":        c.Text,
		"language":    c.Language,
		"token_count": c.TokenCount,
		"chunk_index": c.ChunkIndex,
	}
	if c.PageNumber != nil {
		m["page_number"] = *c.PageNumber
	}
	return m
}

func chunkFromRecord(rec *neo4j.Record) (domain.Chunk, error) {
	raw, ok := rec.Get("n")
	if !ok {
		return domain.Chunk{}, fmt.Errorf("metadata: record missing node")
	}
	node, ok := raw.(neo4j.Node)
	if !ok {
		return domain.Chunk{}, fmt.Errorf("metadata: unexpected record shape")
	}
	p := node.Props
	c := domain.Chunk{
		ChunkID:    str(p, "chunk_id"),
		DocumentID: str(p, "document_id"),
		TenantID:   str(p, "tenant_id"),
		Text:       str(p, "text"),
		Language:   str(p, "language"),
		TokenCount: int(int64Of(p, "token_count")),
		ChunkIndex: int(int64Of(p, "chunk_index")),
	}
	if _, ok := p["page_number"]; ok {
		pn := int(int64Of(p, "page_number"))
		c.PageNumber = &pn
	}
	return c, nil
}
