package metadata

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/waqedi/platform/engine/domain"
	"github.com/waqedi/platform/pkg/repo"
)

// ExtractionStore persists one ExtractionResult per document for exactly
// one tenant.
type ExtractionStore struct {
	tenantID string
	repo     *repo.TenantNeo4jRepo[domain.ExtractionResult]
}

func NewExtractionStore(driver neo4j.DriverWithContext, tenantID string) *ExtractionStore {
	return &ExtractionStore{
		tenantID: tenantID,
		repo:     repo.NewTenantNeo4jRepo[domain.ExtractionResult](driver, tenantID, "ExtractionResult", "id", extractionToMap, extractionFromRecord),
	}
}

func (s *ExtractionStore) Put(ctx context.Context, result domain.ExtractionResult) (domain.ExtractionResult, error) {
	result.TenantID = s.tenantID
	return s.repo.Upsert(ctx, result.ID, result)
}

func (s *ExtractionStore) Get(ctx context.Context, id string) (domain.ExtractionResult, error) {
	return s.repo.Get(ctx, id)
}

func (s *ExtractionStore) GetByDocument(ctx context.Context, documentID string) (domain.ExtractionResult, error) {
	all, err := s.repo.List(ctx, repo.ListOpts{Limit: 10000})
	if err != nil {
		return domain.ExtractionResult{}, err
	}
	for _, e := range all {
		if e.DocumentID == documentID {
			return e, nil
		}
	}
	return domain.ExtractionResult{}, fmt.Errorf("metadata: no extraction result for document %s", documentID)
}

func extractionToMap(e domain.ExtractionResult) map[string]any {
	pages := make([]any, len(e.Pages))
	for i, p := range e.Pages {
		pages[i] = map[string]any{
			"page_number": p.PageNumber,
			"text":        p.Text,
			"confidence":  p.Confidence,
		}
	}
	return map[string]any{
		"id":                 e.ID,
		"document_id":        e.DocumentID,
		"tenant_id":          e.TenantID,
		"text":               e.Text,
		"pages":              pages,
		"detected_language":  e.DetectedLanguage,
		"model_id":           e.ModelID,
		"model_version":      e.ModelVersion,
		"processing_time_ms": e.ProcessingTimeMS,
		"created_at":         e.CreatedAt.Format(time.RFC3339Nano),
	}
}

func extractionFromRecord(rec *neo4j.Record) (domain.ExtractionResult, error) {
	raw, ok := rec.Get("n")
	if !ok {
		return domain.ExtractionResult{}, fmt.Errorf("metadata: record missing node")
	}
	node, ok := raw.(neo4j.Node)
	if !ok {
		return domain.ExtractionResult{}, fmt.Errorf("metadata: unexpected record shape")
	}
	p := node.Props
	e := domain.ExtractionResult{
		ID:               str(p, "id"),
		DocumentID:       str(p, "document_id"),
		TenantID:         str(p, "tenant_id"),
		Text:             str(p, "text"),
		DetectedLanguage: str(p, "detected_language"),
		ModelID:          str(p, "model_id"),
		ModelVersion:     str(p, "model_version"),
		ProcessingTimeMS: int64Of(p, "processing_time_ms"),
		CreatedAt:        timeOf(p, "created_at"),
	}
	if raw, ok := p["pages"].([]any); ok {
		for _, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			e.Pages = append(e.Pages, domain.PageConfidence{
				PageNumber: int(int64Of(m, "page_number")),
				Text:       str(m, "text"),
				Confidence: floatOf(m, "confidence"),
			})
		}
	}
	return e, nil
}

func floatOf(p map[string]any, k string) float64 {
	switch v := p[k].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}
