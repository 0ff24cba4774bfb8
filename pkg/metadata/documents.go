// Package metadata is the relational/graph metadata store. It owns
// Document.status (§3 Ownership) and is the only package permitted to
// write it, via engine/domain's state machine. Every repository in this
// package is constructed with a tenant ID baked in, never accepted as a
// call parameter (Design Notes, "pseudo-inheritance among repositories").
package metadata

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/waqedi/platform/engine/domain"
	"github.com/waqedi/platform/pkg/repo"
)

// DocumentStore persists Document rows for exactly one tenant.
type DocumentStore struct {
	tenantID string
	repo     *repo.TenantNeo4jRepo[domain.Document]
}

// NewDocumentStore binds a DocumentStore to tenantID; it can never see rows
// belonging to another tenant.
func NewDocumentStore(driver neo4j.DriverWithContext, tenantID string) *DocumentStore {
	return &DocumentStore{
		tenantID: tenantID,
		repo:     repo.NewTenantNeo4jRepo[domain.Document](driver, tenantID, "Document", "id", documentToMap, documentFromRecord),
	}
}

// Create inserts a new document row with status UPLOADED (§4.1 step 4).
func (s *DocumentStore) Create(ctx context.Context, doc domain.Document) (domain.Document, error) {
	doc.TenantID = s.tenantID
	if doc.Status == "" {
		doc.Status = domain.StatusUploaded
	}
	return s.repo.Upsert(ctx, doc.ID, doc)
}

// Get fetches a document by id, scoped to this store's tenant.
func (s *DocumentStore) Get(ctx context.Context, id string) (domain.Document, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return doc, domain.Wrap(domain.KindNotFound, domain.TypeNotFound, "document not found", err)
	}
	return doc, nil
}

// List returns a page of documents for this store's tenant.
func (s *DocumentStore) List(ctx context.Context, opts repo.ListOpts) ([]domain.Document, error) {
	return s.repo.List(ctx, opts)
}

// TotalSizeBytes sums SizeBytes across this tenant's documents, the usage
// side of TierQuota.Remaining (§4.1 E3). Like pipeline's idempotency scans,
// this is a bounded full-tenant list; there is no secondary sum index.
func (s *DocumentStore) TotalSizeBytes(ctx context.Context) (int64, error) {
	docs, err := s.List(ctx, repo.ListOpts{Limit: 10000})
	if err != nil {
		return 0, err
	}
	var total int64
	for _, d := range docs {
		total += d.SizeBytes
	}
	return total, nil
}

// TransitionStatus loads the document, applies engine/domain's state
// machine, and persists status + the matching timestamp within one write
// (§4.1, §5: "metadata writes are the last step in each stage").
func (s *DocumentStore) TransitionStatus(ctx context.Context, id string, to domain.DocumentStatus, now time.Time) (domain.Document, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return current, err
	}
	next, err := domain.TransitionTo(current, to, now)
	if err != nil {
		return current, err
	}
	return s.repo.Upsert(ctx, id, next)
}

// Delete permanently removes a document row. Callers must have already
// verified the document is in a terminal, non-legal-hold state.
func (s *DocumentStore) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

func documentToMap(d domain.Document) map[string]any {
	m := map[string]any{
		"id":               d.ID,
		"tenant_id":        d.TenantID,
		"uploader_id":      d.UploaderID,
		"filename":         d.Filename,
		"content_type":     d.ContentType,
		"size_bytes":       d.SizeBytes,
		"sha256":           d.SHA256,
		"file_category":    string(d.FileCategory),
		"storage_key":      d.StorageKey,
		"status":           string(d.Status),
		"legal_hold":       d.LegalHold,
		"retention_policy": d.RetentionPolicy,
		"dept_id":          d.DeptID,
		"collection":       d.Collection,
		"uploaded_at":      d.UploadedAt.Format(time.RFC3339Nano),
	}
	putTime(m, "validated_at", d.ValidatedAt)
	putTime(m, "queued_at", d.QueuedAt)
	putTime(m, "processing_at", d.ProcessingAt)
	putTime(m, "processed_at", d.ProcessedAt)
	putTime(m, "failed_at", d.FailedAt)
	putTime(m, "archived_at", d.ArchivedAt)
	putTime(m, "rejected_at", d.RejectedAt)
	putTime(m, "deleted_at", d.DeletedAt)
	return m
}

func putTime(m map[string]any, key string, t *time.Time) {
	if t != nil {
		m[key] = t.Format(time.RFC3339Nano)
	}
}

func documentFromRecord(rec *neo4j.Record) (domain.Document, error) {
	raw, ok := rec.Get("n")
	if !ok {
		return domain.Document{}, fmt.Errorf("metadata: record missing node")
	}
	node, ok := raw.(neo4j.Node)
	if !ok {
		return domain.Document{}, fmt.Errorf("metadata: unexpected record shape")
	}
	p := node.Props
	d := domain.Document{
		ID:              str(p, "id"),
		TenantID:        str(p, "tenant_id"),
		UploaderID:      str(p, "uploader_id"),
		Filename:        str(p, "filename"),
		ContentType:     str(p, "content_type"),
		SizeBytes:       int64Of(p, "size_bytes"),
		SHA256:          str(p, "sha256"),
		FileCategory:    domain.FileCategory(str(p, "file_category")),
		StorageKey:      str(p, "storage_key"),
		Status:          domain.DocumentStatus(str(p, "status")),
		LegalHold:       boolOf(p, "legal_hold"),
		RetentionPolicy: str(p, "retention_policy"),
		DeptID:          str(p, "dept_id"),
		Collection:      str(p, "collection"),
		UploadedAt:      timeOf(p, "uploaded_at"),
	}
	d.ValidatedAt = timePtr(p, "validated_at")
	d.QueuedAt = timePtr(p, "queued_at")
	d.ProcessingAt = timePtr(p, "processing_at")
	d.ProcessedAt = timePtr(p, "processed_at")
	d.FailedAt = timePtr(p, "failed_at")
	d.ArchivedAt = timePtr(p, "archived_at")
	d.RejectedAt = timePtr(p, "rejected_at")
	d.DeletedAt = timePtr(p, "deleted_at")
	return d, nil
}

func str(p map[string]any, k string) string {
	if v, ok := p[k].(string); ok {
		return v
	}
	return ""
}

func int64Of(p map[string]any, k string) int64 {
	switch v := p[k].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func boolOf(p map[string]any, k string) bool {
	v, _ := p[k].(bool)
	return v
}

func timeOf(p map[string]any, k string) time.Time {
	s := str(p, k)
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func timePtr(p map[string]any, k string) *time.Time {
	s := str(p, k)
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return &t
}
