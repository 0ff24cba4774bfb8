package metadata

import (
	"testing"
	"time"

	"github.com/waqedi/platform/engine/domain"
)

func TestDocumentToMapStampsAllFields(t *testing.T) {
	now := time.Now()
	doc := domain.Document{
		ID:          "doc-1",
		TenantID:    "tenant-1",
		Filename:    "report.pdf",
		ContentType: "application/pdf",
		Status:      domain.StatusProcessing,
		UploadedAt:  now,
		QueuedAt:    &now,
	}
	m := documentToMap(doc)
	if m["id"] != "doc-1" || m["tenant_id"] != "tenant-1" {
		t.Fatalf("missing identity fields: %+v", m)
	}
	if _, ok := m["queued_at"]; !ok {
		t.Fatalf("expected queued_at to be set: %+v", m)
	}
	if _, ok := m["processed_at"]; ok {
		t.Fatalf("did not expect processed_at for an unprocessed document: %+v", m)
	}
}

func TestNewDocumentStoreBindsTenant(t *testing.T) {
	s := NewDocumentStore(nil, "tenant-1")
	if s.tenantID != "tenant-1" {
		t.Fatalf("tenantID = %s, want tenant-1", s.tenantID)
	}
	if s.repo.TenantID() != "tenant-1" {
		t.Fatalf("underlying repo tenant = %s, want tenant-1", s.repo.TenantID())
	}
}
