// Package ingestion implements S1: accept an upload, validate it,
// persist the blob and a document row, and emit document.uploaded
// (§4.1). It is the synchronous edge of the pipeline; everything past
// this package runs as an asynchronous stage consumer.
package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/waqedi/platform/engine/domain"
	"github.com/waqedi/platform/engine/events"
)

// QuotaChecker reports how many bytes of storage quota a tenant has
// left, or a negative number if the tenant has no quota configured
// (unlimited). It is optional; Service treats a nil QuotaChecker as
// "no quota enforcement".
type QuotaChecker interface {
	Remaining(ctx context.Context, tenantID string) (int64, error)
}

// BlobStore is the subset of pkg/objectstore.Store this package needs.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) error
}

// DocumentRepo is the subset of pkg/metadata.DocumentStore this package
// needs, already bound to one tenant by its constructor.
type DocumentRepo interface {
	Create(ctx context.Context, doc domain.Document) (domain.Document, error)
	TransitionStatus(ctx context.Context, id string, to domain.DocumentStatus, now time.Time) (domain.Document, error)
}

// EventPublisher is the subset of engine/events.Publisher this package needs.
type EventPublisher interface {
	Publish(ctx context.Context, documentID, tenantID, correlationID string, eventType events.EventType, payload any) error
}

// Upload is the request to ingest one document.
type Upload struct {
	TenantID    string
	UploaderID  string
	Filename    string
	ContentType string
	SizeBytes   int64
	Body        io.Reader
	DeptID      string
	Collection  string
}

// Service runs S1 for one tenant-scoped set of dependencies. The object
// store and metadata stores it's handed are already tenant-bound where
// that applies (DocumentStore is constructed per tenant; Store/Publisher
// are shared and rely on the tenant_id carried in every call/payload).
type Service struct {
	store     BlobStore
	documents DocumentRepo
	publisher EventPublisher
	quota     QuotaChecker
	bucket    string
	clock     func() time.Time
}

// New builds an ingestion Service. documents must already be bound to
// the tenant this Service will serve (pkg/repo.TenantNeo4jRepo[T]'s
// tenant-at-construction contract).
func New(store BlobStore, documents DocumentRepo, publisher EventPublisher, quota QuotaChecker, bucket string) *Service {
	return &Service{
		store:     store,
		documents: documents,
		publisher: publisher,
		quota:     quota,
		bucket:    bucket,
		clock:     time.Now,
	}
}

// Upload validates, persists, and announces one document (§4.1 Actions
// 1-5). On any validation failure the blob is never written and no
// document row or event is produced.
func (s *Service) Upload(ctx context.Context, u Upload) (domain.Document, error) {
	quotaRemaining := int64(-1)
	if s.quota != nil {
		remaining, err := s.quota.Remaining(ctx, u.TenantID)
		if err != nil {
			return domain.Document{}, domain.Wrap(domain.KindTransientDependency, domain.TypeInternal, "quota lookup failed", err)
		}
		quotaRemaining = remaining
	}

	category, err := domain.ValidateUpload(u.ContentType, u.SizeBytes, quotaRemaining)
	if err != nil {
		return domain.Document{}, err
	}

	hasher := sha256.New()
	documentID := uuid.NewString()
	now := s.clock()

	storageKey := domain.StorageKey(u.TenantID, now.Year(), int(now.Month()), documentID, u.Filename)

	teed := io.TeeReader(u.Body, hasher)
	if err := s.store.Put(ctx, storageKey, u.ContentType, teed); err != nil {
		return domain.Document{}, domain.Wrap(domain.KindTransientDependency, domain.TypeInternal, "blob upload failed", err)
	}
	checksum := hex.EncodeToString(hasher.Sum(nil))

	doc := domain.Document{
		ID:           documentID,
		TenantID:     u.TenantID,
		UploaderID:   u.UploaderID,
		Filename:     u.Filename,
		ContentType:  u.ContentType,
		SizeBytes:    u.SizeBytes,
		SHA256:       checksum,
		FileCategory: category,
		StorageKey:   storageKey,
		Status:       domain.StatusUploaded,
		DeptID:       u.DeptID,
		Collection:   u.Collection,
		UploadedAt:   now,
	}
	doc, err = s.documents.Create(ctx, doc)
	if err != nil {
		return domain.Document{}, fmt.Errorf("ingestion: persist document: %w", err)
	}

	// Validation already happened above (domain.ValidateUpload); advance the
	// document straight through VALIDATED to QUEUED so the extraction stage
	// picks it up in a state StatusProcessing can legally follow (§4.1).
	doc, err = s.documents.TransitionStatus(ctx, doc.ID, domain.StatusValidated, s.clock())
	if err != nil {
		return doc, fmt.Errorf("ingestion: validate document: %w", err)
	}
	doc, err = s.documents.TransitionStatus(ctx, doc.ID, domain.StatusQueued, s.clock())
	if err != nil {
		return doc, fmt.Errorf("ingestion: queue document: %w", err)
	}

	if s.publisher != nil {
		payload := events.UploadedPayload{
			DocumentID:    doc.ID,
			FileCategory:  string(doc.FileCategory),
			ContentType:   doc.ContentType,
			SizeBytes:     doc.SizeBytes,
			StorageBucket: s.bucket,
			StorageKey:    doc.StorageKey,
		}
		if err := s.publisher.Publish(ctx, doc.ID, doc.TenantID, doc.ID, events.DocumentUploaded, payload); err != nil {
			return doc, fmt.Errorf("ingestion: publish document.uploaded: %w", err)
		}
	}

	return doc, nil
}

// Delete transitions a document toward deletion, refusing when the
// document is under legal hold (§4.1, E5).
func (s *Service) Delete(ctx context.Context, documentID string) error {
	_, err := s.documents.TransitionStatus(ctx, documentID, domain.StatusDeleted, s.clock())
	return err
}
