package ingestion

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/waqedi/platform/engine/domain"
	"github.com/waqedi/platform/engine/events"
)

type fakeBlobStore struct {
	putCalls int
	putErr   error
}

func (f *fakeBlobStore) Put(ctx context.Context, key, contentType string, body io.Reader) error {
	f.putCalls++
	return f.putErr
}

type fakeDocuments struct {
	created     []domain.Document
	createErr   error
	current     domain.Document
	transitions []domain.DocumentStatus
}

func (f *fakeDocuments) Create(ctx context.Context, doc domain.Document) (domain.Document, error) {
	if f.createErr != nil {
		return domain.Document{}, f.createErr
	}
	f.created = append(f.created, doc)
	f.current = doc
	return doc, nil
}

func (f *fakeDocuments) TransitionStatus(ctx context.Context, id string, to domain.DocumentStatus, now time.Time) (domain.Document, error) {
	f.transitions = append(f.transitions, to)
	f.current.Status = to
	return f.current, nil
}

type fakePublisher struct {
	published []events.EventType
}

func (f *fakePublisher) Publish(ctx context.Context, documentID, tenantID, correlationID string, eventType events.EventType, payload any) error {
	f.published = append(f.published, eventType)
	return nil
}

func newTestService(store BlobStore, docs DocumentRepo, pub EventPublisher) *Service {
	s := New(store, docs, pub, nil, "test-bucket")
	s.clock = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	return s
}

func TestUploadRejectsUnsupportedContentType(t *testing.T) {
	docs := &fakeDocuments{}
	pub := &fakePublisher{}
	s := newTestService(&fakeBlobStore{}, docs, pub)

	_, err := s.Upload(context.Background(), Upload{
		TenantID:    "t1",
		Filename:    "x.exe",
		ContentType: "application/x-msdownload",
		SizeBytes:   10,
		Body:        bytes.NewReader(nil),
	})
	if err == nil {
		t.Fatal("expected error for unsupported content type")
	}
	if domain.AsKind(err) != domain.KindValidation {
		t.Fatalf("expected validation kind, got %v", domain.AsKind(err))
	}
	if len(docs.created) != 0 || len(pub.published) != 0 {
		t.Fatal("no document or event should be produced on validation failure")
	}
}

func TestUploadRejectsOversize(t *testing.T) {
	docs := &fakeDocuments{}
	pub := &fakePublisher{}
	s := newTestService(&fakeBlobStore{}, docs, pub)

	_, err := s.Upload(context.Background(), Upload{
		TenantID:    "t1",
		Filename:    "movie.mp4",
		ContentType: "video/mp4",
		SizeBytes:   3 << 30, // 3 GiB > 2 GiB limit
		Body:        bytes.NewReader(nil),
	})
	if err == nil {
		t.Fatal("expected error for oversize upload")
	}
	var derr *domain.Error
	if !errors.As(err, &derr) || derr.TypeURI != domain.TypeFileTooLarge {
		t.Fatalf("expected TypeFileTooLarge, got %+v", err)
	}
}

func TestUploadHappyPathPublishesUploadedEvent(t *testing.T) {
	docs := &fakeDocuments{}
	pub := &fakePublisher{}
	blobs := &fakeBlobStore{}
	s := newTestService(blobs, docs, pub)

	doc, err := s.Upload(context.Background(), Upload{
		TenantID:    "t1",
		UploaderID:  "u1",
		Filename:    "report.pdf",
		ContentType: "application/pdf",
		SizeBytes:   1024,
		Body:        bytes.NewReader([]byte("hello")),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Status != domain.StatusQueued {
		t.Fatalf("expected status QUEUED after validate-and-queue, got %v", doc.Status)
	}
	if doc.FileCategory != domain.CategoryDocument {
		t.Fatalf("expected DOCUMENT category, got %v", doc.FileCategory)
	}
	if blobs.putCalls != 1 {
		t.Fatalf("expected one blob put, got %d", blobs.putCalls)
	}
	if len(pub.published) != 1 || pub.published[0] != events.DocumentUploaded {
		t.Fatalf("expected one document.uploaded event, got %v", pub.published)
	}
	if len(docs.created) != 1 {
		t.Fatalf("expected one document row created, got %d", len(docs.created))
	}
	wantTransitions := []domain.DocumentStatus{domain.StatusValidated, domain.StatusQueued}
	if len(docs.transitions) != len(wantTransitions) || docs.transitions[0] != wantTransitions[0] || docs.transitions[1] != wantTransitions[1] {
		t.Fatalf("expected VALIDATED then QUEUED transitions, got %v", docs.transitions)
	}
}

func TestUploadPropagatesBlobStoreFailureAsTransient(t *testing.T) {
	docs := &fakeDocuments{}
	pub := &fakePublisher{}
	blobs := &fakeBlobStore{putErr: errors.New("connection reset")}
	s := newTestService(blobs, docs, pub)

	_, err := s.Upload(context.Background(), Upload{
		TenantID:    "t1",
		Filename:    "report.pdf",
		ContentType: "application/pdf",
		SizeBytes:   1024,
		Body:        bytes.NewReader([]byte("hello")),
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if domain.AsKind(err) != domain.KindTransientDependency {
		t.Fatalf("expected transient dependency kind, got %v", domain.AsKind(err))
	}
	if len(docs.created) != 0 {
		t.Fatal("document row must not be created when blob upload fails")
	}
}
