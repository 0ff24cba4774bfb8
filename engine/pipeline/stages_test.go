package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/waqedi/platform/engine/domain"
	"github.com/waqedi/platform/engine/events"
	"github.com/waqedi/platform/pkg/repo"
)

type fakeExtractionLookup struct {
	result domain.ExtractionResult
	err    error
}

func (f fakeExtractionLookup) GetByDocument(ctx context.Context, tenantID, documentID string) (domain.ExtractionResult, error) {
	return f.result, f.err
}

type fakeLinguisticLookup struct {
	artifacts []domain.LinguisticArtifact
	err       error
}

func (f fakeLinguisticLookup) ListByDocument(ctx context.Context, tenantID, documentID string, opts repo.ListOpts) ([]domain.LinguisticArtifact, error) {
	return f.artifacts, f.err
}

type fakeChunkLookup struct {
	chunks []domain.Chunk
	err    error
}

func (f fakeChunkLookup) ListByDocument(ctx context.Context, tenantID, documentID string, opts repo.ListOpts) ([]domain.Chunk, error) {
	return f.chunks, f.err
}

type fakeDocumentLookup struct {
	doc domain.Document
	err error
}

func (f fakeDocumentLookup) Get(ctx context.Context, tenantID, id string) (domain.Document, error) {
	return f.doc, f.err
}

func (f fakeDocumentLookup) TransitionStatus(ctx context.Context, tenantID, id string, to domain.DocumentStatus, now time.Time) (domain.Document, error) {
	f.doc.Status = to
	return f.doc, nil
}

type fakePublisher struct {
	published  bool
	eventType  events.EventType
	documentID string
	err        error
}

func (f *fakePublisher) Publish(ctx context.Context, documentID, tenantID, correlationID string, eventType events.EventType, payload any) error {
	if f.err != nil {
		return f.err
	}
	f.published = true
	f.eventType = eventType
	f.documentID = documentID
	return nil
}

func TestMeanPageConfidence(t *testing.T) {
	if got := meanPageConfidence(nil); got != 0 {
		t.Fatalf("expected 0 for no pages, got %v", got)
	}
	pages := []domain.PageConfidence{{Confidence: 0.8}, {Confidence: 0.6}}
	if got := meanPageConfidence(pages); got != 0.7 {
		t.Fatalf("expected 0.7, got %v", got)
	}
}

func TestWireChunksPreservesOrderAndFields(t *testing.T) {
	page := 3
	chunks := []domain.Chunk{{ChunkID: "c1", ChunkIndex: 0, Text: "a", TokenCount: 5, Language: "en", PageNumber: &page}}
	wire := wireChunks(chunks)
	if len(wire) != 1 || wire[0].ChunkID != "c1" || wire[0].Index != 0 || *wire[0].PageNumber != 3 {
		t.Fatalf("unexpected wire conversion: %+v", wire)
	}
}

func TestExtractionStageAlreadyDoneAndRepublish(t *testing.T) {
	lookup := fakeExtractionLookup{result: domain.ExtractionResult{
		ID:   "ext-1",
		Text: "hello",
		Pages: []domain.PageConfidence{
			{Confidence: 0.9},
		},
		DetectedLanguage: "en",
	}}
	pub := &fakePublisher{}
	st := ExtractionStage(nil, lookup, pub, 2, nil)

	done, err := st.AlreadyDone(context.Background(), "tenant-1", "doc-1")
	if err != nil || !done {
		t.Fatalf("expected already-done true, got done=%v err=%v", done, err)
	}
	env := envelopeFor(t, events.DocumentUploaded, "doc-1")
	if err := st.OnAlreadyDone(context.Background(), env, "doc-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !pub.published || pub.eventType != events.DocumentExtracted {
		t.Fatalf("expected document.extracted republish, got %+v", pub)
	}
}

func TestExtractionStageNotDoneWhenLookupErrors(t *testing.T) {
	lookup := fakeExtractionLookup{err: errors.New("not found")}
	st := ExtractionStage(nil, lookup, &fakePublisher{}, 2, nil)
	done, err := st.AlreadyDone(context.Background(), "tenant-1", "doc-1")
	if err != nil {
		t.Fatalf("AlreadyDone should swallow the lookup error into done=false: %v", err)
	}
	if done {
		t.Fatal("expected done=false when the extraction result does not exist yet")
	}
}

func TestLangStageAlreadyDoneAndRepublish(t *testing.T) {
	artifacts := fakeLinguisticLookup{artifacts: []domain.LinguisticArtifact{
		{PrimaryLanguage: "ar", Script: domain.ScriptArabic, DetectionConfidence: 0.95, IsMixed: false},
	}}
	pub := &fakePublisher{}
	st := LangStage(nil, fakeExtractionLookup{}, artifacts, pub, 2, nil)

	done, err := st.AlreadyDone(context.Background(), "tenant-1", "doc-1")
	if err != nil || !done {
		t.Fatalf("expected already-done true, got done=%v err=%v", done, err)
	}
	env := envelopeFor(t, events.DocumentExtracted, "doc-1")
	if err := st.OnAlreadyDone(context.Background(), env, "doc-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !pub.published || pub.eventType != events.DocumentLanguageTagged {
		t.Fatalf("expected document.language_tagged republish, got %+v", pub)
	}
}

func TestLangStageNotDoneWhenNoArtifacts(t *testing.T) {
	st := LangStage(nil, fakeExtractionLookup{}, fakeLinguisticLookup{}, &fakePublisher{}, 2, nil)
	done, err := st.AlreadyDone(context.Background(), "tenant-1", "doc-1")
	if err != nil || done {
		t.Fatalf("expected done=false with no artifacts, got done=%v err=%v", done, err)
	}
}

func TestChunkingStageAlreadyDoneAndRepublish(t *testing.T) {
	chunks := fakeChunkLookup{chunks: []domain.Chunk{{ChunkID: "c1", ChunkIndex: 0, Text: "x"}}}
	pub := &fakePublisher{}
	st := ChunkingStage(nil, fakeLinguisticLookup{}, chunks, "semantic", pub, 2, nil)

	done, err := st.AlreadyDone(context.Background(), "tenant-1", "doc-1")
	if err != nil || !done {
		t.Fatalf("expected already-done true, got done=%v err=%v", done, err)
	}
	env := envelopeFor(t, events.DocumentLanguageTagged, "doc-1")
	if err := st.OnAlreadyDone(context.Background(), env, "doc-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !pub.published || pub.eventType != events.DocumentChunked {
		t.Fatalf("expected document.chunked republish, got %+v", pub)
	}
}

func TestIndexingStageAlreadyDoneWhenProcessed(t *testing.T) {
	docs := fakeDocumentLookup{doc: domain.Document{ID: "doc-1", Status: domain.StatusProcessed, Collection: "default"}}
	chunks := fakeChunkLookup{chunks: []domain.Chunk{{ChunkID: "c1"}, {ChunkID: "c2"}}}
	pub := &fakePublisher{}
	st := IndexingStage(nil, docs, chunks, pub, time.Now, 2, nil)

	done, err := st.AlreadyDone(context.Background(), "tenant-1", "doc-1")
	if err != nil || !done {
		t.Fatalf("expected already-done true, got done=%v err=%v", done, err)
	}
	env := envelopeFor(t, events.DocumentChunked, "doc-1")
	if err := st.OnAlreadyDone(context.Background(), env, "doc-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !pub.published || pub.eventType != events.DocumentIndexed {
		t.Fatalf("expected document.indexed republish, got %+v", pub)
	}
}

func TestIndexingStageNotDoneWhenStillProcessing(t *testing.T) {
	docs := fakeDocumentLookup{doc: domain.Document{ID: "doc-1", Status: domain.StatusProcessing}}
	st := IndexingStage(nil, docs, fakeChunkLookup{}, &fakePublisher{}, time.Now, 2, nil)
	done, err := st.AlreadyDone(context.Background(), "tenant-1", "doc-1")
	if err != nil || done {
		t.Fatalf("expected done=false while still processing, got done=%v err=%v", done, err)
	}
}
