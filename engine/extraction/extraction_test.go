package extraction

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"
	"time"

	"github.com/waqedi/platform/engine/domain"
	"github.com/waqedi/platform/engine/events"
	"github.com/waqedi/platform/pkg/ocrclient"
	"github.com/waqedi/platform/pkg/sttclient"
)

type fakeBlobs struct {
	data map[string][]byte
}

func (f *fakeBlobs) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	b, ok := f.data[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

type fakeResults struct {
	put []domain.ExtractionResult
}

func (f *fakeResults) Put(ctx context.Context, result domain.ExtractionResult) (domain.ExtractionResult, error) {
	f.put = append(f.put, result)
	return result, nil
}

type fakeDocuments struct {
	doc         domain.Document
	transitions []domain.DocumentStatus
}

func (f *fakeDocuments) Get(ctx context.Context, id string) (domain.Document, error) {
	return f.doc, nil
}

func (f *fakeDocuments) TransitionStatus(ctx context.Context, id string, to domain.DocumentStatus, now time.Time) (domain.Document, error) {
	f.transitions = append(f.transitions, to)
	f.doc.Status = to
	return f.doc, nil
}

type fakePublisher struct {
	events []events.EventType
}

func (f *fakePublisher) Publish(ctx context.Context, documentID, tenantID, correlationID string, eventType events.EventType, payload any) error {
	f.events = append(f.events, eventType)
	return nil
}

type fakeOCR struct{}

func (fakeOCR) ModelID() string                        { return "fake-ocr" }
func (fakeOCR) Version() string                        { return "v1" }
func (fakeOCR) Preprocess(img image.Image) image.Image { return img }
func (fakeOCR) Extract(ctx context.Context, page image.Image) ([]ocrclient.Block, error) {
	return []ocrclient.Block{{Text: "hello world", Confidence: 0.9}}, nil
}

type fakeSTT struct{}

func (fakeSTT) ModelID() string { return "fake-stt" }
func (fakeSTT) Version() string { return "v1" }
func (fakeSTT) Transcribe(ctx context.Context, sourcePath string) ([]sttclient.Segment, error) {
	return []sttclient.Segment{{Text: "hello audio", StartS: 0, EndS: 1}}, nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(0, 0, color.RGBA{255, 255, 255, 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestHandleUploadedOCRPathImage(t *testing.T) {
	blobs := &fakeBlobs{data: map[string][]byte{"k1": pngBytes(t)}}
	results := &fakeResults{}
	docs := &fakeDocuments{doc: domain.Document{
		ID: "d1", TenantID: "t1", ContentType: "image/png", FileCategory: domain.CategoryImage,
	}}
	pub := &fakePublisher{}
	s := New(blobs, results, docs, pub, fakeOCR{}, fakeSTT{}, t.TempDir(), DefaultConfig())

	err := s.HandleUploaded(context.Background(), "d1", "t1", "corr-1", events.UploadedPayload{StorageKey: "k1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results.put) != 1 {
		t.Fatalf("expected one extraction result, got %d", len(results.put))
	}
	if results.put[0].DetectedLanguage != "en" {
		t.Fatalf("expected en, got %q", results.put[0].DetectedLanguage)
	}
	if len(pub.events) != 1 || pub.events[0] != events.DocumentExtracted {
		t.Fatalf("expected document.extracted, got %v", pub.events)
	}
	if len(docs.transitions) != 1 || docs.transitions[0] != domain.StatusProcessing {
		t.Fatalf("expected a single PROCESSING transition at stage entry, got %v", docs.transitions)
	}
}

func TestHandleUploadedSTTPath(t *testing.T) {
	blobs := &fakeBlobs{data: map[string][]byte{"k1": []byte("fake-audio-bytes")}}
	results := &fakeResults{}
	docs := &fakeDocuments{doc: domain.Document{
		ID: "d1", TenantID: "t1", ContentType: "audio/wav", FileCategory: domain.CategoryAudio,
	}}
	pub := &fakePublisher{}
	s := New(blobs, results, docs, pub, fakeOCR{}, fakeSTT{}, t.TempDir(), DefaultConfig())

	err := s.HandleUploaded(context.Background(), "d1", "t1", "corr-1", events.UploadedPayload{StorageKey: "k1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results.put) != 1 || results.put[0].Text == "" {
		t.Fatalf("expected transcript text, got %+v", results.put)
	}
}

func TestHandleUploadedUnknownCategoryFailsWithoutRetry(t *testing.T) {
	blobs := &fakeBlobs{data: map[string][]byte{}}
	results := &fakeResults{}
	docs := &fakeDocuments{doc: domain.Document{
		ID: "d1", TenantID: "t1", ContentType: "application/zip", FileCategory: "UNKNOWN",
	}}
	pub := &fakePublisher{}
	s := New(blobs, results, docs, pub, fakeOCR{}, fakeSTT{}, t.TempDir(), DefaultConfig())

	err := s.HandleUploaded(context.Background(), "d1", "t1", "corr-1", events.UploadedPayload{StorageKey: "missing"})
	if err != nil {
		t.Fatalf("HandleUploaded should not return an error for a handled terminal failure: %v", err)
	}
	if len(results.put) != 0 {
		t.Fatal("no extraction result should be persisted on failure")
	}
	if len(pub.events) != 1 || pub.events[0] != events.DocumentExtractionFailed {
		t.Fatalf("expected document.extraction_failed, got %v", pub.events)
	}
	if len(docs.transitions) != 2 || docs.transitions[0] != domain.StatusProcessing || docs.transitions[1] != domain.StatusFailed {
		t.Fatalf("expected PROCESSING then FAILED transition, got %v", docs.transitions)
	}
}

func TestMeanConfidenceOfPages(t *testing.T) {
	pages := []domain.PageConfidence{{Confidence: 0.8}, {Confidence: 0.6}}
	if got := meanConfidence(pages); got != 0.7 {
		t.Fatalf("meanConfidence = %v, want 0.7", got)
	}
}
