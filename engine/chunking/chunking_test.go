package chunking

import (
	"context"
	"strings"
	"testing"

	"github.com/waqedi/platform/engine/domain"
	"github.com/waqedi/platform/engine/events"
)

type fakeChunkRepo struct {
	saved []domain.Chunk
}

func (f *fakeChunkRepo) PutAll(ctx context.Context, chunks []domain.Chunk) ([]domain.Chunk, error) {
	f.saved = chunks
	return chunks, nil
}

type fakePublisher struct {
	events []events.EventType
}

func (f *fakePublisher) Publish(ctx context.Context, documentID, tenantID, correlationID string, eventType events.EventType, payload any) error {
	f.events = append(f.events, eventType)
	return nil
}

func sentenceCorpus(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteString("The quick brown fox jumps over the lazy dog near the river bank. ")
	}
	return b.String()
}

func TestProcessAssignsDenseMonotonicChunkIndexAcrossSegments(t *testing.T) {
	repo := &fakeChunkRepo{}
	pub := &fakePublisher{}
	svc := New(repo, pub, DefaultConfig())

	artifacts := []domain.LinguisticArtifact{
		{SegmentIndex: 1, Normalized: sentenceCorpus(40), PrimaryLanguage: "en"},
		{SegmentIndex: 0, Normalized: sentenceCorpus(40), PrimaryLanguage: "en"},
	}

	chunks, err := svc.Process(context.Background(), "doc-1", "tenant-1", "corr-1", artifacts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.ChunkIndex != i {
			t.Fatalf("chunk index not dense/monotonic at position %d: got %d", i, c.ChunkIndex)
		}
	}
	if *chunks[0].PageNumber != 0 {
		t.Fatalf("expected segment-0 chunks to come first after sorting, got page %d", *chunks[0].PageNumber)
	}
	if len(pub.events) != 1 || pub.events[0] != events.DocumentChunked {
		t.Fatalf("expected document.chunked, got %v", pub.events)
	}
}

func TestProcessDropsTrailingUndersizedChunk(t *testing.T) {
	repo := &fakeChunkRepo{}
	pub := &fakePublisher{}
	cfg := DefaultConfig()
	svc := New(repo, pub, cfg)

	text := sentenceCorpus(30) + "Tiny tail."
	artifacts := []domain.LinguisticArtifact{{SegmentIndex: 0, Normalized: text, PrimaryLanguage: "en"}}

	chunks, err := svc.Process(context.Background(), "doc-2", "tenant-1", "corr-1", artifacts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, c := range chunks {
		if strings.Contains(c.Text, "Tiny tail.") && estimatedTokens(c.Text) < cfg.MinSize && len(chunks) > 1 {
			t.Fatalf("expected the undersized trailing chunk to be dropped or merged, got %q", c.Text)
		}
	}
}

func TestProcessShortDocumentEmitsSingleChunk(t *testing.T) {
	repo := &fakeChunkRepo{}
	pub := &fakePublisher{}
	svc := New(repo, pub, DefaultConfig())

	artifacts := []domain.LinguisticArtifact{{SegmentIndex: 0, Normalized: "A very short document.", PrimaryLanguage: "en"}}

	chunks, err := svc.Process(context.Background(), "doc-3", "tenant-1", "corr-1", artifacts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected exactly one short chunk, got %d", len(chunks))
	}
}

func TestProcessNoTextFailsWithoutPersisting(t *testing.T) {
	repo := &fakeChunkRepo{}
	pub := &fakePublisher{}
	svc := New(repo, pub, DefaultConfig())

	artifacts := []domain.LinguisticArtifact{{SegmentIndex: 0, Normalized: "   ", PrimaryLanguage: "en"}}

	_, err := svc.Process(context.Background(), "doc-4", "tenant-1", "corr-1", artifacts)
	if err == nil {
		t.Fatal("expected an error for empty chunk output")
	}
	if len(repo.saved) != 0 {
		t.Fatal("nothing should be persisted on failure")
	}
	if len(pub.events) != 1 || pub.events[0] != events.DocumentChunkingFailed {
		t.Fatalf("expected document.chunking_failed, got %v", pub.events)
	}
}

func TestSplitSentencesArabicPunctuation(t *testing.T) {
	sentences := splitSentences("هذا مثال؟ وهذا مثال آخر。", "ar")
	if len(sentences) != 2 {
		t.Fatalf("expected 2 sentences, got %d: %v", len(sentences), sentences)
	}
}

func TestSlidingWindowOverlapsWindows(t *testing.T) {
	cfg := Config{TargetSize: 10, OverlapTokens: 2, MaxSize: 1024, MinSize: 1}
	text := strings.Repeat("abcdefghij ", 10)
	windows := slidingWindow(text, cfg)
	if len(windows) < 2 {
		t.Fatalf("expected multiple windows, got %d", len(windows))
	}
}

func TestOneChunkPerSentenceSplitsOverlongSentence(t *testing.T) {
	longSentence := strings.Repeat("word ", 2000) + "."
	chunks := oneChunkPerSentence([]string{longSentence}, Config{MaxSize: 100})
	if len(chunks) < 2 {
		t.Fatalf("expected the overlong sentence to be split into multiple pieces, got %d", len(chunks))
	}
	for _, c := range chunks {
		if estimatedTokens(c) > 100+estimatedTokens("word ") {
			t.Fatalf("piece exceeds MaxSize bound: %d tokens", estimatedTokens(c))
		}
	}
}

func TestEstimatedTokensIsCeilCharsOverFour(t *testing.T) {
	if got := estimatedTokens("abcde"); got != 2 {
		t.Fatalf("estimatedTokens(5 chars) = %d, want 2", got)
	}
	if got := estimatedTokens(""); got != 0 {
		t.Fatalf("estimatedTokens(empty) = %d, want 0", got)
	}
}
