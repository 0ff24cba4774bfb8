package lang

import (
	"context"
	"testing"
	"time"

	"github.com/waqedi/platform/engine/domain"
	"github.com/waqedi/platform/engine/events"
	"github.com/waqedi/platform/pkg/metadata"
)

type fakeLinguistic struct {
	saved []domain.LinguisticArtifact
}

func (f *fakeLinguistic) PutAll(ctx context.Context, artifacts []domain.LinguisticArtifact) ([]domain.LinguisticArtifact, error) {
	f.saved = artifacts
	return artifacts, nil
}

type fakeSettings struct {
	settings metadata.TenantSettings
}

func (f *fakeSettings) Get(ctx context.Context, tenantID string) (metadata.TenantSettings, error) {
	return f.settings, nil
}

type fakePublisher struct {
	events []events.EventType
}

func (f *fakePublisher) Publish(ctx context.Context, documentID, tenantID, correlationID string, eventType events.EventType, payload any) error {
	f.events = append(f.events, eventType)
	return nil
}

type fakeTranslator struct {
	calls int
}

func (f *fakeTranslator) ModelID() string { return "fake-translator" }
func (f *fakeTranslator) Version() string { return "v1" }
func (f *fakeTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	f.calls++
	return "TRANSLATED:" + text, nil
}

func newService(settings metadata.TenantSettings, translator TranslationEngine) (*Service, *fakeLinguistic, *fakePublisher) {
	ling := &fakeLinguistic{}
	pub := &fakePublisher{}
	svc := New(ling, &fakeSettings{settings: settings}, translator, pub)
	svc.clock = func() time.Time { return time.Unix(0, 0) }
	return svc, ling, pub
}

func TestProcessNativeStrategySkipsTranslation(t *testing.T) {
	svc, ling, pub := newService(metadata.TenantSettings{TranslationStrategy: StrategyNative, CanonicalLanguage: "en"}, &fakeTranslator{})
	extraction := domain.ExtractionResult{
		Text: "The quick brown fox jumps over the lazy dog repeatedly today",
	}

	saved, err := svc.Process(context.Background(), "doc-1", "tenant-1", "corr-1", extraction)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(saved) != 1 {
		t.Fatalf("expected 1 artifact, got %d", len(saved))
	}
	if saved[0].Translation != nil {
		t.Fatalf("expected no translation under native strategy, got %+v", saved[0].Translation)
	}
	if len(ling.saved) != 1 {
		t.Fatal("expected artifact to be persisted")
	}
	if len(pub.events) != 1 || pub.events[0] != events.DocumentLanguageTagged {
		t.Fatalf("expected document.language_tagged, got %v", pub.events)
	}
}

func TestProcessCanonicalStrategyTranslatesNonCanonicalSegments(t *testing.T) {
	translator := &fakeTranslator{}
	svc, ling, _ := newService(metadata.TenantSettings{TranslationStrategy: StrategyCanonical, CanonicalLanguage: "en"}, translator)
	extraction := domain.ExtractionResult{
		Pages: []domain.PageConfidence{
			{PageNumber: 0, Text: "أحمد ذهب إلى المدرسة صباح اليوم وتعلم دروسا كثيرة هناك"},
		},
	}

	saved, err := svc.Process(context.Background(), "doc-2", "tenant-1", "corr-1", extraction)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if translator.calls != 1 {
		t.Fatalf("expected translator to be called once, got %d", translator.calls)
	}
	if ling.saved[0].Translation == nil || ling.saved[0].Translation.TargetLang != "en" {
		t.Fatalf("expected a translation targeting en, got %+v", ling.saved[0].Translation)
	}
	if saved[0].Translation.Text[:11] != "TRANSLATED:" {
		t.Fatalf("unexpected translation text: %q", saved[0].Translation.Text)
	}
}

func TestProcessCanonicalStrategySkipsAlreadyCanonicalSegments(t *testing.T) {
	translator := &fakeTranslator{}
	svc, _, _ := newService(metadata.TenantSettings{TranslationStrategy: StrategyCanonical, CanonicalLanguage: "en"}, translator)
	extraction := domain.ExtractionResult{
		Text: "The quick brown fox jumps over the lazy dog repeatedly today",
	}

	if _, err := svc.Process(context.Background(), "doc-3", "tenant-1", "corr-1", extraction); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if translator.calls != 0 {
		t.Fatalf("expected no translation for already-canonical text, got %d calls", translator.calls)
	}
}

func TestProcessHybridStrategyDefersUnlessOptedIn(t *testing.T) {
	translator := &fakeTranslator{}
	svc, _, _ := newService(metadata.TenantSettings{
		TranslationStrategy:  StrategyHybrid,
		CanonicalLanguage:    "en",
		NormalizationOptions: `{"hybrid_translate_on_ingest": false}`,
	}, translator)
	extraction := domain.ExtractionResult{
		Text: "أحمد ذهب إلى المدرسة صباح اليوم وتعلم دروسا كثيرة هناك",
	}

	if _, err := svc.Process(context.Background(), "doc-4", "tenant-1", "corr-1", extraction); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if translator.calls != 0 {
		t.Fatalf("expected hybrid strategy to defer translation to query time by default, got %d calls", translator.calls)
	}

	svc.settings = &fakeSettings{settings: metadata.TenantSettings{
		TranslationStrategy:  StrategyHybrid,
		CanonicalLanguage:    "en",
		NormalizationOptions: `{"hybrid_translate_on_ingest": true}`,
	}}
	if _, err := svc.Process(context.Background(), "doc-5", "tenant-1", "corr-1", extraction); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if translator.calls != 1 {
		t.Fatalf("expected hybrid opt-in to translate on ingest, got %d calls", translator.calls)
	}
}

func TestProcessMultiSegmentUsesPageBoundaries(t *testing.T) {
	svc, ling, _ := newService(metadata.TenantSettings{TranslationStrategy: StrategyNative}, nil)
	extraction := domain.ExtractionResult{
		Pages: []domain.PageConfidence{
			{PageNumber: 0, Text: "The quick brown fox jumps over the lazy dog repeatedly today"},
			{PageNumber: 1, Text: "Another page of English text describing a separate topic entirely"},
		},
	}

	saved, err := svc.Process(context.Background(), "doc-6", "tenant-1", "corr-1", extraction)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(saved) != 2 {
		t.Fatalf("expected 2 artifacts, got %d", len(saved))
	}
	if saved[0].SegmentIndex != 0 || saved[1].SegmentIndex != 1 {
		t.Fatalf("expected sequential segment indices, got %d and %d", saved[0].SegmentIndex, saved[1].SegmentIndex)
	}
	if len(ling.saved) != 2 {
		t.Fatal("expected both segments persisted")
	}
}
