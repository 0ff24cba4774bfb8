package lang

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/waqedi/platform/engine/domain"
	"github.com/waqedi/platform/engine/events"
	"github.com/waqedi/platform/pkg/langdetect"
	"github.com/waqedi/platform/pkg/metadata"
)

// Translation strategies a tenant can configure (§4.3 step 3).
const (
	StrategyNative    = "native"
	StrategyCanonical = "canonical"
	StrategyHybrid    = "hybrid"
)

// segmentOptions is the JSON shape of TenantSettings.NormalizationOptions.
type segmentOptions struct {
	PreserveArabicDiacritics bool `json:"preserve_diacritics"`
	HybridTranslateOnIngest  bool `json:"hybrid_translate_on_ingest"`
}

// LinguisticRepo persists the LinguisticArtifact rows S3 produces.
type LinguisticRepo interface {
	PutAll(ctx context.Context, artifacts []domain.LinguisticArtifact) ([]domain.LinguisticArtifact, error)
}

// SettingsRepo resolves a tenant's translation configuration. TenantSettings
// is a plain data record (§9 Open Questions: per-tenant state, not a
// package-level map), so reusing it directly here does not couple this
// package to pkg/metadata's storage concerns.
type SettingsRepo interface {
	Get(ctx context.Context, tenantID string) (metadata.TenantSettings, error)
}

// EventPublisher emits the document pipeline's bus events.
type EventPublisher interface {
	Publish(ctx context.Context, documentID, tenantID, correlationID string, eventType events.EventType, payload any) error
}

// Service runs S3: detection, normalization, and optional translation.
type Service struct {
	linguistic LinguisticRepo
	settings   SettingsRepo
	translator TranslationEngine
	publisher  EventPublisher
	clock      func() time.Time
}

// New builds a Service. translator may be nil: tenants on StrategyNative
// never call it, and tenants on StrategyCanonical/StrategyHybrid simply
// skip translation (best-effort, §4.3 step 3 is optional) when no
// translator is configured.
func New(linguistic LinguisticRepo, settings SettingsRepo, translator TranslationEngine, publisher EventPublisher) *Service {
	return &Service{
		linguistic: linguistic,
		settings:   settings,
		translator: translator,
		publisher:  publisher,
		clock:      time.Now,
	}
}

// Process runs the three S3 sub-steps over every segment of extraction and
// persists the resulting LinguisticArtifacts. extraction.Pages is treated
// as the segment boundary; when extraction carries no page breakdown (a
// plain-text or single-pass transcript), the whole text is one segment.
func (s *Service) Process(ctx context.Context, documentID, tenantID, correlationID string, extraction domain.ExtractionResult) ([]domain.LinguisticArtifact, error) {
	settings, err := s.settings.Get(ctx, tenantID)
	if err != nil {
		return nil, domain.Wrap(domain.KindTransientDependency, "", "lang: load tenant settings", err)
	}
	var opts segmentOptions
	if settings.NormalizationOptions != "" {
		_ = json.Unmarshal([]byte(settings.NormalizationOptions), &opts)
	}

	segments := extraction.Pages
	if len(segments) == 0 {
		segments = []domain.PageConfidence{{PageNumber: 0, Text: extraction.Text}}
	}

	artifacts := make([]domain.LinguisticArtifact, 0, len(segments))
	for i, seg := range segments {
		detection := langdetect.Detect(seg.Text)

		normalized, rules := Normalize(seg.Text, detection.PrimaryLanguage, NormalizeOptions{
			PreserveArabicDiacritics: opts.PreserveArabicDiacritics,
		})

		artifact := domain.LinguisticArtifact{
			ID:                   uuid.NewString(),
			DocumentID:           documentID,
			TenantID:             tenantID,
			SegmentIndex:         i,
			Original:             seg.Text,
			Normalized:           normalized,
			NormalizationRules:   rules,
			NormalizationVersion: NormalizationVersion,
			PrimaryLanguage:      detection.PrimaryLanguage,
			SecondaryLanguages:   detection.SecondaryLanguages,
			Script:               domain.Script(detection.Script),
			DetectionConfidence:  detection.Confidence,
			IsMixed:              detection.IsMixed,
		}

		if translated, ok := s.translate(ctx, normalized, detection.PrimaryLanguage, settings, opts); ok {
			artifact.Translation = &translated
		}

		artifacts = append(artifacts, artifact)
	}

	saved, err := s.linguistic.PutAll(ctx, artifacts)
	if err != nil {
		return nil, domain.Wrap(domain.KindTransientDependency, "", "lang: persist linguistic artifacts", err)
	}

	if len(saved) > 0 {
		head := saved[0]
		if err := s.publisher.Publish(ctx, documentID, tenantID, correlationID, events.DocumentLanguageTagged, events.LanguageTaggedPayload{
			DocumentID:      documentID,
			PrimaryLanguage: head.PrimaryLanguage,
			Script:          string(head.Script),
			Confidence:      head.DetectionConfidence,
			IsMixed:         head.IsMixed,
			SegmentsTagged:  len(saved),
		}); err != nil {
			return nil, fmt.Errorf("lang: publish language_tagged: %w", err)
		}
	}

	return saved, nil
}

// translate applies §4.3 step 3's per-strategy decision. A translation
// failure is logged by the caller's transport, not propagated: translation
// is optional and the original text is always preserved, so a translator
// outage must not fail the document.
func (s *Service) translate(ctx context.Context, normalized, sourceLang string, settings metadata.TenantSettings, opts segmentOptions) (domain.Translation, bool) {
	if s.translator == nil || sourceLang == "" {
		return domain.Translation{}, false
	}
	switch settings.TranslationStrategy {
	case StrategyCanonical:
		if sourceLang == settings.CanonicalLanguage {
			return domain.Translation{}, false
		}
	case StrategyHybrid:
		if !opts.HybridTranslateOnIngest || sourceLang == settings.CanonicalLanguage {
			return domain.Translation{}, false
		}
	default: // StrategyNative or unset
		return domain.Translation{}, false
	}

	text, err := s.translator.Translate(ctx, normalized, sourceLang, settings.CanonicalLanguage)
	if err != nil {
		return domain.Translation{}, false
	}
	return domain.Translation{
		Text:          text,
		Engine:        s.translator.ModelID(),
		EngineVersion: s.translator.Version(),
		SourceLang:    sourceLang,
		TargetLang:    settings.CanonicalLanguage,
		Timestamp:     s.clock(),
	}, true
}
