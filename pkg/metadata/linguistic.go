package metadata

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/waqedi/platform/engine/domain"
	"github.com/waqedi/platform/pkg/repo"
)

// LinguisticStore persists LinguisticArtifact rows (one per normalized
// segment) for exactly one tenant.
type LinguisticStore struct {
	tenantID string
	repo     *repo.TenantNeo4jRepo[domain.LinguisticArtifact]
}

func NewLinguisticStore(driver neo4j.DriverWithContext, tenantID string) *LinguisticStore {
	return &LinguisticStore{
		tenantID: tenantID,
		repo:     repo.NewTenantNeo4jRepo[domain.LinguisticArtifact](driver, tenantID, "LinguisticArtifact", "id", linguisticToMap, linguisticFromRecord),
	}
}

func (s *LinguisticStore) PutAll(ctx context.Context, artifacts []domain.LinguisticArtifact) ([]domain.LinguisticArtifact, error) {
	out := make([]domain.LinguisticArtifact, 0, len(artifacts))
	for _, a := range artifacts {
		a.TenantID = s.tenantID
		saved, err := s.repo.Upsert(ctx, a.ID, a)
		if err != nil {
			return out, fmt.Errorf("metadata: put linguistic artifact %s: %w", a.ID, err)
		}
		out = append(out, saved)
	}
	return out, nil
}

func (s *LinguisticStore) ListByDocument(ctx context.Context, documentID string, opts repo.ListOpts) ([]domain.LinguisticArtifact, error) {
	all, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, err
	}
	filtered := all[:0]
	for _, a := range all {
		if a.DocumentID == documentID {
			filtered = append(filtered, a)
		}
	}
	return filtered, nil
}

func linguisticToMap(a domain.LinguisticArtifact) map[string]any {
	rules := make([]any, len(a.NormalizationRules))
	for i, r := range a.NormalizationRules {
		rules[i] = map[string]any{
			"position":    r.Position,
			"original":    r.Original,
			"replacement": r.Replacement,
			"rule":        r.Rule,
		}
	}
	m := map[string]any{
		"id":                    a.ID,
		"document_id":           a.DocumentID,
		"tenant_id":             a.TenantID,
		"segment_index":         a.SegmentIndex,
		"original":              a.Original,
		"normalized":            a.Normalized,
		"normalization_rules":   rules,
		"normalization_version": a.NormalizationVersion,
		"primary_language":      a.PrimaryLanguage,
		"secondary_languages":   a.SecondaryLanguages,
		"script":                string(a.Script),
		"detection_confidence":  a.DetectionConfidence,
		"is_mixed":              a.IsMixed,
	}
	if a.Translation != nil {
		m["translation_text"] = a.Translation.Text
		m["translation_engine"] = a.Translation.Engine
		m["translation_engine_version"] = a.Translation.EngineVersion
		m["translation_source_lang"] = a.Translation.SourceLang
		m["translation_target_lang"] = a.Translation.TargetLang
		m["translation_timestamp"] = a.Translation.Timestamp.Format(time.RFC3339Nano)
	}
	return m
}

func linguisticFromRecord(rec *neo4j.Record) (domain.LinguisticArtifact, error) {
	raw, ok := rec.Get("n")
	if !ok {
		return domain.LinguisticArtifact{}, fmt.Errorf("metadata: record missing node")
	}
	node, ok := raw.(neo4j.Node)
	if !ok {
		return domain.LinguisticArtifact{}, fmt.Errorf("metadata: unexpected record shape")
	}
	p := node.Props
	a := domain.LinguisticArtifact{
		ID:                   str(p, "id"),
		DocumentID:           str(p, "document_id"),
		TenantID:             str(p, "tenant_id"),
		SegmentIndex:         int(int64Of(p, "segment_index")),
		Original:             str(p, "original"),
		Normalized:           str(p, "normalized"),
		NormalizationVersion: str(p, "normalization_version"),
		PrimaryLanguage:      str(p, "primary_language"),
		Script:               domain.Script(str(p, "script")),
		DetectionConfidence:  floatOf(p, "detection_confidence"),
		IsMixed:              boolOf(p, "is_mixed"),
	}
	if langs, ok := p["secondary_languages"].([]any); ok {
		for _, l := range langs {
			if s, ok := l.(string); ok {
				a.SecondaryLanguages = append(a.SecondaryLanguages, s)
			}
		}
	}
	if raw, ok := p["normalization_rules"].([]any); ok {
		for _, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			a.NormalizationRules = append(a.NormalizationRules, domain.NormalizationRule{
				Position:    int(int64Of(m, "position")),
				Original:    str(m, "original"),
				Replacement: str(m, "replacement"),
				Rule:        str(m, "rule"),
			})
		}
	}
	if text := str(p, "translation_text"); text != "" {
		a.Translation = &domain.Translation{
			Text:          text,
			Engine:        str(p, "translation_engine"),
			EngineVersion: str(p, "translation_engine_version"),
			SourceLang:    str(p, "translation_source_lang"),
			TargetLang:    str(p, "translation_target_lang"),
			Timestamp:     timeOf(p, "translation_timestamp"),
		}
	}
	return a, nil
}
