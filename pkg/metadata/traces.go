package metadata

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/waqedi/platform/engine/domain"
)

// reasoningTraceRow is the Postgres row backing a ReasoningTrace. The
// audit trail is a write-mostly, tenant-scoped log rather than a graph
// entity with relationships to traverse, so it lives beside
// tenant_settings in Postgres instead of in Neo4j with the rest of the
// pipeline metadata (§4.7, GLOSSARY "Reasoning trace").
type reasoningTraceRow struct {
	TraceID        string  `gorm:"primaryKey;column:trace_id"`
	TenantID       string  `gorm:"column:tenant_id;index"`
	ConversationID string  `gorm:"column:conversation_id"`
	Query          string  `gorm:"column:query"`
	Intent         string  `gorm:"column:intent"`
	Language       string  `gorm:"column:language"`
	ChunkIDsUsed   string  `gorm:"column:chunk_ids_used"` // JSON-encoded []string
	ContextTokens  int     `gorm:"column:context_tokens"`
	Answer         string  `gorm:"column:answer"`
	Citations      string  `gorm:"column:citations"` // JSON-encoded []domain.Citation
	Confidence     float64 `gorm:"column:confidence"`
	AnswerType     string  `gorm:"column:answer_type"`
	LatencyMS      int64   `gorm:"column:latency_ms"`
	CreatedAt      time.Time
}

func (reasoningTraceRow) TableName() string { return "reasoning_traces" }

// TraceStore persists ReasoningTrace audit records (§4.7).
type TraceStore struct {
	db *gorm.DB
}

// OpenTraceStore opens a pooled Postgres connection and migrates the
// reasoning_traces table, following the same pool settings as
// OpenSettingsStore.
func OpenTraceStore(dsn string) (*TraceStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&reasoningTraceRow{}); err != nil {
		return nil, err
	}
	return &TraceStore{db: db}, nil
}

// Record writes one answering call's audit trail.
func (s *TraceStore) Record(ctx context.Context, trace domain.ReasoningTrace) error {
	chunkIDs, err := json.Marshal(trace.ChunkIDsUsed)
	if err != nil {
		return err
	}
	citations, err := json.Marshal(trace.Citations)
	if err != nil {
		return err
	}
	row := reasoningTraceRow{
		TraceID:        trace.TraceID,
		TenantID:       trace.TenantID,
		ConversationID: trace.ConversationID,
		Query:          trace.Query,
		Intent:         string(trace.Intent),
		Language:       trace.Language,
		ChunkIDsUsed:   string(chunkIDs),
		ContextTokens:  trace.ContextTokens,
		Answer:         trace.Answer,
		Citations:      string(citations),
		Confidence:     trace.Confidence,
		AnswerType:     string(trace.AnswerType),
		LatencyMS:      trace.LatencyMS,
		CreatedAt:      trace.CreatedAt,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// ListByTenant returns a tenant's most recent traces, newest first,
// bounded by limit. Used for answer-quality review tooling.
func (s *TraceStore) ListByTenant(ctx context.Context, tenantID string, limit int) ([]domain.ReasoningTrace, error) {
	var rows []reasoningTraceRow
	q := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.ReasoningTrace, 0, len(rows))
	for _, r := range rows {
		var chunkIDs []string
		_ = json.Unmarshal([]byte(r.ChunkIDsUsed), &chunkIDs)
		var citations []domain.Citation
		_ = json.Unmarshal([]byte(r.Citations), &citations)
		out = append(out, domain.ReasoningTrace{
			TraceID:        r.TraceID,
			TenantID:       r.TenantID,
			ConversationID: r.ConversationID,
			Query:          r.Query,
			Intent:         domain.Intent(r.Intent),
			Language:       r.Language,
			ChunkIDsUsed:   chunkIDs,
			ContextTokens:  r.ContextTokens,
			Answer:         r.Answer,
			Citations:      citations,
			Confidence:     r.Confidence,
			AnswerType:     domain.AnswerType(r.AnswerType),
			LatencyMS:      r.LatencyMS,
			CreatedAt:      r.CreatedAt,
		})
	}
	return out, nil
}
