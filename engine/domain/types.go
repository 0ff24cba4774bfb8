// Package domain defines the core entities, lifecycle, and error taxonomy
// shared by every pipeline stage. It is the one package every stage and
// every store adapter imports; it owns no I/O.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// pointIDNamespace scopes the deterministic UUIDs WireID derives so they
// never collide with a UUID minted for an unrelated purpose elsewhere in
// the platform.
var pointIDNamespace = uuid.MustParse("6f6e8f2e-6f1e-4f6f-9f0f-0a1b2c3d4e5f")

// Tenant is the isolation root. Every entity below carries a TenantID and
// every store predicate must include it.
type Tenant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Tier string `json:"tier"`
}

// FileCategory classifies the uploaded media for extraction routing.
type FileCategory string

const (
	CategoryDocument FileCategory = "DOCUMENT"
	CategoryImage    FileCategory = "IMAGE"
	CategoryAudio    FileCategory = "AUDIO"
	CategoryVideo    FileCategory = "VIDEO"
)

// contentTypeCategory maps a MIME type to its FileCategory and is also the
// source of truth for the set of accepted content types (§4.1).
var contentTypeCategory = map[string]FileCategory{
	"application/pdf": CategoryDocument,
	"image/png":       CategoryImage,
	"image/jpeg":      CategoryImage,
	"audio/mpeg":      CategoryAudio,
	"audio/wav":       CategoryAudio,
	"video/mp4":       CategoryVideo,
}

// CategoryFor returns the FileCategory for a content type and whether it is supported.
func CategoryFor(contentType string) (FileCategory, bool) {
	c, ok := contentTypeCategory[contentType]
	return c, ok
}

// sizeLimits are the per-category maximum upload sizes (§4.1).
var sizeLimits = map[FileCategory]int64{
	CategoryDocument: 100 * 1 << 20,
	CategoryImage:    50 * 1 << 20,
	CategoryAudio:    500 * 1 << 20,
	CategoryVideo:    2 * 1 << 30,
}

// SizeLimit returns the maximum size in bytes allowed for the category.
func SizeLimit(c FileCategory) int64 { return sizeLimits[c] }

// DocumentStatus is the canonical lifecycle state of a Document (§3, §4.1).
type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "UPLOADED"
	StatusValidated  DocumentStatus = "VALIDATED"
	StatusQueued     DocumentStatus = "QUEUED"
	StatusProcessing DocumentStatus = "PROCESSING"
	StatusProcessed  DocumentStatus = "PROCESSED"
	StatusFailed     DocumentStatus = "FAILED"
	StatusArchived   DocumentStatus = "ARCHIVED"
	StatusRejected   DocumentStatus = "REJECTED"
	StatusDeleted    DocumentStatus = "DELETED"
)

// Document is the unit of ingestion (§3).
type Document struct {
	ID              string         `json:"id"`
	TenantID        string         `json:"tenant_id"`
	UploaderID      string         `json:"uploader_id"`
	Filename        string         `json:"filename"`
	ContentType     string         `json:"content_type"`
	SizeBytes       int64          `json:"size_bytes"`
	SHA256          string         `json:"sha256"`
	FileCategory    FileCategory   `json:"file_category"`
	StorageKey      string         `json:"storage_key"`
	Status          DocumentStatus `json:"status"`
	LegalHold       bool           `json:"legal_hold"`
	RetentionPolicy string         `json:"retention_policy,omitempty"`
	DeptID          string         `json:"dept_id,omitempty"`
	Collection      string         `json:"collection,omitempty"`

	UploadedAt   time.Time  `json:"uploaded_at"`
	ValidatedAt  *time.Time `json:"validated_at,omitempty"`
	QueuedAt     *time.Time `json:"queued_at,omitempty"`
	ProcessingAt *time.Time `json:"processing_at,omitempty"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	FailedAt     *time.Time `json:"failed_at,omitempty"`
	ArchivedAt   *time.Time `json:"archived_at,omitempty"`
	RejectedAt   *time.Time `json:"rejected_at,omitempty"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// PageConfidence is one page or segment of an OCR/STT extraction (§4.2).
type PageConfidence struct {
	PageNumber int     `json:"page_number,omitempty"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// ExtractionResult is 1:1 with a Document (§3).
type ExtractionResult struct {
	ID               string           `json:"id"`
	DocumentID       string           `json:"document_id"`
	TenantID         string           `json:"tenant_id"`
	Text             string           `json:"text"`
	Pages            []PageConfidence `json:"pages"`
	DetectedLanguage string           `json:"detected_language"`
	ModelID          string           `json:"model_id"`
	ModelVersion     string           `json:"model_version"`
	ProcessingTimeMS int64            `json:"processing_time_ms"`
	CreatedAt        time.Time        `json:"created_at"`
}

// NormalizationRule records one rule application for auditability (§4.3).
type NormalizationRule struct {
	Position    int    `json:"position"`
	Original    string `json:"original"`
	Replacement string `json:"replacement"`
	Rule        string `json:"rule"`
}

// Script classifies the dominant code-point range of a segment (§4.3).
type Script string

const (
	ScriptLatin   Script = "latin"
	ScriptArabic  Script = "arabic"
	ScriptMixed   Script = "mixed"
	ScriptUnknown Script = "unknown"
)

// Translation carries the optional translated form of a LinguisticArtifact (§4.3).
type Translation struct {
	Text          string    `json:"text"`
	Engine        string    `json:"engine"`
	EngineVersion string    `json:"engine_version"`
	SourceLang    string    `json:"source_lang"`
	TargetLang    string    `json:"target_lang"`
	Timestamp     time.Time `json:"timestamp"`
}

// LinguisticArtifact is 1:N with a Document, one per text segment (§3, §4.3).
type LinguisticArtifact struct {
	ID                   string              `json:"id"`
	DocumentID           string              `json:"document_id"`
	TenantID             string              `json:"tenant_id"`
	SegmentIndex         int                 `json:"segment_index"`
	Original             string              `json:"original"`
	Normalized           string              `json:"normalized"`
	Translation          *Translation        `json:"translation,omitempty"`
	NormalizationRules   []NormalizationRule `json:"normalization_rules"`
	NormalizationVersion string              `json:"normalization_version"`
	PrimaryLanguage      string              `json:"primary_language"`
	SecondaryLanguages   []string            `json:"secondary_languages,omitempty"`
	Script               Script              `json:"script"`
	DetectionConfidence  float64             `json:"detection_confidence"`
	IsMixed              bool                `json:"is_mixed"`
}

// Chunk is 1:N with a Document, immutable once written (§3, §4.4).
type Chunk struct {
	ChunkID    string `json:"chunk_id"`
	DocumentID string `json:"document_id"`
	TenantID   string `json:"tenant_id"`
	Text       string `json:"text"`
	Language   string `json:"language"`
	TokenCount int    `json:"token_count"`
	PageNumber *int   `json:"page_number,omitempty"`
	ChunkIndex int    `json:"chunk_index"`
}

// PointID composes the tenant-scoped Qdrant point identifier (§3): the
// collision-proofing is structural, not merely conventional — two distinct
// (tenant, chunk) pairs always differ because chunk IDs are unique within
// the tenant that minted them.
func PointID(tenantID, chunkID string) string {
	return tenantID + "_" + chunkID
}

// WireID derives the RFC4122 UUID a vector store that requires UUID point
// IDs (Qdrant) must use on the wire. It is deterministic over pointID so
// re-upserting the same (tenant, chunk) pair always targets the same point,
// but the composite string itself never has to look like a UUID — only
// WireID's output does.
func WireID(pointID string) string {
	return uuid.NewSHA1(pointIDNamespace, []byte(pointID)).String()
}

// Vector is 1:1 with a Chunk (§3).
type Vector struct {
	PointID          string    `json:"point_id"`
	TenantID         string    `json:"tenant_id"`
	DocumentID       string    `json:"document_id"`
	ChunkID          string    `json:"chunk_id"`
	Language         string    `json:"language"`
	Text             string    `json:"text"`
	PageNumber       *int      `json:"page_number,omitempty"`
	IngestionTime    time.Time `json:"ingestion_timestamp"`
	EmbeddingModel   string    `json:"embedding_model"`
	EmbeddingVersion string    `json:"embedding_version"`
	Embedding        []float32 `json:"-"`
}

// PipelineEvent is the wire record on the event bus (§6).
type PipelineEvent struct {
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	Timestamp     time.Time `json:"timestamp"`
	TenantID      string    `json:"tenant_id"`
	CorrelationID string    `json:"correlation_id"`
	Payload       any       `json:"payload"`
}

// Intent classifies a user query for the answering path (§4.7a).
type Intent string

const (
	IntentFactual       Intent = "FACTUAL"
	IntentSummary       Intent = "SUMMARY"
	IntentComparison    Intent = "COMPARISON"
	IntentProcedural    Intent = "PROCEDURAL"
	IntentClarification Intent = "CLARIFICATION"
)

// AnswerType classifies the shape of a generated answer (§4.7f).
type AnswerType string

const (
	AnswerDirect      AnswerType = "DIRECT"
	AnswerList        AnswerType = "LIST"
	AnswerSteps       AnswerType = "STEPS"
	AnswerExplanation AnswerType = "EXPLANATION"
)

// Citation is one `[chunk_id]` reference the answering path confirmed
// against the context window it actually gave the model (§4.7f, §6).
type Citation struct {
	ChunkID     string `json:"chunk_id"`
	DocumentID  string `json:"document_id"`
	TextExcerpt string `json:"text_excerpt"`
}

// AnswerResult is the response envelope for the synchronous /query API (§6).
type AnswerResult struct {
	Answer     string     `json:"answer"`
	Citations  []Citation `json:"citations"`
	Confidence float64    `json:"confidence"`
	AnswerType AnswerType `json:"answer_type"`
	Language   string     `json:"language"`
	TraceID    string     `json:"trace_id"`
	LatencyMS  int64      `json:"latency_ms"`
}

// ReasoningTrace is the audit record written per answering call (§4.7,
// GLOSSARY "Reasoning trace"): the query, the chunks actually used, token
// counts, the generated answer, citations, and latency.
type ReasoningTrace struct {
	TraceID        string     `json:"trace_id"`
	TenantID       string     `json:"tenant_id"`
	ConversationID string     `json:"conversation_id,omitempty"`
	Query          string     `json:"query"`
	Intent         Intent     `json:"intent"`
	Language       string     `json:"language"`
	ChunkIDsUsed   []string   `json:"chunk_ids_used"`
	ContextTokens  int        `json:"context_tokens"`
	Answer         string     `json:"answer"`
	Citations      []Citation `json:"citations"`
	Confidence     float64    `json:"confidence"`
	AnswerType     AnswerType `json:"answer_type"`
	LatencyMS      int64      `json:"latency_ms"`
	CreatedAt      time.Time  `json:"created_at"`
}
