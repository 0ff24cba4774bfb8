// Package answering implements S7: the synchronous question-answering
// path (§4.7) built on top of S6 retrieval. It runs query understanding,
// retrieval, reranking/context assembly, prompt building, generation, and
// citation extraction/scoring as one sequential pipeline per call.
package answering

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/waqedi/platform/engine/chunking"
	"github.com/waqedi/platform/engine/domain"
	"github.com/waqedi/platform/engine/lang"
	"github.com/waqedi/platform/engine/retrieval"
	"github.com/waqedi/platform/pkg/convcache"
	"github.com/waqedi/platform/pkg/langdetect"
	"github.com/waqedi/platform/pkg/llmclient"
)

const maxTopK = 20

// Retriever is the capability S7 needs from S6.
type Retriever interface {
	Retrieve(ctx context.Context, tenantID, queryText string, topK int, filters retrieval.Filters) ([]retrieval.RetrievedChunk, error)
}

// ConversationCache is the bounded advisory turn history (§4.7a).
type ConversationCache interface {
	History(ctx context.Context, tenantID, conversationID string) ([]convcache.Turn, error)
	Append(ctx context.Context, tenantID, conversationID string, turn convcache.Turn) error
}

// Generator produces an answer from a constructed prompt (§4.7e).
type Generator interface {
	Generate(ctx context.Context, history []llmclient.Message, opts llmclient.GenerateOpts) (llmclient.Result, error)
}

// TraceRecorder persists the reasoning-trace audit record (§4.7, §6).
type TraceRecorder interface {
	Record(ctx context.Context, trace domain.ReasoningTrace) error
}

// Config bounds generation and the default result size (§4.7e, §6).
type Config struct {
	DefaultTopK       int
	Temperature       float32
	MaxTokens         int32
	GenerationTimeout time.Duration
}

// DefaultConfig returns the documented defaults: top_k 10, temperature
// 0.1, a 30s generation timeout.
func DefaultConfig() Config {
	return Config{DefaultTopK: 10, Temperature: 0.1, MaxTokens: 800, GenerationTimeout: 30 * time.Second}
}

// Service runs the full S7 pipeline.
type Service struct {
	retriever Retriever
	convCache ConversationCache
	generator Generator
	traces    TraceRecorder
	cfg       Config
	logger    *slog.Logger
	clock     func() time.Time
	newID     func() string
}

// New builds a Service. convCache may be nil when conversation history is
// not wired (conversation context is always advisory, never required).
func New(retriever Retriever, convCache ConversationCache, generator Generator, traces TraceRecorder, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		retriever: retriever,
		convCache: convCache,
		generator: generator,
		traces:    traces,
		cfg:       cfg,
		logger:    logger,
		clock:     time.Now,
		newID:     uuid.NewString,
	}
}

// Request is the input to Answer (§6 POST /query).
type Request struct {
	TenantID       string
	ConversationID string
	Query          string
	TopK           int
	Language       string
}

// Answer runs query understanding, retrieval, reranking, prompt
// building, generation, and citation scoring, in that order, and writes
// a reasoning-trace audit record before returning.
func (s *Service) Answer(ctx context.Context, req Request) (domain.AnswerResult, error) {
	start := s.clock()

	if req.TenantID == "" {
		return domain.AnswerResult{}, domain.New(domain.KindValidation, domain.TypeValidation, "answering requires a non-empty tenant_id")
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return domain.AnswerResult{}, domain.New(domain.KindValidation, domain.TypeValidation, "answering requires a non-empty query")
	}
	topK := req.TopK
	if topK <= 0 {
		topK = s.cfg.DefaultTopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}

	// (a) Query understanding.
	language := req.Language
	if language == "" {
		language = langdetect.Detect(query).PrimaryLanguage
	}
	normalizedQuery, _ := lang.Normalize(query, language, lang.NormalizeOptions{})
	intent := classifyIntent(normalizedQuery)
	keywords := extractKeywords(normalizedQuery, langdetect.StopwordSet(language))
	s.logger.Debug("answering: query understood", "tenant_id", req.TenantID, "intent", intent, "language", language, "keywords", keywords)

	var history []convcache.Turn
	if s.convCache != nil && req.ConversationID != "" {
		h, err := s.convCache.History(ctx, req.TenantID, req.ConversationID)
		if err != nil {
			s.logger.Warn("answering: conversation history unavailable, proceeding without it", "err", err)
		} else {
			history = h
		}
	}

	// (b) Retrieval.
	filters := retrieval.Filters{Language: req.Language}
	chunks, err := s.retriever.Retrieve(ctx, req.TenantID, normalizedQuery, topK, filters)
	if err != nil {
		return domain.AnswerResult{}, err
	}

	if len(chunks) == 0 {
		result := domain.AnswerResult{
			Answer:     noInformationPhrase(language),
			Citations:  nil,
			Confidence: 0.9,
			AnswerType: domain.AnswerDirect,
			Language:   language,
			TraceID:    s.newID(),
			LatencyMS:  s.clock().Sub(start).Milliseconds(),
		}
		s.finish(ctx, req, intent, language, nil, 0, result)
		return result, nil
	}

	// (c) Reranking and context assembly.
	assembled := assembleContext(chunks, defaultRerankConfig(topK))
	knownChunks := make(map[string]assembledChunk, len(assembled))
	contextBlocks := make([]string, 0, len(assembled))
	chunkIDsUsed := make([]string, 0, len(assembled))
	contextTokens := 0
	for _, ac := range assembled {
		knownChunks[ac.chunk.ChunkID] = ac
		contextBlocks = append(contextBlocks, buildContextBlock(ac.chunk.ChunkID, ac.chunk.DocumentID, ac.chunk.Language, ac.chunk.Text))
		chunkIDsUsed = append(chunkIDsUsed, ac.chunk.ChunkID)
	}

	// (d) Prompt building.
	userPrompt := buildUserPrompt(contextBlocks, history, instructionFor(intent), normalizedQuery)
	messages := buildMessages(userPrompt)

	// (e) Generation.
	genCtx, cancel := context.WithTimeout(ctx, s.cfg.GenerationTimeout)
	defer cancel()
	genResult, genErr := s.generator.Generate(genCtx, messages, llmclient.GenerateOpts{
		SystemPrompt: systemPromptFor(language),
		Temperature:  s.cfg.Temperature,
		MaxTokens:    s.cfg.MaxTokens,
	})

	var result domain.AnswerResult
	if genErr != nil {
		s.logger.Warn("answering: generation failed, returning fallback", "tenant_id", req.TenantID, "err", genErr)
		result = domain.AnswerResult{
			Answer:     fallbackPhrase(language),
			Citations:  nil,
			Confidence: 0.0,
			AnswerType: domain.AnswerDirect,
			Language:   language,
			TraceID:    s.newID(),
			LatencyMS:  s.clock().Sub(start).Milliseconds(),
		}
	} else {
		citations := extractCitations(genResult.Text, knownChunks)
		result = domain.AnswerResult{
			Answer:     genResult.Text,
			Citations:  citations,
			Confidence: scoreConfidence(genResult.Text, len(citations), len(assembled)),
			AnswerType: deriveAnswerType(genResult.Text, intent),
			Language:   language,
			TraceID:    s.newID(),
			LatencyMS:  s.clock().Sub(start).Milliseconds(),
		}
	}

	contextTokens = sumContextTokens(contextBlocks)
	s.finish(ctx, req, intent, language, chunkIDsUsed, contextTokens, result)
	return result, nil
}

// finish records the audit trace and appends the turn to the
// conversation cache. Both are best-effort: a failure here must never
// fail the already-computed answer (§4.7a: conversation context is
// advisory).
func (s *Service) finish(ctx context.Context, req Request, intent domain.Intent, language string, chunkIDsUsed []string, contextTokens int, result domain.AnswerResult) {
	if s.traces != nil {
		trace := domain.ReasoningTrace{
			TraceID:        result.TraceID,
			TenantID:       req.TenantID,
			ConversationID: req.ConversationID,
			Query:          req.Query,
			Intent:         intent,
			Language:       language,
			ChunkIDsUsed:   chunkIDsUsed,
			ContextTokens:  contextTokens,
			Answer:         result.Answer,
			Citations:      result.Citations,
			Confidence:     result.Confidence,
			AnswerType:     result.AnswerType,
			LatencyMS:      result.LatencyMS,
			CreatedAt:      s.clock(),
		}
		if err := s.traces.Record(ctx, trace); err != nil {
			s.logger.Warn("answering: failed to record reasoning trace", "trace_id", result.TraceID, "err", err)
		}
	}
	if s.convCache != nil && req.ConversationID != "" {
		turn := convcache.Turn{Query: req.Query, Answer: result.Answer, Timestamp: s.clock()}
		if err := s.convCache.Append(ctx, req.TenantID, req.ConversationID, turn); err != nil {
			s.logger.Warn("answering: failed to append conversation turn", "err", err)
		}
	}
}

func sumContextTokens(blocks []string) int {
	total := 0
	for _, b := range blocks {
		total += chunking.EstimatedTokens(b)
	}
	return total
}
