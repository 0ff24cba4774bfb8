// Package chunking implements S4: splitting a document's normalized text
// into an ordered sequence of Chunks (§4.4).
package chunking

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/waqedi/platform/engine/domain"
	"github.com/waqedi/platform/engine/events"
)

// Strategy names a chunking algorithm (§4.4).
type Strategy string

const (
	StrategySemantic      Strategy = "semantic"
	StrategyParagraph     Strategy = "paragraph"
	StrategySlidingWindow Strategy = "sliding_window"
	StrategySentence      Strategy = "sentence"
)

// Config bounds chunk sizing (§4.4).
type Config struct {
	TargetSize    int
	MinSize       int
	MaxSize       int
	OverlapTokens int
	Strategy      Strategy
}

// DefaultConfig returns §4.4's documented defaults.
func DefaultConfig() Config {
	return Config{
		TargetSize:    512,
		MinSize:       100,
		MaxSize:       1024,
		OverlapTokens: 50,
		Strategy:      StrategySemantic,
	}
}

// ChunkRepo persists Chunk rows for a document.
type ChunkRepo interface {
	PutAll(ctx context.Context, chunks []domain.Chunk) ([]domain.Chunk, error)
}

// EventPublisher emits the document pipeline's bus events.
type EventPublisher interface {
	Publish(ctx context.Context, documentID, tenantID, correlationID string, eventType events.EventType, payload any) error
}

// Service runs S4 over a document's LinguisticArtifacts.
type Service struct {
	chunks    ChunkRepo
	publisher EventPublisher
	cfg       Config
}

// New builds a Service.
func New(chunks ChunkRepo, publisher EventPublisher, cfg Config) *Service {
	return &Service{chunks: chunks, publisher: publisher, cfg: cfg}
}

// Process chunks every artifact of a document in SegmentIndex order,
// assigning a single document-wide, dense, monotonically increasing
// chunk_index sequence across all segments (§4.4 invariant 2), persists
// the result, and publishes document.chunked / document.chunking_failed.
func (s *Service) Process(ctx context.Context, documentID, tenantID, correlationID string, artifacts []domain.LinguisticArtifact) ([]domain.Chunk, error) {
	ordered := make([]domain.LinguisticArtifact, len(artifacts))
	copy(ordered, artifacts)
	sortBySegmentIndex(ordered)

	type draft struct {
		text     string
		language string
		page     int
	}
	var drafts []draft
	for _, a := range ordered {
		for _, text := range splitIntoChunkTexts(a.Normalized, a.PrimaryLanguage, s.cfg) {
			drafts = append(drafts, draft{text: text, language: a.PrimaryLanguage, page: a.SegmentIndex})
		}
	}

	// §4.4's trailing-small-chunk rule applies to the document as a
	// whole, not per segment: only the very last chunk of the document
	// is a candidate for dropping.
	if len(drafts) > 1 && estimatedTokens(drafts[len(drafts)-1].text) < s.cfg.MinSize {
		drafts = drafts[:len(drafts)-1]
	}

	var all []domain.Chunk
	for index, d := range drafts {
		pageNumber := d.page
		all = append(all, domain.Chunk{
			ChunkID:    uuid.NewString(),
			DocumentID: documentID,
			TenantID:   tenantID,
			Text:       d.text,
			Language:   d.language,
			TokenCount: estimatedTokens(d.text),
			PageNumber: &pageNumber,
			ChunkIndex: index,
		})
	}

	if len(all) == 0 {
		err := domain.New(domain.KindTerminalDependency, "", "chunking produced no chunks")
		_ = s.publisher.Publish(ctx, documentID, tenantID, correlationID, events.DocumentChunkingFailed, events.ChunkingFailedPayload{
			DocumentID: documentID,
			Error:      err.Error(),
		})
		return nil, err
	}

	saved, err := s.chunks.PutAll(ctx, all)
	if err != nil {
		wrapped := domain.Wrap(domain.KindTransientDependency, "", "chunking: persist chunks", err)
		_ = s.publisher.Publish(ctx, documentID, tenantID, correlationID, events.DocumentChunkingFailed, events.ChunkingFailedPayload{
			DocumentID: documentID,
			Error:      wrapped.Error(),
		})
		return nil, wrapped
	}

	wire := make([]events.ChunkWire, len(saved))
	for i, c := range saved {
		wire[i] = events.ChunkWire{
			ChunkID:    c.ChunkID,
			Index:      c.ChunkIndex,
			Text:       c.Text,
			TokenCount: c.TokenCount,
			PageNumber: c.PageNumber,
			Language:   c.Language,
		}
	}
	if err := s.publisher.Publish(ctx, documentID, tenantID, correlationID, events.DocumentChunked, events.ChunkedPayload{
		DocumentID: documentID,
		ChunkCount: len(saved),
		Strategy:   string(s.cfg.Strategy),
		Chunks:     wire,
	}); err != nil {
		return nil, fmt.Errorf("chunking: publish document.chunked: %w", err)
	}

	return saved, nil
}

func sortBySegmentIndex(artifacts []domain.LinguisticArtifact) {
	for i := 1; i < len(artifacts); i++ {
		for j := i; j > 0 && artifacts[j].SegmentIndex < artifacts[j-1].SegmentIndex; j-- {
			artifacts[j], artifacts[j-1] = artifacts[j-1], artifacts[j]
		}
	}
}

// splitIntoChunkTexts dispatches to the configured strategy. The §4.4
// trailing-small-chunk rule is not applied here; Process applies it once
// to the document's last chunk.
func splitIntoChunkTexts(text, language string, cfg Config) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	switch cfg.Strategy {
	case StrategyParagraph:
		return accumulate(splitParagraphs(text), cfg)
	case StrategySlidingWindow:
		return slidingWindow(text, cfg)
	case StrategySentence:
		return oneChunkPerSentence(splitSentences(text, language), cfg)
	default: // StrategySemantic
		return accumulate(splitSentences(text, language), cfg)
	}
}

// accumulate groups units (sentences or paragraphs) into chunks of
// ~TargetSize tokens with OverlapTokens of trailing-unit overlap carried
// into the next chunk, grounded on engine/ingest/transform.go's
// chunkSentences, generalized to take an arbitrary unit list and the
// §4.4 char/4 token estimator instead of a word count.
func accumulate(units []string, cfg Config) []string {
	if len(units) == 0 {
		return nil
	}
	targetSize := cfg.TargetSize
	if targetSize <= 0 {
		targetSize = 512
	}
	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = 1024
	}
	overlap := cfg.OverlapTokens
	if overlap < 0 {
		overlap = 0
	}

	var chunks []string
	start := 0
	for start < len(units) {
		var buf strings.Builder
		tokens := 0
		end := start
		for end < len(units) {
			unitTokens := estimatedTokens(units[end])
			if tokens > 0 && tokens+unitTokens > maxSize {
				break
			}
			if buf.Len() > 0 {
				buf.WriteRune(' ')
			}
			buf.WriteString(units[end])
			tokens += unitTokens
			end++
			if tokens >= targetSize {
				break
			}
		}
		chunks = append(chunks, buf.String())

		overlapTokens := 0
		newStart := end
		for newStart > start && overlapTokens < overlap {
			newStart--
			overlapTokens += estimatedTokens(units[newStart])
		}
		if newStart == start {
			start = end
		} else {
			start = newStart
		}
	}
	return chunks
}

// oneChunkPerSentence emits one chunk per sentence, splitting any
// sentence whose estimated token count exceeds MaxSize into word-bounded
// pieces.
func oneChunkPerSentence(sentences []string, cfg Config) []string {
	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = 1024
	}
	var chunks []string
	for _, s := range sentences {
		if estimatedTokens(s) <= maxSize {
			chunks = append(chunks, s)
			continue
		}
		chunks = append(chunks, splitByWords(s, maxSize)...)
	}
	return chunks
}

func splitByWords(s string, maxSize int) []string {
	words := strings.Fields(s)
	var pieces []string
	var buf strings.Builder
	for _, w := range words {
		if buf.Len() > 0 && estimatedTokens(buf.String()+" "+w) > maxSize {
			pieces = append(pieces, buf.String())
			buf.Reset()
		}
		if buf.Len() > 0 {
			buf.WriteRune(' ')
		}
		buf.WriteString(w)
	}
	if buf.Len() > 0 {
		pieces = append(pieces, buf.String())
	}
	return pieces
}

// slidingWindow builds fixed-size, overlapping windows directly over
// raw text without sentence awareness, advancing by (TargetSize -
// OverlapTokens) tokens (≈ chars) per window.
func slidingWindow(text string, cfg Config) []string {
	targetSize := cfg.TargetSize
	if targetSize <= 0 {
		targetSize = 512
	}
	overlap := cfg.OverlapTokens
	if overlap < 0 || overlap >= targetSize {
		overlap = 0
	}
	windowChars := targetSize * 4
	strideChars := (targetSize - overlap) * 4
	if strideChars <= 0 {
		strideChars = windowChars
	}

	runes := []rune(text)
	var chunks []string
	for start := 0; start < len(runes); start += strideChars {
		end := start + windowChars
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, strings.TrimSpace(string(runes[start:end])))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
