package answering

import (
	"math"
	"regexp"
	"strings"

	"github.com/waqedi/platform/engine/domain"
)

var citationTokenPattern = regexp.MustCompile(`\[([^\]]+)\]`)

// extractCitations parses every `[...]` token in answer, keeps only
// those naming a chunk_id present in knownChunks, and deduplicates while
// preserving order of first appearance (§4.7f).
func extractCitations(answer string, knownChunks map[string]assembledChunk) []domain.Citation {
	matches := citationTokenPattern.FindAllStringSubmatch(answer, -1)
	seen := make(map[string]bool, len(matches))
	citations := make([]domain.Citation, 0, len(matches))
	for _, m := range matches {
		chunkID := m[1]
		if seen[chunkID] {
			continue
		}
		ac, ok := knownChunks[chunkID]
		if !ok {
			continue
		}
		seen[chunkID] = true
		citations = append(citations, domain.Citation{
			ChunkID:     ac.chunk.ChunkID,
			DocumentID:  ac.chunk.DocumentID,
			TextExcerpt: excerpt(ac.chunk.Text, 200),
		})
	}
	return citations
}

func excerpt(text string, maxRunes int) string {
	r := []rune(text)
	if len(r) <= maxRunes {
		return text
	}
	return string(r[:maxRunes]) + "…"
}

// scoreConfidence implements the §4.7f confidence formula.
func scoreConfidence(answer string, citationCount, contextChunkCount int) float64 {
	if containsRefusalPhrase(answer) {
		return 0.9
	}
	if citationCount == 0 {
		return 0.3
	}
	if contextChunkCount == 0 {
		return 0.3
	}
	confidence := 0.2 + 0.8*(float64(citationCount)/float64(contextChunkCount))
	if confidence > 0.95 {
		confidence = 0.95
	}
	return math.Round(confidence*100) / 100
}

// bulletLinePattern matches a line that opens like a bullet or numbered
// list item (§4.7f answer-type derivation).
var bulletLinePattern = regexp.MustCompile(`^\s*([-*•]|\d+[.)])\s+`)

// deriveAnswerType implements §4.7f's formatting-based classification.
func deriveAnswerType(answer string, intent domain.Intent) domain.AnswerType {
	bulletLines := 0
	for _, line := range strings.Split(answer, "\n") {
		if bulletLinePattern.MatchString(line) {
			bulletLines++
		}
	}
	switch {
	case bulletLines >= 3:
		if intent == domain.IntentProcedural {
			return domain.AnswerSteps
		}
		return domain.AnswerList
	case intent == domain.IntentSummary || len([]rune(answer)) > 500:
		return domain.AnswerExplanation
	default:
		return domain.AnswerDirect
	}
}
