package chunking

import (
	"strings"
	"unicode"
)

// latinSentenceEnders and arabicSentenceEnders are the punctuation sets
// §4.4 names for sentence splitting: Latin scripts use the familiar
// `.!?`, Arabic text also closes sentences with the Arabic question
// mark `؟` and the ideographic full stop `。` seen in mixed-script OCR
// output.
var (
	latinSentenceEnders  = map[rune]bool{'.': true, '!': true, '?': true}
	arabicSentenceEnders = map[rune]bool{'.': true, '!': true, '؟': true, '。': true}
)

// splitSentences splits text into sentences using the punctuation set
// appropriate to language, falling back to the Latin set for languages
// with no dedicated rule (grounded on the teacher's splitSentences in
// engine/ingest/transform.go, generalized to take a punctuation set).
func splitSentences(text, language string) []string {
	enders := latinSentenceEnders
	if language == "ar" {
		enders = arabicSentenceEnders
	}

	var sentences []string
	var current strings.Builder
	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)
		if r == '\n' || enders[r] {
			nextIsBoundary := r == '\n' || i == len(runes)-1 || unicode.IsSpace(runes[i+1])
			if nextIsBoundary {
				if s := strings.TrimSpace(current.String()); s != "" {
					sentences = append(sentences, s)
				}
				current.Reset()
			}
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// splitParagraphs splits on blank lines.
func splitParagraphs(text string) []string {
	var paragraphs []string
	for _, p := range strings.Split(text, "\n\n") {
		if s := strings.TrimSpace(p); s != "" {
			paragraphs = append(paragraphs, s)
		}
	}
	return paragraphs
}

// EstimatedTokens is §4.4's documented approximation: ceil(chars/4).
// Exported so other stages needing the same token estimate (S7's context
// budget in particular) never drift onto a second formula.
func EstimatedTokens(s string) int {
	n := len([]rune(s))
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

// estimatedTokens is the package-local alias used throughout this file.
func estimatedTokens(s string) int { return EstimatedTokens(s) }
