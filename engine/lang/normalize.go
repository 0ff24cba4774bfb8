// Package lang implements S3: detection, normalization, and optional
// translation of extracted text into LinguisticArtifacts (§4.3).
package lang

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/waqedi/platform/engine/domain"
)

// NormalizationVersion is stamped on every LinguisticArtifact so that
// normalize's output is reproducible and auditable against the rule
// set that produced it (§3, §4.3).
const NormalizationVersion = "v1"

// ocrArtifacts is the explicit character-substitution table for
// common OCR mis-recognitions (§4.3 step ii).
var ocrArtifacts = map[string]string{
	"ﬁ": "fi",
	"ﬂ": "fl",
	"ﬀ": "ff",
	"ﬃ": "ffi",
	" ": " ",
}

// englishLigatures decomposes common English typographic ligatures and
// smart quotes (§4.3 step iv, English rules).
var englishLigatures = map[string]string{
	"’": "'",
	"‘": "'",
	"“": "\"",
	"”": "\"",
	"œ": "oe",
	"æ": "ae",
}

// alefVariants unifies Arabic alef forms to bare alef (§4.3 step iv,
// Arabic rules).
var alefVariants = map[rune]rune{
	'أ': 'ا',
	'إ': 'ا',
	'آ': 'ا',
}

// NormalizeOptions configures the language-specific step (§4.3 step iv).
type NormalizeOptions struct {
	PreserveArabicDiacritics bool
}

// isArabicDiacritic reports whether r lies in the Unicode combining-mark
// range Arabic harakat live in (U+064B-U+065F, U+0670).
func isArabicDiacritic(r rune) bool {
	return (r >= 0x064B && r <= 0x065F) || r == 0x0670
}

// Normalize applies the §4.3 fixed sequence and returns the normalized
// text plus the audit trail of every rule applied. It is a pure
// function of (text, language, NormalizationVersion, opts) and is
// idempotent: Normalize(Normalize(x)) == Normalize(x), because every
// step here is itself idempotent and the sequence is fixed.
func Normalize(text, language string, opts NormalizeOptions) (string, []domain.NormalizationRule) {
	var rules []domain.NormalizationRule

	// (i) Unicode NFC.
	nfc := norm.NFC.String(text)
	if nfc != text {
		rules = append(rules, domain.NormalizationRule{Position: 0, Original: text, Replacement: nfc, Rule: "nfc"})
	}
	current := nfc

	// (ii) OCR-artifact cleanup.
	current, ocrRules := applySubstitutions(current, ocrArtifacts, "ocr_artifact")
	rules = append(rules, ocrRules...)

	// (iii) whitespace collapse and CR/LF normalization.
	collapsed := collapseWhitespace(current)
	if collapsed != current {
		rules = append(rules, domain.NormalizationRule{Position: 0, Original: current, Replacement: collapsed, Rule: "whitespace_collapse"})
	}
	current = collapsed

	// (iv) language-specific rules.
	switch language {
	case "ar":
		var arRules []domain.NormalizationRule
		current, arRules = normalizeArabic(current, opts)
		rules = append(rules, arRules...)
	case "en":
		var enRules []domain.NormalizationRule
		current, enRules = applySubstitutions(current, englishLigatures, "english_ligature")
		rules = append(rules, enRules...)
	}

	return current, rules
}

func applySubstitutions(text string, table map[string]string, ruleName string) (string, []domain.NormalizationRule) {
	var rules []domain.NormalizationRule
	var b strings.Builder
	pos := 0
	for _, r := range text {
		s := string(r)
		if replacement, ok := table[s]; ok {
			rules = append(rules, domain.NormalizationRule{Position: pos, Original: s, Replacement: replacement, Rule: ruleName})
			b.WriteString(replacement)
		} else {
			b.WriteRune(r)
		}
		pos++
	}
	return b.String(), rules
}

func collapseWhitespace(text string) string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	var b strings.Builder
	lastWasSpace := false
	for _, r := range normalized {
		if r == '\n' {
			b.WriteRune('\n')
			lastWasSpace = false
			continue
		}
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				b.WriteRune(' ')
			}
			lastWasSpace = true
			continue
		}
		b.WriteRune(r)
		lastWasSpace = false
	}
	return strings.TrimSpace(b.String())
}

func normalizeArabic(text string, opts NormalizeOptions) (string, []domain.NormalizationRule) {
	var rules []domain.NormalizationRule
	var b strings.Builder
	pos := 0
	for _, r := range text {
		switch {
		case alefVariants[r] != 0:
			replacement := alefVariants[r]
			rules = append(rules, domain.NormalizationRule{Position: pos, Original: string(r), Replacement: string(replacement), Rule: "alef_unification"})
			b.WriteRune(replacement)
		case r == 'ى':
			rules = append(rules, domain.NormalizationRule{Position: pos, Original: "ى", Replacement: "ي", Rule: "yeh_unification"})
			b.WriteRune('ي')
		case isArabicDiacritic(r) && !opts.PreserveArabicDiacritics:
			rules = append(rules, domain.NormalizationRule{Position: pos, Original: string(r), Replacement: "", Rule: "diacritic_removal"})
		default:
			b.WriteRune(r)
		}
		pos++
	}
	return b.String(), rules
}
