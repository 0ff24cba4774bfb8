// Package langdetect implements the hybrid language-detection policy of
// §4.3: a short-text fast path for inputs under 50 characters, and a
// stopword-frequency detector for longer inputs, plus the script
// classification used by both S2 (extraction) and S3 (language
// processing). No language-identification library appears anywhere in
// the example pack (see DESIGN.md), so this is a deliberately small,
// self-contained heuristic rather than a statistical model.
package langdetect

import "unicode"

// Script classifies the dominant code-point range of a segment (§4.3).
type Script string

const (
	ScriptLatin   Script = "latin"
	ScriptArabic  Script = "arabic"
	ScriptMixed   Script = "mixed"
	ScriptUnknown Script = "unknown"
)

// shortTextThreshold is the §4.3 boundary between the short-text
// detector and the high-accuracy (stopword-frequency) detector.
const shortTextThreshold = 50

// Detection is the result of running Detect on one text segment.
type Detection struct {
	PrimaryLanguage    string
	Confidence         float64
	SecondaryLanguages []string
	Script             Script
	IsMixed            bool
}

// DetectScript counts Arabic vs Latin code points and classifies the
// dominant script. Script is "mixed" unless one range outnumbers the
// other by at least a factor of 2 (§4.3).
func DetectScript(text string) (Script, bool) {
	var latin, arabic int
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Arabic, r):
			arabic++
		case unicode.Is(unicode.Latin, r):
			latin++
		}
	}
	if latin == 0 && arabic == 0 {
		return ScriptUnknown, false
	}
	if latin == 0 {
		return ScriptArabic, false
	}
	if arabic == 0 {
		return ScriptLatin, false
	}
	switch {
	case float64(latin) >= float64(arabic)*2:
		return ScriptLatin, false
	case float64(arabic) >= float64(latin)*2:
		return ScriptArabic, false
	default:
		return ScriptMixed, true
	}
}

// stopwords is a small frequency table per supported language; only
// enough signal to disambiguate among the handful of languages this
// platform's tenants actually use, not a general-purpose model.
var stopwords = map[string][]string{
	"en": {"the", "and", "is", "of", "to", "in", "that", "it", "for", "was"},
	"ar": {"في", "من", "على", "إلى", "هذا", "هذه", "التي", "الذي", "أن", "مع"},
	"fr": {"le", "la", "les", "de", "et", "un", "une", "est", "que", "pour"},
	"es": {"el", "la", "los", "de", "y", "un", "una", "es", "que", "para"},
	"de": {"der", "die", "das", "und", "ist", "von", "zu", "ein", "eine", "mit"},
}

// StopwordSet returns the lookup set of common stop words for lang, or nil
// if the platform carries no stopword list for it. Built from the same table
// S3's language detection scores against, and used by S7's
// query-understanding keyword extraction (§4.3, §4.7a)
// so the two stages never drift onto separate stop-word vocabularies.
func StopwordSet(lang string) map[string]bool {
	list, ok := stopwords[lang]
	if !ok {
		return nil
	}
	set := make(map[string]bool, len(list))
	for _, w := range list {
		set[w] = true
	}
	return set
}

// Detect classifies text by the §4.3 hybrid policy: short inputs get a
// script-only classification at lower confidence; longer inputs are
// scored against per-language stopword frequency, picking the best
// match and reporting near-matches as secondary languages.
func Detect(text string) Detection {
	script, isMixed := DetectScript(text)

	if len([]rune(text)) < shortTextThreshold {
		lang := "und"
		switch script {
		case ScriptLatin:
			lang = "en"
		case ScriptArabic:
			lang = "ar"
		}
		return Detection{
			PrimaryLanguage: lang,
			Confidence:      0.5,
			Script:          script,
			IsMixed:         isMixed,
		}
	}

	words := tokenize(text)
	scores := make(map[string]int, len(stopwords))
	total := 0
	for _, w := range words {
		for lang, list := range stopwords {
			for _, sw := range list {
				if w == sw {
					scores[lang]++
					total++
				}
			}
		}
	}

	best, bestScore := "und", 0
	var secondary []string
	for lang, score := range scores {
		if score > bestScore {
			if best != "und" {
				secondary = append(secondary, best)
			}
			best, bestScore = lang, score
		} else if score > 0 {
			secondary = append(secondary, lang)
		}
	}

	confidence := 0.3
	if total > 0 {
		confidence = float64(bestScore) / float64(total)
		if confidence > 0.99 {
			confidence = 0.99
		}
	}
	if best == "und" {
		switch script {
		case ScriptLatin:
			best = "en"
		case ScriptArabic:
			best = "ar"
		}
	}

	return Detection{
		PrimaryLanguage:    best,
		Confidence:         confidence,
		SecondaryLanguages: secondary,
		Script:             script,
		IsMixed:            isMixed,
	}
}

func tokenize(text string) []string {
	var words []string
	var current []rune
	flush := func() {
		if len(current) > 0 {
			words = append(words, string(current))
			current = nil
		}
	}
	for _, r := range text {
		if unicode.IsLetter(r) {
			current = append(current, unicode.ToLower(r))
		} else {
			flush()
		}
	}
	flush()
	return words
}
