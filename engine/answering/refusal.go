package answering

import "strings"

// The fixed bilingual refusal phrases §4.7b/f reference: the literal
// "no information available" response used both as the honest-refusal
// canned answer on zero retrieval hits, and as the phrase the citation
// scorer looks for in generated text.
const (
	noInformationEn = "I don't have enough information in the available documents to answer that."
	noInformationAr = "لا تتوفر لدي معلومات كافية في المستندات المتاحة للإجابة على ذلك."
)

var noInformationPhrases = map[string]string{
	"en": noInformationEn,
	"ar": noInformationAr,
}

// noInformationPhrase returns the canned refusal for language, defaulting
// to English for languages with no dedicated translation.
func noInformationPhrase(language string) string {
	if p, ok := noInformationPhrases[language]; ok {
		return p
	}
	return noInformationEn
}

// fallbackPhrases is the distinct bilingual message returned when
// generation itself fails (transport/timeout), as opposed to the
// retrieval finding nothing (§7 "User-visible failure behavior").
var fallbackPhrases = map[string]string{
	"en": "I'm unable to generate an answer right now. Please try again shortly.",
	"ar": "تعذر إنشاء إجابة في الوقت الحالي. يرجى المحاولة مرة أخرى بعد قليل.",
}

// fallbackPhrase returns the generation-failure fallback for language.
func fallbackPhrase(language string) string {
	if p, ok := fallbackPhrases[language]; ok {
		return p
	}
	return fallbackPhrases["en"]
}

// containsRefusalPhrase reports whether answer contains any phrase from
// the fixed bilingual refusal set (§4.7f).
func containsRefusalPhrase(answer string) bool {
	lower := strings.ToLower(answer)
	for _, phrase := range noInformationPhrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}
