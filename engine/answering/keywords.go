package answering

import "unicode"

// minKeywordLength drops short function words a stop-word list doesn't
// already catch ("is", "to", "في" style particles are filtered by
// langdetect.StopwordSet; this bound catches everything else that slips
// through for languages with no stopword list at all).
const minKeywordLength = 3

// extractKeywords tokenizes text into lowercase words and drops anything
// shorter than minKeywordLength or present in stopwords (§4.7a).
func extractKeywords(text string, stopwords map[string]bool) []string {
	var keywords []string
	var current []rune
	flush := func() {
		if len(current) == 0 {
			return
		}
		w := string(current)
		current = nil
		if len([]rune(w)) < minKeywordLength {
			return
		}
		if stopwords != nil && stopwords[w] {
			return
		}
		keywords = append(keywords, w)
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current = append(current, unicode.ToLower(r))
		} else {
			flush()
		}
	}
	flush()
	return keywords
}
