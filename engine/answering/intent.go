package answering

import (
	"strings"

	"github.com/waqedi/platform/engine/domain"
)

// intentPattern is one phrase that, when present in a lowercased,
// normalized query, signals a particular intent. Checked in order;
// the first match wins (§4.7a "classify intent ... by a pattern table").
type intentPattern struct {
	intent   domain.Intent
	patterns []string
}

var intentTable = []intentPattern{
	{domain.IntentComparison, []string{
		"compare", "versus", " vs ", "difference between", "which is better",
		"قارن", "الفرق بين", "أيهما أفضل",
	}},
	{domain.IntentProcedural, []string{
		"how do i", "how to", "steps to", "walk me through", "guide me",
		"كيف أقوم", "كيف يمكنني", "خطوات",
	}},
	{domain.IntentSummary, []string{
		"summarize", "summarise", "summary", "overview", "tl;dr", "brief me",
		"لخص", "ملخص", "اختصر",
	}},
	{domain.IntentClarification, []string{
		"what do you mean", "can you clarify", "i don't understand", "confused about",
		"وضح", "اشرح أكثر", "لم أفهم",
	}},
}

// classifyIntent matches the normalized query against intentTable,
// defaulting to FACTUAL when nothing else fires (§4.7a).
func classifyIntent(normalizedQuery string) domain.Intent {
	lower := strings.ToLower(normalizedQuery)
	for _, entry := range intentTable {
		for _, p := range entry.patterns {
			if strings.Contains(lower, p) {
				return entry.intent
			}
		}
	}
	return domain.IntentFactual
}

// instructionFor returns the §4.7d intent-specific instruction line for
// the prompt's user message.
func instructionFor(intent domain.Intent) string {
	switch intent {
	case domain.IntentSummary:
		return "Summarize the relevant information from the context."
	case domain.IntentComparison:
		return "Compare the relevant items using only the context provided."
	case domain.IntentProcedural:
		return "List the steps required, in order, using only the context provided."
	case domain.IntentClarification:
		return "Explain the relevant concept clearly using only the context provided."
	default:
		return "Answer the question directly using only the context provided."
	}
}
