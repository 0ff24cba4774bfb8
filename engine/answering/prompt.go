package answering

import (
	"fmt"
	"strings"

	"github.com/waqedi/platform/pkg/convcache"
	"github.com/waqedi/platform/pkg/llmclient"
)

// systemPrompts are the §4.7d fixed per-language system prompts. Each
// states the same four rules the spec names: context-only grounding,
// mandatory `[chunk_id]` citation, the literal no-information fallback,
// and conciseness.
var systemPrompts = map[string]string{
	"en": "You are a careful assistant answering questions using only the " +
		"context provided below. Cite every claim with the chunk id it came " +
		"from, in the form [chunk_id]. If the context does not contain enough " +
		"information to answer, say so plainly using the exact phrase: " +
		"\"" + noInformationEn + "\". Be concise.",
	"ar": "أنت مساعد دقيق يجيب على الأسئلة باستخدام السياق المقدم أدناه فقط. " +
		"استشهد بكل ادعاء برقم المقطع الذي جاء منه، بالصيغة [chunk_id]. إذا لم " +
		"يحتوِ السياق على معلومات كافية للإجابة، فقل ذلك صراحةً باستخدام العبارة " +
		"التالية بالضبط: \"" + noInformationAr + "\". كن موجزًا.",
}

func systemPromptFor(language string) string {
	if p, ok := systemPrompts[language]; ok {
		return p
	}
	return systemPrompts["en"]
}

// buildContextBlock renders one retrieved chunk as the §4.7d labelled
// block format.
func buildContextBlock(chunkID, documentID, language, text string) string {
	return fmt.Sprintf(
		"--- CHUNK [%s] --- Document: %s Language: %s\n%s\n--- END CHUNK ---",
		chunkID, documentID, language, text,
	)
}

// buildUserPrompt assembles the §4.7d user message: context blocks,
// optional prior turns, the intent-specific instruction, and the
// normalized question.
func buildUserPrompt(contextBlocks []string, history []convcache.Turn, instruction, normalizedQuery string) string {
	var b strings.Builder
	for _, block := range contextBlocks {
		b.WriteString(block)
		b.WriteString("\n\n")
	}
	if len(history) > 0 {
		b.WriteString("Prior conversation:\n")
		for _, turn := range history {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", turn.Query, turn.Answer)
		}
		b.WriteString("\n")
	}
	b.WriteString(instruction)
	b.WriteString("\n\n")
	b.WriteString(normalizedQuery)
	return b.String()
}

// buildMessages composes the final LLM-bound message list: a single user
// message carrying the assembled prompt. The system prompt is not part of
// this list; it travels in llmclient.GenerateOpts.SystemPrompt, matching
// llmclient.Client.Generate's history+opts contract.
func buildMessages(userPrompt string) []llmclient.Message {
	return []llmclient.Message{{Role: "user", Content: userPrompt}}
}
