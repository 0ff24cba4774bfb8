package lang

import (
	"context"
	"fmt"

	"github.com/waqedi/platform/pkg/llmclient"
)

// TranslationEngine is the capability §4.3 step 3 calls through. It is
// satisfied by llmTranslator below, which reuses the same generation
// model engine/answering calls for synthesis, rather than wiring a
// dedicated translation API the corpus never shows grounding for.
type TranslationEngine interface {
	ModelID() string
	Version() string
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

// llmTranslator drives translation through the generation model with a
// system prompt, since no standalone machine-translation client exists
// anywhere in the example pack and the teacher's own generation client
// (adapted as pkg/llmclient) is the only text-generation capability on
// hand. version is a caller-supplied label (e.g. a prompt-template
// version) stamped on Translation.EngineVersion, since the underlying
// model's own version is already ModelID.
type llmTranslator struct {
	client  *llmclient.Client
	version string
}

// NewLLMTranslator builds a TranslationEngine backed by client.
func NewLLMTranslator(client *llmclient.Client, version string) TranslationEngine {
	return &llmTranslator{client: client, version: version}
}

func (t *llmTranslator) ModelID() string { return t.client.Model() }
func (t *llmTranslator) Version() string { return t.version }

func (t *llmTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	prompt := fmt.Sprintf(
		"Translate the text from %s to %s. Return only the translated text, no commentary, no quotation marks.",
		sourceLang, targetLang,
	)
	result, err := t.client.Generate(ctx, []llmclient.Message{{Role: "user", Content: text}}, llmclient.GenerateOpts{
		SystemPrompt: prompt,
		Temperature:  0,
	})
	if err != nil {
		return "", fmt.Errorf("lang: translate: %w", err)
	}
	return result.Text, nil
}
