// Package translate defines the text translation contract used by the
// translation side of the pipeline, plus the providers behind it.
package translate

import (
	"context"
	"fmt"

	"github.com/yegors/co-subtitles/internal/language"
)

// Translator translates a whole transcript into the target language.
// Languages are BCP-47 codes as listed by the language package.
type Translator interface {
	Name() string
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// Identity returns the text unchanged. It is used when source and target
// are the same language or translation is switched off.
type Identity struct{}

// Name implements Translator
func (Identity) Name() string { return "none" }

// Translate implements Translator
func (Identity) Translate(_ context.Context, text, _, _ string) (string, error) {
	return text, nil
}

// displayName prefers the human name of a language for prompts
func displayName(code string) string {
	if l, ok := language.Lookup(code); ok {
		return l.Name
	}
	return code
}

// SystemPrompt is the instruction given to LLM based translators
func SystemPrompt(source, target string) string {
	return fmt.Sprintf("You translate live subtitles from %s to %s. "+
		"The input is an unfinished transcript of ongoing speech and may end mid-sentence. "+
		"Reply with the translation only, without quotes, notes or explanations.",
		displayName(source), displayName(target))
}
