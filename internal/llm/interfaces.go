package llm

import "context"

// TextGenerator is the interface for language-model text completion.
// All enrichment prompts use single-string completion style (not chat).
// The provider is optional: when no API key is configured the engine
// runs without one and every dependent feature degrades to its fallback.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}
