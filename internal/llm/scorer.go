package llm

import (
	"context"
	"fmt"
)

// ImportanceScorer rates event content on [0, 1] via the text generator.
// The episodic append path uses it when a provider is configured and falls
// back to the default importance when it is not or when scoring fails.
type ImportanceScorer struct {
	gen TextGenerator
}

// NewImportanceScorer creates a scorer backed by gen.
func NewImportanceScorer(gen TextGenerator) *ImportanceScorer {
	return &ImportanceScorer{gen: gen}
}

// Score rates content. The result is already clamped to [0, 1].
func (s *ImportanceScorer) Score(ctx context.Context, content string) (float64, error) {
	out, err := s.gen.Complete(ctx, ImportancePrompt(content))
	if err != nil {
		return 0, fmt.Errorf("score importance: %w", err)
	}
	return ParseImportance(out)
}
