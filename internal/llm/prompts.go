// Package llm provides the optional language-model integration: importance
// scoring, salient-question synthesis, insight generation, and entity
// summarization. Prompt templates demand plain-text answers in a fixed shape
// and the parsers stay tolerant of the decoration models add anyway.
package llm

import (
	"fmt"
	"strings"
)

// Prompt input bounds. Larger inputs are truncated by the builders so token
// budgets stay predictable regardless of backlog size.
const (
	maxQuestionSummaries   = 50
	maxInsightSummaries    = 30
	maxSummaryObservations = 15
	maxSummaryRelations    = 10
)

// ImportancePrompt asks for a 0-1 importance rating of one memory.
// The response must be a bare number; ParseImportance handles stragglers.
func ImportancePrompt(content string) string {
	return fmt.Sprintf(`Rate the long-term importance of this memory for an AI agent on a scale from 0.0 to 1.0.

GUIDE:
- 0.0-0.2: trivial chatter, routine acknowledgements
- 0.3-0.5: everyday facts, minor preferences
- 0.6-0.8: significant decisions, durable preferences, key relationships
- 0.9-1.0: critical identity facts, hard constraints, major commitments

Memory:
%s

Respond with ONLY the number, nothing else.`, content)
}

// SalientQuestionsPrompt asks for up to 3 high-level questions answerable
// from the listed event summaries. Only the first 50 summaries are included.
func SalientQuestionsPrompt(summaries []string) string {
	if len(summaries) > maxQuestionSummaries {
		summaries = summaries[:maxQuestionSummaries]
	}

	var list strings.Builder
	for i, s := range summaries {
		fmt.Fprintf(&list, "%d. %s\n", i+1, s)
	}

	return fmt.Sprintf(`Given only the recent events below, what are the most salient high-level questions we can answer about the agent's world?

RULES:
1. At most 3 questions.
2. One question per line.
3. No numbering, no bullets, no commentary.

Recent events:
%s`, list.String())
}

// InsightPrompt asks for a single-paragraph insight answering one question,
// grounded in the first 30 event summaries.
func InsightPrompt(question string, summaries []string) string {
	if len(summaries) > maxInsightSummaries {
		summaries = summaries[:maxInsightSummaries]
	}

	var list strings.Builder
	for i, s := range summaries {
		fmt.Fprintf(&list, "%d. %s\n", i+1, s)
	}

	return fmt.Sprintf(`Answer the question using only the listed events as evidence. Synthesize one concise insight.

RULES:
1. A single paragraph, at most 3 sentences.
2. State the insight directly, no preamble.
3. If the events do not support an answer, respond with an empty line.

Question:
%s

Events:
%s`, question, list.String())
}

// EntitySummaryPrompt asks for a 1-2 sentence summary of an entity from its
// most recent observations and a bounded set of its relations.
func EntitySummaryPrompt(name, entityType string, observations, relations []string) string {
	if len(observations) > maxSummaryObservations {
		observations = observations[len(observations)-maxSummaryObservations:]
	}
	if len(relations) > maxSummaryRelations {
		relations = relations[:maxSummaryRelations]
	}

	var obsList strings.Builder
	for _, o := range observations {
		fmt.Fprintf(&obsList, "- %s\n", o)
	}

	relBlock := ""
	if len(relations) > 0 {
		var relList strings.Builder
		for _, r := range relations {
			fmt.Fprintf(&relList, "- %s\n", r)
		}
		relBlock = fmt.Sprintf("\nRelations:\n%s", relList.String())
	}

	return fmt.Sprintf(`Summarize what is known about this entity in 1-2 sentences.

RULES:
1. Plain prose, no lists, no markdown.
2. Lead with who or what the entity is, then the most durable facts.
3. Respond with ONLY the summary.

Entity: %s (%s)

Observations:
%s%s`, name, entityType, obsList.String(), relBlock)
}
