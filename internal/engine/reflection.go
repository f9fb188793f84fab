package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/scrypster/engram/internal/ids"
	"github.com/scrypster/engram/internal/llm"
	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

const (
	// reflectionEventCap bounds how many unreflected events one cycle
	// consumes; the newest events win when more are pending.
	reflectionEventCap = 500

	// maxSalientQuestions caps the questions asked per cycle, and with
	// them the insights produced.
	maxSalientQuestions = 3

	// reflectionImportance is the fixed importance of a synthesized
	// insight.
	reflectionImportance = 0.7

	// eventSummaryChars bounds each event line handed to the language
	// model.
	eventSummaryChars = 200
)

// ShouldReflect reports whether the agent's unreflected events have
// accumulated enough weight to trigger a reflection cycle. Always false
// without a language model.
func (e *Engine) ShouldReflect(ctx context.Context, agentID string) (bool, error) {
	if e.generator == nil {
		return false, nil
	}
	if agentID == "" {
		agentID = DefaultAgentID
	}
	events, err := e.store.UnreflectedEvents(ctx, agentID, reflectionEventCap)
	if err != nil {
		return false, fmt.Errorf("failed to load unreflected events: %w", err)
	}
	return cumulativeImportance(events) >= e.cfg.ReflectionThreshold, nil
}

// Reflect runs one reflection cycle: it asks the language model for up to
// three salient questions about the agent's unreflected events, then
// synthesizes one insight per question. Each stored insight carries the
// full set of consumed event ids as its sources.
//
// At most one cycle runs per agent at a time; a concurrent second call
// returns empty immediately. Provider and embedding failures inside the
// cycle are logged and skip the affected insight rather than aborting.
func (e *Engine) Reflect(ctx context.Context, agentID string, force bool) ([]*types.Reflection, error) {
	if e.generator == nil {
		return nil, nil
	}
	if agentID == "" {
		agentID = DefaultAgentID
	}

	if _, inFlight := e.reflecting.LoadOrStore(agentID, struct{}{}); inFlight {
		e.logger.Debug("reflection already running", "agent_id", agentID)
		return nil, nil
	}
	defer e.reflecting.Delete(agentID)

	events, err := e.store.UnreflectedEvents(ctx, agentID, reflectionEventCap)
	if err != nil {
		return nil, fmt.Errorf("failed to load unreflected events: %w", err)
	}
	if len(events) == 0 {
		return nil, nil
	}
	if !force && cumulativeImportance(events) < e.cfg.ReflectionThreshold {
		return nil, nil
	}

	sourceIDs := make([]string, len(events))
	summaries := make([]string, len(events))
	for i, ev := range events {
		sourceIDs[i] = ev.ID
		summaries[i] = eventSummary(ev)
	}

	var reflections []*types.Reflection
	for _, question := range e.salientQuestions(ctx, summaries) {
		if r := e.synthesizeInsight(ctx, question, summaries, sourceIDs); r != nil {
			reflections = append(reflections, r)
		}
	}

	// The watermark advances no matter how many insights landed; events a
	// cycle has consumed never re-enter the unreflected window.
	if err := e.advanceReflectionWatermark(ctx, agentID); err != nil {
		return reflections, fmt.Errorf("failed to advance reflection watermark: %w", err)
	}

	e.logger.Info("reflection cycle finished",
		"agent_id", agentID, "events", len(events), "insights", len(reflections))
	return reflections, nil
}

// salientQuestions asks the language model what is worth reflecting on.
// Failures are logged and yield no questions.
func (e *Engine) salientQuestions(ctx context.Context, summaries []string) []string {
	resp, err := e.generator.Complete(ctx, llm.SalientQuestionsPrompt(summaries))
	if err != nil {
		e.logger.Warn("failed to generate salient questions", "error", err)
		return nil
	}
	return llm.ParseQuestions(resp, maxSalientQuestions)
}

// synthesizeInsight answers one question against the event summaries and
// persists the result. The content is embedded before the relational row
// is written, so an embedding failure leaves nothing behind.
func (e *Engine) synthesizeInsight(ctx context.Context, question string, summaries, sourceIDs []string) *types.Reflection {
	resp, err := e.generator.Complete(ctx, llm.InsightPrompt(question, summaries))
	if err != nil {
		e.logger.Warn("failed to synthesize insight", "question", question, "error", err)
		return nil
	}
	content := strings.TrimSpace(resp)
	if content == "" {
		return nil
	}

	vec, err := e.embedder.Embed(ctx, content)
	if err != nil {
		e.logger.Warn("failed to embed insight", "error", err)
		return nil
	}

	r := &types.Reflection{
		ID:         ids.New(),
		Content:    content,
		SourceIDs:  sourceIDs,
		Importance: reflectionImportance,
		Depth:      1,
		CreatedAt:  e.now(),
	}
	if err := e.store.InsertReflection(ctx, r); err != nil {
		e.logger.Warn("failed to store reflection", "error", err)
		return nil
	}
	if err := e.vectors.Add(ctx, r.ID, types.MemoryTypeReflection, vec, r.Content, r.CreatedAt); err != nil {
		e.logger.Warn("failed to index reflection", "reflection_id", r.ID, "error", err)
	}
	return r
}

// advanceReflectionWatermark moves both reflection state keys to the
// current time.
func (e *Engine) advanceReflectionWatermark(ctx context.Context, agentID string) error {
	now := types.FormatTimestamp(e.now())
	if err := e.store.SetState(ctx, storage.StateLastReflectionAt, now); err != nil {
		return err
	}
	return e.store.SetState(ctx, storage.StateLastReflectedAtPrefix+agentID, now)
}

// cumulativeImportance is the reflection trigger metric: summed event
// importance scaled by ten.
func cumulativeImportance(events []*types.Event) float64 {
	var sum float64
	for _, ev := range events {
		sum += ev.Importance * 10
	}
	return sum
}

// eventSummary renders one event as a prompt line, bounded so a cycle of
// hundreds of events stays within the model's context.
func eventSummary(ev *types.Event) string {
	return fmt.Sprintf("[%s] %s", ev.EventType, truncateChars(ev.Content, eventSummaryChars))
}
