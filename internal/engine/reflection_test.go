package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scrypster/engram/internal/storage"
)

func recordWithImportance(t *testing.T, te *testEngine, agentID, content string, importance float64) string {
	t.Helper()
	ev, err := te.RecordEvent(context.Background(), RecordEventInput{
		AgentID:    agentID,
		EventType:  "message",
		Content:    content,
		Importance: ptr(importance),
	})
	require.NoError(t, err)
	return ev.ID
}

func reflectionScript() []scriptEntry {
	return []scriptEntry{
		{match: "most salient high-level questions", reply: "How is the billing migration going?\nWhat keeps breaking after deploys?"},
		{match: "How is the billing migration going?", reply: "The billing migration is on track after the schema fix landed."},
		{match: "What keeps breaking after deploys?", reply: "Deploy breakage traces back to configuration pushes, not code."},
	}
}

func TestReflectSynthesizesInsights(t *testing.T) {
	ctx := context.Background()
	gen := &scriptedLLM{script: reflectionScript()}
	te := newTestEngine(t, gen)

	eventIDs := []string{
		recordWithImportance(t, te, "default", "billing migration kicked off", 0.9),
		recordWithImportance(t, te, "default", "schema fix landed in staging", 0.8),
		recordWithImportance(t, te, "default", "deploy failed after config push", 0.7),
	}

	reflections, err := te.Reflect(ctx, "default", true)
	require.NoError(t, err)
	require.Len(t, reflections, 2)

	for _, r := range reflections {
		require.Equal(t, 0.7, r.Importance)
		require.Equal(t, 1, r.Depth)
		// Every insight cites the full consumed window, not just the
		// events quoted in its prompt.
		require.ElementsMatch(t, eventIDs, r.SourceIDs)
	}

	stats, err := te.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.ReflectionCount)
	// Three event vectors plus two reflection vectors.
	require.Equal(t, 5, stats.VectorCount)

	// Both watermarks moved.
	_, err = te.store.State(ctx, storage.StateLastReflectionAt)
	require.NoError(t, err)
	_, err = te.store.State(ctx, storage.StateLastReflectedAtPrefix+"default")
	require.NoError(t, err)

	// The consumed events are retired even for a forced second cycle.
	again, err := te.Reflect(ctx, "default", true)
	require.NoError(t, err)
	require.Empty(t, again)
}

func TestReflectCitesEveryConsumedEvent(t *testing.T) {
	ctx := context.Background()
	gen := &scriptedLLM{script: []scriptEntry{
		{match: "most salient high-level questions", reply: "What dominated the week?"},
		{match: "What dominated the week?", reply: "Incident follow-ups dominated the week."},
	}}
	te := newTestEngine(t, gen)

	ids := make([]string, 60)
	for i := range ids {
		ids[i] = recordWithImportance(t, te, "default", fmt.Sprintf("incident follow-up %02d", i+1), 0.6)
	}

	reflections, err := te.Reflect(ctx, "default", true)
	require.NoError(t, err)
	require.Len(t, reflections, 1)

	// The question prompt sees a bounded window of summaries, but
	// provenance cites the whole consumed backlog.
	require.ElementsMatch(t, ids, reflections[0].SourceIDs)
}

func TestReflectHonorsThreshold(t *testing.T) {
	ctx := context.Background()
	gen := &scriptedLLM{script: reflectionScript()}
	te := newTestEngine(t, gen)

	recordWithImportance(t, te, "default", "minor note one", 0.5)
	recordWithImportance(t, te, "default", "minor note two", 0.5)

	// Cumulative weight is 10, far below the default threshold of 150.
	reflections, err := te.Reflect(ctx, "default", false)
	require.NoError(t, err)
	require.Empty(t, reflections)
	require.Zero(t, gen.callCount())

	// An unforced skip must not retire the pending events.
	_, err = te.store.State(ctx, storage.StateLastReflectedAtPrefix+"default")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestShouldReflectCrossesThreshold(t *testing.T) {
	ctx := context.Background()
	gen := &scriptedLLM{script: reflectionScript()}
	te := newTestEngine(t, gen)

	for i := 0; i < 29; i++ {
		recordWithImportance(t, te, "default", "routine event for the tally", 0.5)
	}
	due, err := te.ShouldReflect(ctx, "default")
	require.NoError(t, err)
	require.False(t, due)

	// One more 0.5-importance event brings the sum to exactly 150.
	recordWithImportance(t, te, "default", "the tipping point event", 0.5)
	due, err = te.ShouldReflect(ctx, "default")
	require.NoError(t, err)
	require.True(t, due)
}

func TestReflectDisabledWithoutLLM(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, nil)

	recordWithImportance(t, te, "default", "an event with no model around", 1.0)

	due, err := te.ShouldReflect(ctx, "default")
	require.NoError(t, err)
	require.False(t, due)

	reflections, err := te.Reflect(ctx, "default", true)
	require.NoError(t, err)
	require.Empty(t, reflections)
}

func TestReflectRunsOncePerAgent(t *testing.T) {
	ctx := context.Background()
	gen := &scriptedLLM{
		script:   reflectionScript(),
		gate:     make(chan struct{}),
		inFlight: make(chan struct{}, 1),
	}
	te := newTestEngine(t, gen)

	recordWithImportance(t, te, "default", "billing migration kicked off", 0.9)
	recordWithImportance(t, te, "default", "deploy failed after config push", 0.9)

	type reflectResult struct {
		reflections int
		err         error
	}
	done := make(chan reflectResult, 1)
	go func() {
		reflections, err := te.Reflect(ctx, "default", true)
		done <- reflectResult{len(reflections), err}
	}()

	// Wait until the first cycle holds the latch inside its first
	// completion, then race a second call against it.
	<-gen.inFlight
	second, err := te.Reflect(ctx, "default", true)
	require.NoError(t, err)
	require.Empty(t, second)

	close(gen.gate)
	first := <-done
	require.NoError(t, first.err)
	require.Equal(t, 2, first.reflections)
}

func TestReflectSkipsInsightOnEmbedFailure(t *testing.T) {
	ctx := context.Background()
	gen := &scriptedLLM{script: []scriptEntry{
		{match: "most salient high-level questions", reply: "What changed this week?"},
		{match: "What changed this week?", reply: "POISON: nothing embeds this insight."},
	}}
	te := newTestEngine(t, gen)

	recordWithImportance(t, te, "default", "a normal recordable event", 0.9)
	te.embedder.FailOn = "POISON"

	reflections, err := te.Reflect(ctx, "default", true)
	require.NoError(t, err)
	require.Empty(t, reflections)

	// No orphaned relational row may exist for the skipped insight.
	reflectionIDs, err := te.store.ReflectionIDs(ctx)
	require.NoError(t, err)
	require.Empty(t, reflectionIDs)

	// The cycle still retires its events.
	_, err = te.store.State(ctx, storage.StateLastReflectedAtPrefix+"default")
	require.NoError(t, err)
}

func TestReflectToleratesEmptyQuestionResponse(t *testing.T) {
	ctx := context.Background()
	gen := &scriptedLLM{} // every prompt yields an empty completion
	te := newTestEngine(t, gen)

	recordWithImportance(t, te, "default", "an event nobody asks about", 0.9)

	reflections, err := te.Reflect(ctx, "default", true)
	require.NoError(t, err)
	require.Empty(t, reflections)

	_, err = te.store.State(ctx, storage.StateLastReflectionAt)
	require.NoError(t, err)
}
