package engine

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scrypster/engram/internal/config"
	"github.com/scrypster/engram/internal/embedding/mock"
	"github.com/scrypster/engram/internal/llm"
	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/internal/storage/sqlite"
	"github.com/scrypster/engram/internal/vector"
	"github.com/scrypster/engram/pkg/types"
)

const testDims = 32

func testConfig() *config.Config {
	return &config.Config{
		DataDir:               "unused",
		DecayRate:             0.995,
		ReflectionThreshold:   150,
		ConsolidationInterval: 24 * time.Hour,
		WeightRecency:         0.4,
		WeightImportance:      0.3,
		WeightRelevance:       0.3,
		EmbeddingModel:        "mock",
		EmbeddingDimensions:   testDims,
		LogLevel:              "error",
	}
}

// testEngine bundles an engine with direct handles on its stores so tests
// can seed rows and inspect state underneath the public operations.
type testEngine struct {
	*Engine
	store    *sqlite.Store
	vectors  *vector.Store
	embedder *mock.Embedder
}

func newTestEngine(t *testing.T, gen llm.TextGenerator) *testEngine {
	t.Helper()

	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	vectors, err := vector.OpenInMemory(testDims)
	require.NoError(t, err)

	embedder := mock.New(testDims)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	eng, err := New(testConfig(), store, vectors, embedder, gen, logger)
	require.NoError(t, err)

	return &testEngine{Engine: eng, store: store, vectors: vectors, embedder: embedder}
}

func ptr(v float64) *float64 { return &v }

func entityUpsert(name string, entityType types.EntityType, observations ...string) storage.EntityUpsert {
	return storage.EntityUpsert{
		Name:         name,
		EntityType:   entityType,
		Observations: observations,
	}
}

// scriptEntry maps a prompt substring to a canned completion.
type scriptEntry struct {
	match string
	reply string
}

// scriptedLLM is a deterministic TextGenerator. Entries are matched in
// order and the first hit wins; unmatched prompts yield an empty string.
// gate, when set, blocks every completion until the channel is closed, and
// inFlight signals that a completion has started.
type scriptedLLM struct {
	script   []scriptEntry
	err      error
	gate     chan struct{}
	inFlight chan struct{}

	mu    sync.Mutex
	calls int
}

func (s *scriptedLLM) Complete(ctx context.Context, prompt string) (string, error) {
	if s.inFlight != nil {
		select {
		case s.inFlight <- struct{}{}:
		default:
		}
	}
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.err != nil {
		return "", s.err
	}
	for _, e := range s.script {
		if strings.Contains(prompt, e.match) {
			return e.reply, nil
		}
	}
	return "", nil
}

func (s *scriptedLLM) GetModel() string { return "scripted" }

func (s *scriptedLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestNewValidatesDependencies(t *testing.T) {
	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	vectors, err := vector.OpenInMemory(testDims)
	require.NoError(t, err)

	embedder := mock.New(testDims)

	_, err = New(nil, store, vectors, embedder, nil, nil)
	require.Error(t, err)

	_, err = New(testConfig(), nil, vectors, embedder, nil, nil)
	require.Error(t, err)

	_, err = New(testConfig(), store, nil, embedder, nil, nil)
	require.Error(t, err)

	_, err = New(testConfig(), store, vectors, nil, nil, nil)
	require.Error(t, err)

	eng, err := New(testConfig(), store, vectors, embedder, nil, nil)
	require.NoError(t, err)
	require.False(t, eng.LLMEnabled())
}

func TestLLMEnabledWithGenerator(t *testing.T) {
	te := newTestEngine(t, &scriptedLLM{})
	require.True(t, te.LLMEnabled())
}

func TestStatsIncludesVectorCount(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, nil)

	_, err := te.RecordEvent(ctx, RecordEventInput{
		AgentID:   "default",
		EventType: "message",
		Content:   "kickoff meeting notes",
	})
	require.NoError(t, err)

	_, err = te.UpsertEntity(ctx, entityUpsert("Acme", "organization", "Based in Berlin"))
	require.NoError(t, err)

	stats, err := te.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.EventCount)
	require.Equal(t, 1, stats.EntityCount)
	require.Equal(t, 2, stats.VectorCount)
}
