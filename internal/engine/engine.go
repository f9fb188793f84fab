// Package engine composes the relational store, the vector index, the
// embedding provider, and the optional language model into the memory
// engine's operations: episodic recording and search, semantic knowledge
// upkeep, unified recall, reflection, and consolidation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/scrypster/engram/internal/config"
	"github.com/scrypster/engram/internal/embedding"
	"github.com/scrypster/engram/internal/llm"
	"github.com/scrypster/engram/internal/storage/sqlite"
	"github.com/scrypster/engram/internal/vector"
	"github.com/scrypster/engram/pkg/types"
)

// DefaultAgentID is the agent scope used when a caller names none.
const DefaultAgentID = "default"

// defaultSearchLimit applies when a search caller provides no limit.
const defaultSearchLimit = 20

// Engine error kinds. Both are reserved: the current retrieval and
// reflection paths log their internal failures and degrade instead of
// surfacing them, so neither kind is returned today.
var (
	ErrRetrieval  = errors.New("retrieval failed")
	ErrReflection = errors.New("reflection failed")
)

// Engine is the single entry point for every memory operation. It is safe
// for concurrent use; the underlying stores carry their own locking and the
// only engine-level state is the per-agent reflection latch.
type Engine struct {
	cfg      *config.Config
	store    *sqlite.Store
	vectors  *vector.Store
	embedder embedding.Provider

	// generator and scorer are nil when no language model is configured.
	// Every path that uses them degrades to a no-op or a default value.
	generator llm.TextGenerator
	scorer    *llm.ImportanceScorer

	logger *slog.Logger

	// reflecting holds one entry per agent with a reflection cycle in
	// flight. A concurrent second cycle for the same agent is a no-op.
	reflecting sync.Map
}

// New wires an engine from its dependencies. generator may be nil; the
// other dependencies are required.
func New(cfg *config.Config, store *sqlite.Store, vectors *vector.Store, embedder embedding.Provider, generator llm.TextGenerator, logger *slog.Logger) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if store == nil {
		return nil, fmt.Errorf("relational store is required")
	}
	if vectors == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedding provider is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "engine")

	if sum := cfg.WeightRecency + cfg.WeightImportance + cfg.WeightRelevance; math.Abs(sum-1.0) > 0.01 {
		logger.Warn("recall weights do not sum to 1.0, scores are used as-is",
			"recency", cfg.WeightRecency,
			"importance", cfg.WeightImportance,
			"relevance", cfg.WeightRelevance,
			"sum", sum)
	}

	e := &Engine{
		cfg:       cfg,
		store:     store,
		vectors:   vectors,
		embedder:  embedder,
		generator: generator,
		logger:    logger,
	}
	if generator != nil {
		e.scorer = llm.NewImportanceScorer(generator)
	}
	return e, nil
}

// LLMEnabled reports whether a language model is configured. Importance
// scoring, reflection, and summary refresh are inactive without one.
func (e *Engine) LLMEnabled() bool {
	return e.generator != nil
}

// Stats reports corpus counts for the status surfaces.
func (e *Engine) Stats(ctx context.Context) (*types.MemoryStats, error) {
	stats, err := e.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	stats.VectorCount = e.vectors.Count()
	return stats, nil
}

// now returns the current UTC time at millisecond precision, matching the
// resolution of stored timestamps.
func (e *Engine) now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// truncateChars keeps the leading max runes of s.
func truncateChars(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

// clamp01 clamps v into [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
