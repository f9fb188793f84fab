package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/internal/vector"
	"github.com/scrypster/engram/pkg/types"
)

// Recall limits and the candidate overfetch factor. Recall pulls three
// times the requested limit from the vector index so that agent filtering
// and re-scoring still leave enough candidates.
const (
	defaultRecallLimit = 20
	maxRecallLimit     = 50
	recallOverfetch    = 3
)

// RecallInput carries the parameters of a unified retrieval. Core memory
// inclusion and access-tracking touches default to on; the flags are
// inverted so the zero value keeps those defaults.
type RecallInput struct {
	Query   string
	Limit   int
	AgentID string

	ExcludeCore bool
	SkipTouch   bool
}

// Recall searches every memory type at once and returns the top hits by
// composite score, optionally bundled with all core memory blocks. The
// composite score mixes recency, importance, and vector relevance using
// the configured weights.
func (e *Engine) Recall(ctx context.Context, in RecallInput) (*types.RecallResult, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, fmt.Errorf("%w: query is required", storage.ErrInvalidInput)
	}
	limit := in.Limit
	if limit <= 0 {
		limit = defaultRecallLimit
	}
	if limit > maxRecallLimit {
		limit = maxRecallLimit
	}

	vec, err := e.embedder.Embed(ctx, in.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	hits, err := e.vectors.Search(ctx, vec, recallOverfetch*limit, "")
	if err != nil {
		return nil, fmt.Errorf("failed to search memories: %w", err)
	}

	result := &types.RecallResult{
		Memories:      []types.ScoredMemory{},
		TotalSearched: len(hits),
	}

	events, entities, reflections, err := e.hydrate(ctx, hits)
	if err != nil {
		return nil, err
	}

	now := e.now()
	var touchEventIDs, touchEntityIDs, touchReflectionIDs []string

	for _, h := range hits {
		switch h.MemoryType {
		case types.MemoryTypeEvent:
			ev, ok := events[h.MemoryID]
			if !ok {
				e.warnOrphan(h)
				continue
			}
			if in.AgentID != "" && ev.AgentID != in.AgentID {
				continue
			}
			m := e.scoreHit(h, ev.Importance, ev.CreatedAt, ev.AccessedAt, now)
			m.Content = ev.Content
			result.Memories = append(result.Memories, m)
			touchEventIDs = append(touchEventIDs, ev.ID)

		case types.MemoryTypeEntity:
			ent, ok := entities[h.MemoryID]
			if !ok {
				e.warnOrphan(h)
				continue
			}
			m := e.scoreHit(h, ent.Importance, ent.CreatedAt, ent.AccessedAt, now)
			m.Content = entityRecallContent(ent)
			result.Memories = append(result.Memories, m)
			touchEntityIDs = append(touchEntityIDs, ent.ID)

		case types.MemoryTypeReflection:
			r, ok := reflections[h.MemoryID]
			if !ok {
				e.warnOrphan(h)
				continue
			}
			m := e.scoreHit(h, r.Importance, r.CreatedAt, r.AccessedAt, now)
			m.Content = r.Content
			result.Memories = append(result.Memories, m)
			touchReflectionIDs = append(touchReflectionIDs, r.ID)

		default:
			e.logger.Warn("unknown memory type in vector index",
				"memory_id", h.MemoryID, "memory_type", h.MemoryType)
		}
	}

	if !in.SkipTouch {
		e.touchScored(ctx, now, touchEventIDs, touchEntityIDs, touchReflectionIDs)
	}

	sort.SliceStable(result.Memories, func(i, j int) bool {
		return result.Memories[i].Score > result.Memories[j].Score
	})
	if len(result.Memories) > limit {
		result.Memories = result.Memories[:limit]
	}

	if !in.ExcludeCore {
		blocks, err := e.store.CoreBlocks(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load core memory: %w", err)
		}
		result.CoreMemory = blocks
	}
	return result, nil
}

// hydrate batch-loads the relational rows behind a mixed set of vector
// hits, one query per memory type.
func (e *Engine) hydrate(ctx context.Context, hits []vector.Record) (map[string]*types.Event, map[string]*types.Entity, map[string]*types.Reflection, error) {
	var eventIDs, entityIDs, reflectionIDs []string
	for _, h := range hits {
		switch h.MemoryType {
		case types.MemoryTypeEvent:
			eventIDs = append(eventIDs, h.MemoryID)
		case types.MemoryTypeEntity:
			entityIDs = append(entityIDs, h.MemoryID)
		case types.MemoryTypeReflection:
			reflectionIDs = append(reflectionIDs, h.MemoryID)
		}
	}

	events, err := e.store.EventsByIDs(ctx, eventIDs)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load events: %w", err)
	}
	entities, err := e.store.EntitiesByIDs(ctx, entityIDs)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load entities: %w", err)
	}
	reflections, err := e.store.ReflectionsByIDs(ctx, reflectionIDs)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load reflections: %w", err)
	}
	return events, entities, reflections, nil
}

// scoreHit computes the composite score of one vector hit. Recency decays
// exponentially per hour since the row was last accessed (or created, when
// never accessed); relevance maps L2 distance from [0, 2] onto [1, 0].
//
// The composite is a weighted sum. "recency × importance × relevance" is a
// shorthand that shows up in prose describing recall; it was never the
// formula, and a product would zero the score whenever any one signal does.
func (e *Engine) scoreHit(h vector.Record, importance float64, createdAt time.Time, accessedAt *time.Time, now time.Time) types.ScoredMemory {
	reference := createdAt
	if accessedAt != nil {
		reference = *accessedAt
	}
	hours := now.Sub(reference).Hours()
	if hours < 0 {
		hours = 0
	}

	recency := math.Pow(e.cfg.DecayRate, hours)
	relevance := clamp01(1 - h.Distance/2)
	imp := types.ClampImportance(importance)

	return types.ScoredMemory{
		ID:         h.MemoryID,
		MemoryType: h.MemoryType,
		Score:      e.cfg.WeightRecency*recency + e.cfg.WeightImportance*imp + e.cfg.WeightRelevance*relevance,
		Recency:    recency,
		Importance: imp,
		Relevance:  relevance,
		Distance:   h.Distance,
		CreatedAt:  createdAt,
	}
}

// touchScored bumps access tracking for every hydrated hit, one batch per
// memory type. Failures are logged; touches are advisory.
func (e *Engine) touchScored(ctx context.Context, now time.Time, eventIDs, entityIDs, reflectionIDs []string) {
	if len(eventIDs) > 0 {
		if err := e.store.TouchEvents(ctx, eventIDs, now); err != nil {
			e.logger.Warn("failed to touch events", "error", err)
		}
	}
	if len(entityIDs) > 0 {
		if err := e.store.TouchEntities(ctx, entityIDs, now); err != nil {
			e.logger.Warn("failed to touch entities", "error", err)
		}
	}
	if len(reflectionIDs) > 0 {
		if err := e.store.TouchReflections(ctx, reflectionIDs, now); err != nil {
			e.logger.Warn("failed to touch reflections", "error", err)
		}
	}
}

func (e *Engine) warnOrphan(h vector.Record) {
	e.logger.Warn("vector record has no relational row",
		"memory_id", h.MemoryID, "memory_type", h.MemoryType)
}

// entityRecallContent renders an entity hit as readable text: the name and
// type on the first line, the summary when present, then one line per
// observation.
func entityRecallContent(ent *types.Entity) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s)", ent.Name, ent.EntityType)
	if ent.Summary != nil && *ent.Summary != "" {
		sb.WriteString("\n")
		sb.WriteString(*ent.Summary)
	}
	for _, obs := range ent.Observations {
		sb.WriteString("\n- ")
		sb.WriteString(obs)
	}
	return sb.String()
}
