package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/scrypster/engram/internal/ids"
	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// RecordEventInput carries the caller-supplied fields of an episodic write.
// Importance is a pointer so "not provided" is distinguishable from zero;
// when nil, the importance scorer fills it in (or the default applies).
type RecordEventInput struct {
	AgentID    string
	EventType  types.EventType
	Content    string
	Importance *float64
	Entities   []string
	Metadata   map[string]interface{}
}

// SearchEventsInput narrows an episodic search. AgentID and Query are
// required; the rest are optional post-filters.
type SearchEventsInput struct {
	AgentID   string
	Query     string
	EventType types.EventType
	Entities  []string
	Start     *time.Time
	End       *time.Time
	Limit     int
}

// RecordEvent appends one event to the episodic log and indexes it for
// vector search. The relational row and the vector record succeed or fail
// together: if the vector write fails, the row is deleted before the error
// is returned.
func (e *Engine) RecordEvent(ctx context.Context, in RecordEventInput) (*types.Event, error) {
	ev := &types.Event{
		ID:        ids.New(),
		AgentID:   in.AgentID,
		EventType: in.EventType,
		Content:   in.Content,
		Entities:  in.Entities,
		Metadata:  in.Metadata,
		CreatedAt: e.now(),
	}
	if err := ev.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	ev.Importance = e.resolveImportance(ctx, in.Importance, in.Content)

	if err := e.store.InsertEvent(ctx, ev); err != nil {
		return nil, err
	}

	if err := e.indexEvent(ctx, ev); err != nil {
		if delErr := e.store.DeleteEvent(ctx, ev.ID); delErr != nil {
			e.logger.Error("failed to roll back event after index failure",
				"event_id", ev.ID, "error", delErr)
		}
		return nil, fmt.Errorf("failed to index event: %w", err)
	}
	return ev, nil
}

// StoreLearning records a distilled lesson as an observation event, tagged
// with an optional category in the metadata.
func (e *Engine) StoreLearning(ctx context.Context, agentID, content, category string) (*types.Event, error) {
	var metadata map[string]interface{}
	if category != "" {
		metadata = map[string]interface{}{"category": category}
	}
	return e.RecordEvent(ctx, RecordEventInput{
		AgentID:   agentID,
		EventType: types.EventTypeObservation,
		Content:   content,
		Metadata:  metadata,
	})
}

// GetEvent fetches a single event by id without touching access tracking.
func (e *Engine) GetEvent(ctx context.Context, id string) (*types.Event, error) {
	return e.store.GetEvent(ctx, id)
}

// Timeline lists events chronologically, newest first.
func (e *Engine) Timeline(ctx context.Context, opts storage.TimelineOptions) ([]*types.Event, error) {
	return e.store.Timeline(ctx, opts)
}

// SearchEvents runs a hybrid episodic search: vector hits and full-text
// hits are merged, hydrated from the relational store, post-filtered, and
// ordered by ascending vector distance. Rows found only by full text sort
// after every vector hit.
func (e *Engine) SearchEvents(ctx context.Context, in SearchEventsInput) ([]*types.Event, error) {
	if in.AgentID == "" {
		return nil, fmt.Errorf("%w: agent_id is required", storage.ErrInvalidInput)
	}
	if strings.TrimSpace(in.Query) == "" {
		return nil, fmt.Errorf("%w: query is required", storage.ErrInvalidInput)
	}
	if in.EventType != "" && !types.IsValidEventType(in.EventType) {
		return nil, fmt.Errorf("%w: invalid event_type %q", storage.ErrInvalidInput, in.EventType)
	}
	limit := in.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	// distances carries the merged candidate set; +Inf marks rows the
	// vector leg never saw.
	distances := make(map[string]float64)
	var order []string

	vec, err := e.embedder.Embed(ctx, in.Query)
	if err != nil {
		e.logger.Warn("query embedding failed, falling back to text search",
			"error", err)
	} else {
		hits, err := e.vectors.Search(ctx, vec, 2*limit, types.MemoryTypeEvent)
		if err != nil {
			return nil, fmt.Errorf("failed to search events: %w", err)
		}
		for _, h := range hits {
			if _, seen := distances[h.MemoryID]; !seen {
				distances[h.MemoryID] = h.Distance
				order = append(order, h.MemoryID)
			}
		}
	}

	textHits, err := e.store.SearchEventsFTS(ctx, in.Query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search events: %w", err)
	}
	for _, ev := range textHits {
		if _, seen := distances[ev.ID]; !seen {
			distances[ev.ID] = math.Inf(1)
			order = append(order, ev.ID)
		}
	}

	if len(order) == 0 {
		return nil, nil
	}

	rows, err := e.store.EventsByIDs(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}

	matched := make([]*types.Event, 0, len(order))
	for _, id := range order {
		ev, ok := rows[id]
		if !ok {
			e.logger.Warn("vector record has no event row", "memory_id", id)
			continue
		}
		if ev.AgentID != in.AgentID {
			continue
		}
		if in.EventType != "" && ev.EventType != in.EventType {
			continue
		}
		if !inWindow(ev.CreatedAt, in.Start, in.End) {
			continue
		}
		if !matchesEntities(ev.Entities, in.Entities) {
			continue
		}
		matched = append(matched, ev)
	}

	e.touchEvents(ctx, matched)

	sort.SliceStable(matched, func(i, j int) bool {
		return distances[matched[i].ID] < distances[matched[j].ID]
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// resolveImportance picks the importance of a new event: the caller's value
// clamped, otherwise the scorer's verdict, otherwise the default. A scorer
// failure is logged and falls through to the default.
func (e *Engine) resolveImportance(ctx context.Context, caller *float64, content string) float64 {
	if caller != nil {
		return types.ClampImportance(*caller)
	}
	if e.scorer != nil {
		score, err := e.scorer.Score(ctx, content)
		if err == nil {
			return score
		}
		e.logger.Warn("importance scoring failed, using default", "error", err)
	}
	return types.DefaultImportance
}

// indexEvent embeds the event content and writes the vector record.
func (e *Engine) indexEvent(ctx context.Context, ev *types.Event) error {
	vec, err := e.embedder.Embed(ctx, ev.Content)
	if err != nil {
		return fmt.Errorf("failed to embed event: %w", err)
	}
	return e.vectors.Add(ctx, ev.ID, types.MemoryTypeEvent, vec, ev.Content, ev.CreatedAt)
}

// touchEvents bumps access tracking for the given events. Touch failures
// are logged rather than surfaced; access tracking is advisory.
func (e *Engine) touchEvents(ctx context.Context, events []*types.Event) {
	if len(events) == 0 {
		return
	}
	eventIDs := make([]string, len(events))
	for i, ev := range events {
		eventIDs[i] = ev.ID
	}
	if err := e.store.TouchEvents(ctx, eventIDs, e.now()); err != nil {
		e.logger.Warn("failed to touch events", "error", err)
	}
}

// inWindow reports whether ts falls inside the inclusive [start, end]
// window. The comparison is lexicographic over the canonical timestamp
// format, which orders identically to chronological comparison.
func inWindow(ts time.Time, start, end *time.Time) bool {
	formatted := types.FormatTimestamp(ts)
	if start != nil && formatted < types.FormatTimestamp(*start) {
		return false
	}
	if end != nil && formatted > types.FormatTimestamp(*end) {
		return false
	}
	return true
}

// matchesEntities reports whether any requested entity name is a
// case-insensitive substring of any of the event's entities. An empty
// request matches everything.
func matchesEntities(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	for _, w := range want {
		lw := strings.ToLower(w)
		for _, h := range have {
			if strings.Contains(strings.ToLower(h), lw) {
				return true
			}
		}
	}
	return false
}
