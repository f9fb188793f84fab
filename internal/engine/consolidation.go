package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/scrypster/engram/internal/llm"
	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

const (
	// maxObservations is the per-entity observation cap enforced by
	// consolidation; the newest observations survive a prune.
	maxObservations = 20

	// summaryStaleAfter is the age past which an entity summary is
	// refreshed even when nothing else changed.
	summaryStaleAfter = 7 * 24 * time.Hour
)

// ConsolidationResult reports what one consolidation pass changed.
type ConsolidationResult struct {
	EntitiesUpdated    int `json:"entities_updated"`
	ObservationsPruned int `json:"observations_pruned"`
	SummariesRefreshed int `json:"summaries_refreshed"`
}

// Consolidate walks every entity, prunes observation overflow, and
// refreshes summaries that are missing, stale, or invalidated by a prune.
// Summary refresh needs the language model and is skipped without one;
// pruning always runs.
//
// TODO: maxAgeDays is accepted but unused. Age-based entity pruning needs
// a policy for relations that reference the pruned entity first.
func (e *Engine) Consolidate(ctx context.Context, maxAgeDays int) (*ConsolidationResult, error) {
	entities, err := e.store.ListEntities(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}

	result := &ConsolidationResult{}
	for _, ent := range entities {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		pruned := false
		if len(ent.Observations) > maxObservations {
			result.ObservationsPruned += len(ent.Observations) - maxObservations
			ent.Observations = ent.Observations[len(ent.Observations)-maxObservations:]
			pruned = true
		}

		refreshed := false
		if e.generator != nil && (pruned || ent.Summary == nil || e.now().Sub(ent.UpdatedAt) > summaryStaleAfter) {
			if summary := e.refreshSummary(ctx, ent); summary != "" {
				ent.Summary = &summary
				refreshed = true
				result.SummariesRefreshed++
			}
		}

		if !pruned && !refreshed {
			continue
		}

		ent.UpdatedAt = e.now()
		if err := e.store.SaveEntity(ctx, ent); err != nil {
			e.logger.Warn("failed to save consolidated entity",
				"entity_id", ent.ID, "name", ent.Name, "error", err)
			continue
		}
		e.reindexEntity(ctx, ent)
		result.EntitiesUpdated++
	}

	if err := e.store.SetState(ctx, storage.StateLastConsolidationAt, types.FormatTimestamp(e.now())); err != nil {
		return result, fmt.Errorf("failed to record consolidation time: %w", err)
	}

	e.logger.Info("consolidation pass finished",
		"entities_updated", result.EntitiesUpdated,
		"observations_pruned", result.ObservationsPruned,
		"summaries_refreshed", result.SummariesRefreshed)
	return result, nil
}

// refreshSummary asks the language model for a fresh one-or-two sentence
// summary of the entity. Failures are logged and leave the summary alone.
func (e *Engine) refreshSummary(ctx context.Context, ent *types.Entity) string {
	relations, err := e.store.RelationsForEntity(ctx, ent.ID, true)
	if err != nil {
		e.logger.Warn("failed to load relations for summary",
			"entity_id", ent.ID, "error", err)
		relations = nil
	}
	lines := make([]string, 0, len(relations))
	for _, rel := range relations {
		lines = append(lines, fmt.Sprintf("%s %s %s", rel.FromEntity, rel.RelationType, rel.ToEntity))
	}

	resp, err := e.generator.Complete(ctx, llm.EntitySummaryPrompt(ent.Name, string(ent.EntityType), ent.Observations, lines))
	if err != nil {
		e.logger.Warn("failed to refresh entity summary",
			"entity", ent.Name, "error", err)
		return ""
	}
	return llm.ParseSummary(resp)
}
