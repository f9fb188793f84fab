package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/scrypster/engram/pkg/types"
)

// RepairResult reports what an integrity pass changed.
type RepairResult struct {
	OrphanVectorsDeleted int `json:"orphan_vectors_deleted"`
	VectorsRebuilt       int `json:"vectors_rebuilt"`
	RebuildFailures      int `json:"rebuild_failures"`
}

// Repair reconciles the vector index with the relational store. Vectors
// whose relational row is gone are deleted; rows whose vector is gone are
// re-embedded and re-indexed. Individual rebuild failures are counted and
// logged, not fatal.
func (e *Engine) Repair(ctx context.Context) (*RepairResult, error) {
	records, err := e.vectors.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list vectors: %w", err)
	}
	indexed := make(map[string]bool, len(records))
	for _, rec := range records {
		indexed[rec.MemoryID] = true
	}

	eventIDs, err := e.store.EventIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	entityIDs, err := e.store.EntityIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	reflectionIDs, err := e.store.ReflectionIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list reflections: %w", err)
	}

	known := make(map[string]bool, len(eventIDs)+len(entityIDs)+len(reflectionIDs))
	for _, id := range eventIDs {
		known[id] = true
	}
	for _, id := range entityIDs {
		known[id] = true
	}
	for _, id := range reflectionIDs {
		known[id] = true
	}

	result := &RepairResult{}

	for _, rec := range records {
		if known[rec.MemoryID] {
			continue
		}
		if err := e.vectors.Delete(ctx, rec.MemoryID); err != nil {
			e.logger.Warn("failed to delete orphan vector",
				"memory_id", rec.MemoryID, "error", err)
			continue
		}
		result.OrphanVectorsDeleted++
	}

	if err := e.rebuildEventVectors(ctx, missingFrom(eventIDs, indexed), result); err != nil {
		return result, err
	}
	if err := e.rebuildEntityVectors(ctx, missingFrom(entityIDs, indexed), result); err != nil {
		return result, err
	}
	if err := e.rebuildReflectionVectors(ctx, missingFrom(reflectionIDs, indexed), result); err != nil {
		return result, err
	}

	e.logger.Info("repair pass finished",
		"orphan_vectors_deleted", result.OrphanVectorsDeleted,
		"vectors_rebuilt", result.VectorsRebuilt,
		"rebuild_failures", result.RebuildFailures)
	return result, nil
}

func (e *Engine) rebuildEventVectors(ctx context.Context, missing []string, result *RepairResult) error {
	if len(missing) == 0 {
		return nil
	}
	rows, err := e.store.EventsByIDs(ctx, missing)
	if err != nil {
		return fmt.Errorf("failed to load events for repair: %w", err)
	}
	for _, id := range missing {
		ev, ok := rows[id]
		if !ok {
			continue
		}
		e.countRebuild(e.rebuildVector(ctx, ev.ID, types.MemoryTypeEvent, ev.Content, ev.CreatedAt), result)
	}
	return nil
}

func (e *Engine) rebuildEntityVectors(ctx context.Context, missing []string, result *RepairResult) error {
	if len(missing) == 0 {
		return nil
	}
	rows, err := e.store.EntitiesByIDs(ctx, missing)
	if err != nil {
		return fmt.Errorf("failed to load entities for repair: %w", err)
	}
	for _, id := range missing {
		ent, ok := rows[id]
		if !ok {
			continue
		}
		e.countRebuild(e.rebuildVector(ctx, ent.ID, types.MemoryTypeEntity, ent.EmbeddingText(), ent.CreatedAt), result)
	}
	return nil
}

func (e *Engine) rebuildReflectionVectors(ctx context.Context, missing []string, result *RepairResult) error {
	if len(missing) == 0 {
		return nil
	}
	rows, err := e.store.ReflectionsByIDs(ctx, missing)
	if err != nil {
		return fmt.Errorf("failed to load reflections for repair: %w", err)
	}
	for _, id := range missing {
		r, ok := rows[id]
		if !ok {
			continue
		}
		e.countRebuild(e.rebuildVector(ctx, r.ID, types.MemoryTypeReflection, r.Content, r.CreatedAt), result)
	}
	return nil
}

// rebuildVector embeds text and writes the vector record, reporting
// success.
func (e *Engine) rebuildVector(ctx context.Context, id string, memoryType types.MemoryType, text string, createdAt time.Time) bool {
	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		e.logger.Warn("failed to embed during repair", "memory_id", id, "error", err)
		return false
	}
	if err := e.vectors.Add(ctx, id, memoryType, vec, text, createdAt); err != nil {
		e.logger.Warn("failed to re-index during repair", "memory_id", id, "error", err)
		return false
	}
	return true
}

func (e *Engine) countRebuild(ok bool, result *RepairResult) {
	if ok {
		result.VectorsRebuilt++
	} else {
		result.RebuildFailures++
	}
}

// missingFrom returns the ids not present in the indexed set.
func missingFrom(rowIDs []string, indexed map[string]bool) []string {
	var missing []string
	for _, id := range rowIDs {
		if !indexed[id] {
			missing = append(missing, id)
		}
	}
	return missing
}
