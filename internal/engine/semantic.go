package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// UpdateCoreMemory applies one operation to a core memory block. Append
// joins with a newline and keeps the leading characters on overflow;
// replace truncates the new content; remove deletes the row and returns an
// empty block echoing the key. Remove is idempotent.
func (e *Engine) UpdateCoreMemory(ctx context.Context, blockType types.BlockType, blockKey string, op types.CoreMemoryOp, content string) (*types.CoreMemoryBlock, error) {
	if !types.IsValidBlockType(blockType) {
		return nil, fmt.Errorf("%w: invalid block_type %q", storage.ErrInvalidInput, blockType)
	}
	if blockKey == "" {
		blockKey = types.DefaultBlockKey
	}

	switch op {
	case types.CoreMemoryAppend:
		existing := ""
		blk, err := e.store.CoreBlock(ctx, blockType, blockKey)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		if blk != nil {
			existing = blk.Content
		}
		merged := content
		if existing != "" {
			merged = existing + "\n" + content
		}
		return e.store.PutCoreBlock(ctx, blockType, blockKey, truncateChars(merged, types.MaxCoreMemoryChars))

	case types.CoreMemoryReplace:
		return e.store.PutCoreBlock(ctx, blockType, blockKey, truncateChars(content, types.MaxCoreMemoryChars))

	case types.CoreMemoryRemove:
		if err := e.store.DeleteCoreBlock(ctx, blockType, blockKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return &types.CoreMemoryBlock{BlockType: blockType, BlockKey: blockKey}, nil

	default:
		return nil, fmt.Errorf("%w: invalid operation %q", storage.ErrInvalidInput, op)
	}
}

// UpsertEntity creates or merges an entity, then rewrites its vector
// record. The relational write is the source of truth: an index failure
// after commit is logged, not surfaced, and the repair pass backfills it.
func (e *Engine) UpsertEntity(ctx context.Context, up storage.EntityUpsert) (*types.Entity, error) {
	ent, err := e.store.UpsertEntity(ctx, up)
	if err != nil {
		return nil, err
	}
	e.reindexEntity(ctx, ent)
	return ent, nil
}

// CreateRelation opens a relation between two named entities, closing any
// currently open row for the same triple.
func (e *Engine) CreateRelation(ctx context.Context, fromEntity, toEntity, relationType string) (*types.Relation, error) {
	return e.store.CreateRelation(ctx, fromEntity, toEntity, relationType)
}

// SearchKnowledge finds entities by vector similarity. The search is
// one-shot: an entity_type post-filter may return fewer than limit rows
// rather than widening the candidate set.
func (e *Engine) SearchKnowledge(ctx context.Context, query string, entityType types.EntityType, limit int) ([]*types.Entity, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is required", storage.ErrInvalidInput)
	}
	if entityType != "" && !types.IsValidEntityType(entityType) {
		return nil, fmt.Errorf("%w: invalid entity_type %q", storage.ErrInvalidInput, entityType)
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	hits, err := e.vectors.Search(ctx, vec, limit, types.MemoryTypeEntity)
	if err != nil {
		return nil, fmt.Errorf("failed to search entities: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	hitIDs := make([]string, len(hits))
	for i, h := range hits {
		hitIDs[i] = h.MemoryID
	}
	rows, err := e.store.EntitiesByIDs(ctx, hitIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load entities: %w", err)
	}

	matched := make([]*types.Entity, 0, len(hits))
	for _, h := range hits {
		ent, ok := rows[h.MemoryID]
		if !ok {
			e.logger.Warn("vector record has no entity row", "memory_id", h.MemoryID)
			continue
		}
		if entityType != "" && ent.EntityType != entityType {
			continue
		}
		matched = append(matched, ent)
	}

	e.touchEntities(ctx, matched)

	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// reindexEntity replaces the entity's vector record with one embedding its
// current name, summary, and observations. Failures are logged: the row is
// already committed and recall tolerates entities without vectors.
func (e *Engine) reindexEntity(ctx context.Context, ent *types.Entity) {
	text := ent.EmbeddingText()
	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		e.logger.Warn("failed to embed entity", "entity_id", ent.ID, "name", ent.Name, "error", err)
		return
	}
	if err := e.vectors.Delete(ctx, ent.ID); err != nil {
		e.logger.Warn("failed to drop stale entity vector", "entity_id", ent.ID, "error", err)
	}
	if err := e.vectors.Add(ctx, ent.ID, types.MemoryTypeEntity, vec, text, ent.CreatedAt); err != nil {
		e.logger.Warn("failed to index entity", "entity_id", ent.ID, "error", err)
	}
}

// touchEntities bumps access tracking, logging failures.
func (e *Engine) touchEntities(ctx context.Context, entities []*types.Entity) {
	if len(entities) == 0 {
		return
	}
	entityIDs := make([]string, len(entities))
	for i, ent := range entities {
		entityIDs[i] = ent.ID
	}
	if err := e.store.TouchEntities(ctx, entityIDs, e.now()); err != nil {
		e.logger.Warn("failed to touch entities", "error", err)
	}
}
