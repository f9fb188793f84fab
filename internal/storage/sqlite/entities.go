package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/scrypster/engram/internal/ids"
	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

const entityColumns = `id, name, entity_type, summary, observations, importance, created_at, updated_at, accessed_at, access_count`

// UpsertEntity writes an entity keyed by name inside a single transaction.
// When the name already exists (case-insensitively), observations are merged
// as an order-preserving deduplicated union, summary and importance fall
// back to the existing values when not provided, and created_at, accessed_at
// and access_count are preserved. The returned entity is the stored row.
func (s *Store) UpsertEntity(ctx context.Context, up storage.EntityUpsert) (*types.Entity, error) {
	if up.Name == "" {
		return nil, fmt.Errorf("%w: entity name is required", storage.ErrInvalidInput)
	}
	if !types.IsValidEntityType(up.EntityType) {
		return nil, fmt.Errorf("%w: invalid entity type %q", storage.ErrInvalidInput, up.EntityType)
	}

	now := nowTS()
	var result *types.Entity

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		existing, err := scanEntity(tx.QueryRowContext(ctx,
			`SELECT `+entityColumns+` FROM entities WHERE name = ?`, up.Name))
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to look up entity: %w", err)
		}

		if existing == nil {
			ent := &types.Entity{
				ID:           ids.New(),
				Name:         up.Name,
				EntityType:   up.EntityType,
				Summary:      up.Summary,
				Observations: dedupeStrings(up.Observations),
				Importance:   types.DefaultImportance,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if up.Importance != nil {
				ent.Importance = types.ClampImportance(*up.Importance)
			}

			obsJSON, err := marshalJSON(sliceOrEmpty(ent.Observations))
			if err != nil {
				return fmt.Errorf("failed to marshal observations: %w", err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO entities (id, name, entity_type, summary, observations, importance, created_at, updated_at, accessed_at, access_count)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, 0)`,
				ent.ID, ent.Name, string(ent.EntityType), nullableString(ent.Summary),
				obsJSON, ent.Importance, formatTS(ent.CreatedAt), formatTS(ent.UpdatedAt),
			)
			if err != nil {
				return fmt.Errorf("failed to insert entity: %w", err)
			}
			result = ent
			return nil
		}

		// Merge into the existing row. The stored name wins so repeated
		// upserts with different casing stay stable.
		existing.EntityType = up.EntityType
		existing.Observations = mergeObservations(existing.Observations, up.Observations)
		if up.Summary != nil {
			existing.Summary = up.Summary
		}
		if up.Importance != nil {
			existing.Importance = types.ClampImportance(*up.Importance)
		}
		existing.UpdatedAt = now

		obsJSON, err := marshalJSON(sliceOrEmpty(existing.Observations))
		if err != nil {
			return fmt.Errorf("failed to marshal observations: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE entities
			SET entity_type = ?, summary = ?, observations = ?, importance = ?, updated_at = ?
			WHERE id = ?`,
			string(existing.EntityType), nullableString(existing.Summary), obsJSON,
			existing.Importance, formatTS(existing.UpdatedAt), existing.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update entity: %w", err)
		}
		result = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SaveEntity rewrites the mutable columns of an existing entity row. Access
// tracking and created_at are left untouched. Used by consolidation after
// pruning observations or refreshing the summary.
func (s *Store) SaveEntity(ctx context.Context, ent *types.Entity) error {
	if ent == nil || ent.ID == "" {
		return fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}

	obsJSON, err := marshalJSON(sliceOrEmpty(ent.Observations))
	if err != nil {
		return fmt.Errorf("failed to marshal observations: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE entities
		SET entity_type = ?, summary = ?, observations = ?, importance = ?, updated_at = ?
		WHERE id = ?`,
		string(ent.EntityType), nullableString(ent.Summary), obsJSON,
		ent.Importance, formatTS(ent.UpdatedAt), ent.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to save entity: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// EntityByName fetches an entity by name, case-insensitively.
func (s *Store) EntityByName(ctx context.Context, name string) (*types.Entity, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: entity name is required", storage.ErrInvalidInput)
	}

	ent, err := scanEntity(s.db.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	return ent, nil
}

// EntitiesByIDs batch-fetches entities, returning a map keyed by id. An
// empty input returns an empty map without touching the database.
func (s *Store) EntitiesByIDs(ctx context.Context, ids []string) (map[string]*types.Entity, error) {
	out := make(map[string]*types.Entity, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities by ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		ent, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		out[ent.ID] = ent
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entities: %w", err)
	}
	return out, nil
}

// ListEntities returns every entity ordered by name. Consolidation walks
// this list; entity counts stay small enough that paging is not worth it.
func (s *Store) ListEntities(ctx context.Context) ([]*types.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+entityColumns+` FROM entities ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer rows.Close()

	var out []*types.Entity
	for rows.Next() {
		ent, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		out = append(out, ent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entities: %w", err)
	}
	return out, nil
}

// TouchEntities marks the given entities as accessed. updated_at is
// deliberately not modified; it tracks content changes only.
func (s *Store) TouchEntities(ctx context.Context, ids []string, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, formatTS(now))
	for _, id := range ids {
		args = append(args, id)
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE entities SET accessed_at = ?, access_count = access_count + 1 WHERE id IN (`+placeholders(len(ids))+`)`,
		args...)
	if err != nil {
		return fmt.Errorf("failed to touch entities: %w", err)
	}
	return nil
}

// EntityIDs lists every entity id for the repair pass.
func (s *Store) EntityIDs(ctx context.Context) ([]string, error) {
	return s.idColumn(ctx, `SELECT id FROM entities`)
}

func scanEntity(r rowScanner) (*types.Entity, error) {
	var (
		ent          types.Entity
		entityType   string
		summary      sql.NullString
		observations sql.NullString
		createdAt    string
		updatedAt    string
		accessedAt   sql.NullString
	)
	if err := r.Scan(&ent.ID, &ent.Name, &entityType, &summary, &observations,
		&ent.Importance, &createdAt, &updatedAt, &accessedAt, &ent.AccessCount); err != nil {
		return nil, err
	}

	ent.EntityType = types.EntityType(entityType)
	if summary.Valid {
		ent.Summary = &summary.String
	}

	var err error
	if ent.Observations, err = unmarshalStrings(observations); err != nil {
		return nil, fmt.Errorf("failed to parse observations: %w", err)
	}
	if ent.CreatedAt, err = parseTS(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if ent.UpdatedAt, err = parseTS(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	if ent.AccessedAt, err = parseNullableTS(accessedAt); err != nil {
		return nil, fmt.Errorf("failed to parse accessed_at: %w", err)
	}
	return &ent, nil
}

// mergeObservations unions existing and incoming observations, preserving
// first-seen order and dropping duplicates.
func mergeObservations(existing, incoming []string) []string {
	merged := make([]string, 0, len(existing)+len(incoming))
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	for _, obs := range existing {
		if _, ok := seen[obs]; ok {
			continue
		}
		seen[obs] = struct{}{}
		merged = append(merged, obs)
	}
	for _, obs := range incoming {
		if _, ok := seen[obs]; ok {
			continue
		}
		seen[obs] = struct{}{}
		merged = append(merged, obs)
	}
	return merged
}

// dedupeStrings removes duplicates preserving first-seen order.
func dedupeStrings(vals []string) []string {
	return mergeObservations(nil, vals)
}

// sliceOrEmpty keeps observations non-NULL in the schema: nil becomes [].
func sliceOrEmpty(vals []string) []string {
	if vals == nil {
		return []string{}
	}
	return vals
}
