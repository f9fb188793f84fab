package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqlitedriver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/scrypster/engram/internal/ids"
	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// CreateRelation records a directed relation between two named entities.
// Any currently-open row for the same (from, to, type) triple is closed by
// setting valid_until, then a fresh row is inserted with valid_from := now.
// Both writes happen in one transaction, so at most one open row exists per
// triple at any time. A missing endpoint yields ErrEntityNotFound naming
// the first missing name.
func (s *Store) CreateRelation(ctx context.Context, fromName, toName, relationType string) (*types.Relation, error) {
	if fromName == "" || toName == "" {
		return nil, fmt.Errorf("%w: both entity names are required", storage.ErrInvalidInput)
	}
	if relationType == "" {
		return nil, fmt.Errorf("%w: relation_type is required", storage.ErrInvalidInput)
	}

	now := nowTS()
	var result *types.Relation

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		fromID, fromStored, err := resolveEntity(ctx, tx, fromName)
		if err != nil {
			return err
		}
		toID, toStored, err := resolveEntity(ctx, tx, toName)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE relations SET valid_until = ?
			WHERE from_entity = ? AND to_entity = ? AND relation_type = ? AND valid_until IS NULL`,
			formatTS(now), fromID, toID, relationType,
		)
		if err != nil {
			return fmt.Errorf("failed to close open relation: %w", err)
		}

		rel := &types.Relation{
			ID:           ids.New(),
			FromEntity:   fromStored,
			ToEntity:     toStored,
			RelationType: relationType,
			Weight:       1.0,
			ValidFrom:    now,
			CreatedAt:    now,
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO relations (id, from_entity, to_entity, relation_type, weight, valid_from, valid_until, metadata, created_at)
			VALUES (?, ?, ?, ?, ?, ?, NULL, NULL, ?)`,
			rel.ID, fromID, toID, rel.RelationType, rel.Weight, formatTS(rel.ValidFrom), formatTS(rel.CreatedAt),
		)
		if err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("%w: %s", storage.ErrEntityNotFound, fromName)
			}
			return fmt.Errorf("failed to insert relation: %w", err)
		}
		result = rel
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RelationsForEntity lists relations where the entity is either endpoint,
// newest first, with endpoint ids resolved back to names. With activeOnly,
// only open rows (valid_until IS NULL) are returned.
func (s *Store) RelationsForEntity(ctx context.Context, entityID string, activeOnly bool) ([]*types.Relation, error) {
	if entityID == "" {
		return nil, fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}

	query := `
		SELECT r.id, ef.name, et.name, r.relation_type, r.weight, r.valid_from, r.valid_until, r.metadata, r.created_at
		FROM relations r
		JOIN entities ef ON ef.id = r.from_entity
		JOIN entities et ON et.id = r.to_entity
		WHERE (r.from_entity = ? OR r.to_entity = ?)`
	if activeOnly {
		query += ` AND r.valid_until IS NULL`
	}
	query += ` ORDER BY r.created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, entityID, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query relations: %w", err)
	}
	defer rows.Close()

	var out []*types.Relation
	for rows.Next() {
		rel, err := scanRelation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan relation: %w", err)
		}
		out = append(out, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate relations: %w", err)
	}
	return out, nil
}

// resolveEntity maps a name to its id inside a transaction, returning the
// stored (canonical) name alongside.
func resolveEntity(ctx context.Context, tx *sql.Tx, name string) (id, storedName string, err error) {
	err = tx.QueryRowContext(ctx, `SELECT id, name FROM entities WHERE name = ?`, name).Scan(&id, &storedName)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", fmt.Errorf("%w: %s", storage.ErrEntityNotFound, name)
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve entity %q: %w", name, err)
	}
	return id, storedName, nil
}

func scanRelation(r rowScanner) (*types.Relation, error) {
	var (
		rel        types.Relation
		validFrom  string
		validUntil sql.NullString
		metadata   sql.NullString
		createdAt  string
	)
	if err := r.Scan(&rel.ID, &rel.FromEntity, &rel.ToEntity, &rel.RelationType,
		&rel.Weight, &validFrom, &validUntil, &metadata, &createdAt); err != nil {
		return nil, err
	}

	var err error
	if rel.ValidFrom, err = parseTS(validFrom); err != nil {
		return nil, fmt.Errorf("failed to parse valid_from: %w", err)
	}
	if rel.ValidUntil, err = parseNullableTS(validUntil); err != nil {
		return nil, fmt.Errorf("failed to parse valid_until: %w", err)
	}
	if rel.Metadata, err = unmarshalMap(metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if rel.CreatedAt, err = parseTS(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	return &rel, nil
}

// isForeignKeyViolation reports whether err is a SQLite foreign-key
// constraint failure.
func isForeignKeyViolation(err error) bool {
	var se *sqlitedriver.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
	}
	return false
}
