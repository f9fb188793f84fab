package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

const reflectionColumns = `id, content, source_ids, importance, depth, created_at, accessed_at, access_count`

// InsertReflection stores a new reflection row.
func (s *Store) InsertReflection(ctx context.Context, r *types.Reflection) error {
	if r == nil {
		return storage.ErrInvalidInput
	}
	if r.ID == "" {
		return fmt.Errorf("%w: reflection ID is required", storage.ErrInvalidInput)
	}
	if r.Content == "" {
		return fmt.Errorf("%w: reflection content is required", storage.ErrInvalidInput)
	}

	sourceJSON, err := marshalJSON(sliceOrEmpty(r.SourceIDs))
	if err != nil {
		return fmt.Errorf("failed to marshal source_ids: %w", err)
	}

	if r.CreatedAt.IsZero() {
		r.CreatedAt = nowTS()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reflections (id, content, source_ids, importance, depth, created_at, accessed_at, access_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Content, sourceJSON, r.Importance, r.Depth,
		formatTS(r.CreatedAt), nullableTS(r.AccessedAt), r.AccessCount,
	)
	if err != nil {
		return fmt.Errorf("failed to insert reflection: %w", err)
	}
	return nil
}

// ReflectionsByIDs batch-fetches reflections, returning a map keyed by id.
// An empty input returns an empty map without touching the database.
func (s *Store) ReflectionsByIDs(ctx context.Context, ids []string) (map[string]*types.Reflection, error) {
	out := make(map[string]*types.Reflection, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reflectionColumns+` FROM reflections WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reflections by ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		r, err := scanReflection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reflection: %w", err)
		}
		out[r.ID] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reflections: %w", err)
	}
	return out, nil
}

// TouchReflections marks the given reflections as accessed.
func (s *Store) TouchReflections(ctx context.Context, ids []string, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, formatTS(now))
	for _, id := range ids {
		args = append(args, id)
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE reflections SET accessed_at = ?, access_count = access_count + 1 WHERE id IN (`+placeholders(len(ids))+`)`,
		args...)
	if err != nil {
		return fmt.Errorf("failed to touch reflections: %w", err)
	}
	return nil
}

// ReflectionIDs lists every reflection id for the repair pass.
func (s *Store) ReflectionIDs(ctx context.Context) ([]string, error) {
	return s.idColumn(ctx, `SELECT id FROM reflections`)
}

func scanReflection(r rowScanner) (*types.Reflection, error) {
	var (
		refl       types.Reflection
		sourceIDs  sql.NullString
		createdAt  string
		accessedAt sql.NullString
	)
	if err := r.Scan(&refl.ID, &refl.Content, &sourceIDs, &refl.Importance,
		&refl.Depth, &createdAt, &accessedAt, &refl.AccessCount); err != nil {
		return nil, err
	}

	var err error
	if refl.SourceIDs, err = unmarshalStrings(sourceIDs); err != nil {
		return nil, fmt.Errorf("failed to parse source_ids: %w", err)
	}
	if refl.CreatedAt, err = parseTS(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if refl.AccessedAt, err = parseNullableTS(accessedAt); err != nil {
		return nil, fmt.Errorf("failed to parse accessed_at: %w", err)
	}
	return &refl, nil
}
