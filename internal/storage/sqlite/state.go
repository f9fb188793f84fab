package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/scrypster/engram/internal/storage"
)

// State reads a value from the state table. Missing keys return
// storage.ErrNotFound.
func (s *Store) State(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: state key is required", storage.ErrInvalidInput)
	}

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get state %q: %w", key, err)
	}
	return value, nil
}

// SetState writes a key/value pair to the state table, replacing any
// previous value.
func (s *Store) SetState(ctx context.Context, key, value string) error {
	if key == "" {
		return fmt.Errorf("%w: state key is required", storage.ErrInvalidInput)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		key, value, formatTS(nowTS()),
	)
	if err != nil {
		return fmt.Errorf("failed to set state %q: %w", key, err)
	}
	return nil
}
