package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/scrypster/engram/pkg/types"
)

// Stats gathers row counts and the event time range in a single compound
// read. VectorCount is owned by the vector store and left zero here.
func (s *Store) Stats(ctx context.Context) (*types.MemoryStats, error) {
	var (
		stats  types.MemoryStats
		oldest sql.NullString
		newest sql.NullString
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM events),
			(SELECT COUNT(*) FROM entities),
			(SELECT COUNT(*) FROM relations),
			(SELECT COUNT(*) FROM relations WHERE valid_until IS NULL),
			(SELECT COUNT(*) FROM reflections),
			(SELECT COUNT(*) FROM core_memory),
			(SELECT MIN(created_at) FROM events),
			(SELECT MAX(created_at) FROM events)`,
	).Scan(
		&stats.EventCount, &stats.EntityCount, &stats.RelationCount,
		&stats.ActiveRelationCount, &stats.ReflectionCount, &stats.CoreBlockCount,
		&oldest, &newest,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}

	if stats.OldestEvent, err = parseNullableTS(oldest); err != nil {
		return nil, fmt.Errorf("failed to parse oldest event timestamp: %w", err)
	}
	if stats.NewestEvent, err = parseNullableTS(newest); err != nil {
		return nil, fmt.Errorf("failed to parse newest event timestamp: %w", err)
	}
	return &stats, nil
}
