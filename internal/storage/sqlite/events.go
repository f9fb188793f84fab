package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// defaultUnreflectedLimit caps how many events one reflection cycle reads.
const defaultUnreflectedLimit = 500

const eventColumns = `id, agent_id, event_type, content, importance, entities, metadata, created_at, accessed_at, access_count`

// InsertEvent stores a new event row.
func (s *Store) InsertEvent(ctx context.Context, ev *types.Event) error {
	if ev == nil {
		return storage.ErrInvalidInput
	}
	if ev.ID == "" {
		return fmt.Errorf("%w: event ID is required", storage.ErrInvalidInput)
	}
	if err := ev.Validate(); err != nil {
		return err
	}

	entitiesJSON, err := marshalStrings(ev.Entities)
	if err != nil {
		return fmt.Errorf("failed to marshal entities: %w", err)
	}
	metadataJSON, err := marshalJSON(mapOrNil(ev.Metadata))
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = nowTS()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (id, agent_id, event_type, content, importance, entities, metadata, created_at, accessed_at, access_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.AgentID, string(ev.EventType), ev.Content, ev.Importance,
		entitiesJSON, metadataJSON, formatTS(ev.CreatedAt), nullableTS(ev.AccessedAt), ev.AccessCount,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// GetEvent fetches a single event by id.
func (s *Store) GetEvent(ctx context.Context, id string) (*types.Event, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: event ID is required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return ev, nil
}

// EventsByIDs batch-fetches events, returning a map keyed by id. Ids with
// no matching row are simply absent from the map. An empty input returns an
// empty map without touching the database.
func (s *Store) EventsByIDs(ctx context.Context, ids []string) (map[string]*types.Event, error) {
	out := make(map[string]*types.Event, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events by ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		out[ev.ID] = ev
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return out, nil
}

// SearchEventsFTS runs a full-text query over event content and returns up
// to limit events ordered by match rank (best first). It fails soft: a
// malformed MATCH expression (unbalanced quote, stray operator) yields an
// empty result and a warning log, never an error to the caller.
func (s *Store) SearchEventsFTS(ctx context.Context, query string, limit int) ([]*types.Event, error) {
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+prefixedEventColumns("e")+`
		FROM events_fts f
		JOIN events e ON e.rowid = f.rowid
		WHERE events_fts MATCH ?
		ORDER BY rank
		LIMIT ?`, query, limit)
	if err != nil {
		slog.Warn("full-text search failed, returning no matches", "query", query, "error", err)
		return nil, nil
	}
	defer rows.Close()

	var out []*types.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate full-text matches: %w", err)
	}
	return out, nil
}

// Timeline lists an agent's events in reverse chronological order, with an
// optional event type filter and created_at window.
func (s *Store) Timeline(ctx context.Context, opts storage.TimelineOptions) ([]*types.Event, error) {
	if opts.AgentID == "" {
		return nil, fmt.Errorf("%w: agent_id is required", storage.ErrInvalidInput)
	}
	opts.Normalize()

	query := `SELECT ` + eventColumns + ` FROM events WHERE agent_id = ?`
	args := []any{opts.AgentID}

	if opts.EventType != "" {
		query += ` AND event_type = ?`
		args = append(args, string(opts.EventType))
	}
	if opts.Start != nil {
		query += ` AND created_at >= ?`
		args = append(args, formatTS(*opts.Start))
	}
	if opts.End != nil {
		query += ` AND created_at <= ?`
		args = append(args, formatTS(*opts.End))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, opts.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query timeline: %w", err)
	}
	defer rows.Close()

	var out []*types.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate timeline: %w", err)
	}
	return out, nil
}

// TouchEvents marks the given events as accessed: accessed_at := now and
// access_count incremented. created_at and content are never modified.
func (s *Store) TouchEvents(ctx context.Context, ids []string, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, formatTS(now))
	for _, id := range ids {
		args = append(args, id)
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE events SET accessed_at = ?, access_count = access_count + 1 WHERE id IN (`+placeholders(len(ids))+`)`,
		args...)
	if err != nil {
		return fmt.Errorf("failed to touch events: %w", err)
	}
	return nil
}

// DeleteEvent hard-deletes an event row. The delete trigger keeps the
// full-text index in sync.
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: event ID is required", storage.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
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

// UnreflectedEvents returns the agent's events created strictly after the
// last_reflected_at watermark, newest first. A limit <= 0 uses the default
// cap of 500.
func (s *Store) UnreflectedEvents(ctx context.Context, agentID string, limit int) ([]*types.Event, error) {
	if agentID == "" {
		return nil, fmt.Errorf("%w: agent_id is required", storage.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = defaultUnreflectedLimit
	}

	watermark, err := s.State(ctx, storage.StateLastReflectedAtPrefix+agentID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	query := `SELECT ` + eventColumns + ` FROM events WHERE agent_id = ?`
	args := []any{agentID}
	if watermark != "" {
		query += ` AND created_at > ?`
		args = append(args, watermark)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query unreflected events: %w", err)
	}
	defer rows.Close()

	var out []*types.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate unreflected events: %w", err)
	}
	return out, nil
}

// EventIDs lists every event id. Used by the repair pass to detect vectors
// whose relational row is gone.
func (s *Store) EventIDs(ctx context.Context) ([]string, error) {
	return s.idColumn(ctx, `SELECT id FROM events`)
}

// idColumn collects a single-column id query into a slice.
func (s *Store) idColumn(ctx context.Context, query string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list ids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ids: %w", err)
	}
	return out, nil
}

func scanEvent(r rowScanner) (*types.Event, error) {
	var (
		ev         types.Event
		eventType  string
		entities   sql.NullString
		metadata   sql.NullString
		createdAt  string
		accessedAt sql.NullString
	)
	if err := r.Scan(&ev.ID, &ev.AgentID, &eventType, &ev.Content, &ev.Importance,
		&entities, &metadata, &createdAt, &accessedAt, &ev.AccessCount); err != nil {
		return nil, err
	}

	ev.EventType = types.EventType(eventType)

	var err error
	if ev.Entities, err = unmarshalStrings(entities); err != nil {
		return nil, fmt.Errorf("failed to parse entities: %w", err)
	}
	if ev.Metadata, err = unmarshalMap(metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if ev.CreatedAt, err = parseTS(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if ev.AccessedAt, err = parseNullableTS(accessedAt); err != nil {
		return nil, fmt.Errorf("failed to parse accessed_at: %w", err)
	}
	return &ev, nil
}

// prefixedEventColumns qualifies the event column list with a table alias.
func prefixedEventColumns(alias string) string {
	return alias + `.id, ` + alias + `.agent_id, ` + alias + `.event_type, ` + alias + `.content, ` +
		alias + `.importance, ` + alias + `.entities, ` + alias + `.metadata, ` + alias + `.created_at, ` +
		alias + `.accessed_at, ` + alias + `.access_count`
}

// mapOrNil converts an empty map to nil so it stores as NULL.
func mapOrNil(m map[string]interface{}) any {
	if len(m) == 0 {
		return nil
	}
	return m
}
