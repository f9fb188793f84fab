package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/scrypster/engram/internal/ids"
	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// CoreBlock fetches one core memory block by type and key.
func (s *Store) CoreBlock(ctx context.Context, blockType types.BlockType, blockKey string) (*types.CoreMemoryBlock, error) {
	if blockKey == "" {
		blockKey = types.DefaultBlockKey
	}

	block, err := scanCoreBlock(s.db.QueryRowContext(ctx, `
		SELECT id, block_type, block_key, content, updated_at
		FROM core_memory WHERE block_type = ? AND block_key = ?`,
		string(blockType), blockKey))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get core block: %w", err)
	}
	return block, nil
}

// CoreBlocks lists every core memory block, ordered by type then key.
func (s *Store) CoreBlocks(ctx context.Context) ([]types.CoreMemoryBlock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, block_type, block_key, content, updated_at
		FROM core_memory ORDER BY block_type, block_key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list core blocks: %w", err)
	}
	defer rows.Close()

	var out []types.CoreMemoryBlock
	for rows.Next() {
		block, err := scanCoreBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan core block: %w", err)
		}
		out = append(out, *block)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate core blocks: %w", err)
	}
	return out, nil
}

// PutCoreBlock writes a core memory block, replacing the content of an
// existing (block_type, block_key) row while keeping its id.
func (s *Store) PutCoreBlock(ctx context.Context, blockType types.BlockType, blockKey, content string) (*types.CoreMemoryBlock, error) {
	if !types.IsValidBlockType(blockType) {
		return nil, fmt.Errorf("%w: invalid block type %q", storage.ErrInvalidInput, blockType)
	}
	if blockKey == "" {
		blockKey = types.DefaultBlockKey
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO core_memory (id, block_type, block_key, content, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(block_type, block_key) DO UPDATE SET
			content = excluded.content,
			updated_at = excluded.updated_at`,
		ids.New(), string(blockType), blockKey, content, formatTS(nowTS()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to put core block: %w", err)
	}

	return s.CoreBlock(ctx, blockType, blockKey)
}

// DeleteCoreBlock removes a core memory block.
func (s *Store) DeleteCoreBlock(ctx context.Context, blockType types.BlockType, blockKey string) error {
	if blockKey == "" {
		blockKey = types.DefaultBlockKey
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM core_memory WHERE block_type = ? AND block_key = ?`,
		string(blockType), blockKey)
	if err != nil {
		return fmt.Errorf("failed to delete core block: %w", err)
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

func scanCoreBlock(r rowScanner) (*types.CoreMemoryBlock, error) {
	var (
		block     types.CoreMemoryBlock
		blockType string
		updatedAt string
	)
	if err := r.Scan(&block.ID, &blockType, &block.BlockKey, &block.Content, &updatedAt); err != nil {
		return nil, err
	}
	block.BlockType = types.BlockType(blockType)

	var err error
	if block.UpdatedAt, err = parseTS(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return &block, nil
}
