// Package backup produces point-in-time snapshots of the engine's data
// directory: a VACUUM INTO copy of the relational database alongside a
// plain file copy of the vector index, written into a fresh timestamped
// directory.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Result describes one completed snapshot.
type Result struct {
	// Dir is the snapshot directory that was created.
	Dir string `json:"dir"`

	// DatabaseBytes is the size of the database copy.
	DatabaseBytes int64 `json:"database_bytes"`

	// VectorFiles is the number of vector index files copied.
	VectorFiles int `json:"vector_files"`

	// Duration is how long the snapshot took.
	Duration time.Duration `json:"duration"`
}

// Snapshot copies the database at dbPath and the vector index under
// vectorDir into a new timestamped directory inside outRoot. The database
// is copied with VACUUM INTO, which yields a consistent copy even while a
// WAL-mode writer is active, and the copy is integrity-checked before the
// snapshot is reported good. A missing vector directory is not an error:
// the index is rebuildable from the database.
func Snapshot(ctx context.Context, dbPath, vectorDir, outRoot string) (*Result, error) {
	start := time.Now()

	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("failed to locate source database: %w", err)
	}

	dir := filepath.Join(outRoot, "engram-"+start.UTC().Format("20060102-150405"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	dbCopy := filepath.Join(dir, "memory.db")
	if err := copyDatabase(ctx, dbPath, dbCopy); err != nil {
		return nil, err
	}
	if err := verifyDatabase(ctx, dbCopy); err != nil {
		return nil, err
	}
	info, err := os.Stat(dbCopy)
	if err != nil {
		return nil, fmt.Errorf("failed to stat database copy: %w", err)
	}

	copied, err := copyTree(vectorDir, filepath.Join(dir, "vectors"))
	if err != nil {
		return nil, err
	}

	return &Result{
		Dir:           dir,
		DatabaseBytes: info.Size(),
		VectorFiles:   copied,
		Duration:      time.Since(start),
	}, nil
}

// copyDatabase creates a consistent copy of a SQLite database. It uses
// VACUUM INTO over a read-only connection, which handles WAL mode
// correctly and compacts the copy as a side effect.
func copyDatabase(ctx context.Context, sourcePath, destPath string) error {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", sourcePath))
	if err != nil {
		return fmt.Errorf("failed to open source database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping source database: %w", err)
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", destPath)); err != nil {
		return fmt.Errorf("failed to copy database: %w", err)
	}
	return nil
}

// verifyDatabase runs SQLite's integrity_check pragma against a copy.
func verifyDatabase(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return fmt.Errorf("failed to open database copy: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("failed to run integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// copyTree copies every regular file under src into dst, preserving the
// directory layout, and reports how many files it copied. A nonexistent
// src yields zero files and no error.
func copyTree(src, dst string) (int, error) {
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return 0, nil
	}

	copied := 0
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if err := copyFile(path, target); err != nil {
			return err
		}
		copied++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to copy vector directory: %w", err)
	}
	return copied, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
