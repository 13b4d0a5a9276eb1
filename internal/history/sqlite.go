// Package history keeps a SQLite log of processed backup cycles. It records
// outcomes only; nothing here feeds back into the queue.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ledgerbak/internal/backup"
	"ledgerbak/internal/history/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Store is a SQLite-backed cycle log.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the history database at path and migrates
// it to the latest schema. path may be ":memory:".
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}

	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

// OpenConnection opens a SQLite connection configured for the history log.
// A single connection serialises writes and keeps ":memory:" databases
// coherent across calls.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return db, nil
}

// Path returns the database location.
func (s *Store) Path() string {
	return s.path
}

// RecordCycle inserts c. Recording the same cycle ID twice is an error.
func (s *Store) RecordCycle(ctx context.Context, c *backup.Cycle) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO backup_cycles
			(id, resource_path, destination_name, status, error, size_bytes, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ResourcePath, c.DestinationName, string(c.Status), c.Error, c.Size,
		c.StartedAt.UnixNano(), c.FinishedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("recording cycle %s: %w", c.ID, err)
	}
	return nil
}

// ListCycles returns up to limit cycles, most recent first. A non-positive
// limit returns all of them.
func (s *Store) ListCycles(ctx context.Context, limit int) ([]*backup.Cycle, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, resource_path, destination_name, status, error, size_bytes, started_at, finished_at
		FROM backup_cycles
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing cycles: %w", err)
	}
	defer rows.Close()

	var cycles []*backup.Cycle
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		cycles = append(cycles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing cycles: %w", err)
	}
	return cycles, nil
}

// LastSuccess returns the most recent successful cycle for resourcePath, or
// nil if there is none.
func (s *Store) LastSuccess(ctx context.Context, resourcePath string) (*backup.Cycle, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, resource_path, destination_name, status, error, size_bytes, started_at, finished_at
		FROM backup_cycles
		WHERE resource_path = ? AND status = ?
		ORDER BY finished_at DESC, rowid DESC
		LIMIT 1`, resourcePath, string(backup.CycleSuccess))

	c, err := scanCycle(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

// CheckStatus verifies the schema is current.
func (s *Store) CheckStatus() error {
	return migrations.CheckStatus(s.db)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCycle(row scanner) (*backup.Cycle, error) {
	var (
		c                 backup.Cycle
		status            string
		started, finished int64
	)
	err := row.Scan(&c.ID, &c.ResourcePath, &c.DestinationName, &status, &c.Error, &c.Size, &started, &finished)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("reading cycle: %w", err)
	}
	c.Status = backup.CycleStatus(status)
	c.StartedAt = time.Unix(0, started).UTC()
	c.FinishedAt = time.Unix(0, finished).UTC()
	return &c, nil
}

// Compile-time check that Store implements backup.Recorder
var _ backup.Recorder = (*Store)(nil)
