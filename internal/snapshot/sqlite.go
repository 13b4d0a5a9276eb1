package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"ledgerbak/internal/backup"
)

// Method selects how a snapshot is taken.
type Method string

const (
	// MethodOnline copies pages with the SQLite online backup API, a bounded
	// number of pages at a time. Writers are not blocked for the whole copy.
	MethodOnline Method = "online"

	// MethodVacuum runs a single VACUUM INTO. The output is compacted but the
	// source holds a read transaction for the duration.
	MethodVacuum Method = "vacuum"
)

const (
	defaultPagesPerStep = 256
	defaultStepPause    = 10 * time.Millisecond
	busyTimeoutMillis   = 5000
)

// ParseMethod maps a config value to a Method. Empty means MethodOnline.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(s) {
	case "", string(MethodOnline):
		return MethodOnline, nil
	case string(MethodVacuum):
		return MethodVacuum, nil
	default:
		return "", fmt.Errorf("unknown snapshot method: %s", s)
	}
}

// SQLiteSnapshotter copies live SQLite databases into a work directory.
type SQLiteSnapshotter struct {
	workDir      string
	method       Method
	clock        backup.Clock
	pagesPerStep int
	stepPause    time.Duration
}

// Option configures a SQLiteSnapshotter.
type Option func(*SQLiteSnapshotter)

// WithPagesPerStep sets how many pages one online backup step copies.
func WithPagesPerStep(n int) Option {
	return func(s *SQLiteSnapshotter) {
		if n > 0 {
			s.pagesPerStep = n
		}
	}
}

// WithStepPause sets the pause between online backup steps.
func WithStepPause(d time.Duration) Option {
	return func(s *SQLiteSnapshotter) {
		if d >= 0 {
			s.stepPause = d
		}
	}
}

// NewSQLiteSnapshotter creates a snapshotter writing into workDir.
func NewSQLiteSnapshotter(workDir string, method Method, clock backup.Clock, opts ...Option) *SQLiteSnapshotter {
	if method == "" {
		method = MethodOnline
	}
	s := &SQLiteSnapshotter{
		workDir:      workDir,
		method:       method,
		clock:        clock,
		pagesPerStep: defaultPagesPerStep,
		stepPause:    defaultStepPause,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WorkDir returns the directory snapshots are written to.
func (s *SQLiteSnapshotter) WorkDir() string {
	return s.workDir
}

// Method returns the configured snapshot method.
func (s *SQLiteSnapshotter) Method() Method {
	return s.method
}

// Snapshot copies sourcePath to <workDir>/<BackupName> and returns the path.
func (s *SQLiteSnapshotter) Snapshot(ctx context.Context, sourcePath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	info, err := os.Stat(sourcePath)
	if err != nil {
		return "", fmt.Errorf("%w: %w", backup.ErrResourceUnavailable, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s is not a regular file", backup.ErrResourceUnavailable, sourcePath)
	}

	if err := os.MkdirAll(s.workDir, 0700); err != nil {
		return "", fmt.Errorf("%w: creating work directory: %w", backup.ErrStorageUnavailable, err)
	}

	dest := filepath.Join(s.workDir, backup.BackupName(sourcePath, s.clock.Now()))
	// Leftover from an interrupted run with the same name.
	removeOutput(dest)

	done := false
	defer func() {
		if !done {
			removeOutput(dest)
		}
	}()

	switch s.method {
	case MethodVacuum:
		err = s.vacuumInto(ctx, sourcePath, dest)
	default:
		err = s.onlineBackup(ctx, sourcePath, dest)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", err
	}
	done = true
	return dest, nil
}

func (s *SQLiteSnapshotter) onlineBackup(ctx context.Context, sourcePath, dest string) error {
	srcDB, err := sql.Open("sqlite3", sourceDSN(sourcePath))
	if err != nil {
		return fmt.Errorf("%w: opening source: %w", backup.ErrResourceUnavailable, err)
	}
	defer srcDB.Close()

	destDB, err := sql.Open("sqlite3", dest)
	if err != nil {
		return fmt.Errorf("%w: opening snapshot file: %w", backup.ErrStorageUnavailable, err)
	}
	defer destDB.Close()

	srcConn, err := srcDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("%w: opening source: %w", backup.ErrResourceUnavailable, err)
	}
	defer srcConn.Close()

	destConn, err := destDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("%w: opening snapshot file: %w", backup.ErrStorageUnavailable, err)
	}
	defer destConn.Close()

	return destConn.Raw(func(destRaw any) error {
		return srcConn.Raw(func(srcRaw any) error {
			destSQLite, ok := destRaw.(*sqlite3.SQLiteConn)
			if !ok {
				return fmt.Errorf("unexpected driver connection %T", destRaw)
			}
			srcSQLite, ok := srcRaw.(*sqlite3.SQLiteConn)
			if !ok {
				return fmt.Errorf("unexpected driver connection %T", srcRaw)
			}

			b, err := destSQLite.Backup("main", srcSQLite, "main")
			if err != nil {
				return classify("starting backup", err)
			}
			return s.copyPages(ctx, b)
		})
	})
}

// copyPages steps b to completion. Busy and locked sources make Step report
// neither progress nor error; the loop simply retries after the pause.
func (s *SQLiteSnapshotter) copyPages(ctx context.Context, b *sqlite3.SQLiteBackup) error {
	finished := false
	defer func() {
		if !finished {
			b.Finish()
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		done, err := b.Step(s.pagesPerStep)
		if err != nil {
			return classify("copying pages", err)
		}
		if done {
			break
		}

		if s.stepPause > 0 {
			t := time.NewTimer(s.stepPause)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
	}

	finished = true
	if err := b.Finish(); err != nil {
		return classify("finishing backup", err)
	}
	return nil
}

func (s *SQLiteSnapshotter) vacuumInto(ctx context.Context, sourcePath, dest string) error {
	db, err := sql.Open("sqlite3", sourceDSN(sourcePath))
	if err != nil {
		return fmt.Errorf("%w: opening source: %w", backup.ErrResourceUnavailable, err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return classify("vacuum into", err)
	}
	return nil
}

// sourceDSN opens the source read-only with a busy timeout, as a URI so that
// unusual characters in the path survive.
func sourceDSN(path string) string {
	escaped := strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23").Replace(path)
	return fmt.Sprintf("file:%s?mode=ro&_busy_timeout=%d", escaped, busyTimeoutMillis)
}

// classify attributes a SQLite error to the snapshot file side (storage) or
// the source side (resource).
func classify(op string, err error) error {
	code, ok := sqliteCode(err)
	if ok {
		switch code {
		case sqlite3.ErrCantOpen, sqlite3.ErrReadonly, sqlite3.ErrFull, sqlite3.ErrIoErr, sqlite3.ErrPerm:
			return fmt.Errorf("%w: %s: %w", backup.ErrStorageUnavailable, op, err)
		}
	}
	return fmt.Errorf("%w: %s: %w", backup.ErrResourceUnavailable, op, err)
}

func sqliteCode(err error) (sqlite3.ErrNo, bool) {
	var e sqlite3.Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	var pe *sqlite3.Error
	if errors.As(err, &pe) && pe != nil {
		return pe.Code, true
	}
	return 0, false
}

// removeOutput deletes a snapshot file and any journal files SQLite left
// next to it.
func removeOutput(path string) {
	for _, suffix := range []string{"", "-journal", "-wal", "-shm"} {
		os.Remove(path + suffix)
	}
}

var _ backup.Snapshotter = (*SQLiteSnapshotter)(nil)
