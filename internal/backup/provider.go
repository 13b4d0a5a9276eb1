package backup

import (
	"context"
	"io"
)

// StorageProvider persists snapshot streams to a local or remote target.
// The worker guarantees at most one in-flight Store call, so implementations
// need no internal concurrency control for that path.
type StorageProvider interface {
	// Store reads r to EOF and writes it to the target under name.
	// It returns only once the bytes are durably written. Errors wrap
	// ErrStorageUnavailable.
	Store(ctx context.Context, r io.Reader, name string) error

	// ValidateSetup verifies that the target is reachable and writable.
	ValidateSetup(ctx context.Context) error
}

// Snapshotter produces a consistent point-in-time copy of a live database.
type Snapshotter interface {
	// Snapshot copies sourcePath into a new local file and returns its path.
	// The file name follows BackupName. A missing or unreadable source wraps
	// ErrResourceUnavailable; an unwritable work directory wraps
	// ErrStorageUnavailable. No output file is left behind on error or panic;
	// snapshotters that also implement WorkDir() string get a second sweep
	// from the worker after a panic.
	Snapshot(ctx context.Context, sourcePath string) (string, error)
}

// Recorder keeps a record of finished cycles.
type Recorder interface {
	RecordCycle(ctx context.Context, c *Cycle) error
}

// NopRecorder discards cycles.
type NopRecorder struct{}

func (NopRecorder) RecordCycle(context.Context, *Cycle) error { return nil }
