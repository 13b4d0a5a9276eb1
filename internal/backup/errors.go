package backup

import "errors"

// Error classes used across the pipeline. Callers wrap them with fmt.Errorf
// and classify with errors.Is.
var (
	// ErrResourceUnavailable means the source database could not be read at
	// snapshot time (missing, locked beyond recovery, unreadable).
	ErrResourceUnavailable = errors.New("resource unavailable")

	// ErrStorageUnavailable means a destination could not be written: the
	// local work directory for snapshots or the remote storage target.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrConfiguration is fatal and only returned during startup.
	ErrConfiguration = errors.New("configuration error")

	// ErrQueueClosed is returned by Enqueue after the service was stopped.
	ErrQueueClosed = errors.New("backup queue closed")
)
