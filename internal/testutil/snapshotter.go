package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"ledgerbak/internal/backup"
)

// FakeSnapshotter writes a small file per call instead of copying a
// database. Failures and blocking are scripted per source path.
type FakeSnapshotter struct {
	workDir string
	clock   backup.Clock

	mu       sync.Mutex
	failures map[string]error
	leaky    map[string]bool
	panics   map[string]bool
	gate     chan struct{}
	started  chan string
	calls    []string
}

// NewFakeSnapshotter creates a FakeSnapshotter writing into workDir.
func NewFakeSnapshotter(workDir string, clock backup.Clock) *FakeSnapshotter {
	return &FakeSnapshotter{
		workDir:  workDir,
		clock:    clock,
		failures: make(map[string]error),
		leaky:    make(map[string]bool),
		panics:   make(map[string]bool),
	}
}

// FailFor makes snapshots of path fail with err.
func (f *FakeSnapshotter) FailFor(path string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[path] = err
}

// FailLeavingFileFor makes snapshots of path fail after the output file was
// written, returning both the path and err.
func (f *FakeSnapshotter) FailLeavingFileFor(path string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[path] = err
	f.leaky[path] = true
}

// PanicFor makes snapshots of path panic.
func (f *FakeSnapshotter) PanicFor(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.panics[path] = true
}

// PanicLeavingFileFor makes snapshots of path panic after the output file
// was written.
func (f *FakeSnapshotter) PanicLeavingFileFor(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.panics[path] = true
	f.leaky[path] = true
}

// WorkDir returns the directory snapshots are written to.
func (f *FakeSnapshotter) WorkDir() string {
	return f.workDir
}

// Block makes every Snapshot call wait until Release is called or its
// context ends. Each call announces its source path on Started first.
func (f *FakeSnapshotter) Block() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	f.started = make(chan string, 64)
}

// Release unblocks pending and future Snapshot calls.
func (f *FakeSnapshotter) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate != nil {
		close(f.gate)
		f.gate = nil
	}
}

// Started reports source paths of calls that reached the gate.
func (f *FakeSnapshotter) Started() <-chan string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

// Calls returns the source paths passed to Snapshot, in order.
func (f *FakeSnapshotter) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *FakeSnapshotter) Snapshot(ctx context.Context, sourcePath string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, sourcePath)
	gate, started := f.gate, f.started
	failErr, leaky, panics := f.failures[sourcePath], f.leaky[sourcePath], f.panics[sourcePath]
	f.mu.Unlock()

	if gate != nil {
		started <- sourcePath
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if panics && !leaky {
		panic("snapshot exploded: " + sourcePath)
	}
	if failErr != nil && !leaky {
		return "", failErr
	}

	if err := os.MkdirAll(f.workDir, 0700); err != nil {
		return "", fmt.Errorf("%w: %w", backup.ErrStorageUnavailable, err)
	}
	out := filepath.Join(f.workDir, backup.BackupName(sourcePath, f.clock.Now()))
	if err := os.WriteFile(out, []byte("snapshot of "+sourcePath), 0600); err != nil {
		return "", fmt.Errorf("%w: %w", backup.ErrStorageUnavailable, err)
	}
	if panics {
		panic("snapshot exploded after writing: " + sourcePath)
	}
	if failErr != nil {
		return out, failErr
	}
	return out, nil
}

var _ backup.Snapshotter = (*FakeSnapshotter)(nil)
