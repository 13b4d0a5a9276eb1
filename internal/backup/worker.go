package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"ledgerbak/internal/metrics"
)

// DefaultPollInterval bounds how long an idle worker sleeps before checking
// the queue again, and so how long a stop signal may go unobserved.
const DefaultPollInterval = 5 * time.Second

// WorkerState is the worker's position in its Idle/Draining/Stopped cycle.
type WorkerState int32

const (
	StateIdle WorkerState = iota
	StateDraining
	StateStopped
)

func (s WorkerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("WorkerState(%d)", int32(s))
	}
}

// Worker is the single consumer of a Queue. For each request it takes a
// snapshot, stores it, and removes the local copy. A failed item is logged and
// dropped; it never stops the loop and is never retried.
type Worker struct {
	queue        *Queue
	snapshotter  Snapshotter
	provider     StorageProvider
	recorder     Recorder
	logger       Logger
	clock        Clock
	idgen        IDGenerator
	pollInterval time.Duration

	state atomic.Int32
}

// NewWorker creates a Worker. A nil recorder discards cycles; a non-positive
// pollInterval uses DefaultPollInterval.
func NewWorker(queue *Queue, snapshotter Snapshotter, provider StorageProvider, recorder Recorder, logger Logger, clock Clock, idgen IDGenerator, pollInterval time.Duration) *Worker {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Worker{
		queue:        queue,
		snapshotter:  snapshotter,
		provider:     provider,
		recorder:     recorder,
		logger:       logger,
		clock:        clock,
		idgen:        idgen,
		pollInterval: pollInterval,
	}
}

// State returns the current worker state.
func (w *Worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

func (w *Worker) setState(s WorkerState) {
	w.state.Store(int32(s))
}

// Run consumes the queue until ctx is cancelled, then leaves the worker in
// StateStopped. Run must not be called concurrently with itself or Drain.
func (w *Worker) Run(ctx context.Context) {
	w.setState(StateIdle)
	defer w.setState(StateStopped)

	w.logger.Info("backup worker started", "poll_interval", w.pollInterval.String())
	defer w.logger.Info("backup worker stopped")

	for {
		if ctx.Err() != nil {
			return
		}
		if _, ok := w.ProcessNext(ctx); ok {
			continue
		}

		w.setState(StateIdle)
		timer := time.NewTimer(w.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-w.queue.Ready():
		case <-timer.C:
		}
		timer.Stop()
	}
}

// ProcessNext dequeues and processes a single request. It returns false when
// the queue was empty.
func (w *Worker) ProcessNext(ctx context.Context) (*Cycle, bool) {
	req, ok := w.queue.TryDequeue()
	if !ok {
		return nil, false
	}
	w.setState(StateDraining)
	metrics.QueueDepth.Set(float64(w.queue.Len()))

	return w.process(ctx, req), true
}

// Drain processes every queued request synchronously and returns the
// resulting cycles in processing order. It stops early if ctx is cancelled.
func (w *Worker) Drain(ctx context.Context) ([]*Cycle, error) {
	var cycles []*Cycle
	for {
		if err := ctx.Err(); err != nil {
			return cycles, err
		}
		c, ok := w.ProcessNext(ctx)
		if !ok {
			w.setState(StateIdle)
			return cycles, nil
		}
		cycles = append(cycles, c)
	}
}

// process runs one snapshot-store-cleanup cycle. Every exit path removes the
// local snapshot and records the cycle.
func (w *Worker) process(ctx context.Context, req Request) (cycle *Cycle) {
	cycle = &Cycle{
		ID:           w.idgen.New(),
		ResourcePath: req.ResourcePath,
		StartedAt:    w.clock.Now(),
	}
	log := func(msg string, err error) {
		w.logger.Error(msg, "resource", req.ResourcePath, "cycle", cycle.ID, "error", err)
	}

	var localPath string
	failed := CycleSnapshotFailed
	defer func() {
		if r := recover(); r != nil {
			cycle.Status = failed
			cycle.Error = fmt.Sprintf("panic: %v", r)
			w.logger.Error("backup cycle panicked", "resource", req.ResourcePath, "cycle", cycle.ID, "panic", r)
			if localPath == "" {
				w.sweepSnapshots(req.ResourcePath)
			}
		}
		w.removeSnapshot(localPath)
		cycle.FinishedAt = w.clock.Now()
		w.finish(ctx, cycle)
	}()

	if err := ctx.Err(); err != nil {
		w.fail(cycle, CycleAbandoned, err)
		return cycle
	}

	start := time.Now()
	path, err := w.snapshotter.Snapshot(ctx, req.ResourcePath)
	localPath = path
	metrics.ObservePhase("snapshot", time.Since(start))
	if err != nil {
		if ctx.Err() != nil {
			w.fail(cycle, CycleAbandoned, err)
			return cycle
		}
		log("snapshot failed", err)
		w.fail(cycle, CycleSnapshotFailed, err)
		return cycle
	}
	cycle.DestinationName = filepath.Base(localPath)

	failed = CycleStoreFailed
	if err := ctx.Err(); err != nil {
		w.fail(cycle, CycleAbandoned, err)
		return cycle
	}

	start = time.Now()
	size, err := w.store(ctx, localPath, cycle.DestinationName)
	metrics.ObservePhase("store", time.Since(start))
	if err != nil {
		if ctx.Err() != nil {
			w.fail(cycle, CycleAbandoned, err)
			return cycle
		}
		log("storing snapshot failed", err)
		w.fail(cycle, CycleStoreFailed, err)
		return cycle
	}

	cycle.Size = size
	cycle.Status = CycleSuccess
	return cycle
}

func (w *Worker) fail(c *Cycle, status CycleStatus, err error) {
	c.Status = status
	c.Error = err.Error()
}

// store uploads the snapshot at localPath under name and returns its size.
func (w *Worker) store(ctx context.Context, localPath, name string) (int64, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return 0, fmt.Errorf("opening snapshot for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat snapshot: %w", err)
	}

	if err := w.provider.Store(ctx, f, name); err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// removeSnapshot deletes the local snapshot file if it exists.
func (w *Worker) removeSnapshot(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		w.logger.Warn("removing local snapshot", "path", path, "error", err)
	}
}

// snapshotDir is implemented by snapshotters that write into one local
// directory.
type snapshotDir interface {
	WorkDir() string
}

// sweepSnapshots removes snapshots of resourcePath left in the snapshotter's
// work directory by a Snapshot call that panicked before returning its path.
// The worker owns every file there for the length of one cycle.
func (w *Worker) sweepSnapshots(resourcePath string) {
	sd, ok := w.snapshotter.(snapshotDir)
	if !ok || sd.WorkDir() == "" {
		return
	}
	entries, err := os.ReadDir(sd.WorkDir())
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.Type().IsRegular() && IsBackupNameFor(e.Name(), resourcePath) {
			w.removeSnapshot(filepath.Join(sd.WorkDir(), e.Name()))
		}
	}
}

// finish logs, records and meters a completed cycle. Recording failures are
// logged only.
func (w *Worker) finish(ctx context.Context, c *Cycle) {
	metrics.RecordCycle(string(c.Status), c.Duration())

	switch c.Status {
	case CycleSuccess:
		metrics.RecordSuccess(c.Size, c.FinishedAt)
		w.logger.Info("backup stored",
			"resource", c.ResourcePath,
			"destination", c.DestinationName,
			"size", c.Size,
			"duration", c.Duration().String(),
		)
	case CycleAbandoned:
		w.logger.Warn("backup abandoned", "resource", c.ResourcePath, "cycle", c.ID)
	}

	// Abandoned cycles still get recorded, so detach from the cancelled ctx.
	if err := w.recorder.RecordCycle(context.WithoutCancel(ctx), c); err != nil {
		w.logger.Warn("recording backup cycle", "cycle", c.ID, "error", err)
	}
}
