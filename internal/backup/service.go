package backup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ledgerbak/internal/metrics"
)

// HostedService is the lifecycle contract the host process drives.
type HostedService interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Notifier accepts backup requests. Watchers, schedulers and the HTTP API
// depend on this rather than on Service.
type Notifier interface {
	Notify(resourcePath string)
}

// Service is the backup pipeline: producers call Notify, a single background
// worker drains the queue. Queue contents are lost on process exit.
type Service struct {
	queue  *Queue
	worker *Worker
	logger Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

var (
	_ HostedService = (*Service)(nil)
	_ Notifier      = (*Service)(nil)
)

// NewService creates a Service around an injected queue. The queue may be
// shared with other producers; the Service owns its only consumer.
func NewService(queue *Queue, snapshotter Snapshotter, provider StorageProvider, recorder Recorder, logger Logger, clock Clock, idgen IDGenerator, pollInterval time.Duration) *Service {
	return &Service{
		queue:  queue,
		worker: NewWorker(queue, snapshotter, provider, recorder, logger, clock, idgen, pollInterval),
		logger: logger,
	}
}

// Notify requests a backup of resourcePath. It never blocks on I/O and never
// fails from the caller's view; after Stop the request is rejected and logged.
func (s *Service) Notify(resourcePath string) {
	if err := s.queue.Enqueue(resourcePath); err != nil {
		metrics.RecordNotification(false)
		s.logger.Warn("backup request rejected", "resource", resourcePath, "error", err)
		return
	}
	metrics.RecordNotification(true)
	metrics.QueueDepth.Set(float64(s.queue.Len()))
	s.logger.Debug("backup requested", "resource", resourcePath)
}

// Start launches the background worker. The worker outlives ctx; it runs
// until Stop is called.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		return fmt.Errorf("backup service already started")
	}
	if s.queue.Closed() {
		return fmt.Errorf("backup service already stopped")
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		s.worker.Run(runCtx)
	}()
	return nil
}

// Stop rejects new requests, cancels the worker and waits for it to exit or
// for ctx to expire. Once Stop returns nil no further Store calls happen.
// Requests still queued are discarded.
func (s *Service) Stop(ctx context.Context) error {
	s.queue.Close()

	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if done == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		if n := s.queue.Len(); n > 0 {
			s.logger.Warn("discarding pending backup requests", "count", n)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for backup worker: %w", ctx.Err())
	}
}

// Drain synchronously processes everything queued so far. It is meant for
// one-shot use and returns an error while the background worker is running.
func (s *Service) Drain(ctx context.Context) ([]*Cycle, error) {
	s.mu.Lock()
	running := s.done != nil
	s.mu.Unlock()
	if running {
		return nil, fmt.Errorf("cannot drain while the backup worker is running")
	}
	return s.worker.Drain(ctx)
}

// State returns the worker state.
func (s *Service) State() WorkerState {
	return s.worker.State()
}

// Accepting reports whether Notify still enqueues requests.
func (s *Service) Accepting() bool {
	return !s.queue.Closed()
}

// QueueDepth returns the number of pending requests.
func (s *Service) QueueDepth() int {
	return s.queue.Len()
}
