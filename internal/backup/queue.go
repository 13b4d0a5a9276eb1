package backup

import (
	"sync"
	"time"
)

// Request asks for one backup of a resource. Identity is ResourcePath.
type Request struct {
	ResourcePath string
	EnqueuedAt   time.Time
}

// Queue is an unbounded FIFO of backup requests. Any number of goroutines may
// Enqueue concurrently; exactly one consumer calls TryDequeue.
//
// Duplicate requests for the same resource are kept: two notifications mean
// two full backup cycles, in the order received.
type Queue struct {
	mu     sync.Mutex
	items  []Request
	closed bool
	ready  chan struct{}
	clock  Clock
}

// NewQueue creates an empty queue.
func NewQueue(clock Clock) *Queue {
	if clock == nil {
		clock = RealClock{}
	}
	return &Queue{
		ready: make(chan struct{}, 1),
		clock: clock,
	}
}

// Enqueue appends a request for resourcePath. It never blocks and only fails
// with ErrQueueClosed once Close has been called.
func (q *Queue) Enqueue(resourcePath string) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.items = append(q.items, Request{ResourcePath: resourcePath, EnqueuedAt: q.clock.Now()})
	q.mu.Unlock()

	// Wake an idle consumer; a pending signal already covers this item.
	select {
	case q.ready <- struct{}{}:
	default:
	}
	return nil
}

// TryDequeue removes and returns the oldest request. It returns false when
// the queue is empty. It never blocks on producers beyond the queue lock.
func (q *Queue) TryDequeue() (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Request{}, false
	}
	r := q.items[0]
	q.items[0] = Request{}
	q.items = q.items[1:]
	if len(q.items) == 0 {
		// Drop the drained backing array so a burst doesn't pin memory.
		q.items = nil
	}
	return r, true
}

// Len returns the number of pending requests.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Ready delivers a signal after an Enqueue. Consumers use it to cut an idle
// wait short; it carries no count, so they must drain with TryDequeue.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

// Close rejects further Enqueue calls. Pending requests remain dequeueable.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
