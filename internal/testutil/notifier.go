package testutil

import (
	"sync"

	"ledgerbak/internal/backup"
)

// RecordingNotifier records Notify calls instead of queueing backups.
type RecordingNotifier struct {
	mu    sync.Mutex
	paths []string
}

func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

func (n *RecordingNotifier) Notify(resourcePath string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, resourcePath)
}

// Paths returns every notified path in call order.
func (n *RecordingNotifier) Paths() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.paths...)
}

// Count returns how many times path was notified.
func (n *RecordingNotifier) Count(path string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, p := range n.paths {
		if p == path {
			c++
		}
	}
	return c
}

var _ backup.Notifier = (*RecordingNotifier)(nil)
