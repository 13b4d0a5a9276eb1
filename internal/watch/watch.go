// Package watch requests backups when a tracked database file changes.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"ledgerbak/internal/backup"
	"ledgerbak/internal/fs"
)

// DefaultDebounce is how long a resource must stay quiet before it is
// notified.
const DefaultDebounce = 2 * time.Second

// Watcher turns filesystem events on tracked databases into debounced
// Notify calls. Parent directories are watched rather than the files, so
// databases that are replaced or created later are still seen.
type Watcher struct {
	notifier  backup.Notifier
	logger    backup.Logger
	debounce  time.Duration
	resources []string
	fsw       *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*pending
	seq     uint64
	closed  bool
}

type pending struct {
	timer *time.Timer
	gen   uint64
}

// New starts watching the directories of resources. Events are buffered
// until Run is called. A negative debounce uses DefaultDebounce; zero
// notifies on every event.
func New(resources []string, debounce time.Duration, notifier backup.Notifier, logger backup.Logger) (*Watcher, error) {
	if len(resources) == 0 {
		return nil, fmt.Errorf("no resources to watch")
	}
	if debounce < 0 {
		debounce = DefaultDebounce
	}

	resolved, err := fs.ResolveAll(resources)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	dirs := make(map[string]bool)
	for _, r := range resolved {
		dir := filepath.Dir(r)
		if dirs[dir] {
			continue
		}
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watching %s: %w", dir, err)
		}
		dirs[dir] = true
	}

	return &Watcher{
		notifier:  notifier,
		logger:    logger,
		debounce:  debounce,
		resources: resolved,
		fsw:       fsw,
		pending:   make(map[string]*pending),
	}, nil
}

// Resources returns the resolved paths being watched.
func (w *Watcher) Resources() []string {
	return append([]string(nil), w.resources...)
}

// Run dispatches events until ctx is cancelled. Pending debounced
// notifications are dropped on exit.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.close()

	w.logger.Info("watching resources", "count", len(w.resources), "debounce", w.debounce.String())

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if r, ok := w.owner(ev.Name); ok {
				w.logger.Debug("resource changed", "resource", r, "file", ev.Name, "op", ev.Op.String())
				w.schedule(r)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) owner(name string) (string, bool) {
	for _, r := range w.resources {
		if fs.Owner(name, r) {
			return r, true
		}
	}
	return "", false
}

// schedule (re)starts the quiet period for resource.
func (w *Watcher) schedule(resource string) {
	if w.debounce == 0 {
		w.notifier.Notify(resource)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if p, ok := w.pending[resource]; ok {
		p.timer.Stop()
	}
	w.seq++
	gen := w.seq
	w.pending[resource] = &pending{
		timer: time.AfterFunc(w.debounce, func() { w.fire(resource, gen) }),
		gen:   gen,
	}
}

// fire notifies resource unless a later event superseded this timer.
func (w *Watcher) fire(resource string, gen uint64) {
	w.mu.Lock()
	p, ok := w.pending[resource]
	if w.closed || !ok || p.gen != gen {
		w.mu.Unlock()
		return
	}
	delete(w.pending, resource)
	w.mu.Unlock()

	w.notifier.Notify(resource)
}

func (w *Watcher) close() {
	w.mu.Lock()
	w.closed = true
	for r, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, r)
	}
	w.mu.Unlock()

	if err := w.fsw.Close(); err != nil {
		w.logger.Warn("closing file watcher", "error", err)
	}
}
