package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ledgerbak/internal/backup"
	"ledgerbak/internal/testutil"
)

func startWatcher(t *testing.T, resources []string, debounce time.Duration) (*Watcher, *testutil.RecordingNotifier) {
	t.Helper()

	n := testutil.NewRecordingNotifier()
	w, err := New(resources, debounce, n, backup.NewNopLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run() error = %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Run did not return after cancellation")
		}
	})
	return w, n
}

func appendTo(t *testing.T, path string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("x"); err != nil {
		t.Fatal(err)
	}
	f.Close()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within 5s")
}

func TestNew_Validation(t *testing.T) {
	n := testutil.NewRecordingNotifier()
	if _, err := New(nil, time.Second, n, backup.NewNopLogger()); err == nil {
		t.Error("New() with no resources expected error")
	}
	if _, err := New([]string{filepath.Join(t.TempDir(), "missing", "a.db")}, time.Second, n, backup.NewNopLogger()); err == nil {
		t.Error("New() with missing directory expected error")
	}
}

func TestWatcher_DebouncesBurst(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "app.db")
	appendTo(t, db)

	_, n := startWatcher(t, []string{db}, 250*time.Millisecond)

	for i := 0; i < 5; i++ {
		appendTo(t, db)
		appendTo(t, db+"-wal")
		time.Sleep(10 * time.Millisecond)
	}

	waitFor(t, func() bool { return n.Count(db) >= 1 })
	time.Sleep(500 * time.Millisecond)
	if got := n.Count(db); got != 1 {
		t.Errorf("Notify count = %d, want 1 for a single burst", got)
	}
}

func TestWatcher_CompanionFiles(t *testing.T) {
	for _, suffix := range []string{"-wal", "-journal"} {
		t.Run(suffix, func(t *testing.T) {
			dir := t.TempDir()
			db := filepath.Join(dir, "app.db")
			appendTo(t, db)

			_, n := startWatcher(t, []string{db}, 20*time.Millisecond)
			appendTo(t, db+suffix)

			waitFor(t, func() bool { return n.Count(db) == 1 })
		})
	}
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "app.db")
	other := filepath.Join(dir, "other.db")
	appendTo(t, db)

	_, n := startWatcher(t, []string{db}, 0)

	appendTo(t, other)
	appendTo(t, db+"-shm")
	time.Sleep(200 * time.Millisecond)
	if paths := n.Paths(); len(paths) != 0 {
		t.Errorf("unexpected notifications: %v", paths)
	}

	appendTo(t, db)
	waitFor(t, func() bool { return n.Count(db) >= 1 })
}

func TestWatcher_SeparateResources(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.db")
	b := filepath.Join(dir, "sub", "b.db")
	if err := os.MkdirAll(filepath.Dir(b), 0700); err != nil {
		t.Fatal(err)
	}
	appendTo(t, a)
	appendTo(t, b)

	w, n := startWatcher(t, []string{a, b, a}, 30*time.Millisecond)
	if got := w.Resources(); len(got) != 2 {
		t.Errorf("Resources() = %v, want 2 entries", got)
	}

	appendTo(t, a)
	appendTo(t, b)

	waitFor(t, func() bool { return n.Count(a) == 1 && n.Count(b) == 1 })
}

func TestWatcher_CreatedAfterStart(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "tenant.db")

	_, n := startWatcher(t, []string{db}, 20*time.Millisecond)
	appendTo(t, db)

	waitFor(t, func() bool { return n.Count(db) == 1 })
}

func TestWatcher_PendingDroppedOnStop(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "app.db")
	appendTo(t, db)

	n := testutil.NewRecordingNotifier()
	w, err := New([]string{db}, 200*time.Millisecond, n, backup.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	appendTo(t, db)
	waitFor(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return len(w.pending) == 1
	})
	cancel()
	<-done

	time.Sleep(300 * time.Millisecond)
	if paths := n.Paths(); len(paths) != 0 {
		t.Errorf("notified after stop: %v", paths)
	}
}
