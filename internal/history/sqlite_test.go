package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"ledgerbak/internal/backup"
	"ledgerbak/internal/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var base = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

func cycle(id, resource string, status backup.CycleStatus, startOffset time.Duration) *backup.Cycle {
	return &backup.Cycle{
		ID:              id,
		ResourcePath:    resource,
		DestinationName: "app-20240115103000.db.bak",
		Status:          status,
		Size:            4096,
		StartedAt:       base.Add(startOffset),
		FinishedAt:      base.Add(startOffset + 1500*time.Millisecond),
	}
}

func TestStore_RecordAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	failed := cycle("c2", "/srv/b.db", backup.CycleStoreFailed, time.Minute)
	failed.Error = "storage unavailable: connection refused"
	failed.Size = 0

	for _, c := range []*backup.Cycle{
		cycle("c1", "/srv/a.db", backup.CycleSuccess, 0),
		failed,
		cycle("c3", "/srv/a.db", backup.CycleAbandoned, 2*time.Minute),
	} {
		if err := s.RecordCycle(ctx, c); err != nil {
			t.Fatalf("RecordCycle(%s) error = %v", c.ID, err)
		}
	}

	got, err := s.ListCycles(ctx, 0)
	if err != nil {
		t.Fatalf("ListCycles() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(ListCycles()) = %d, want 3", len(got))
	}
	if got[0].ID != "c3" || got[1].ID != "c2" || got[2].ID != "c1" {
		t.Errorf("order = %s,%s,%s; want c3,c2,c1", got[0].ID, got[1].ID, got[2].ID)
	}

	c2 := got[1]
	if c2.Status != backup.CycleStoreFailed {
		t.Errorf("Status = %q", c2.Status)
	}
	if c2.Error != failed.Error {
		t.Errorf("Error = %q, want %q", c2.Error, failed.Error)
	}
	if !c2.StartedAt.Equal(failed.StartedAt) || !c2.FinishedAt.Equal(failed.FinishedAt) {
		t.Errorf("times = %v..%v, want %v..%v", c2.StartedAt, c2.FinishedAt, failed.StartedAt, failed.FinishedAt)
	}
	if c2.Duration() != 1500*time.Millisecond {
		t.Errorf("Duration() = %v", c2.Duration())
	}

	limited, err := s.ListCycles(ctx, 2)
	if err != nil {
		t.Fatalf("ListCycles(2) error = %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("len(ListCycles(2)) = %d, want 2", len(limited))
	}
}

func TestStore_RecordDuplicateID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.RecordCycle(ctx, cycle("dup", "/a.db", backup.CycleSuccess, 0)); err != nil {
		t.Fatalf("RecordCycle() error = %v", err)
	}
	if err := s.RecordCycle(ctx, cycle("dup", "/a.db", backup.CycleSuccess, 0)); err == nil {
		t.Error("second RecordCycle() with same ID expected error")
	}
}

func TestStore_LastSuccess(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.LastSuccess(ctx, "/srv/a.db")
	if err != nil {
		t.Fatalf("LastSuccess() error = %v", err)
	}
	if got != nil {
		t.Fatalf("LastSuccess() on empty store = %+v, want nil", got)
	}

	for _, c := range []*backup.Cycle{
		cycle("old", "/srv/a.db", backup.CycleSuccess, 0),
		cycle("new", "/srv/a.db", backup.CycleSuccess, time.Hour),
		cycle("newer-failed", "/srv/a.db", backup.CycleSnapshotFailed, 2*time.Hour),
		cycle("other", "/srv/b.db", backup.CycleSuccess, 3*time.Hour),
	} {
		if err := s.RecordCycle(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	got, err = s.LastSuccess(ctx, "/srv/a.db")
	if err != nil {
		t.Fatalf("LastSuccess() error = %v", err)
	}
	if got == nil || got.ID != "new" {
		t.Errorf("LastSuccess() = %+v, want cycle %q", got, "new")
	}
}

func TestStore_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.RecordCycle(context.Background(), cycle("c1", "/a.db", backup.CycleSuccess, 0)); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()

	if err := s.CheckStatus(); err != nil {
		t.Errorf("CheckStatus() = %v", err)
	}
	got, err := s.ListCycles(context.Background(), 10)
	if err != nil || len(got) != 1 {
		t.Errorf("ListCycles() = %d cycles, %v; want 1", len(got), err)
	}
}

func TestNewStoreFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.HistoryConfig
		wantNil bool
		wantErr bool
	}{
		{name: "disabled", cfg: config.HistoryConfig{}, wantNil: true},
		{name: "memory", cfg: config.HistoryConfig{Type: "memory"}},
		{name: "sqlite", cfg: config.HistoryConfig{Type: "sqlite", DataDir: t.TempDir()}},
		{name: "sqlite without data dir", cfg: config.HistoryConfig{Type: "sqlite"}, wantNil: true, wantErr: true},
		{name: "unknown", cfg: config.HistoryConfig{Type: "postgres"}, wantNil: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewStoreFromConfig(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewStoreFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if (got == nil) != tt.wantNil {
				t.Errorf("NewStoreFromConfig() nil = %v, wantNil %v", got == nil, tt.wantNil)
			}
			if got != nil {
				got.Close()
			}
		})
	}
}
