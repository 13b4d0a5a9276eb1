package snapshot_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ledgerbak/internal/backup"
	"ledgerbak/internal/snapshot"
	"ledgerbak/internal/testutil"
)

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("reading %s: %v", dir, err)
	}
	for _, e := range entries {
		t.Errorf("unexpected file left in %s: %s", dir, e.Name())
	}
}

func TestSQLiteSnapshotter_Snapshot(t *testing.T) {
	methods := []snapshot.Method{snapshot.MethodOnline, snapshot.MethodVacuum}

	for _, method := range methods {
		t.Run(string(method), func(t *testing.T) {
			dir := t.TempDir()
			source := filepath.Join(dir, "appdata.db")
			testutil.CreateTestDatabase(t, source, 300, false)
			before, err := os.ReadFile(source)
			if err != nil {
				t.Fatal(err)
			}

			workDir := filepath.Join(dir, "work")
			clock := testutil.FixedClock()
			s := snapshot.NewSQLiteSnapshotter(workDir, method, clock,
				snapshot.WithPagesPerStep(4), snapshot.WithStepPause(0))

			got, err := s.Snapshot(context.Background(), source)
			if err != nil {
				t.Fatalf("Snapshot() error = %v", err)
			}

			want := filepath.Join(workDir, "appdata-20240115103000.db.bak")
			if got != want {
				t.Errorf("Snapshot() = %q, want %q", got, want)
			}
			if n := testutil.CountEntries(t, got); n != 300 {
				t.Errorf("snapshot has %d entries, want 300", n)
			}
			testutil.IntegrityCheck(t, got)

			after, err := os.ReadFile(source)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(before, after) {
				t.Error("source database was modified")
			}
		})
	}
}

func TestSQLiteSnapshotter_ConcurrentWriter(t *testing.T) {
	for _, method := range []snapshot.Method{snapshot.MethodOnline, snapshot.MethodVacuum} {
		t.Run(string(method), func(t *testing.T) {
			dir := t.TempDir()
			source := filepath.Join(dir, "ledger.db")
			db := testutil.CreateTestDatabase(t, source, 100, true)

			// An open write transaction must not leak into the snapshot.
			tx, err := db.Begin()
			if err != nil {
				t.Fatal(err)
			}
			defer tx.Rollback()
			if _, err := tx.Exec("INSERT INTO entries (description, amount_cents) VALUES ('pending', 1)"); err != nil {
				t.Fatal(err)
			}

			s := snapshot.NewSQLiteSnapshotter(filepath.Join(dir, "work"), method, testutil.FixedClock(),
				snapshot.WithStepPause(0))
			got, err := s.Snapshot(context.Background(), source)
			if err != nil {
				t.Fatalf("Snapshot() error = %v", err)
			}

			if n := testutil.CountEntries(t, got); n != 100 {
				t.Errorf("snapshot has %d entries, want 100 committed rows", n)
			}
			testutil.IntegrityCheck(t, got)
		})
	}
}

func TestSQLiteSnapshotter_Errors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, dir string) (source, workDir string)
		wantErr error
	}{
		{
			name: "missing source",
			setup: func(t *testing.T, dir string) (string, string) {
				return filepath.Join(dir, "missing.db"), filepath.Join(dir, "work")
			},
			wantErr: backup.ErrResourceUnavailable,
		},
		{
			name: "source is a directory",
			setup: func(t *testing.T, dir string) (string, string) {
				src := filepath.Join(dir, "dir.db")
				if err := os.Mkdir(src, 0755); err != nil {
					t.Fatal(err)
				}
				return src, filepath.Join(dir, "work")
			},
			wantErr: backup.ErrResourceUnavailable,
		},
		{
			name: "source is not a database",
			setup: func(t *testing.T, dir string) (string, string) {
				src := filepath.Join(dir, "notes.db")
				if err := os.WriteFile(src, bytes.Repeat([]byte("not a database "), 200), 0644); err != nil {
					t.Fatal(err)
				}
				return src, filepath.Join(dir, "work")
			},
			wantErr: backup.ErrResourceUnavailable,
		},
		{
			name: "work dir not creatable",
			setup: func(t *testing.T, dir string) (string, string) {
				src := filepath.Join(dir, "app.db")
				testutil.CreateTestDatabase(t, src, 1, false)
				blocker := filepath.Join(dir, "blocker")
				if err := os.WriteFile(blocker, nil, 0644); err != nil {
					t.Fatal(err)
				}
				return src, filepath.Join(blocker, "work")
			},
			wantErr: backup.ErrStorageUnavailable,
		},
	}

	for _, tt := range tests {
		for _, method := range []snapshot.Method{snapshot.MethodOnline, snapshot.MethodVacuum} {
			t.Run(tt.name+"/"+string(method), func(t *testing.T) {
				source, workDir := tt.setup(t, t.TempDir())
				s := snapshot.NewSQLiteSnapshotter(workDir, method, testutil.FixedClock())

				got, err := s.Snapshot(context.Background(), source)
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Snapshot() error = %v, want %v", err, tt.wantErr)
				}
				if got != "" {
					t.Errorf("Snapshot() path = %q, want empty on error", got)
				}
				assertDirEmpty(t, workDir)
			})
		}
	}
}

func TestSQLiteSnapshotter_Cancelled(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "app.db")
	testutil.CreateTestDatabase(t, source, 50, false)
	workDir := filepath.Join(dir, "work")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := snapshot.NewSQLiteSnapshotter(workDir, snapshot.MethodOnline, testutil.FixedClock())
	if _, err := s.Snapshot(ctx, source); !errors.Is(err, context.Canceled) {
		t.Fatalf("Snapshot() error = %v, want context.Canceled", err)
	}
	assertDirEmpty(t, workDir)
}

func TestSQLiteSnapshotter_DistinctNamesOneSecondApart(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "appdata.db")
	testutil.CreateTestDatabase(t, source, 5, false)

	clock := testutil.FixedClock()
	s := snapshot.NewSQLiteSnapshotter(filepath.Join(dir, "work"), snapshot.MethodOnline, clock)

	first, err := s.Snapshot(context.Background(), source)
	if err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Second)
	second, err := s.Snapshot(context.Background(), source)
	if err != nil {
		t.Fatal(err)
	}

	if first == second {
		t.Fatalf("snapshots one second apart share name %q", first)
	}
	for _, p := range []string{first, second} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("snapshot %s missing: %v", p, err)
		}
	}
}

func TestParseMethod(t *testing.T) {
	tests := []struct {
		in      string
		want    snapshot.Method
		wantErr bool
	}{
		{in: "", want: snapshot.MethodOnline},
		{in: "online", want: snapshot.MethodOnline},
		{in: "Vacuum", want: snapshot.MethodVacuum},
		{in: "copy", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := snapshot.ParseMethod(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMethod(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseMethod(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
