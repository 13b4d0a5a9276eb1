package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"ledgerbak/internal/backup"
	"ledgerbak/internal/testutil"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		spec      string
		resources []string
		wantErr   bool
	}{
		{name: "five fields", spec: "0 3 * * *", resources: []string{"/a.db"}},
		{name: "descriptor", spec: "@hourly", resources: []string{"/a.db"}},
		{name: "every", spec: "@every 6h", resources: []string{"/a.db", "/b.db"}},
		{name: "garbage", spec: "whenever", resources: []string{"/a.db"}, wantErr: true},
		{name: "seconds field not accepted", spec: "0 0 3 * * *", resources: []string{"/a.db"}, wantErr: true},
		{name: "no resources", spec: "@hourly", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.spec, tt.resources, testutil.NewRecordingNotifier(), backup.NewNopLogger())
			if (err != nil) != tt.wantErr {
				t.Fatalf("New(%q) error = %v, wantErr %v", tt.spec, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, backup.ErrConfiguration) {
				t.Errorf("New(%q) error = %v, want ErrConfiguration", tt.spec, err)
			}
		})
	}
}

func TestScheduler_Trigger(t *testing.T) {
	n := testutil.NewRecordingNotifier()
	resources := []string{"/srv/a.db", "/srv/b.db", "/srv/c.db"}
	s, err := New("@daily", resources, n, backup.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}

	s.Trigger()
	s.Trigger()

	got := n.Paths()
	want := append(append([]string(nil), resources...), resources...)
	if len(got) != len(want) {
		t.Fatalf("Paths() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Paths()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestScheduler_RunFires(t *testing.T) {
	n := testutil.NewRecordingNotifier()
	s, err := New("@every 1s", []string{"/srv/a.db"}, n, backup.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for n.Count("/srv/a.db") == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	if n.Count("/srv/a.db") == 0 {
		t.Error("schedule never fired")
	}
}
