package testutil

import (
	"testing"

	"ledgerbak/internal/history"
)

// NewTestHistory creates an in-memory history store with the schema applied.
// The store is closed when the test completes.
func NewTestHistory(t *testing.T) *history.Store {
	t.Helper()

	s, err := history.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open history store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}
