package app

import (
	"fmt"
	"strings"

	"ledgerbak/internal/backup"
)

// RunSummary tallies the cycles of one CLI operation, e.g. a one-shot
// `ledgerbak backup`.
type RunSummary struct {
	Operation string
	Counts    map[backup.CycleStatus]int
	Bytes     int64
}

// NewRunSummary creates an empty summary for operation.
func NewRunSummary(operation string) *RunSummary {
	return &RunSummary{
		Operation: operation,
		Counts:    make(map[backup.CycleStatus]int),
	}
}

// Add counts c.
func (s *RunSummary) Add(c *backup.Cycle) {
	s.Counts[c.Status]++
	if c.Status == backup.CycleSuccess {
		s.Bytes += c.Size
	}
}

// Total returns the number of cycles added.
func (s *RunSummary) Total() int {
	n := 0
	for _, c := range s.Counts {
		n += c
	}
	return n
}

// Failed returns the number of cycles that did not succeed.
func (s *RunSummary) Failed() int {
	return s.Total() - s.Counts[backup.CycleSuccess]
}

func (s *RunSummary) String() string {
	var parts []string
	for _, status := range []backup.CycleStatus{
		backup.CycleSuccess,
		backup.CycleSnapshotFailed,
		backup.CycleStoreFailed,
		backup.CycleAbandoned,
	} {
		if n := s.Counts[status]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, status))
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%s: nothing to do", s.Operation)
	}
	return fmt.Sprintf("%s: %s (%d bytes stored)", s.Operation, strings.Join(parts, ", "), s.Bytes)
}
