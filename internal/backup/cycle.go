package backup

import "time"

// CycleStatus is the outcome of processing one request.
type CycleStatus string

const (
	CycleSuccess        CycleStatus = "success"
	CycleSnapshotFailed CycleStatus = "snapshot_failed"
	CycleStoreFailed    CycleStatus = "store_failed"
	CycleAbandoned      CycleStatus = "abandoned"
)

// Cycle records one snapshot-and-store attempt.
type Cycle struct {
	ID              string
	ResourcePath    string
	DestinationName string
	Status          CycleStatus
	Error           string
	Size            int64
	StartedAt       time.Time
	FinishedAt      time.Time
}

// Duration returns how long the cycle took.
func (c *Cycle) Duration() time.Duration {
	return c.FinishedAt.Sub(c.StartedAt)
}
