// Package schedule requests backups of every tracked resource on a cron
// schedule, independent of file activity.
package schedule

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"ledgerbak/internal/backup"
)

// Scheduler notifies all resources each time its cron expression fires.
type Scheduler struct {
	spec      string
	resources []string
	notifier  backup.Notifier
	logger    backup.Logger
	cron      *cron.Cron
}

// New parses spec (standard five-field syntax or descriptors such as
// "@hourly" and "@every 6h") and prepares a scheduler. It does not start.
func New(spec string, resources []string, notifier backup.Notifier, logger backup.Logger) (*Scheduler, error) {
	if len(resources) == 0 {
		return nil, fmt.Errorf("%w: schedule %q has no resources", backup.ErrConfiguration, spec)
	}

	s := &Scheduler{
		spec:      spec,
		resources: append([]string(nil), resources...),
		notifier:  notifier,
		logger:    logger,
		cron:      cron.New(),
	}
	if _, err := s.cron.AddFunc(spec, s.Trigger); err != nil {
		return nil, fmt.Errorf("%w: invalid schedule %q: %w", backup.ErrConfiguration, spec, err)
	}
	return s, nil
}

// Trigger notifies every resource once, in configured order.
func (s *Scheduler) Trigger() {
	s.logger.Info("scheduled backup", "schedule", s.spec, "resources", len(s.resources))
	for _, r := range s.resources {
		s.notifier.Notify(r)
	}
}

// Run starts the schedule and blocks until ctx is cancelled. A job that is
// already notifying finishes before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}
