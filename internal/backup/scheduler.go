package backup

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSchedule takes a backup every night.
const DefaultSchedule = "@daily"

// Scheduler runs Create followed by Prune on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	mgr    *Manager
	keep   int
	logger *zap.Logger
}

// NewScheduler validates spec and prepares the job. Standard five-field
// expressions and descriptors such as @daily or @every 6h are accepted.
func NewScheduler(mgr *Manager, spec string, keep int, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if spec == "" {
		spec = DefaultSchedule
	}
	s := &Scheduler{
		cron:   cron.New(),
		mgr:    mgr,
		keep:   keep,
		logger: logger,
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("backup schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins firing on schedule.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running backup to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) run() {
	ctx := context.Background()
	if _, err := s.mgr.Create(ctx); err != nil {
		s.logger.Error("scheduled backup failed", zap.Error(err))
		return
	}
	if _, err := s.mgr.Prune(s.keep); err != nil {
		s.logger.Warn("prune backups", zap.Error(err))
	}
}
