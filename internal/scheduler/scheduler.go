package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Job is the work triggered by the schedule.
type Job func(ctx context.Context)

// Scheduler triggers the daily update. At most one run executes at a time;
// a trigger that fires while a run is in progress is skipped.
type Scheduler struct {
	Cron   *cron.Cron
	job    Job
	ctx    context.Context
	logger *logrus.Logger
	mu     sync.Mutex
}

// NewScheduler creates a scheduler evaluating cron specs (with seconds) in loc.
func NewScheduler(ctx context.Context, loc *time.Location, job Job, logger *logrus.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = logrus.New()
	}
	cronLogger := cron.PrintfLogger(logger.WithField("component", "cron"))
	return &Scheduler{
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		job:    job,
		ctx:    ctx,
		logger: logger,
	}
}

// RegisterDaily registers the update on spec, e.g. "0 0 16 * * 1-5".
func (s *Scheduler) RegisterDaily(spec string) error {
	if _, err := s.Cron.AddFunc(spec, s.run); err != nil {
		return fmt.Errorf("register daily task: %w", err)
	}
	s.logger.WithField("spec", spec).Info("daily update scheduled")
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.logger.Info("scheduler started")
}

// Stop stops the scheduler and waits for a running update to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// Next returns the next scheduled trigger, or the zero time if nothing is registered.
func (s *Scheduler) Next() time.Time {
	entries := s.Cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	next := entries[0].Next
	for _, e := range entries[1:] {
		if e.Next.Before(next) {
			next = e.Next
		}
	}
	return next
}

// RunNow executes the update immediately (for manual trigger / RUN_ON_START).
// It reports false when a run was already in progress.
func (s *Scheduler) RunNow() bool {
	return s.runGuarded()
}

func (s *Scheduler) run() {
	s.runGuarded()
}

func (s *Scheduler) runGuarded() bool {
	if !s.mu.TryLock() {
		s.logger.Warn("daily update already running, trigger skipped")
		return false
	}
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.logger.Info("running daily update")
	s.job(s.ctx)
	return true
}
