// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Job is the callback invoked each time the schedule fires. The context is
// cancelled when the scheduler stops.
type Job func(ctx context.Context)

// Scheduler runs a single job on a cron schedule. An empty schedule disables
// it. Firings that overlap a still-running job are skipped.
type Scheduler struct {
	job    Job
	logger *slog.Logger

	mu       sync.Mutex
	schedule string
	cron     *cron.Cron
	ctx      context.Context
	cancel   context.CancelFunc
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field, plus descriptors like @every.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Validate reports whether schedule parses. The empty string is valid.
func Validate(schedule string) error {
	if schedule == "" {
		return nil
	}
	if _, err := cronParser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	return nil
}

// New creates a stopped Scheduler.
func New(schedule string, job Job, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		job:      job,
		schedule: schedule,
		logger:   logger.With("component", "scheduler"),
	}
}

// Start registers the job and starts the cron ticker. It is a no-op when the
// schedule is empty or the scheduler is already running.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked()
}

func (s *Scheduler) startLocked() error {
	if s.cron != nil || s.schedule == "" {
		return nil
	}
	if err := Validate(s.schedule); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	schedule := s.schedule
	if _, err := c.AddFunc(schedule, func() {
		s.logger.Debug("schedule firing", "schedule", schedule)
		s.job(ctx)
	}); err != nil {
		cancel()
		return fmt.Errorf("add schedule: %w", err)
	}

	s.cron, s.ctx, s.cancel = c, ctx, cancel
	c.Start()
	s.logger.Info("scheduled periodic job", "schedule", schedule)
	return nil
}

// Reload stops the current cron, swaps in schedule and starts again. An
// invalid schedule leaves the scheduler stopped.
func (s *Scheduler) Reload(schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.schedule = schedule
	return s.startLocked()
}

// Stop stops the cron ticker, cancels the job context and waits for a
// running job to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Scheduler) stopLocked() {
	if s.cron == nil {
		return
	}
	s.cancel()
	<-s.cron.Stop().Done()
	s.cron, s.ctx, s.cancel = nil, nil, nil
}

// Running reports whether the cron ticker is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}
