package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/HMasataka/streamhub/internal/logging"
)

// Scheduler runs periodic maintenance jobs such as statistics sampling
type Scheduler struct {
	cron   *cron.Cron
	logger *logging.Logger
}

// New creates a scheduler. Panicking jobs are recovered and logged.
func New(logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.WithFields(map[string]any{"component": "scheduler"})

	adapter := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		logger: logger,
	}
}

// Every runs fn every interval. Intervals are rounded down to whole seconds
// with a minimum of one second.
func (s *Scheduler) Every(name string, interval time.Duration, fn func()) cron.EntryID {
	id := s.cron.Schedule(cron.Every(interval), s.wrap(name, fn))
	s.logger.Debug("job scheduled", "job", name, "interval", interval)
	return id
}

// AddSpec runs fn on a cron spec such as "@every 10s" or "*/5 * * * *"
func (s *Scheduler) AddSpec(name, spec string, fn func()) (cron.EntryID, error) {
	id, err := s.cron.AddJob(spec, s.wrap(name, fn))
	if err != nil {
		return 0, fmt.Errorf("schedule %s: %w", name, err)
	}
	s.logger.Debug("job scheduled", "job", name, "spec", spec)
	return id, nil
}

// Remove cancels a scheduled job
func (s *Scheduler) Remove(id cron.EntryID) {
	s.cron.Remove(id)
}

// Len returns the number of scheduled jobs
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Start starts running jobs in the background
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs until ctx is done
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) wrap(name string, fn func()) cron.Job {
	return cron.FuncJob(func() {
		start := time.Now()
		fn()
		s.logger.Debug("job finished", "job", name, "duration", time.Since(start))
	})
}

// cronLogger adapts logging.Logger to cron.Logger
type cronLogger struct {
	logger *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
