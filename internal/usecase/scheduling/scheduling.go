// Package scheduling runs configured commands on a recurring schedule.
// Scheduled text goes through the same dispatch path as typed input, so
// an operator writes schedules in the same phrases they would type.
package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"ledbutler/internal/infra/config"
)

// taskTimeout bounds one scheduled command, model fallback included.
const taskTimeout = time.Minute

// Runner executes one scheduled command line.
type Runner func(ctx context.Context, command string) error

// Scheduler fires commands on cron expressions or fixed intervals.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	logger *slog.Logger

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a scheduler that hands due commands to runner.
func New(runner Runner, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		runner: runner,
		logger: logger,
	}
}

// Add registers one configured schedule entry. The schedule string is a
// cron expression ("0 8 * * *") or a Go duration ("30m" = every 30m).
func (s *Scheduler) Add(entry config.ScheduleConfig) error {
	schedule, err := parseSchedule(entry.Schedule)
	if err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q: %w", entry.Schedule, err)
	}
	if entry.Command == "" {
		return fmt.Errorf("scheduler: empty command for schedule %q", entry.Schedule)
	}

	command := entry.Command
	s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()

		if ctx == nil {
			s.logger.Debug("scheduler stopped, skipping command", "command", command)
			return
		}

		taskCtx, cancel := context.WithTimeout(ctx, taskTimeout)
		defer cancel()

		start := time.Now()
		if err := s.runner(taskCtx, command); err != nil {
			s.logger.Warn("scheduled command failed",
				"command", command,
				"error", err,
				"duration", time.Since(start),
			)
			return
		}
		s.logger.Info("scheduled command completed",
			"command", command,
			"duration", time.Since(start),
		)
	}))

	s.logger.Info("command scheduled", "schedule", entry.Schedule, "command", command)
	return nil
}

// Start begins firing schedules. Idempotent.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.started = true
}

// Stop cancels in-flight commands and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.started = false
}

// parseSchedule tries a cron expression first, then falls back to a
// duration interpreted as a fixed interval.
func parseSchedule(schedule string) (cron.Schedule, error) {
	if schedule == "" {
		return nil, fmt.Errorf("empty schedule")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if sched, err := parser.Parse(schedule); err == nil {
		return sched, nil
	}

	dur, err := time.ParseDuration(schedule)
	if err != nil {
		return nil, fmt.Errorf("not a valid cron expression or duration: %q", schedule)
	}
	if dur <= 0 {
		return nil, fmt.Errorf("duration must be positive: %q", schedule)
	}
	return &constantDelay{delay: dur}, nil
}

// constantDelay implements cron.Schedule for a fixed interval. Unlike
// cron.Every(), it supports sub-second durations.
type constantDelay struct {
	delay time.Duration
}

func (d *constantDelay) Next(t time.Time) time.Time {
	return t.Add(d.delay)
}
