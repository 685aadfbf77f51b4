// Package maintenance runs the engine's recurring housekeeping: routing rule
// statistics decay and dispatch journal pruning.
package maintenance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"switchboard/internal/domain"
)

// Action identifies a type of maintenance action.
type Action string

const (
	ActionStatsDecay   Action = "stats_decay"
	ActionJournalPrune Action = "journal_prune"
)

// Task defines one recurring maintenance task.
type Task struct {
	Name     string
	Schedule string // cron expression "0 3 * * *" OR duration "30m"
	Action   Action
}

// jobTimeout bounds one maintenance run.
const jobTimeout = 5 * time.Minute

// Scheduler runs maintenance tasks on cron schedules.
type Scheduler struct {
	cron    *cron.Cron
	actions map[Action]func(ctx context.Context) error
	logger  *slog.Logger

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler creates a scheduler with no actions registered.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Scheduler{
		cron:    cron.New(),
		actions: make(map[Action]func(ctx context.Context) error),
		logger:  logger,
	}
}

// RegisterAction registers a handler for an action type.
func (s *Scheduler) RegisterAction(action Action, fn func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[action] = fn
}

// AddTask schedules a task. The schedule can be a cron expression or a
// duration string.
func (s *Scheduler) AddTask(task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn, ok := s.actions[task.Action]
	if !ok {
		return fmt.Errorf("maintenance: unknown action %q for task %q", task.Action, task.Name)
	}

	schedule, err := parseSchedule(task.Schedule)
	if err != nil {
		return fmt.Errorf("maintenance: invalid schedule %q for task %q: %w", task.Schedule, task.Name, err)
	}

	taskName := task.Name
	logger := s.logger

	s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()

		if ctx == nil {
			logger.Debug("scheduler stopped, skipping task", "task", taskName)
			return
		}

		taskCtx, cancel := context.WithTimeout(ctx, jobTimeout)
		defer cancel()

		start := time.Now()
		if err := fn(taskCtx); err != nil {
			logger.Warn("maintenance task failed",
				"task", taskName, "error", err, "duration", time.Since(start))
		} else {
			logger.Info("maintenance task completed",
				"task", taskName, "duration", time.Since(start))
		}
	}))

	logger.Info("maintenance task scheduled",
		"name", task.Name, "schedule", task.Schedule, "action", string(task.Action))
	return nil
}

// Start begins running scheduled tasks. Idempotent.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.started = true
	return nil
}

// Stop halts scheduling and waits for running jobs to finish. Idempotent.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.started = false
	return nil
}

// parseSchedule tries a cron expression first, then a duration string.
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
	return constantDelay{delay: dur}, nil
}

// constantDelay implements cron.Schedule for a fixed interval. Unlike
// cron.Every(), it supports sub-second durations.
type constantDelay struct {
	delay time.Duration
}

func (d constantDelay) Next(t time.Time) time.Time {
	return t.Add(d.delay)
}

// StatsDecayer halves routing rule counters; *routing.Engine satisfies it.
type StatsDecayer interface {
	DecayStats()
}

// NewStatsDecayAction builds the stats_decay handler, publishing an event on
// each run when a bus is supplied.
func NewStatsDecayAction(decayer StatsDecayer, bus domain.EventBus) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		decayer.DecayStats()
		publish(ctx, bus, domain.EventStatsDecayed, map[string]any{
			"decayed_at": time.Now().UTC().Format(time.RFC3339),
		})
		return nil
	}
}

// NewJournalPruneAction builds the journal_prune handler that removes journal
// rows older than retention.
func NewJournalPruneAction(journal domain.DispatchJournal, retention time.Duration, bus domain.EventBus) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		cutoff := time.Now().Add(-retention)
		removed, err := journal.PruneBefore(ctx, cutoff)
		if err != nil {
			return err
		}
		publish(ctx, bus, domain.EventJournalPruned, map[string]any{
			"removed": removed,
			"cutoff":  cutoff.UTC().Format(time.RFC3339),
		})
		return nil
	}
}

func publish(ctx context.Context, bus domain.EventBus, eventType domain.EventType, payload any) {
	if bus == nil {
		return
	}
	data, _ := json.Marshal(payload)
	bus.Publish(ctx, domain.Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Payload:   data,
	})
}
