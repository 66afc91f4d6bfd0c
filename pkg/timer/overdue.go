package timer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agencyops/taskflow/pkg/events"
	"github.com/agencyops/taskflow/pkg/models"
	"github.com/agencyops/taskflow/pkg/persistence"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
)

const (
	DefaultOverdueSchedule  = "*/15 * * * *"
	DefaultOverdueThreshold = 10 * time.Hour
)

// OverdueScheduler periodically emits timer_overdue events for sessions that have been
// running longer than a threshold. Each session is reported once.
type OverdueScheduler struct {
	timers    persistence.TimerRepository
	emitter   events.Emitter
	logger    *slog.Logger
	clock     clockwork.Clock
	schedule  string
	threshold time.Duration

	cron *cron.Cron

	mu       sync.Mutex
	reported map[string]time.Time // task ID -> session start already reported
}

func NewOverdueScheduler(
	timers persistence.TimerRepository,
	emitter events.Emitter,
	logger *slog.Logger,
	schedule string,
	threshold time.Duration,
	clock clockwork.Clock,
) *OverdueScheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &OverdueScheduler{
		timers:    timers,
		emitter:   emitter,
		logger:    logger.With("module", "timer_overdue"),
		clock:     clock,
		schedule:  schedule,
		threshold: threshold,
		reported:  make(map[string]time.Time),
	}
}

// Validate checks the schedule and threshold.
func (s *OverdueScheduler) Validate() error {
	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid overdue schedule '%s': %w", s.schedule, err)
	}

	if s.threshold <= 0 {
		return fmt.Errorf("overdue threshold must be positive, got %s", s.threshold)
	}

	return nil
}

// Start registers the sweep and starts the cron scheduler.
func (s *OverdueScheduler) Start(ctx context.Context) error {
	if err := s.Validate(); err != nil {
		return err
	}

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	entryID, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.ErrorContext(ctx, "overdue sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add overdue sweep: %w", err)
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "overdue scheduler started",
		"cron", s.schedule, "threshold", s.threshold.String(), "entry_id", entryID)

	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *OverdueScheduler) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}

	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	s.logger.Info("overdue scheduler stopped")

	return nil
}

// Sweep emits timer_overdue for each newly overdue session and returns how many it emitted.
func (s *OverdueScheduler) Sweep(ctx context.Context) (int, error) {
	now := s.clock.Now().UTC()

	tasks, err := s.timers.ListActive(ctx, now.Add(-s.threshold))
	if err != nil {
		return 0, fmt.Errorf("failed to list active timers: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	active := make(map[string]struct{}, len(tasks))
	emitted := 0

	for _, task := range tasks {
		if !task.HasActiveTimer() {
			continue
		}

		startedAt := *task.ActiveTimerStart
		active[task.ID] = struct{}{}

		if last, ok := s.reported[task.ID]; ok && last.Equal(startedAt) {
			continue
		}

		err := s.emitter.Emit(ctx, &models.TriggerEvent{
			ID:          fmt.Sprintf("timer_overdue:%s:%d", task.ID, startedAt.UnixNano()),
			Type:        models.TriggerTimerOverdue,
			WorkspaceID: task.WorkspaceID,
			Task:        task.Clone(),
			OccurredAt:  now,
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to emit timer_overdue event",
				"task_id", task.ID, "workspace_id", task.WorkspaceID, "error", err)

			continue
		}

		s.reported[task.ID] = startedAt
		emitted++
	}

	for id := range s.reported {
		if _, ok := active[id]; !ok {
			delete(s.reported, id)
		}
	}

	if emitted > 0 {
		s.logger.InfoContext(ctx, "emitted overdue timer events", "count", emitted)
	}

	return emitted, nil
}
