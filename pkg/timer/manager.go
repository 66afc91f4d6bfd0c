// Package timer manages per-task work sessions. The authoritative session start is the
// persisted active_timer_start; clients resynchronize from Status.
package timer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/agencyops/taskflow/pkg/events"
	"github.com/agencyops/taskflow/pkg/metrics"
	"github.com/agencyops/taskflow/pkg/models"
	"github.com/agencyops/taskflow/pkg/otelhelper"
	"github.com/agencyops/taskflow/pkg/persistence"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Manager struct {
	tasks    persistence.TaskRepository
	timers   persistence.TimerRepository
	activity persistence.ActivityRepository
	emitter  events.Emitter
	logger   *slog.Logger
	clock    clockwork.Clock
	tracer   trace.Tracer
	metrics  *metrics.Metrics
}

type Option func(*Manager)

func WithClock(clock clockwork.Clock) Option {
	return func(m *Manager) {
		m.clock = clock
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(m *Manager) {
		m.tracer = tracer
	}
}

func WithMetrics(collectors *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = collectors
	}
}

func NewManager(p persistence.Persistence, emitter events.Emitter, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		tasks:    p.TaskRepository(),
		timers:   p.TimerRepository(),
		activity: p.ActivityRepository(),
		emitter:  emitter,
		logger:   logger.With("module", "timer"),
		clock:    clockwork.NewRealClock(),
	}

	for _, opt := range opts {
		opt(m)
	}

	m.tracer = otelhelper.Tracer(m.tracer, "taskflow/timer")

	return m
}

// Status is the server-side view of a task's timer used for client resynchronization.
type Status struct {
	TaskID           string     `json:"task_id"`
	Active           bool       `json:"active"`
	StartedAt        *time.Time `json:"active_timer_start"`
	UserID           string     `json:"user_id,omitempty"`
	ServerTime       time.Time  `json:"server_time"`
	ElapsedSeconds   int64      `json:"elapsed_seconds"`
	TimeSpentMinutes int        `json:"time_spent_minutes"`
}

// DurationMinutes converts an elapsed interval to billable minutes, always rounding up.
func DurationMinutes(elapsed time.Duration) int {
	if elapsed <= 0 {
		return 0
	}

	return int((elapsed + time.Minute - 1) / time.Minute)
}

// Start opens a session for userID. The start timestamp is set with a compare-and-set,
// so of two concurrent starts exactly one succeeds.
func (m *Manager) Start(ctx context.Context, workspaceID, taskID, userID string) (*models.Task, error) {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "timer.start",
		attribute.String(otelhelper.WorkspaceIDKey, workspaceID),
		attribute.String(otelhelper.TaskIDKey, taskID),
	)
	defer span.End()

	task, err := m.start(ctx, workspaceID, taskID, userID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	return task, nil
}

func (m *Manager) start(ctx context.Context, workspaceID, taskID, userID string) (*models.Task, error) {
	task, err := m.tasks.GetByID(ctx, workspaceID, taskID)
	if err != nil {
		return nil, fmt.Errorf("start timer: %w", err)
	}

	if task.HasActiveTimer() {
		return nil, fmt.Errorf("task %s: %w", taskID, models.ErrSessionAlreadyActive)
	}

	now := m.clock.Now().UTC()

	err = m.timers.StartTimer(ctx, workspaceID, taskID, userID, now)
	if err != nil {
		if errors.Is(err, persistence.ErrTimerAlreadyActive) {
			return nil, fmt.Errorf("task %s: %w", taskID, models.ErrSessionAlreadyActive)
		}

		return nil, fmt.Errorf("start timer: %w", err)
	}

	task, err = m.tasks.GetByID(ctx, workspaceID, taskID)
	if err != nil {
		return nil, fmt.Errorf("start timer: %w", err)
	}

	m.metrics.TimerStarted()

	logger := m.logger.With("task_id", taskID, "workspace_id", workspaceID, "user_id", userID)
	logger.InfoContext(ctx, "timer started")

	m.record(ctx, logger, task, models.ActivityTimerStarted, map[string]any{
		"user_id":    userID,
		"started_at": now.Format(time.RFC3339Nano),
	})
	m.emit(ctx, logger, task, models.TriggerTimerStarted, userID)

	return task, nil
}

// StopResult carries the closed session and the task after the time was folded in.
type StopResult struct {
	Task    *models.Task          `json:"task"`
	Session *models.TimerLogEntry `json:"session"`
}

// Stop closes the running session, adds ceil(elapsed/1m) to time_spent_minutes and writes
// the session log entry. The session is attributed to the user who started it.
func (m *Manager) Stop(ctx context.Context, workspaceID, taskID, userID string) (*StopResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "timer.stop",
		attribute.String(otelhelper.WorkspaceIDKey, workspaceID),
		attribute.String(otelhelper.TaskIDKey, taskID),
	)
	defer span.End()

	result, err := m.stop(ctx, workspaceID, taskID, userID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	return result, nil
}

func (m *Manager) stop(ctx context.Context, workspaceID, taskID, userID string) (*StopResult, error) {
	task, err := m.tasks.GetByID(ctx, workspaceID, taskID)
	if err != nil {
		return nil, fmt.Errorf("stop timer: %w", err)
	}

	if !task.HasActiveTimer() {
		return nil, fmt.Errorf("task %s: %w", taskID, models.ErrNoActiveSession)
	}

	startedAt := *task.ActiveTimerStart
	stoppedAt := m.clock.Now().UTC()

	owner := task.ActiveTimerUserID
	if owner == "" {
		owner = userID
	}

	entry := &models.TimerLogEntry{
		ID:              uuid.NewString(),
		WorkspaceID:     workspaceID,
		TaskID:          taskID,
		UserID:          owner,
		DurationMinutes: DurationMinutes(stoppedAt.Sub(startedAt)),
		StartedAt:       startedAt,
		StoppedAt:       stoppedAt,
	}

	err = m.timers.CompleteTimer(ctx, entry)
	if err != nil {
		if errors.Is(err, persistence.ErrTimerNotActive) {
			return nil, fmt.Errorf("task %s: %w", taskID, models.ErrNoActiveSession)
		}

		return nil, fmt.Errorf("stop timer: %w", err)
	}

	task, err = m.tasks.GetByID(ctx, workspaceID, taskID)
	if err != nil {
		return nil, fmt.Errorf("stop timer: %w", err)
	}

	m.metrics.TimerStopped(entry.DurationMinutes)

	logger := m.logger.With("task_id", taskID, "workspace_id", workspaceID, "user_id", owner)
	logger.InfoContext(ctx, "timer stopped", "duration_minutes", entry.DurationMinutes, "stopped_by", userID)

	m.record(ctx, logger, task, models.ActivityTimerStopped, map[string]any{
		"user_id":          owner,
		"stopped_by":       userID,
		"duration_minutes": entry.DurationMinutes,
		"started_at":       startedAt.Format(time.RFC3339Nano),
		"stopped_at":       stoppedAt.Format(time.RFC3339Nano),
	})
	m.emit(ctx, logger, task, models.TriggerTimerStopped, userID)

	return &StopResult{Task: task, Session: entry}, nil
}

// Status reports the authoritative session state with the server clock.
func (m *Manager) Status(ctx context.Context, workspaceID, taskID string) (*Status, error) {
	task, err := m.tasks.GetByID(ctx, workspaceID, taskID)
	if err != nil {
		return nil, fmt.Errorf("timer status: %w", err)
	}

	now := m.clock.Now().UTC()

	status := &Status{
		TaskID:           task.ID,
		Active:           task.HasActiveTimer(),
		StartedAt:        task.ActiveTimerStart,
		UserID:           task.ActiveTimerUserID,
		ServerTime:       now,
		TimeSpentMinutes: task.TimeSpentMinutes,
	}

	if status.Active {
		status.ElapsedSeconds = max(int64(now.Sub(*task.ActiveTimerStart)/time.Second), 0)
	}

	return status, nil
}

// Sessions lists the closed sessions of a task, oldest first.
func (m *Manager) Sessions(ctx context.Context, workspaceID, taskID string) ([]*models.TimerLogEntry, error) {
	if _, err := m.tasks.GetByID(ctx, workspaceID, taskID); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	return m.timers.ListSessions(ctx, workspaceID, taskID)
}

func (m *Manager) record(ctx context.Context, logger *slog.Logger, task *models.Task, kind models.ActivityType, metadata map[string]any) {
	err := m.activity.Append(ctx, &models.ActivityLogEntry{
		ID:          uuid.NewString(),
		WorkspaceID: task.WorkspaceID,
		RecordID:    task.ID,
		ActionType:  kind,
		Metadata:    metadata,
		CreatedAt:   m.clock.Now().UTC(),
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to append activity entry", "error", err)
	}
}

func (m *Manager) emit(ctx context.Context, logger *slog.Logger, task *models.Task, kind models.TriggerEventType, actorID string) {
	if m.emitter == nil {
		return
	}

	err := m.emitter.Emit(ctx, &models.TriggerEvent{
		Type:        kind,
		WorkspaceID: task.WorkspaceID,
		Task:        task.Clone(),
		ActorID:     actorID,
		OccurredAt:  m.clock.Now().UTC(),
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to emit timer event", "event_type", kind, "error", err)
	}
}
