package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

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

// Machine validates and commits task mutations. Every committed mutation is
// written to the activity log and emitted as a trigger event.
type Machine struct {
	tasks    persistence.TaskRepository
	activity persistence.ActivityRepository
	emitter  events.Emitter
	logger   *slog.Logger
	clock    clockwork.Clock
	tracer   trace.Tracer
	metrics  *metrics.Metrics
}

type Option func(*Machine)

func WithClock(clock clockwork.Clock) Option {
	return func(m *Machine) {
		m.clock = clock
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(m *Machine) {
		m.tracer = tracer
	}
}

func WithMetrics(collectors *metrics.Metrics) Option {
	return func(m *Machine) {
		m.metrics = collectors
	}
}

func NewMachine(p persistence.Persistence, emitter events.Emitter, logger *slog.Logger, opts ...Option) *Machine {
	m := &Machine{
		tasks:    p.TaskRepository(),
		activity: p.ActivityRepository(),
		emitter:  emitter,
		logger:   logger.With("module", "lifecycle"),
		clock:    clockwork.NewRealClock(),
	}

	for _, opt := range opts {
		opt(m)
	}

	m.tracer = otelhelper.Tracer(m.tracer, "taskflow/lifecycle")

	return m
}

// StartWork moves a backlog task to in_progress.
func (m *Machine) StartWork(ctx context.Context, workspaceID, taskID, actorID string) (*models.Task, error) {
	return m.move(ctx, move{
		op:          "start_work",
		workspaceID: workspaceID,
		taskID:      taskID,
		actorID:     actorID,
		require:     models.TaskStatusBacklog,
		to:          models.TaskStatusInProgress,
		activity:    models.ActivityStatusChanged,
	})
}

// SubmitForInternalReview moves an in_progress task to internal_review.
func (m *Machine) SubmitForInternalReview(ctx context.Context, workspaceID, taskID, actorID string) (*models.Task, error) {
	return m.move(ctx, move{
		op:          "submit_for_internal_review",
		workspaceID: workspaceID,
		taskID:      taskID,
		actorID:     actorID,
		require:     models.TaskStatusInProgress,
		to:          models.TaskStatusInternalReview,
		activity:    models.ActivityStatusChanged,
	})
}

// InternalReviewDecision approves an internally reviewed task to client_review or sends it
// back to in_progress. Internal rejection never touches the revision counter.
func (m *Machine) InternalReviewDecision(
	ctx context.Context,
	workspaceID, taskID, actorID string,
	decision Decision,
) (*models.Task, error) {
	if !decision.Valid() {
		return nil, models.NewValidationError("decision", fmt.Sprintf("unknown decision %q", decision))
	}

	to := models.TaskStatusClientReview
	if decision == DecisionReject {
		to = models.TaskStatusInProgress
	}

	return m.move(ctx, move{
		op:          "internal_review_decision",
		workspaceID: workspaceID,
		taskID:      taskID,
		actorID:     actorID,
		require:     models.TaskStatusInternalReview,
		to:          to,
		decision:    decision,
		activity:    models.ActivityInternalReview,
	})
}

// ClientReviewDecision approves a task or sends it back for revision. Rejection requires
// a non-blank reason, which becomes the task's last client feedback.
func (m *Machine) ClientReviewDecision(
	ctx context.Context,
	workspaceID, taskID, actorID string,
	decision Decision,
	reason string,
) (*models.Task, error) {
	if !decision.Valid() {
		return nil, models.NewValidationError("decision", fmt.Sprintf("unknown decision %q", decision))
	}

	to := models.TaskStatusApproved

	if decision == DecisionReject {
		if strings.TrimSpace(reason) == "" {
			return nil, models.NewValidationError("reason", "a reason is required to reject a task")
		}

		to = models.TaskStatusInProgress
	}

	return m.move(ctx, move{
		op:          "client_review_decision",
		workspaceID: workspaceID,
		taskID:      taskID,
		actorID:     actorID,
		require:     models.TaskStatusClientReview,
		to:          to,
		reason:      reason,
		decision:    decision,
		activity:    models.ActivityClientReview,
	})
}

// Transition moves a task along any edge of the graph with the same side effects as the
// explicit operations. It backs change_status actions and forced transitions.
func (m *Machine) Transition(
	ctx context.Context,
	workspaceID, taskID, actorID string,
	to models.TaskStatus,
	reason string,
) (*models.Task, error) {
	if !to.Valid() {
		return nil, models.NewValidationError("to", fmt.Sprintf("unknown status %q", to))
	}

	return m.move(ctx, move{
		op:          "transition",
		workspaceID: workspaceID,
		taskID:      taskID,
		actorID:     actorID,
		to:          to,
		reason:      reason,
		activity:    models.ActivityStatusChanged,
	})
}

type move struct {
	op          string
	workspaceID string
	taskID      string
	actorID     string
	require     models.TaskStatus
	to          models.TaskStatus
	reason      string
	decision    Decision
	activity    models.ActivityType
}

func (m *Machine) move(ctx context.Context, mv move) (*models.Task, error) {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "lifecycle."+mv.op,
		attribute.String(otelhelper.WorkspaceIDKey, mv.workspaceID),
		attribute.String(otelhelper.TaskIDKey, mv.taskID),
		attribute.String(otelhelper.ToStatusKey, string(mv.to)),
	)
	defer span.End()

	task, err := m.commit(ctx, mv)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	return task, nil
}

func (m *Machine) commit(ctx context.Context, mv move) (*models.Task, error) {
	current, err := m.tasks.GetByID(ctx, mv.workspaceID, mv.taskID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", mv.op, err)
	}

	from := current.Status

	if mv.require != "" && from != mv.require {
		return nil, models.NewTransitionError(mv.op, mv.taskID, from, mv.to)
	}

	if !CanTransition(from, mv.to) {
		return nil, models.NewTransitionError(mv.op, mv.taskID, from, mv.to)
	}

	if isClientRejection(from, mv.to) && strings.TrimSpace(mv.reason) == "" {
		return nil, models.NewValidationError("reason", "a reason is required to reject a task")
	}

	next := current.Clone()
	applyEffects(next, mv.to, mv.reason)
	next.UpdatedAt = m.clock.Now().UTC()

	err = m.tasks.UpdateLifecycle(ctx, next, from)
	if err != nil {
		if errors.Is(err, persistence.ErrStatusConflict) {
			return nil, models.NewTransitionError(mv.op, mv.taskID, from, mv.to)
		}

		return nil, fmt.Errorf("%s: %w", mv.op, err)
	}

	m.metrics.Transition(string(from), string(mv.to))

	logger := m.logger.With("task_id", mv.taskID, "workspace_id", mv.workspaceID)
	logger.InfoContext(ctx, "task status changed",
		"op", mv.op, "previous_status", from, "new_status", mv.to, "actor_id", mv.actorID)

	m.record(ctx, logger, next, mv, from)
	m.emit(ctx, logger, next, mv, from)

	return next, nil
}

// record appends the transition's activity entry.
func (m *Machine) record(ctx context.Context, logger *slog.Logger, task *models.Task, mv move, from models.TaskStatus) {
	metadata := map[string]any{
		"previous_status": string(from),
		"new_status":      string(mv.to),
	}

	if mv.actorID != "" {
		metadata["actor_id"] = mv.actorID
	}

	if mv.decision != "" {
		metadata["decision"] = string(mv.decision)
	}

	if isClientRejection(from, mv.to) {
		metadata["reason"] = mv.reason
		metadata["internal_revision_count"] = task.InternalRevisionCount
	}

	m.append(ctx, logger, task, mv.activity, metadata)
}

func (m *Machine) emit(ctx context.Context, logger *slog.Logger, task *models.Task, mv move, from models.TaskStatus) {
	m.publish(ctx, logger, &models.TriggerEvent{
		Type:        models.TriggerStatusChanged,
		WorkspaceID: task.WorkspaceID,
		Task:        task.Clone(),
		OldStatus:   from,
		NewStatus:   mv.to,
		ActorID:     mv.actorID,
		OccurredAt:  m.clock.Now().UTC(),
	})
}

// append writes an activity entry. The mutation has already committed, so a failed
// append is logged instead of failing the caller.
func (m *Machine) append(ctx context.Context, logger *slog.Logger, task *models.Task, kind models.ActivityType, metadata map[string]any) {
	if ruleID := events.RuleFrom(ctx); ruleID != "" {
		metadata["rule_id"] = ruleID
	}

	err := m.activity.Append(ctx, &models.ActivityLogEntry{
		ID:          uuid.NewString(),
		WorkspaceID: task.WorkspaceID,
		RecordID:    task.ID,
		ActionType:  kind,
		Metadata:    metadata,
		CreatedAt:   m.clock.Now().UTC(),
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to append activity entry", "action_type", kind, "error", err)
	}
}

func (m *Machine) publish(ctx context.Context, logger *slog.Logger, trigger *models.TriggerEvent) {
	if m.emitter == nil {
		return
	}

	if err := m.emitter.Emit(ctx, trigger); err != nil {
		logger.ErrorContext(ctx, "failed to emit trigger event", "event_type", trigger.Type, "error", err)
	}
}
