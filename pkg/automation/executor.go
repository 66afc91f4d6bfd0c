package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/agencyops/taskflow/pkg/events"
	"github.com/agencyops/taskflow/pkg/metrics"
	"github.com/agencyops/taskflow/pkg/models"
	"github.com/agencyops/taskflow/pkg/notify"
	"github.com/agencyops/taskflow/pkg/otelhelper"
	"github.com/agencyops/taskflow/pkg/persistence"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TaskOperations is the slice of the lifecycle state machine actions mutate tasks through.
type TaskOperations interface {
	Transition(ctx context.Context, workspaceID, taskID, actorID string, to models.TaskStatus, reason string) (*models.Task, error)
	Create(ctx context.Context, task *models.Task, actorID string) (*models.Task, error)
}

// RetryPolicy bounds how transient action failures are retried.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:      2,
	InitialInterval: 100 * time.Millisecond,
	MaxInterval:     2 * time.Second,
}

// ActionResult is the outcome of one action of a chain.
type ActionResult struct {
	Index    int               `json:"index"`
	Type     models.ActionType `json:"type"`
	Attempts int               `json:"attempts"`
	Err      error             `json:"-"`
}

func (r ActionResult) Succeeded() bool {
	return r.Err == nil
}

// RunReport describes one run of a rule's action chain.
type RunReport struct {
	RuleID  string
	EventID string
	TaskID  string
	Results []ActionResult

	errs *multierror.Error
}

// Err aggregates every failed action, or returns nil when all succeeded.
func (r *RunReport) Err() error {
	return r.errs.ErrorOrNil()
}

// Failed counts the failed actions.
func (r *RunReport) Failed() int {
	n := 0

	for _, result := range r.Results {
		if !result.Succeeded() {
			n++
		}
	}

	return n
}

// Executor runs action chains in order. Each action is isolated: a failure is logged and
// recorded against the rule and action index, and the chain continues.
type Executor struct {
	tasks    TaskOperations
	comments persistence.CommentRepository
	activity persistence.ActivityRepository
	notifier notify.Notifier
	logger   *slog.Logger
	clock    clockwork.Clock
	tracer   trace.Tracer
	metrics  *metrics.Metrics
	retry    RetryPolicy
}

type ExecutorOption func(*Executor)

func WithRetryPolicy(policy RetryPolicy) ExecutorOption {
	return func(e *Executor) {
		e.retry = policy
	}
}

func WithExecutorClock(clock clockwork.Clock) ExecutorOption {
	return func(e *Executor) {
		e.clock = clock
	}
}

func WithExecutorTracer(tracer trace.Tracer) ExecutorOption {
	return func(e *Executor) {
		e.tracer = tracer
	}
}

func WithExecutorMetrics(collectors *metrics.Metrics) ExecutorOption {
	return func(e *Executor) {
		e.metrics = collectors
	}
}

func NewExecutor(
	tasks TaskOperations,
	p persistence.Persistence,
	notifier notify.Notifier,
	logger *slog.Logger,
	opts ...ExecutorOption,
) *Executor {
	e := &Executor{
		tasks:    tasks,
		comments: p.CommentRepository(),
		activity: p.ActivityRepository(),
		notifier: notifier,
		logger:   logger.With("module", "action_executor"),
		clock:    clockwork.NewRealClock(),
		retry:    DefaultRetryPolicy,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.tracer = otelhelper.Tracer(e.tracer, "taskflow/automation")

	return e
}

// Run executes rule's action chain for event. Actions run one hop deeper than the event,
// so any trigger event they cause carries the incremented depth.
func (e *Executor) Run(ctx context.Context, rule *models.AutomationRule, event *models.TriggerEvent) *RunReport {
	report := &RunReport{RuleID: rule.ID, EventID: event.ID}
	if event.Task != nil {
		report.TaskID = event.Task.ID
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "automation.run_rule",
		attribute.String(otelhelper.RuleIDKey, rule.ID),
		attribute.String(otelhelper.EventIDKey, event.ID),
		attribute.String(otelhelper.EventTypeKey, string(event.Type)),
		attribute.String(otelhelper.TaskIDKey, report.TaskID),
		attribute.Int(otelhelper.DepthKey, event.Depth),
	)
	defer span.End()

	started := e.clock.Now()
	ctx = events.WithRule(events.WithDepth(ctx, event.Depth+1), rule.ID)

	logger := e.logger.With(
		"rule_id", rule.ID,
		"event_id", event.ID,
		"task_id", report.TaskID,
		"workspace_id", event.WorkspaceID,
	)

	for index, action := range rule.ActionChain {
		result := e.runAction(ctx, logger, rule, event, index, action)
		report.Results = append(report.Results, result)

		if result.Err != nil {
			report.errs = multierror.Append(report.errs, result.Err)
		}
	}

	if err := report.Err(); err != nil {
		otelhelper.SetError(span, err)
	}

	e.metrics.RuleRun(string(event.Type), e.clock.Since(started).Seconds())

	logger.InfoContext(ctx, "rule executed",
		"actions", len(report.Results),
		"failed", report.Failed())

	return report
}

func (e *Executor) runAction(
	ctx context.Context,
	logger *slog.Logger,
	rule *models.AutomationRule,
	event *models.TriggerEvent,
	index int,
	action models.Action,
) ActionResult {
	result := ActionResult{Index: index, Type: action.Type}
	logger = logger.With("action_index", index, "action_type", action.Type)

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "automation.action",
		attribute.String(otelhelper.ActionTypeKey, string(action.Type)),
		attribute.Int(otelhelper.ActionIndexKey, index),
	)
	defer span.End()

	operation := func() error {
		result.Attempts++

		err := e.execute(ctx, rule, event, action)
		if err == nil {
			return nil
		}

		if models.IsPermanent(err) || persistence.IsNotFound(err) || errors.Is(err, notify.ErrNoMessage) {
			return backoff.Permanent(err)
		}

		e.metrics.Action(string(action.Type), metrics.OutcomeRetried)
		logger.DebugContext(ctx, "action failed, retrying", "attempt", result.Attempts, "error", err)

		return err
	}

	err := backoff.Retry(operation, e.backoff(ctx))
	if err == nil {
		e.metrics.Action(string(action.Type), metrics.OutcomeSucceeded)
		logger.DebugContext(ctx, "action completed")

		return result
	}

	result.Err = &models.ActionError{RuleID: rule.ID, Index: index, Type: action.Type, Err: err}

	otelhelper.SetError(span, err)
	e.metrics.Action(string(action.Type), metrics.OutcomeFailed)
	logger.WarnContext(ctx, "action failed", "attempts", result.Attempts, "error", err)
	e.recordFailure(ctx, logger, rule, event, result)

	return result
}

func (e *Executor) backoff(ctx context.Context) backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = e.retry.InitialInterval
	policy.MaxInterval = e.retry.MaxInterval
	policy.MaxElapsedTime = 0

	return backoff.WithContext(backoff.WithMaxRetries(policy, e.retry.MaxRetries), ctx)
}

func (e *Executor) execute(ctx context.Context, rule *models.AutomationRule, event *models.TriggerEvent, action models.Action) error {
	if err := action.Validate(); err != nil {
		return err
	}

	if event.Task == nil {
		return models.NewValidationError("task", "trigger event carries no task")
	}

	switch action.Type {
	case models.ActionChangeStatus:
		return e.changeStatus(ctx, rule, event, action.ChangeStatus)
	case models.ActionCreateTask:
		return e.createTask(ctx, event, action.CreateTask)
	case models.ActionNotify:
		return e.notify(ctx, rule, event, action.Notify)
	case models.ActionSendComment:
		return e.sendComment(ctx, event, action.SendComment)
	default:
		return models.NewValidationError("type", fmt.Sprintf("unknown action type %q", action.Type))
	}
}

func (e *Executor) changeStatus(ctx context.Context, rule *models.AutomationRule, event *models.TriggerEvent, params *models.ChangeStatusParams) error {
	reason := strings.TrimSpace(Render(params.Reason, event))
	if reason == "" {
		reason = "Rejected by automation rule " + ruleLabel(rule)
	}

	_, err := e.tasks.Transition(ctx, event.WorkspaceID, event.Task.ID, "", params.To, reason)

	return err
}

func (e *Executor) createTask(ctx context.Context, event *models.TriggerEvent, params *models.CreateTaskParams) error {
	var assignee string
	if params.Assignee != "" {
		if resolved := ResolveMentions([]string{params.Assignee}, event.Task); len(resolved) > 0 {
			assignee = resolved[0]
		}
	}

	_, err := e.tasks.Create(ctx, &models.Task{
		WorkspaceID: event.WorkspaceID,
		Title:       Render(params.Title, event),
		Priority:    params.Priority,
		AssigneeID:  assignee,
	}, "")

	return err
}

func (e *Executor) notify(ctx context.Context, rule *models.AutomationRule, event *models.TriggerEvent, params *models.NotifyParams) error {
	return e.notifier.Notify(ctx, notify.Notification{
		WorkspaceID: event.WorkspaceID,
		TaskID:      event.Task.ID,
		RuleID:      rule.ID,
		Message:     Render(params.Template, event),
		Recipients:  ResolveMentions(params.Mentions, event.Task),
	})
}

func (e *Executor) sendComment(ctx context.Context, event *models.TriggerEvent, params *models.SendCommentParams) error {
	content := strings.TrimSpace(Render(params.Content, event))
	if content == "" {
		return models.NewValidationError("content", "rendered comment is empty")
	}

	comment := &models.Comment{
		ID:          uuid.NewString(),
		WorkspaceID: event.WorkspaceID,
		TaskID:      event.Task.ID,
		AuthorID:    models.CommentAuthorAutomation,
		Content:     content,
		CreatedAt:   e.clock.Now().UTC(),
	}

	if err := e.comments.Add(ctx, comment); err != nil {
		return err
	}

	return e.activity.Append(ctx, &models.ActivityLogEntry{
		ID:          uuid.NewString(),
		WorkspaceID: event.WorkspaceID,
		RecordID:    event.Task.ID,
		ActionType:  models.ActivityCommentAdded,
		Metadata: map[string]any{
			"comment_id": comment.ID,
			"author_id":  comment.AuthorID,
			"rule_id":    events.RuleFrom(ctx),
		},
		CreatedAt: comment.CreatedAt,
	})
}

func (e *Executor) recordFailure(ctx context.Context, logger *slog.Logger, rule *models.AutomationRule, event *models.TriggerEvent, result ActionResult) {
	if event.Task == nil {
		return
	}

	err := e.activity.Append(ctx, &models.ActivityLogEntry{
		ID:          uuid.NewString(),
		WorkspaceID: event.WorkspaceID,
		RecordID:    event.Task.ID,
		ActionType:  models.ActivityAutomationActionFail,
		Metadata: map[string]any{
			"rule_id":      rule.ID,
			"event_id":     event.ID,
			"action_index": result.Index,
			"action_type":  string(result.Type),
			"attempts":     result.Attempts,
			"error":        errors.Unwrap(result.Err).Error(),
		},
		CreatedAt: e.clock.Now().UTC(),
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to record action failure", "error", err)
	}
}

func ruleLabel(rule *models.AutomationRule) string {
	if rule.Name != "" {
		return rule.Name
	}

	return rule.ID
}
