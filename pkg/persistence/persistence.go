// Package persistence provides the tenant-scoped storage abstraction for tasks, rules and logs.
//
// Every read and write takes a workspace ID; implementations must never return or
// modify a record that belongs to another workspace.
package persistence

import (
	"context"
	"time"

	"github.com/agencyops/taskflow/pkg/models"
)

type Persistence interface {
	TaskRepository() TaskRepository
	TimerRepository() TimerRepository
	RuleRepository() RuleRepository
	ActivityRepository() ActivityRepository
	CommentRepository() CommentRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ListTasksOptions filters a workspace's task listing.
type ListTasksOptions struct {
	Status     models.TaskStatus
	AssigneeID string
	Limit      int
	Offset     int
}

// TaskRepository stores tasks. Field edits and lifecycle changes are separate writes
// so that neither can clobber the other or the timer columns.
type TaskRepository interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, workspaceID, id string) (*models.Task, error)
	List(ctx context.Context, workspaceID string, opts ListTasksOptions) ([]*models.Task, error)

	// UpdateFields writes title, priority, assignee and custom fields.
	UpdateFields(ctx context.Context, task *models.Task) error

	// UpdateLifecycle writes status, revision count and client review fields only if the
	// stored status still equals expected; otherwise it returns ErrStatusConflict.
	UpdateLifecycle(ctx context.Context, task *models.Task, expected models.TaskStatus) error
}

// TimerRepository owns the timer columns of a task and the session log.
type TimerRepository interface {
	// StartTimer sets active_timer_start only if it is currently null (compare-and-set).
	// It returns ErrTimerAlreadyActive when another session holds the task.
	StartTimer(ctx context.Context, workspaceID, taskID, userID string, startedAt time.Time) error

	// CompleteTimer clears active_timer_start only if it still equals entry.StartedAt, adds
	// entry.DurationMinutes to time_spent_minutes and appends entry to the session log,
	// atomically. It returns ErrTimerNotActive when the session was already closed.
	CompleteTimer(ctx context.Context, entry *models.TimerLogEntry) error

	ListSessions(ctx context.Context, workspaceID, taskID string) ([]*models.TimerLogEntry, error)

	// ListActive returns tasks in every workspace whose session started before cutoff.
	ListActive(ctx context.Context, startedBefore time.Time) ([]*models.Task, error)
}

// RuleRepository stores automation rules.
type RuleRepository interface {
	Save(ctx context.Context, rule *models.AutomationRule) error
	GetByID(ctx context.Context, workspaceID, id string) (*models.AutomationRule, error)
	List(ctx context.Context, workspaceID string) ([]*models.AutomationRule, error)

	// ListActive returns active rules for the trigger in creation order.
	ListActive(ctx context.Context, workspaceID string, trigger models.TriggerEventType) ([]*models.AutomationRule, error)
}

// ActivityRepository is the append-only activity log.
type ActivityRepository interface {
	Append(ctx context.Context, entry *models.ActivityLogEntry) error
	ListByRecord(ctx context.Context, workspaceID, recordID string) ([]*models.ActivityLogEntry, error)
}

// CommentRepository stores task comments.
type CommentRepository interface {
	Add(ctx context.Context, comment *models.Comment) error
	ListByTask(ctx context.Context, workspaceID, taskID string) ([]*models.Comment, error)
}
