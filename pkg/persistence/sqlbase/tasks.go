package sqlbase

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agencyops/taskflow/pkg/models"
	"github.com/agencyops/taskflow/pkg/persistence"
)

const taskColumns = `
	id
  , workspace_id
  , title
  , status
  , priority
  , assignee_id
  , time_spent_minutes
  , active_timer_start
  , active_timer_user_id
  , internal_revision_count
  , client_view_status
  , last_client_feedback
  , custom_fields
  , created_at
  , updated_at`

// TaskRepository handles task-related database operations.
type TaskRepository struct {
	repo
}

// Create inserts a new task. The (workspace, id) pair must be unused.
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}

	task.UpdatedAt = now

	customFields, err := marshalJSON(task.CustomFields)
	if err != nil {
		return fmt.Errorf("failed to marshal custom fields: %w", err)
	}

	var clientView *string
	if task.ClientViewStatus != nil {
		s := string(*task.ClientViewStatus)
		clientView = &s
	}

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (workspace_id, id) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, r.dialect.Rebind(query),
		task.ID,
		task.WorkspaceID,
		task.Title,
		string(task.Status),
		task.Priority,
		task.AssigneeID,
		task.TimeSpentMinutes,
		r.dialect.NullTime(task.ActiveTimerStart),
		task.ActiveTimerUserID,
		task.InternalRevisionCount,
		clientView,
		task.LastClientFeedback,
		customFields,
		r.dialect.Time(task.CreatedAt),
		r.dialect.Time(task.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.NewTaskError("Create", task.WorkspaceID, task.ID, persistence.ErrTaskAlreadyExists)
	}

	return nil
}

// GetByID retrieves a task scoped to its workspace.
func (r *TaskRepository) GetByID(ctx context.Context, workspaceID, id string) (*models.Task, error) {
	return r.get(ctx, r.db, "GetByID", workspaceID, id)
}

func (r *TaskRepository) get(ctx context.Context, q querier, op, workspaceID, id string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE workspace_id = ? AND id = ?`

	task, err := scanTask(q.QueryRowContext(ctx, r.dialect.Rebind(query), workspaceID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewTaskError(op, workspaceID, id, persistence.ErrTaskNotFound)
		}

		return nil, fmt.Errorf("failed to scan task: %w", err)
	}

	return task, nil
}

// List returns the workspace's tasks ordered by creation time.
func (r *TaskRepository) List(ctx context.Context, workspaceID string, opts persistence.ListTasksOptions) ([]*models.Task, error) {
	var (
		where = []string{"workspace_id = ?"}
		args  = []any{workspaceID}
	)

	if opts.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(opts.Status))
	}

	if opts.AssigneeID != "" {
		where = append(where, "assignee_id = ?")
		args = append(args, opts.AssigneeID)
	}

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at, id`

	if opts.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`

		args = append(args, opts.Limit, max(opts.Offset, 0))
	}

	tasks, err := r.queryTasks(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	if opts.Limit <= 0 && opts.Offset > 0 {
		if opts.Offset >= len(tasks) {
			return []*models.Task{}, nil
		}

		tasks = tasks[opts.Offset:]
	}

	return tasks, nil
}

func (r *TaskRepository) queryTasks(ctx context.Context, query string, args ...any) ([]*models.Task, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}

	defer r.closeRows(ctx, rows)

	tasks := make([]*models.Task, 0)

	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}

		tasks = append(tasks, task)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

// UpdateFields writes the editable fields and reloads the task into the argument.
func (r *TaskRepository) UpdateFields(ctx context.Context, task *models.Task) error {
	customFields, err := marshalJSON(task.CustomFields)
	if err != nil {
		return fmt.Errorf("failed to marshal custom fields: %w", err)
	}

	query := `
		UPDATE tasks SET
			title = ?
		  , priority = ?
		  , assignee_id = ?
		  , custom_fields = ?
		  , updated_at = ?
		WHERE workspace_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.dialect.Rebind(query),
		task.Title,
		task.Priority,
		task.AssigneeID,
		customFields,
		r.dialect.Time(time.Now()),
		task.WorkspaceID,
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task fields: %w", err)
	}

	if err := requireAffected(result); err != nil {
		return persistence.NewTaskError("UpdateFields", task.WorkspaceID, task.ID, persistence.ErrTaskNotFound)
	}

	return r.reload(ctx, task)
}

// UpdateLifecycle writes the lifecycle fields if the stored status still equals expected.
func (r *TaskRepository) UpdateLifecycle(ctx context.Context, task *models.Task, expected models.TaskStatus) error {
	var clientView *string
	if task.ClientViewStatus != nil {
		s := string(*task.ClientViewStatus)
		clientView = &s
	}

	query := `
		UPDATE tasks SET
			status = ?
		  , internal_revision_count = ?
		  , client_view_status = ?
		  , last_client_feedback = ?
		  , updated_at = ?
		WHERE workspace_id = ? AND id = ? AND status = ?
	`

	result, err := r.db.ExecContext(ctx, r.dialect.Rebind(query),
		string(task.Status),
		task.InternalRevisionCount,
		clientView,
		task.LastClientFeedback,
		r.dialect.Time(time.Now()),
		task.WorkspaceID,
		task.ID,
		string(expected),
	)
	if err != nil {
		return fmt.Errorf("failed to update task lifecycle: %w", err)
	}

	if err := requireAffected(result); err != nil {
		if _, getErr := r.get(ctx, r.db, "UpdateLifecycle", task.WorkspaceID, task.ID); getErr != nil {
			return getErr
		}

		return persistence.NewTaskError("UpdateLifecycle", task.WorkspaceID, task.ID, persistence.ErrStatusConflict)
	}

	return r.reload(ctx, task)
}

func (r *TaskRepository) reload(ctx context.Context, task *models.Task) error {
	stored, err := r.GetByID(ctx, task.WorkspaceID, task.ID)
	if err != nil {
		return err
	}

	*task = *stored

	return nil
}

func scanTask(row rowScanner) (*models.Task, error) {
	var (
		task         models.Task
		status       string
		timerStart   Timestamp
		clientView   sql.NullString
		feedback     sql.NullString
		customFields sql.NullString
		createdAt    Timestamp
		updatedAt    Timestamp
	)

	err := row.Scan(
		&task.ID,
		&task.WorkspaceID,
		&task.Title,
		&status,
		&task.Priority,
		&task.AssigneeID,
		&task.TimeSpentMinutes,
		&timerStart,
		&task.ActiveTimerUserID,
		&task.InternalRevisionCount,
		&clientView,
		&feedback,
		&customFields,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Status = models.TaskStatus(status)
	task.ActiveTimerStart = timerStart.Ptr()
	task.CreatedAt = createdAt.Time
	task.UpdatedAt = updatedAt.Time

	if clientView.Valid {
		cv := models.ClientViewStatus(clientView.String)
		task.ClientViewStatus = &cv
	}

	if feedback.Valid {
		fb := feedback.String
		task.LastClientFeedback = &fb
	}

	if customFields.Valid && customFields.String != "" && customFields.String != "null" {
		if err := json.Unmarshal([]byte(customFields.String), &task.CustomFields); err != nil {
			return nil, fmt.Errorf("failed to unmarshal custom fields: %w", err)
		}
	}

	return &task, nil
}

var errNoRowsAffected = errors.New("no rows affected")

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return errNoRowsAffected
	}

	return nil
}

func marshalJSON(v any) (jsonText, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	return jsonText(data), nil
}
