package sqlbase

import (
	"context"
	"fmt"
	"time"

	"github.com/agencyops/taskflow/pkg/models"
	"github.com/agencyops/taskflow/pkg/persistence"
)

// TimerRepository owns the timer columns of tasks and the timer_sessions table.
type TimerRepository struct {
	repo
}

// StartTimer is a single conditional UPDATE so concurrent starts cannot both win.
func (r *TimerRepository) StartTimer(ctx context.Context, workspaceID, taskID, userID string, startedAt time.Time) error {
	query := `
		UPDATE tasks SET
			active_timer_start = ?
		  , active_timer_user_id = ?
		  , updated_at = ?
		WHERE workspace_id = ? AND id = ? AND active_timer_start IS NULL
	`

	result, err := r.db.ExecContext(ctx, r.dialect.Rebind(query),
		r.dialect.Time(startedAt),
		userID,
		r.dialect.Time(time.Now()),
		workspaceID,
		taskID,
	)
	if err != nil {
		return fmt.Errorf("failed to start timer: %w", err)
	}

	if err := requireAffected(result); err != nil {
		tasks := TaskRepository{repo: r.repo}
		if _, getErr := tasks.get(ctx, r.db, "StartTimer", workspaceID, taskID); getErr != nil {
			return getErr
		}

		return persistence.NewTaskError("StartTimer", workspaceID, taskID, persistence.ErrTimerAlreadyActive)
	}

	return nil
}

// CompleteTimer closes the session and logs it in one transaction.
func (r *TimerRepository) CompleteTimer(ctx context.Context, entry *models.TimerLogEntry) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	closeQuery := `
		UPDATE tasks SET
			time_spent_minutes = time_spent_minutes + ?
		  , active_timer_start = NULL
		  , active_timer_user_id = ''
		  , updated_at = ?
		WHERE workspace_id = ? AND id = ? AND active_timer_start = ?
	`

	result, err := tx.ExecContext(ctx, r.dialect.Rebind(closeQuery),
		entry.DurationMinutes,
		r.dialect.Time(time.Now()),
		entry.WorkspaceID,
		entry.TaskID,
		r.dialect.Time(entry.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to close timer: %w", err)
	}

	if err = requireAffected(result); err != nil {
		tasks := TaskRepository{repo: r.repo}
		if _, err = tasks.get(ctx, tx, "CompleteTimer", entry.WorkspaceID, entry.TaskID); err != nil {
			return err
		}

		err = persistence.NewTaskError("CompleteTimer", entry.WorkspaceID, entry.TaskID, persistence.ErrTimerNotActive)

		return err
	}

	logQuery := `
		INSERT INTO timer_sessions (id, workspace_id, task_id, user_id, duration_minutes, started_at, stopped_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = tx.ExecContext(ctx, r.dialect.Rebind(logQuery),
		entry.ID,
		entry.WorkspaceID,
		entry.TaskID,
		entry.UserID,
		entry.DurationMinutes,
		r.dialect.Time(entry.StartedAt),
		r.dialect.Time(entry.StoppedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to log timer session: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit timer session: %w", err)
	}

	return nil
}

// ListSessions returns the task's closed sessions in log order.
func (r *TimerRepository) ListSessions(ctx context.Context, workspaceID, taskID string) ([]*models.TimerLogEntry, error) {
	query := `
		SELECT id, workspace_id, task_id, user_id, duration_minutes, started_at, stopped_at
		FROM timer_sessions
		WHERE workspace_id = ? AND task_id = ?
		ORDER BY seq
	`

	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), workspaceID, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query timer sessions: %w", err)
	}

	defer r.closeRows(ctx, rows)

	sessions := make([]*models.TimerLogEntry, 0)

	for rows.Next() {
		var (
			entry            models.TimerLogEntry
			started, stopped Timestamp
		)

		err := rows.Scan(&entry.ID, &entry.WorkspaceID, &entry.TaskID, &entry.UserID,
			&entry.DurationMinutes, &started, &stopped)
		if err != nil {
			return nil, fmt.Errorf("failed to scan timer session: %w", err)
		}

		entry.StartedAt = started.Time
		entry.StoppedAt = stopped.Time
		sessions = append(sessions, &entry)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating timer sessions: %w", err)
	}

	return sessions, nil
}

// ListActive returns running sessions, across workspaces, that started before the cutoff.
func (r *TimerRepository) ListActive(ctx context.Context, startedBefore time.Time) ([]*models.Task, error) {
	tasks := TaskRepository{repo: r.repo}

	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE active_timer_start IS NOT NULL AND active_timer_start < ?
		ORDER BY active_timer_start`

	return tasks.queryTasks(ctx, query, r.dialect.Time(startedBefore))
}
