package file

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/agencyops/taskflow/pkg/models"
	"github.com/agencyops/taskflow/pkg/persistence"
)

const sessionsDir = "sessions"

// TimerRepository stores the timer columns of task files and per-task session logs.
type TimerRepository struct {
	store *store
}

// StartTimer sets the active timer if none is running.
func (tr *TimerRepository) StartTimer(_ context.Context, workspaceID, taskID, userID string, startedAt time.Time) error {
	tr.store.mu.Lock()
	defer tr.store.mu.Unlock()

	task, err := loadTask(tr.store, "StartTimer", workspaceID, taskID)
	if err != nil {
		return err
	}

	if task.ActiveTimerStart != nil {
		return persistence.NewTaskError("StartTimer", workspaceID, taskID, persistence.ErrTimerAlreadyActive)
	}

	start := startedAt.UTC()
	task.ActiveTimerStart = &start
	task.ActiveTimerUserID = userID
	task.UpdatedAt = time.Now().UTC()

	filePath, err := tr.store.path(workspaceID, tasksDir, taskID)
	if err != nil {
		return err
	}

	return tr.store.write(filePath, task)
}

// CompleteTimer closes the session that started at entry.StartedAt.
func (tr *TimerRepository) CompleteTimer(_ context.Context, entry *models.TimerLogEntry) error {
	tr.store.mu.Lock()
	defer tr.store.mu.Unlock()

	task, err := loadTask(tr.store, "CompleteTimer", entry.WorkspaceID, entry.TaskID)
	if err != nil {
		return err
	}

	if task.ActiveTimerStart == nil || !task.ActiveTimerStart.Equal(entry.StartedAt) {
		return persistence.NewTaskError("CompleteTimer", entry.WorkspaceID, entry.TaskID, persistence.ErrTimerNotActive)
	}

	task.TimeSpentMinutes += entry.DurationMinutes
	task.ActiveTimerStart = nil
	task.ActiveTimerUserID = ""
	task.UpdatedAt = time.Now().UTC()

	taskPath, err := tr.store.path(entry.WorkspaceID, tasksDir, entry.TaskID)
	if err != nil {
		return err
	}

	logPath, err := tr.store.path(entry.WorkspaceID, sessionsDir, entry.TaskID)
	if err != nil {
		return err
	}

	if err := appendLog(tr.store, logPath, entry); err != nil {
		return fmt.Errorf("failed to append session log: %w", err)
	}

	return tr.store.write(taskPath, task)
}

// ListSessions returns the closed sessions of a task in the order they were logged.
func (tr *TimerRepository) ListSessions(_ context.Context, workspaceID, taskID string) ([]*models.TimerLogEntry, error) {
	tr.store.mu.Lock()
	defer tr.store.mu.Unlock()

	logPath, err := tr.store.path(workspaceID, sessionsDir, taskID)
	if err != nil {
		return nil, err
	}

	entries := make([]*models.TimerLogEntry, 0)
	if _, err := tr.store.read(logPath, &entries); err != nil {
		return nil, err
	}

	return entries, nil
}

// ListActive scans every workspace for sessions started before the cutoff.
func (tr *TimerRepository) ListActive(_ context.Context, startedBefore time.Time) ([]*models.Task, error) {
	tr.store.mu.Lock()
	defer tr.store.mu.Unlock()

	files, err := tr.store.glob(path.Join("workspaces", "*", tasksDir, "*.json"))
	if err != nil {
		return nil, err
	}

	var tasks []*models.Task

	for _, file := range files {
		parts := strings.Split(file, "/")
		if len(parts) != 4 {
			continue
		}

		task, err := loadTask(tr.store, "ListActive", parts[1], strings.TrimSuffix(parts[3], ".json"))
		if err != nil {
			return nil, err
		}

		if task.ActiveTimerStart != nil && task.ActiveTimerStart.Before(startedBefore) {
			tasks = append(tasks, task)
		}
	}

	return tasks, nil
}
