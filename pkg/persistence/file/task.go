package file

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/agencyops/taskflow/pkg/models"
	"github.com/agencyops/taskflow/pkg/persistence"
)

const tasksDir = "tasks"

// TaskRepository handles task-related file operations.
type TaskRepository struct {
	store *store
}

// Create stores a new task. The ID must not be in use in the workspace.
func (tr *TaskRepository) Create(_ context.Context, task *models.Task) error {
	tr.store.mu.Lock()
	defer tr.store.mu.Unlock()

	filePath, err := tr.store.path(task.WorkspaceID, tasksDir, task.ID)
	if err != nil {
		return err
	}

	var existing models.Task

	found, err := tr.store.read(filePath, &existing)
	if err != nil {
		return err
	}

	if found {
		return persistence.NewTaskError("Create", task.WorkspaceID, task.ID, persistence.ErrTaskAlreadyExists)
	}

	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}

	task.UpdatedAt = now

	return tr.store.write(filePath, task)
}

// GetByID retrieves a task by its ID from the workspace directory.
func (tr *TaskRepository) GetByID(_ context.Context, workspaceID, id string) (*models.Task, error) {
	tr.store.mu.Lock()
	defer tr.store.mu.Unlock()

	return tr.load("GetByID", workspaceID, id)
}

func (tr *TaskRepository) load(op, workspaceID, id string) (*models.Task, error) {
	return loadTask(tr.store, op, workspaceID, id)
}

// loadTask reads a task without taking the lock; callers must hold it.
func loadTask(s *store, op, workspaceID, id string) (*models.Task, error) {
	filePath, err := s.path(workspaceID, tasksDir, id)
	if err != nil {
		return nil, persistence.NewTaskError(op, workspaceID, id, err)
	}

	var task models.Task

	found, err := s.read(filePath, &task)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch task %s: %w", id, err)
	}

	if !found || task.WorkspaceID != workspaceID {
		return nil, persistence.NewTaskError(op, workspaceID, id, persistence.ErrTaskNotFound)
	}

	return &task, nil
}

// List returns the workspace's tasks ordered by creation time with in-memory filtering.
func (tr *TaskRepository) List(_ context.Context, workspaceID string, opts persistence.ListTasksOptions) ([]*models.Task, error) {
	if err := validateID(workspaceID); err != nil {
		return nil, fmt.Errorf("invalid workspace ID: %w", err)
	}

	tr.store.mu.Lock()
	defer tr.store.mu.Unlock()

	files, err := tr.store.glob(path.Join("workspaces", workspaceID, tasksDir, "*.json"))
	if err != nil {
		return nil, err
	}

	tasks := make([]*models.Task, 0, len(files))

	for _, file := range files {
		id := strings.TrimSuffix(path.Base(file), ".json")

		task, err := tr.load("List", workspaceID, id)
		if err != nil {
			return nil, err
		}

		if opts.Status != "" && task.Status != opts.Status {
			continue
		}

		if opts.AssigneeID != "" && task.AssigneeID != opts.AssigneeID {
			continue
		}

		tasks = append(tasks, task)
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}

		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})

	return paginate(tasks, opts.Offset, opts.Limit), nil
}

// UpdateFields writes the editable fields, leaving lifecycle and timer state untouched.
func (tr *TaskRepository) UpdateFields(_ context.Context, task *models.Task) error {
	return tr.update("UpdateFields", task.WorkspaceID, task.ID, func(stored *models.Task) error {
		stored.Title = task.Title
		stored.Priority = task.Priority
		stored.AssigneeID = task.AssigneeID
		stored.CustomFields = task.CustomFields

		return nil
	}, task)
}

// UpdateLifecycle writes the lifecycle fields if the stored status still equals expected.
func (tr *TaskRepository) UpdateLifecycle(_ context.Context, task *models.Task, expected models.TaskStatus) error {
	return tr.update("UpdateLifecycle", task.WorkspaceID, task.ID, func(stored *models.Task) error {
		if stored.Status != expected {
			return persistence.ErrStatusConflict
		}

		stored.Status = task.Status
		stored.InternalRevisionCount = task.InternalRevisionCount
		stored.ClientViewStatus = task.ClientViewStatus
		stored.LastClientFeedback = task.LastClientFeedback

		return nil
	}, task)
}

// update applies mutate to the stored task under the lock and copies the result into out.
func (tr *TaskRepository) update(op, workspaceID, id string, mutate func(*models.Task) error, out *models.Task) error {
	tr.store.mu.Lock()
	defer tr.store.mu.Unlock()

	stored, err := tr.load(op, workspaceID, id)
	if err != nil {
		return err
	}

	if err := mutate(stored); err != nil {
		return persistence.NewTaskError(op, workspaceID, id, err)
	}

	stored.UpdatedAt = time.Now().UTC()

	filePath, err := tr.store.path(workspaceID, tasksDir, id)
	if err != nil {
		return err
	}

	if err := tr.store.write(filePath, stored); err != nil {
		return err
	}

	if out != nil {
		*out = *stored
	}

	return nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return []T{}
		}

		items = items[offset:]
	}

	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}

	return items
}
