package file

import (
	"context"

	"github.com/agencyops/taskflow/pkg/models"
)

const (
	activityDir = "activity"
	commentsDir = "comments"
)

// ActivityRepository appends activity entries to one JSON array per record.
type ActivityRepository struct {
	store *store
}

func (ar *ActivityRepository) Append(_ context.Context, entry *models.ActivityLogEntry) error {
	ar.store.mu.Lock()
	defer ar.store.mu.Unlock()

	filePath, err := ar.store.path(entry.WorkspaceID, activityDir, entry.RecordID)
	if err != nil {
		return err
	}

	return appendLog(ar.store, filePath, entry)
}

func (ar *ActivityRepository) ListByRecord(_ context.Context, workspaceID, recordID string) ([]*models.ActivityLogEntry, error) {
	ar.store.mu.Lock()
	defer ar.store.mu.Unlock()

	filePath, err := ar.store.path(workspaceID, activityDir, recordID)
	if err != nil {
		return nil, err
	}

	entries := make([]*models.ActivityLogEntry, 0)
	if _, err := ar.store.read(filePath, &entries); err != nil {
		return nil, err
	}

	return entries, nil
}

// CommentRepository appends comments to one JSON array per task.
type CommentRepository struct {
	store *store
}

func (cr *CommentRepository) Add(_ context.Context, comment *models.Comment) error {
	cr.store.mu.Lock()
	defer cr.store.mu.Unlock()

	filePath, err := cr.store.path(comment.WorkspaceID, commentsDir, comment.TaskID)
	if err != nil {
		return err
	}

	return appendLog(cr.store, filePath, comment)
}

func (cr *CommentRepository) ListByTask(_ context.Context, workspaceID, taskID string) ([]*models.Comment, error) {
	cr.store.mu.Lock()
	defer cr.store.mu.Unlock()

	filePath, err := cr.store.path(workspaceID, commentsDir, taskID)
	if err != nil {
		return nil, err
	}

	comments := make([]*models.Comment, 0)
	if _, err := cr.store.read(filePath, &comments); err != nil {
		return nil, err
	}

	return comments, nil
}
