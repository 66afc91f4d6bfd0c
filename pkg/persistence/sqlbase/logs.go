package sqlbase

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/agencyops/taskflow/pkg/models"
)

// ActivityRepository is the append-only activity_log table.
type ActivityRepository struct {
	repo
}

func (r *ActivityRepository) Append(ctx context.Context, entry *models.ActivityLogEntry) error {
	metadata, err := marshalJSON(entry.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal activity metadata: %w", err)
	}

	query := `
		INSERT INTO activity_log (id, workspace_id, record_id, action_type, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.dialect.Rebind(query),
		entry.ID,
		entry.WorkspaceID,
		entry.RecordID,
		string(entry.ActionType),
		metadata,
		r.dialect.Time(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}

	return nil
}

func (r *ActivityRepository) ListByRecord(ctx context.Context, workspaceID, recordID string) ([]*models.ActivityLogEntry, error) {
	query := `
		SELECT id, workspace_id, record_id, action_type, metadata, created_at
		FROM activity_log
		WHERE workspace_id = ? AND record_id = ?
		ORDER BY seq
	`

	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), workspaceID, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity: %w", err)
	}

	defer r.closeRows(ctx, rows)

	entries := make([]*models.ActivityLogEntry, 0)

	for rows.Next() {
		var (
			entry      models.ActivityLogEntry
			actionType string
			metadata   sql.NullString
			createdAt  Timestamp
		)

		err := rows.Scan(&entry.ID, &entry.WorkspaceID, &entry.RecordID, &actionType, &metadata, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}

		entry.ActionType = models.ActivityType(actionType)
		entry.CreatedAt = createdAt.Time

		if metadata.Valid {
			if err := json.Unmarshal([]byte(metadata.String), &entry.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal activity metadata: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating activity: %w", err)
	}

	return entries, nil
}

// CommentRepository is the append-only comments table.
type CommentRepository struct {
	repo
}

func (r *CommentRepository) Add(ctx context.Context, comment *models.Comment) error {
	query := `
		INSERT INTO comments (id, workspace_id, task_id, author_id, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(query),
		comment.ID,
		comment.WorkspaceID,
		comment.TaskID,
		comment.AuthorID,
		comment.Content,
		r.dialect.Time(comment.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to add comment: %w", err)
	}

	return nil
}

func (r *CommentRepository) ListByTask(ctx context.Context, workspaceID, taskID string) ([]*models.Comment, error) {
	query := `
		SELECT id, workspace_id, task_id, author_id, content, created_at
		FROM comments
		WHERE workspace_id = ? AND task_id = ?
		ORDER BY seq
	`

	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), workspaceID, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}

	defer r.closeRows(ctx, rows)

	comments := make([]*models.Comment, 0)

	for rows.Next() {
		var (
			comment   models.Comment
			createdAt Timestamp
		)

		err := rows.Scan(&comment.ID, &comment.WorkspaceID, &comment.TaskID, &comment.AuthorID, &comment.Content, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}

		comment.CreatedAt = createdAt.Time
		comments = append(comments, &comment)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating comments: %w", err)
	}

	return comments, nil
}
