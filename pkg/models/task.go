// Package models defines the core domain models for task lifecycle and automation.
package models

import "time"

// TaskStatus represents a node of the task lifecycle graph.
type TaskStatus string

const (
	TaskStatusBacklog        TaskStatus = "backlog"
	TaskStatusInProgress     TaskStatus = "in_progress"
	TaskStatusInternalReview TaskStatus = "internal_review"
	TaskStatusClientReview   TaskStatus = "client_review"
	TaskStatusApproved       TaskStatus = "approved"
)

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusBacklog, TaskStatusInProgress, TaskStatusInternalReview,
		TaskStatusClientReview, TaskStatusApproved:
		return true
	default:
		return false
	}
}

// ClientViewStatus tracks what the client currently sees for a task under review.
type ClientViewStatus string

const (
	ClientViewPending  ClientViewStatus = "pending"
	ClientViewApproved ClientViewStatus = "approved"
	ClientViewRejected ClientViewStatus = "rejected"
)

// Task is the tenant-scoped unit of work the engine owns.
type Task struct {
	ID          string     `json:"id"`
	WorkspaceID string     `json:"workspace_id"`
	Title       string     `json:"title"`
	Status      TaskStatus `json:"status"`
	Priority    string     `json:"priority"`
	AssigneeID  string     `json:"assignee_id,omitempty"`

	// TimeSpentMinutes only grows, and only when a timer session closes.
	TimeSpentMinutes int `json:"time_spent_minutes"`

	// ActiveTimerStart is the authoritative start of the running session, if any.
	ActiveTimerStart  *time.Time `json:"active_timer_start"`
	ActiveTimerUserID string     `json:"active_timer_user_id,omitempty"`

	InternalRevisionCount int               `json:"internal_revision_count"`
	ClientViewStatus      *ClientViewStatus `json:"client_view_status"`
	LastClientFeedback    *string           `json:"last_client_feedback"`

	CustomFields map[string]any `json:"custom_fields,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasActiveTimer reports whether a timer session is currently open on the task.
func (t *Task) HasActiveTimer() bool {
	return t.ActiveTimerStart != nil
}

// Clone returns a deep copy so snapshots handed to automation are immutable.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}

	c := *t

	if t.ActiveTimerStart != nil {
		start := *t.ActiveTimerStart
		c.ActiveTimerStart = &start
	}

	if t.ClientViewStatus != nil {
		status := *t.ClientViewStatus
		c.ClientViewStatus = &status
	}

	if t.LastClientFeedback != nil {
		feedback := *t.LastClientFeedback
		c.LastClientFeedback = &feedback
	}

	if t.CustomFields != nil {
		c.CustomFields = make(map[string]any, len(t.CustomFields))
		for k, v := range t.CustomFields {
			c.CustomFields[k] = v
		}
	}

	return &c
}

// Field resolves a built-in or custom field by name. Custom fields may be addressed
// either bare or with a "custom." prefix; unknown fields resolve to nil.
func (t *Task) Field(name string) any {
	switch name {
	case "id":
		return t.ID
	case "workspace_id":
		return t.WorkspaceID
	case "title":
		return t.Title
	case "status":
		return string(t.Status)
	case "priority":
		return t.Priority
	case "assignee_id":
		return t.AssigneeID
	case "time_spent_minutes":
		return t.TimeSpentMinutes
	case "active_timer_start":
		if t.ActiveTimerStart == nil {
			return nil
		}

		return *t.ActiveTimerStart
	case "internal_revision_count":
		return t.InternalRevisionCount
	case "client_view_status":
		if t.ClientViewStatus == nil {
			return nil
		}

		return string(*t.ClientViewStatus)
	case "last_client_feedback":
		if t.LastClientFeedback == nil {
			return nil
		}

		return *t.LastClientFeedback
	}

	if len(name) > len(customFieldPrefix) && name[:len(customFieldPrefix)] == customFieldPrefix {
		name = name[len(customFieldPrefix):]
	}

	if v, ok := t.CustomFields[name]; ok {
		return v
	}

	return nil
}

const customFieldPrefix = "custom."

// Comment is an append-only note attached to a task.
type Comment struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	TaskID      string    `json:"task_id"`
	AuthorID    string    `json:"author_id"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
}

// CommentAuthorAutomation marks comments written by automation rules.
const CommentAuthorAutomation = "automation"
