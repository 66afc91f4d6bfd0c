package models

import "time"

// ActivityType names an append-only activity log entry.
type ActivityType string

const (
	ActivityTaskCreated          ActivityType = "task_created"
	ActivityTaskUpdated          ActivityType = "task_updated"
	ActivityStatusChanged        ActivityType = "status_changed"
	ActivityInternalReview       ActivityType = "internal_review_decision"
	ActivityClientReview         ActivityType = "client_review_decision"
	ActivityTimerStarted         ActivityType = "timer_started"
	ActivityTimerStopped         ActivityType = "timer_stopped"
	ActivityRuleCreated          ActivityType = "rule_created"
	ActivityRuleUpdated          ActivityType = "rule_updated"
	ActivityRuleDeactivated      ActivityType = "rule_deactivated"
	ActivityAutomationActionFail ActivityType = "automation_action_failed"
	ActivityCommentAdded         ActivityType = "comment_added"
)

// ActivityLogEntry is the durable audit record for every engine mutation.
type ActivityLogEntry struct {
	ID          string         `json:"id"`
	WorkspaceID string         `json:"workspace_id"`
	RecordID    string         `json:"record_id"`
	ActionType  ActivityType   `json:"action_type"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   time.Time      `json:"created_at"`
}

// TimerLogEntry is the durable record of a closed timer session.
type TimerLogEntry struct {
	ID              string    `json:"id"`
	WorkspaceID     string    `json:"workspace_id"`
	TaskID          string    `json:"task_id"`
	UserID          string    `json:"user_id"`
	DurationMinutes int       `json:"duration_minutes"`
	StartedAt       time.Time `json:"started_at"`
	StoppedAt       time.Time `json:"stopped_at"`
}
