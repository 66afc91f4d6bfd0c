package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestTaskStatus_Valid(t *testing.T) {
	t.Parallel()

	for _, status := range []TaskStatus{
		TaskStatusBacklog, TaskStatusInProgress, TaskStatusInternalReview, TaskStatusClientReview, TaskStatusApproved,
	} {
		assert.True(t, status.Valid(), status)
	}

	assert.False(t, TaskStatus("done").Valid())
	assert.False(t, TaskStatus("").Valid())
}

func TestTask_Field(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	pending := ClientViewPending
	task := &Task{
		ID:                    "task-1",
		Title:                 "Brand guide",
		Status:                TaskStatusClientReview,
		Priority:              "high",
		AssigneeID:            "user-2",
		TimeSpentMinutes:      45,
		ActiveTimerStart:      &start,
		InternalRevisionCount: 2,
		ClientViewStatus:      &pending,
		CustomFields:          map[string]any{"budget": 1200.0},
	}

	tests := []struct {
		field string
		want  any
	}{
		{"title", "Brand guide"},
		{"status", "client_review"},
		{"priority", "high"},
		{"assignee_id", "user-2"},
		{"time_spent_minutes", 45},
		{"active_timer_start", start},
		{"internal_revision_count", 2},
		{"client_view_status", "pending"},
		{"last_client_feedback", nil},
		{"budget", 1200.0},
		{"custom.budget", 1200.0},
		{"missing", nil},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, task.Field(tt.field))
		})
	}
}

func TestTask_Clone(t *testing.T) {
	t.Parallel()

	start := time.Now()
	feedback := "more contrast"
	original := &Task{
		ID:                 "task-1",
		ActiveTimerStart:   &start,
		LastClientFeedback: &feedback,
		CustomFields:       map[string]any{"channel": "email"},
	}

	clone := original.Clone()
	*clone.LastClientFeedback = "changed"
	clone.CustomFields["channel"] = "social"
	*clone.ActiveTimerStart = start.Add(time.Hour)

	assert.Equal(t, "more contrast", *original.LastClientFeedback)
	assert.Equal(t, "email", original.CustomFields["channel"])
	assert.Equal(t, start, *original.ActiveTimerStart)
	assert.Nil(t, (*Task)(nil).Clone())
}

func TestTriggerEvent_Field(t *testing.T) {
	t.Parallel()

	event := &TriggerEvent{
		Type:          TriggerFieldUpdated,
		ChangedFields: []string{"priority"},
		Task:          &Task{Priority: "urgent"},
	}

	assert.Equal(t, "field_updated", event.Field("event_type"))
	assert.Nil(t, event.Field("old_status"))
	assert.Equal(t, []string{"priority"}, event.Field("changed_fields"))
	assert.Equal(t, "urgent", event.Field("priority"))
	assert.Nil(t, (&TriggerEvent{}).Field("priority"))
}

func TestAction_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		action  Action
		wantErr bool
	}{
		{"change_status", NewChangeStatusAction(TaskStatusApproved), false},
		{"change_status_unknown_target", NewChangeStatusAction("done"), true},
		{"create_task", NewCreateTaskAction("Follow up", "user-1"), false},
		{"create_task_blank_title", NewCreateTaskAction("  ", ""), true},
		{"notify", NewNotifyAction("{{task.title}} ready", "@assignee"), false},
		{"notify_without_template", NewNotifyAction(""), true},
		{"send_comment", NewSendCommentAction("Auto-approved"), false},
		{"send_comment_without_params", Action{Type: ActionSendComment}, true},
		{"unknown_type", Action{Type: "webhook"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.action.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsValidationError(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAction_WireFormat(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(NewNotifyAction("hi {{task.title}}", "@assignee"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"notify","template":"hi {{task.title}}","mentions":["@assignee"]}`, string(data))

	var action Action
	require.NoError(t, json.Unmarshal([]byte(`{"type":"change_status","to":"approved","reason":"auto"}`), &action))
	assert.Equal(t, ActionChangeStatus, action.Type)
	assert.Equal(t, &ChangeStatusParams{To: TaskStatusApproved, Reason: "auto"}, action.ChangeStatus)
	assert.Nil(t, action.Notify)

	err = json.Unmarshal([]byte(`{"type":"webhook","url":"http://x"}`), &action)
	assert.Error(t, err)

	var fromYAML Action
	require.NoError(t, yaml.Unmarshal([]byte("type: send_comment\ncontent: Looks good\n"), &fromYAML))
	assert.Equal(t, NewSendCommentAction("Looks good"), fromYAML)
}

func TestOperator(t *testing.T) {
	t.Parallel()

	for _, op := range Operators {
		assert.True(t, op.Valid(), op)
	}

	assert.False(t, Operator("matches").Valid())
	assert.True(t, OperatorIsEmpty.Unary())
	assert.False(t, OperatorEquals.Unary())
}

func TestSortRulesByCreation(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rules := []*AutomationRule{
		{ID: "c", CreatedAt: base.Add(time.Minute)},
		{ID: "b", CreatedAt: base},
		{ID: "a", CreatedAt: base},
	}

	SortRulesByCreation(rules)

	ids := make([]string, 0, len(rules))
	for _, rule := range rules {
		ids = append(ids, rule.ID)
	}

	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestErrorKinds(t *testing.T) {
	t.Parallel()

	transition := fmt.Errorf("wrapped: %w", NewTransitionError("start_work", "task-1", TaskStatusApproved, TaskStatusBacklog))
	assert.True(t, IsInvalidTransition(transition))
	assert.True(t, IsPermanent(transition))
	assert.Contains(t, transition.Error(), "start_work: cannot move task task-1 from approved to backlog")

	authz := &AuthorizationError{UserID: "u", WorkspaceID: "ws", Action: "rules.manage", Reason: "role member"}
	assert.True(t, IsAuthorizationError(authz))

	assert.True(t, IsTimerMisuse(ErrSessionAlreadyActive))
	assert.True(t, IsTimerMisuse(fmt.Errorf("stop: %w", ErrNoActiveSession)))

	actionErr := &ActionError{RuleID: "r1", Index: 1, Type: ActionNotify, Err: errors.New("smtp down")}
	assert.False(t, IsPermanent(actionErr))
	assert.Equal(t, "rule r1 action 1 (notify): smtp down", actionErr.Error())

	assert.Equal(t, "priority: required", NewValidationError("priority", "required").Error())
}
