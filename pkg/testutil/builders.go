// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/agencyops/taskflow/pkg/models"
	"github.com/google/uuid"
)

const TestWorkspaceID = "ws-test"

// CreateTestTask creates a backlog Task with default values that can be overridden.
func CreateTestTask(overrides ...func(*models.Task)) *models.Task {
	now := time.Now().UTC().Truncate(time.Second)

	task := &models.Task{
		ID:          uuid.New().String(),
		WorkspaceID: TestWorkspaceID,
		Title:       "Test Task",
		Status:      models.TaskStatusBacklog,
		Priority:    "medium",
		AssigneeID:  "user-1",
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	for _, override := range overrides {
		override(task)
	}

	return task
}

// WithStatus sets the task status.
func WithStatus(status models.TaskStatus) func(*models.Task) {
	return func(t *models.Task) {
		t.Status = status
	}
}

// WithPriority sets the task priority.
func WithPriority(priority string) func(*models.Task) {
	return func(t *models.Task) {
		t.Priority = priority
	}
}

// WithWorkspace sets the task workspace.
func WithWorkspace(workspaceID string) func(*models.Task) {
	return func(t *models.Task) {
		t.WorkspaceID = workspaceID
	}
}

// WithCustomField sets one custom field.
func WithCustomField(key string, value any) func(*models.Task) {
	return func(t *models.Task) {
		if t.CustomFields == nil {
			t.CustomFields = map[string]any{}
		}

		t.CustomFields[key] = value
	}
}

// CreateTestRule creates an active rule with a single notify action.
func CreateTestRule(overrides ...func(*models.AutomationRule)) *models.AutomationRule {
	now := time.Now().UTC().Truncate(time.Second)

	rule := &models.AutomationRule{
		ID:           uuid.New().String(),
		WorkspaceID:  TestWorkspaceID,
		Name:         "Test Rule",
		TriggerEvent: models.TriggerStatusChanged,
		ActionChain:  []models.Action{models.NewNotifyAction("Task {{task.title}} changed", "@assignee")},
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	for _, override := range overrides {
		override(rule)
	}

	return rule
}

// WithTrigger sets the rule trigger event.
func WithTrigger(trigger models.TriggerEventType) func(*models.AutomationRule) {
	return func(r *models.AutomationRule) {
		r.TriggerEvent = trigger
	}
}

// WithFilterGroups sets the rule filter groups.
func WithFilterGroups(groups ...models.FilterGroup) func(*models.AutomationRule) {
	return func(r *models.AutomationRule) {
		r.FilterGroups = groups
	}
}

// WithActions replaces the rule action chain.
func WithActions(actions ...models.Action) func(*models.AutomationRule) {
	return func(r *models.AutomationRule) {
		r.ActionChain = actions
	}
}

// WithCreatedAt sets the rule creation time.
func WithCreatedAt(createdAt time.Time) func(*models.AutomationRule) {
	return func(r *models.AutomationRule) {
		r.CreatedAt = createdAt
	}
}

// Inactive deactivates the rule.
func Inactive() func(*models.AutomationRule) {
	return func(r *models.AutomationRule) {
		r.IsActive = false
	}
}
