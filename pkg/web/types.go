// Package web provides HTTP request and response types for the task and rule API.
package web

import "github.com/agencyops/taskflow/pkg/models"

// ErrorResponse represents a standardized API error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// CreateTaskRequest represents the request body for creating a task. New tasks always
// start in backlog.
type CreateTaskRequest struct {
	Title        string         `json:"title"                   validate:"required,min=1"`
	Priority     string         `json:"priority,omitempty"      validate:"omitempty,oneof=low medium high urgent"`
	AssigneeID   string         `json:"assignee_id,omitempty"`
	CustomFields map[string]any `json:"custom_fields,omitempty"`
}

// UpdateTaskRequest represents a partial edit. Status is not editable here; use the
// lifecycle endpoints.
type UpdateTaskRequest struct {
	Title        *string        `json:"title,omitempty"         validate:"omitempty,min=1"`
	Priority     *string        `json:"priority,omitempty"      validate:"omitempty,oneof=low medium high urgent"`
	AssigneeID   *string        `json:"assignee_id,omitempty"`
	CustomFields map[string]any `json:"custom_fields,omitempty"`
}

// ReviewDecisionRequest represents an internal or client review outcome.
type ReviewDecisionRequest struct {
	Decision string `json:"decision"         validate:"required,oneof=approve reject"`
	Reason   string `json:"reason,omitempty"`
}

// TransitionRequest represents a forced move along the lifecycle graph.
type TransitionRequest struct {
	To     models.TaskStatus `json:"to"               validate:"required"`
	Reason string            `json:"reason,omitempty"`
}

// RuleRequest represents the body for creating or replacing an automation rule.
type RuleRequest struct {
	ID           string                  `json:"id,omitempty"`
	Name         string                  `json:"name"          validate:"required,min=1"`
	TriggerEvent models.TriggerEventType `json:"trigger_event" validate:"required"`
	IsActive     *bool                   `json:"is_active,omitempty"`
	FilterGroups []models.FilterGroup    `json:"filter_groups"`
	ActionChain  []models.Action         `json:"action_chain"  validate:"required,min=1"`
}

// Rule converts the request to a model. Rules are active unless the request says otherwise.
func (r RuleRequest) Rule() *models.AutomationRule {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}

	return &models.AutomationRule{
		ID:           r.ID,
		Name:         r.Name,
		TriggerEvent: r.TriggerEvent,
		FilterGroups: r.FilterGroups,
		ActionChain:  r.ActionChain,
		IsActive:     active,
	}
}

// Definition is the request as a replacement: an omitted is_active keeps the stored state.
func (r RuleRequest) Definition() models.RuleDefinition {
	return models.RuleDefinition{Rule: r.Rule(), Active: r.IsActive}
}

// TaskListResponse wraps a page of tasks.
type TaskListResponse struct {
	Tasks  []*models.Task `json:"tasks"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}
