package models

import (
	"slices"
	"time"
)

// TriggerEventType names the task mutation a rule reacts to.
type TriggerEventType string

const (
	TriggerStatusChanged TriggerEventType = "status_changed"
	TriggerTaskCreated   TriggerEventType = "task_created"
	TriggerFieldUpdated  TriggerEventType = "field_updated"
	TriggerTimerStarted  TriggerEventType = "timer_started"
	TriggerTimerStopped  TriggerEventType = "timer_stopped"
	TriggerTimerOverdue  TriggerEventType = "timer_overdue"
)

// TriggerEventTypes lists the event types a rule may subscribe to.
var TriggerEventTypes = []TriggerEventType{
	TriggerStatusChanged,
	TriggerTaskCreated,
	TriggerFieldUpdated,
	TriggerTimerStarted,
	TriggerTimerStopped,
	TriggerTimerOverdue,
}

// Valid reports whether t is a known trigger event type.
func (t TriggerEventType) Valid() bool {
	return slices.Contains(TriggerEventTypes, t)
}

// AutomationRule is a workspace-scoped trigger, condition and action chain.
// Rules are deactivated rather than deleted so the audit trail survives.
type AutomationRule struct {
	ID           string           `json:"id"`
	WorkspaceID  string           `json:"workspace_id"  validate:"required"`
	Name         string           `json:"name"`
	TriggerEvent TriggerEventType `json:"trigger_event" validate:"required"`
	FilterGroups []FilterGroup    `json:"filter_groups" validate:"dive"`
	ActionChain  []Action         `json:"action_chain"  validate:"min=1"`
	IsActive     bool             `json:"is_active"`
	CreatedBy    string           `json:"created_by,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// SortRulesByCreation orders rules by creation time, then ID, so match order is stable.
func SortRulesByCreation(rules []*AutomationRule) {
	slices.SortStableFunc(rules, func(a, b *AutomationRule) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}

		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})
}

// RuleDefinition is a rule as submitted for saving. Active is nil when the submitter left
// the state out: new rules then start active and existing rules keep their state.
type RuleDefinition struct {
	Rule   *AutomationRule
	Active *bool
}
