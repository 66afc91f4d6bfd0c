package models

import "time"

// TriggerEvent is emitted by the state machine (and other task mutations) and
// consumed by the rule matcher. Task is a snapshot taken after the mutation committed.
type TriggerEvent struct {
	ID          string           `json:"id"`
	Type        TriggerEventType `json:"event_type"`
	WorkspaceID string           `json:"workspace_id"`
	Task        *Task            `json:"task"`
	OldStatus   TaskStatus       `json:"old_status,omitempty"`
	NewStatus   TaskStatus       `json:"new_status,omitempty"`

	// ChangedFields lists the fields touched by a field_updated event.
	ChangedFields []string `json:"changed_fields,omitempty"`

	// ActorID is the user that caused the mutation; empty for automation.
	ActorID string `json:"actor_id,omitempty"`

	// Depth counts how many automation hops led to this event; user mutations are 0.
	Depth int `json:"depth"`

	// RuleID is set when the event was caused by an automation rule.
	RuleID string `json:"rule_id,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

// Field resolves a name against the event: event-level fields first, then the task.
func (e *TriggerEvent) Field(name string) any {
	switch name {
	case "event_type":
		return string(e.Type)
	case "old_status":
		if e.OldStatus == "" {
			return nil
		}

		return string(e.OldStatus)
	case "new_status":
		if e.NewStatus == "" {
			return nil
		}

		return string(e.NewStatus)
	case "changed_fields":
		return e.ChangedFields
	}

	if e.Task == nil {
		return nil
	}

	return e.Task.Field(name)
}
