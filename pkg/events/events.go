// Package events defines the messages exchanged over the event bus.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/agencyops/taskflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topics.
const Topic = "taskflow.events"                    // Trigger events consumed by automation workers
const NotificationTopic = "taskflow.notifications" // Notifications produced by automation rules

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	TaskTriggeredEvent         EventType = "task.triggered"
	NotificationRequestedEvent EventType = "notification.requested"
)

type BaseEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	WorkspaceID string         `json:"workspace_id"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func newBaseEvent(eventType EventType, workspaceID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.NewString(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		WorkspaceID: workspaceID,
	}
}

// TaskTriggered carries a committed task mutation to the rule matcher.
type TaskTriggered struct {
	BaseEvent

	Trigger *models.TriggerEvent `json:"trigger"`
}

// NewTaskTriggered wraps trigger for publication.
func NewTaskTriggered(trigger *models.TriggerEvent) *TaskTriggered {
	return &TaskTriggered{
		BaseEvent: newBaseEvent(TaskTriggeredEvent, trigger.WorkspaceID),
		Trigger:   trigger,
	}
}

func (e TaskTriggered) GetType() EventType {
	return TaskTriggeredEvent
}

// Validate checks the event carries a routable trigger.
func (e *TaskTriggered) Validate() error {
	if e.Trigger == nil {
		return errors.New("trigger is required")
	}

	if e.Trigger.Task == nil || e.Trigger.Task.ID == "" {
		return errors.New("trigger task is required")
	}

	if !e.Trigger.Type.Valid() {
		return errors.New("trigger event type is invalid")
	}

	return nil
}

// NotificationRequested is published by the bus notifier for delivery services.
type NotificationRequested struct {
	BaseEvent

	TaskID     string   `json:"task_id"`
	RuleID     string   `json:"rule_id,omitempty"`
	Message    string   `json:"message"`
	Recipients []string `json:"recipients"`
}

// NewNotificationRequested creates a notification event.
func NewNotificationRequested(workspaceID, taskID, ruleID, message string, recipients []string) *NotificationRequested {
	return &NotificationRequested{
		BaseEvent:  newBaseEvent(NotificationRequestedEvent, workspaceID),
		TaskID:     taskID,
		RuleID:     ruleID,
		Message:    message,
		Recipients: recipients,
	}
}

func (e NotificationRequested) GetType() EventType {
	return NotificationRequestedEvent
}

// Emitter publishes trigger events after a task mutation has committed.
type Emitter interface {
	Emit(ctx context.Context, trigger *models.TriggerEvent) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, trigger *models.TriggerEvent) error

func (f EmitterFunc) Emit(ctx context.Context, trigger *models.TriggerEvent) error {
	return f(ctx, trigger)
}

type depthKey struct{}

// WithDepth records how many automation hops led to the work running under ctx.
func WithDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, depthKey{}, depth)
}

// DepthFrom returns the automation depth recorded in ctx; user requests are 0.
func DepthFrom(ctx context.Context) int {
	depth, _ := ctx.Value(depthKey{}).(int)

	return depth
}

type ruleKey struct{}

// WithRule records the automation rule whose actions run under ctx.
func WithRule(ctx context.Context, ruleID string) context.Context {
	return context.WithValue(ctx, ruleKey{}, ruleID)
}

// RuleFrom returns the rule recorded in ctx, if any.
func RuleFrom(ctx context.Context) string {
	ruleID, _ := ctx.Value(ruleKey{}).(string)

	return ruleID
}
