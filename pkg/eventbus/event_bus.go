// Package eventbus provides event-driven communication between the API and automation workers.
package eventbus

import (
	"context"
	"fmt"

	"github.com/agencyops/taskflow/pkg/events"
	"github.com/agencyops/taskflow/pkg/models"
)

type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event interface{}) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}

// TopicFor routes an event type to its topic.
func TopicFor(eventType events.EventType) string {
	if eventType == events.NotificationRequestedEvent {
		return events.NotificationTopic
	}

	return events.Topic
}

// newEvent returns an empty value to decode a payload of eventType into.
func newEvent(eventType events.EventType) (any, bool) {
	switch eventType {
	case events.TaskTriggeredEvent:
		return &events.TaskTriggered{}, true
	case events.NotificationRequestedEvent:
		return &events.NotificationRequested{}, true
	default:
		return nil, false
	}
}

// TriggerEmitter publishes trigger events keyed by task so one task's events stay ordered.
type TriggerEmitter struct {
	publisher EventPublisher
	ids       func() string
}

// NewTriggerEmitter creates an emitter over bus.
func NewTriggerEmitter(bus EventBus) *TriggerEmitter {
	return &TriggerEmitter{publisher: bus, ids: bus.GenerateID}
}

// Emit stamps the event with an ID and the automation depth from ctx, then publishes it.
func (e *TriggerEmitter) Emit(ctx context.Context, trigger *models.TriggerEvent) error {
	if trigger.ID == "" {
		trigger.ID = e.ids()
	}

	trigger.Depth = events.DepthFrom(ctx)

	if trigger.RuleID == "" {
		trigger.RuleID = events.RuleFrom(ctx)
	}

	err := e.publisher.Publish(ctx, trigger.Task.ID, events.NewTaskTriggered(trigger))
	if err != nil {
		return fmt.Errorf("failed to publish %s event for task %s: %w", trigger.Type, trigger.Task.ID, err)
	}

	return nil
}
