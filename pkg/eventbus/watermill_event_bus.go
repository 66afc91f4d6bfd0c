package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/agencyops/taskflow/pkg/events"
)

type WatermillEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *slog.Logger

	mu            sync.RWMutex
	subscriptions map[events.EventType]EventHandler
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber, logger *slog.Logger) EventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		logger:        logger.With("module", "eventbus"),
		subscriptions: make(map[events.EventType]EventHandler),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))
	msg.SetContext(ctx)

	return eb.publisher.Publish(TopicFor(event.GetType()), msg)
}

// Subscribe starts one consumer per topic that has at least one registered handler.
func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	eb.mu.RLock()

	topics := make(map[string]struct{})
	for eventType := range eb.subscriptions {
		topics[TopicFor(eventType)] = struct{}{}
	}

	eb.mu.RUnlock()

	for topic := range topics {
		messages, err := eb.subscriber.Subscribe(ctx, topic)
		if err != nil {
			return err
		}

		go eb.consume(ctx, topic, messages)
	}

	return nil
}

func (eb *WatermillEventBus) consume(ctx context.Context, topic string, messages <-chan *message.Message) {
	for msg := range messages {
		eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

		eb.mu.RLock()
		handler, exists := eb.subscriptions[eventType]
		eb.mu.RUnlock()

		if !exists {
			msg.Ack()

			continue
		}

		event, known := newEvent(eventType)
		if !known {
			// Redelivery can never succeed for a type nobody can decode.
			eb.logger.ErrorContext(ctx, "dropping message of unknown event type", "topic", topic, "event_type", eventType)
			msg.Ack()

			continue
		}

		err := json.Unmarshal(msg.Payload, event)
		if err != nil {
			eb.logger.ErrorContext(ctx, "dropping undecodable message", "topic", topic, "event_type", eventType, "error", err)
			msg.Ack()

			continue
		}

		err = handler(ctx, event)
		if err != nil {
			eb.logger.WarnContext(ctx, "event handler failed, message will be redelivered",
				"topic", topic, "event_type", eventType, "error", err)
			msg.Nack()

			continue
		}

		msg.Ack()
	}
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscriptions[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
