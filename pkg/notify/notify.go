// Package notify delivers notifications produced by automation rules.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/agencyops/taskflow/pkg/eventbus"
	"github.com/agencyops/taskflow/pkg/events"
)

// Notification is a rendered message addressed to resolved user IDs.
type Notification struct {
	WorkspaceID string   `json:"workspace_id"`
	TaskID      string   `json:"task_id"`
	RuleID      string   `json:"rule_id,omitempty"`
	Message     string   `json:"message"`
	Recipients  []string `json:"recipients"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

var ErrNoMessage = errors.New("notification message is empty")

func validate(n Notification) error {
	if strings.TrimSpace(n.Message) == "" {
		return ErrNoMessage
	}

	return nil
}

// LogNotifier writes notifications to the log. It is the default when no delivery
// channel is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("module", "notifier")}
}

func (l *LogNotifier) Notify(ctx context.Context, n Notification) error {
	if err := validate(n); err != nil {
		return err
	}

	l.logger.InfoContext(ctx, "notification",
		"workspace_id", n.WorkspaceID,
		"task_id", n.TaskID,
		"rule_id", n.RuleID,
		"recipients", n.Recipients,
		"message", n.Message,
	)

	return nil
}

// BusNotifier publishes notification.requested events for an external delivery service.
type BusNotifier struct {
	publisher eventbus.EventPublisher
}

func NewBusNotifier(publisher eventbus.EventPublisher) *BusNotifier {
	return &BusNotifier{publisher: publisher}
}

func (b *BusNotifier) Notify(ctx context.Context, n Notification) error {
	if err := validate(n); err != nil {
		return err
	}

	event := events.NewNotificationRequested(n.WorkspaceID, n.TaskID, n.RuleID, n.Message, n.Recipients)

	return b.publisher.Publish(ctx, n.TaskID, event)
}
