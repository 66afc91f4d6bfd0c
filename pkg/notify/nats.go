package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

const DefaultSubjectPrefix = "taskflow.notifications"

// Publisher is the subset of *nats.Conn the notifier needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes notifications as JSON to <prefix>.<workspace_id>.
type NATSNotifier struct {
	conn   Publisher
	prefix string
}

func NewNATSNotifier(conn Publisher, prefix string) *NATSNotifier {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}

	return &NATSNotifier{conn: conn, prefix: prefix}
}

// ConnectNATS dials url with reconnects enabled.
func ConnectNATS(url, name string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.RetryOnFailedConnect(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	return conn, nil
}

// Subject returns the subject notifications for workspaceID are published on.
func (n *NATSNotifier) Subject(workspaceID string) string {
	return n.prefix + "." + workspaceID
}

func (n *NATSNotifier) Notify(_ context.Context, notification Notification) error {
	if err := validate(notification); err != nil {
		return err
	}

	data, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if err := n.conn.Publish(n.Subject(notification.WorkspaceID), data); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	return nil
}
