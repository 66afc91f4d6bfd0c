package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agencyops/taskflow/pkg/eventbus"
	"github.com/agencyops/taskflow/pkg/notify"
)

// NewNotifier selects the delivery channel for notify actions: "log", "bus" or a
// nats:// server URL. The returned close function is never nil.
func NewNotifier(notifierURL string, bus eventbus.EventPublisher, serviceName string, logger *slog.Logger) (notify.Notifier, func(), error) {
	switch {
	case notifierURL == "" || notifierURL == "log":
		return notify.NewLogNotifier(logger), func() {}, nil
	case notifierURL == "bus":
		if bus == nil {
			return nil, nil, errors.New("bus notifier requires an event bus")
		}

		return notify.NewBusNotifier(bus), func() {}, nil
	case strings.HasPrefix(notifierURL, "nats://"):
		conn, err := notify.ConnectNATS(notifierURL, serviceName)
		if err != nil {
			return nil, nil, err
		}

		return notify.NewNATSNotifier(conn, notify.DefaultSubjectPrefix), conn.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported notifier %q", notifierURL)
	}
}
