package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/agencyops/taskflow/pkg/channels/gochannel"
	"github.com/agencyops/taskflow/pkg/channels/kafka"
	"github.com/agencyops/taskflow/pkg/eventbus"
)

// NewEventBus creates the trigger event transport. gochannel only reaches subscribers
// in the same process.
func NewEventBus(provider, serviceName string, logger *slog.Logger) (eventbus.EventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger), nil
	case "gochannel", "":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create gochannel pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
