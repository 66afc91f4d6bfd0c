// Package kafka provides the Kafka transport for trigger events.
package kafka

import (
	"errors"
	"os"
	"strings"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/agencyops/taskflow/pkg/events"
)

// Brokers reads the comma separated KAFKA_BROKERS variable.
func Brokers() ([]string, error) {
	brokers := strings.Split(os.Getenv("KAFKA_BROKERS"), ",")
	if len(brokers) == 0 || brokers[0] == "" {
		return nil, errors.New("KAFKA_BROKERS environment variable is not set or empty")
	}

	return brokers, nil
}

// PartitionKey keys every message by its event key (the task ID) so all events of
// one task land on one partition and are consumed in order.
func PartitionKey(_ string, msg *message.Message) (string, error) {
	return msg.Metadata.Get(events.EventMetadataKey), nil
}

// CreateChannel creates a Kafka publisher and a consumer-group subscriber for serviceName.
func CreateChannel(logger watermill.LoggerAdapter, serviceName string) (*kafka.Publisher, *kafka.Subscriber, error) {
	brokers, err := Brokers()
	if err != nil {
		return nil, nil, err
	}

	marshaler := kafka.NewWithPartitioningMarshaler(PartitionKey)

	saramaSubscriberConfig := kafka.DefaultSaramaSubscriberConfig()
	saramaSubscriberConfig.Consumer.Offsets.Initial = sarama.OffsetOldest

	subscriber, err := kafka.NewSubscriber(
		kafka.SubscriberConfig{
			Brokers:               brokers,
			Unmarshaler:           marshaler,
			OverwriteSaramaConfig: saramaSubscriberConfig,
			ConsumerGroup:         "cg-" + serviceName,
			OTELEnabled:           true,
		},
		logger,
	)
	if err != nil {
		return nil, nil, err
	}

	saramaPublisherConfig := sarama.NewConfig()
	saramaPublisherConfig.Producer.Return.Successes = true
	saramaPublisherConfig.Producer.Partitioner = sarama.NewHashPartitioner

	publisher, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:               brokers,
			Marshaler:             marshaler,
			OverwriteSaramaConfig: saramaPublisherConfig,
			OTELEnabled:           true,
		},
		logger,
	)
	if err != nil {
		_ = subscriber.Close()

		return nil, nil, err
	}

	return publisher, subscriber, nil
}
