package kafka

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/agencyops/taskflow/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokers(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")

	_, err := Brokers()
	require.Error(t, err)

	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")

	brokers, err := Brokers()
	require.NoError(t, err)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, brokers)
}

func TestCreateChannel_RequiresBrokers(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")

	_, _, err := CreateChannel(watermill.NopLogger{}, "taskflow-worker")
	assert.Error(t, err)
}

func TestPartitionKey(t *testing.T) {
	msg := message.NewMessage("msg-1", []byte(`{}`))
	msg.Metadata.Set(events.EventMetadataKey, "task-42")

	key, err := PartitionKey(events.Topic, msg)
	require.NoError(t, err)
	assert.Equal(t, "task-42", key)
}
