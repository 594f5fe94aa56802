package kafka

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/assetdrop-backend/pkg/config"
)

func TestNewPublisherRequiresBrokers(t *testing.T) {
	_, err := NewPublisher(context.Background(), config.KafkaConfig{Brokers: " , "}, nil)
	assert.Error(t, err)
}

func TestToKafkaMessageCopiesHeaders(t *testing.T) {
	msg := toKafkaMessage(Message{
		Topic:   "ad-order-events",
		Key:     "order-1",
		Value:   []byte(`{}`),
		Headers: map[string]string{"event_type": "order_completed"},
	})
	assert.Equal(t, "ad-order-events", msg.Topic)
	assert.Equal(t, []byte("order-1"), msg.Key)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, []byte("order_completed"), msg.Headers[0].Value)
}

func TestPublishAfterClose(t *testing.T) {
	p, err := NewPublisher(context.Background(), config.KafkaConfig{Brokers: "localhost:9092"}, nil)
	require.NoError(t, err)
	require.NoError(t, p.Close())
	assert.ErrorIs(t, p.Publish(context.Background(), Message{Topic: "t"}), ErrPublisherClosed)
	assert.NoError(t, p.Close())
}
