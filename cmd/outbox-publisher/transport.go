package main

import (
	"context"
	"errors"
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/assetdrop-backend/pkg/config"
	"github.com/angelmondragon/assetdrop-backend/pkg/kafka"
	"github.com/angelmondragon/assetdrop-backend/pkg/outbox/registry"
)

type message struct {
	Topic      string
	Key        string
	Data       []byte
	Attributes map[string]string
}

// transport delivers one message and blocks until the broker acknowledges it.
type transport interface {
	Name() string
	Ping(context.Context) error
	Publish(context.Context, message) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type pubSubTransport struct {
	client pubSubClient
}

func (t *pubSubTransport) Name() string { return config.OutboxTransportPubSub }

func (t *pubSubTransport) Ping(ctx context.Context) error { return t.client.Ping(ctx) }

func (t *pubSubTransport) Publish(ctx context.Context, msg message) error {
	pub := t.client.Publisher(msg.Topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", msg.Topic))
	}
	result := pub.Publish(ctx, &gcppubsub.Message{
		Data:       msg.Data,
		Attributes: msg.Attributes,
	})
	if result == nil {
		return errors.New("publish result is nil")
	}
	_, err := result.Get(ctx)
	return err
}

type kafkaPublisher interface {
	Ping(context.Context) error
	Publish(context.Context, kafka.Message) error
}

type kafkaTransport struct {
	publisher kafkaPublisher
}

func (t *kafkaTransport) Name() string { return config.OutboxTransportKafka }

func (t *kafkaTransport) Ping(ctx context.Context) error { return t.publisher.Ping(ctx) }

func (t *kafkaTransport) Publish(ctx context.Context, msg message) error {
	return t.publisher.Publish(ctx, kafka.Message{
		Topic:   msg.Topic,
		Key:     msg.Key,
		Value:   msg.Data,
		Headers: msg.Attributes,
	})
}
