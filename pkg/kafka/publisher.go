package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/angelmondragon/assetdrop-backend/pkg/config"
	"github.com/angelmondragon/assetdrop-backend/pkg/logger"
)

var ErrPublisherClosed = errors.New("kafka publisher closed")

// Message is a single record routed to topic. Key keeps events of one
// aggregate on one partition.
type Message struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

// Publisher writes outbox events to Kafka synchronously. Topics are set per
// message so one writer serves every topic in the registry.
type Publisher struct {
	writer  *kafka.Writer
	brokers []string
	dialer  *kafka.Dialer
	closed  atomic.Bool
}

func NewPublisher(ctx context.Context, cfg config.KafkaConfig, logg *logger.Logger) (*Publisher, error) {
	brokers := cfg.BrokerList()
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialer := &kafka.Dialer{
		Timeout:   timeout,
		DualStack: true,
		KeepAlive: 30 * time.Second,
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: timeout,
		MaxAttempts:  3,
		BatchTimeout: 50 * time.Millisecond,
		Transport: &kafka.Transport{
			Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
				return dialer.DialContext(ctx, network, address)
			},
		},
	}
	if logg != nil {
		writer.ErrorLogger = kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logg.Warn(ctx, "kafka writer: "+fmt.Sprintf(msg, args...))
		})
	}

	p := &Publisher{writer: writer, brokers: brokers, dialer: dialer}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "brokers", brokers), "kafka publisher initialized")
	}
	return p, nil
}

func (p *Publisher) Publish(ctx context.Context, msg Message) error {
	if p == nil || p.writer == nil {
		return errors.New("kafka publisher not initialized")
	}
	if p.closed.Load() {
		return ErrPublisherClosed
	}
	if msg.Topic == "" {
		return errors.New("kafka topic is required")
	}
	return p.writer.WriteMessages(ctx, toKafkaMessage(msg))
}

// Ping dials the first reachable broker.
func (p *Publisher) Ping(ctx context.Context) error {
	if p == nil || p.dialer == nil {
		return errors.New("kafka publisher not initialized")
	}
	var lastErr error
	for _, broker := range p.brokers {
		conn, err := p.dialer.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		_ = conn.Close()
		return nil
	}
	return fmt.Errorf("no kafka broker reachable: %w", lastErr)
}

func (p *Publisher) Close() error {
	if p == nil || p.writer == nil || !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.writer.Close()
}

func toKafkaMessage(msg Message) kafka.Message {
	headers := make([]kafka.Header, 0, len(msg.Headers))
	for k, v := range msg.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return kafka.Message{
		Topic:   msg.Topic,
		Key:     []byte(msg.Key),
		Value:   msg.Value,
		Headers: headers,
	}
}
