package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkaGo "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher publishes lifecycle events.
type Publisher interface {
	PublishEvent(ctx context.Context, topic string, evt *CloudEvent) error
	Close() error
}

// Producer publishes CloudEvents to Kafka.
type Producer struct {
	writer *kafkaGo.Writer
	logger *zap.Logger
}

// NewProducer creates a Kafka producer for the given brokers.
func NewProducer(brokers []string, logger *zap.Logger) *Producer {
	return &Producer{
		writer: &kafkaGo.Writer{
			Addr:                   kafkaGo.TCP(brokers...),
			Balancer:               &kafkaGo.Hash{},
			RequiredAcks:           kafkaGo.RequireOne,
			BatchTimeout:           50 * time.Millisecond,
			WriteTimeout:           5 * time.Second,
			AllowAutoTopicCreation: true,
		},
		logger: logger,
	}
}

// PublishEvent writes evt to topic, keyed by its subject so events of one
// mount point stay ordered within a partition.
func (p *Producer) PublishEvent(ctx context.Context, topic string, evt *CloudEvent) error {
	msg, err := toMessage(topic, evt)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", evt.Type, err)
	}

	p.logger.Debug("event published",
		zap.String("topic", topic),
		zap.String("type", evt.Type),
		zap.String("id", evt.ID),
	)
	return nil
}

// Close flushes pending writes and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

func toMessage(topic string, evt *CloudEvent) (kafkaGo.Message, error) {
	value, err := json.Marshal(evt)
	if err != nil {
		return kafkaGo.Message{}, fmt.Errorf("failed to marshal cloud event: %w", err)
	}
	return kafkaGo.Message{
		Topic: topic,
		Key:   []byte(evt.Subject),
		Value: value,
		Headers: []kafkaGo.Header{
			{Key: "ce_type", Value: []byte(evt.Type)},
			{Key: "ce_id", Value: []byte(evt.ID)},
		},
	}, nil
}

// NopPublisher discards events. It is used when no brokers are configured.
type NopPublisher struct{}

// PublishEvent implements Publisher.
func (NopPublisher) PublishEvent(context.Context, string, *CloudEvent) error { return nil }

// Close implements Publisher.
func (NopPublisher) Close() error { return nil }
