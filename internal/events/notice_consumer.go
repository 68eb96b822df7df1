package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	kafkaGo "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// NoticeAnnouncer shows a toast on every mounted view.
type NoticeAnnouncer interface {
	Announce(variant, title, message string) int
}

// NoticeConsumer consumes operator notices and broadcasts them to views.
type NoticeConsumer struct {
	reader    *kafkaGo.Reader
	announcer NoticeAnnouncer
	logger    *zap.Logger
}

// NewNoticeConsumer creates a consumer for the notice topic.
func NewNoticeConsumer(
	brokers []string,
	groupID string,
	topic string,
	announcer NoticeAnnouncer,
	logger *zap.Logger,
) *NoticeConsumer {
	return &NoticeConsumer{
		reader: kafkaGo.NewReader(kafkaGo.ReaderConfig{
			Brokers:        brokers,
			GroupID:        groupID,
			Topic:          topic,
			MinBytes:       1,
			MaxBytes:       1 << 20,
			MaxWait:        500 * time.Millisecond,
			CommitInterval: time.Second,
		}),
		announcer: announcer,
		logger:    logger,
	}
}

// Start consumes notices. Blocks until the context is cancelled.
func (c *NoticeConsumer) Start(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to fetch notice: %w", err)
		}

		// Bad payloads are logged and committed so they do not block the partition.
		_ = c.handleMessage(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Warn("failed to commit notice offset", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

// handleMessage processes a single notice message.
func (c *NoticeConsumer) handleMessage(_ context.Context, msg kafkaGo.Message) error {
	cloudEvent, err := ParseCloudEvent(msg.Value)
	if err != nil {
		c.logger.Error("failed to parse cloud event from notice topic",
			zap.Error(err),
			zap.Int64("offset", msg.Offset),
		)
		return err
	}

	c.logger.Debug("received notice event",
		zap.String("type", cloudEvent.Type),
		zap.String("id", cloudEvent.ID),
	)

	switch cloudEvent.Type {
	case NoticePublished:
		var evt NoticePublishedEvent
		if err := cloudEvent.ParseData(&evt); err != nil {
			c.logger.Error("failed to parse notice event data", zap.Error(err))
			return err
		}
		if err := evt.Validate(); err != nil {
			c.logger.Warn("rejecting notice", zap.String("id", cloudEvent.ID), zap.Error(err))
			return err
		}
		n := c.announcer.Announce(evt.Variant, evt.Title, evt.Message)
		c.logger.Info("notice broadcast", zap.String("id", cloudEvent.ID), zap.Int("views", n))
		return nil

	default:
		c.logger.Debug("ignoring unhandled notice event type",
			zap.String("type", cloudEvent.Type),
		)
		return nil
	}
}

// Close shuts down the notice consumer.
func (c *NoticeConsumer) Close() error {
	return c.reader.Close()
}
