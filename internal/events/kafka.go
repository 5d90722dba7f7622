package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/hyperjump/bunrui/pkg/utils"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes JSON events keyed by document id (or event type for
// corpus-wide events) so one document's events stay on one partition.
type KafkaPublisher struct {
	writer messageWriter
	logger *zap.Logger
}

// KafkaOption configures a KafkaPublisher.
type KafkaOption func(*KafkaPublisher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) KafkaOption {
	return func(p *KafkaPublisher) {
		p.logger = l
	}
}

// NewKafkaPublisher creates an asynchronous publisher for topic. Delivery
// failures are logged by the writer's completion callback.
func NewKafkaPublisher(brokers []string, topic string, opts ...KafkaOption) *KafkaPublisher {
	p := &KafkaPublisher{}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = utils.OrNop(p.logger).With(zap.String("topic", topic))
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				p.logger.Warn("event delivery failed", zap.Int("count", len(msgs)), zap.Error(err))
			}
		},
	}
	return p
}

// Publish encodes and hands events to the writer.
func (p *KafkaPublisher) Publish(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		if ev.Time.IsZero() {
			ev.Time = time.Now().UTC()
		}
		value, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshaling event %s: %w", ev.Type, err)
		}
		key := ev.DocumentID
		if key == "" {
			key = ev.Type
		}
		msgs = append(msgs, kafka.Message{Key: []byte(key), Value: value})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publishing to kafka: %w", err)
	}
	p.logger.Debug("events published", zap.Int("count", len(msgs)))
	return nil
}

// Close flushes pending writes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
