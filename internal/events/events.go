// Package events publishes corpus changes to interested consumers.
package events

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/bunrui/internal/config"
)

// Event types.
const (
	DocumentIngested = "document.ingested"
	DocumentDeleted  = "document.deleted"
	CorpusClustered  = "corpus.clustered"
	CorpusCleared    = "corpus.cleared"
)

// Event is one corpus change. DocumentID is empty for corpus-wide events.
type Event struct {
	Type       string         `json:"type"`
	DocumentID string         `json:"document_id,omitempty"`
	Time       time.Time      `json:"time"`
	Data       map[string]any `json:"data,omitempty"`
}

// Publisher delivers events. Publish must not block on broker availability.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ...Event) error { return nil }
func (NopPublisher) Close() error                              { return nil }

// New returns a Kafka publisher when brokers are configured, otherwise a NopPublisher.
func New(cfg config.EventsConfig, logger *zap.Logger) Publisher {
	if len(cfg.Brokers) == 0 {
		return NopPublisher{}
	}
	return NewKafkaPublisher(cfg.Brokers, cfg.Topic, WithLogger(logger))
}
