// Package kafka wires the topic management service into the event pipeline:
// one producer for submission events and one consumer per inbound topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/aiyoutube/topic-management-service/internal/domain"
	"github.com/aiyoutube/topic-management-service/internal/observability"
	"github.com/aiyoutube/topic-management-service/internal/service"
)

// ProducerConfig holds configuration for the submission event producer.
type ProducerConfig struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string
	// Topic is the outbound topic for submission events.
	Topic string
	// BatchTimeout is the maximum time the writer waits for a batch to fill.
	BatchTimeout time.Duration
	// WriteTimeout bounds a single produce call.
	WriteTimeout time.Duration
}

// Producer publishes submission events keyed by topic id, so every message
// about one topic lands on the same partition and downstream consumers see
// them in order.
type Producer struct {
	writer  *kafka.Writer
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// Compile-time check that *Producer implements service.EventPublisher.
var _ service.EventPublisher = (*Producer)(nil)

// NewProducer creates a new submission event producer.
func NewProducer(cfg ProducerConfig, logger zerolog.Logger, metrics *observability.Metrics) *Producer {
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 10 * time.Millisecond
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: batchTimeout,
		WriteTimeout: writeTimeout,
		RequiredAcks: kafka.RequireAll,
	}

	return &Producer{
		writer:  writer,
		logger:  logger.With().Str("component", "kafka_producer").Logger(),
		metrics: metrics,
	}
}

// PublishTopicSubmitted emits one submission event. The message key is the
// topic id.
func (p *Producer) PublishTopicSubmitted(ctx context.Context, event domain.TopicSubmittedEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal topic submitted event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.TopicID.String()),
		Value: value,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		if p.metrics != nil {
			p.metrics.RecordEventPublishFailed(p.writer.Topic)
		}
		return fmt.Errorf("failed to publish topic submitted event: %w", err)
	}

	p.logger.Info().
		Str("topic_id", event.TopicID.String()).
		Str("normalized_query", event.NormalizedQuery).
		Str("kafka_topic", p.writer.Topic).
		Msg("topic submitted event published")
	if p.metrics != nil {
		p.metrics.RecordEventPublished(p.writer.Topic)
	}

	return nil
}

// Close closes the underlying writer.
func (p *Producer) Close() error {
	p.logger.Info().Msg("closing kafka producer")
	return p.writer.Close()
}
