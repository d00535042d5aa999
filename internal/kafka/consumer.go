package kafka

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/aiyoutube/topic-management-service/internal/observability"
)

// defaultHandlerRetryDelay is the wait between handler attempts for one
// message when no delay is configured.
const defaultHandlerRetryDelay = 5 * time.Second

// MessageHandler processes one inbound message. Returning an error means the
// message could not be durably processed; the consumer retries the same
// message in place and does not advance on the partition until it succeeds.
// Unparseable or otherwise unprocessable messages should be handled (logged)
// and reported as nil, or they would wedge the partition.
type MessageHandler func(ctx context.Context, msg kafka.Message) error

// ConsumerConfig holds configuration for an inbound topic consumer.
type ConsumerConfig struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string
	// Topic is the inbound topic to consume.
	Topic string
	// GroupID is the consumer group id.
	GroupID string
	// RetryDelay is the wait between handler attempts for a failing message.
	RetryDelay time.Duration
}

// Consumer runs a fetch/handle/commit loop over one inbound topic.
//
// Offsets are committed explicitly after the handler succeeds. A failing
// handler blocks its partition: group commits are per-partition high-water
// marks, so fetching and committing a later message would also mark the
// failed one consumed. The consumer therefore retries the same message in
// place until it succeeds or the context is cancelled. Handlers must be
// idempotent; a crash between handle and commit results in redelivery.
type Consumer struct {
	reader     *kafka.Reader
	handler    MessageHandler
	retryDelay time.Duration
	logger     zerolog.Logger
}

// NewConsumer creates a consumer for one inbound topic.
func NewConsumer(cfg ConsumerConfig, handler MessageHandler, logger zerolog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  3 * time.Second,
	})

	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultHandlerRetryDelay
	}

	return &Consumer{
		reader:     reader,
		handler:    handler,
		retryDelay: retryDelay,
		logger: observability.WithConsumerContext(
			logger.With().Str("component", "kafka_consumer").Logger(),
			cfg.Topic,
			cfg.GroupID,
		),
	}
}

// Run starts the consumer loop. Blocks until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info().Msg("starting consumer")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info().Msg("consumer stopped via context cancellation")
				return ctx.Err()
			}
			c.logger.Error().Err(err).Msg("failed to fetch message from Kafka")
			continue
		}

		c.logger.Debug().
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("received message")

		if err := c.handleWithRetry(ctx, msg); err != nil {
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error().Err(err).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("failed to commit message offset")
		}
	}
}

// handleWithRetry invokes the handler for one message, retrying in place
// until it succeeds or the context is cancelled. It must not return a
// non-context error: fetching past a failed message would let the next
// commit's offset cover it and lose it permanently.
func (c *Consumer) handleWithRetry(ctx context.Context, msg kafka.Message) error {
	for attempt := 1; ; attempt++ {
		err := c.handler(ctx, msg)
		if err == nil {
			return nil
		}

		c.logger.Error().Err(err).
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Int("attempt", attempt).
			Msg("handler failed, retrying same message")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}
}

// Close closes the Kafka reader.
func (c *Consumer) Close() error {
	c.logger.Info().Msg("closing consumer")
	return c.reader.Close()
}
