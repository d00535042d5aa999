package kafka

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/aiyoutube/topic-management-service/internal/domain"
	"github.com/aiyoutube/topic-management-service/internal/observability"
	"github.com/aiyoutube/topic-management-service/internal/service"
)

// StatusHandler decodes status update messages and hands them to the
// service. Decode failures are logged and committed; a malformed signal
// carries no recoverable state and must not block the partition.
type StatusHandler struct {
	svc     *service.TopicService
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// NewStatusHandler creates a handler for the status update topic.
func NewStatusHandler(svc *service.TopicService, logger zerolog.Logger, metrics *observability.Metrics) *StatusHandler {
	return &StatusHandler{
		svc:     svc,
		logger:  logger.With().Str("component", "status_handler").Logger(),
		metrics: metrics,
	}
}

// Handle implements MessageHandler.
func (h *StatusHandler) Handle(ctx context.Context, msg kafka.Message) error {
	var event domain.StatusUpdateEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.Error().Err(err).
			Str("raw_value", string(msg.Value)).
			Msg("failed to unmarshal status update event")
		if h.metrics != nil {
			h.metrics.RecordStatusRejected("decode")
		}
		return nil
	}

	// Only persistence failures propagate; everything else is discarded
	// inside SyncStatus so the offset can be committed.
	return h.svc.SyncStatus(ctx, event)
}
