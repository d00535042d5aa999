package kafka

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/aiyoutube/topic-management-service/internal/domain"
	"github.com/aiyoutube/topic-management-service/internal/service"
)

// AnalysisHandler decodes analysis result messages and merges them through
// the service.
//
// Decode failures and unknown topic ids are logged and committed; the AI
// service occasionally emits results for topics purged in development
// environments and redelivering those forever helps nobody. Persistence
// failures propagate so the offset stays uncommitted.
type AnalysisHandler struct {
	svc    *service.TopicService
	logger zerolog.Logger
}

// NewAnalysisHandler creates a handler for the analysis results topic.
func NewAnalysisHandler(svc *service.TopicService, logger zerolog.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		svc:    svc,
		logger: logger.With().Str("component", "analysis_handler").Logger(),
	}
}

// Handle implements MessageHandler.
func (h *AnalysisHandler) Handle(ctx context.Context, msg kafka.Message) error {
	var event domain.AnalysisCompletedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.Error().Err(err).
			Str("raw_value", string(msg.Value)).
			Msg("failed to unmarshal analysis completed event")
		return nil
	}

	if err := h.svc.ApplyAnalysis(ctx, event); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}

	return nil
}
