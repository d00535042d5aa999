// Package service implements the topic lifecycle orchestration: submission
// with SEO deduplication, status synchronization, and analysis result merging.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aiyoutube/topic-management-service/internal/domain"
	"github.com/aiyoutube/topic-management-service/internal/llm"
	"github.com/aiyoutube/topic-management-service/internal/observability"
	"github.com/aiyoutube/topic-management-service/internal/repository"
)

// EventPublisher publishes outbound pipeline events.
type EventPublisher interface {
	// PublishTopicSubmitted emits the submission event that starts the
	// downstream pipeline. The message key is the topic id.
	PublishTopicSubmitted(ctx context.Context, event domain.TopicSubmittedEvent) error
}

// TopicService orchestrates the lifecycle of research topics.
type TopicService struct {
	repo       repository.TopicRepository
	publisher  EventPublisher
	normalizer llm.Normalizer
	logger     zerolog.Logger
	metrics    *observability.Metrics
}

// NewTopicService creates a new topic service.
func NewTopicService(
	repo repository.TopicRepository,
	publisher EventPublisher,
	normalizer llm.Normalizer,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *TopicService {
	return &TopicService{
		repo:       repo,
		publisher:  publisher,
		normalizer: normalizer,
		logger:     logger.With().Str("component", "topic_service").Logger(),
		metrics:    metrics,
	}
}

// CreateTopicRequest normalizes the raw query, deduplicates against existing
// topics, and creates a new pending topic when none matches. Exactly one
// submission event is published per created topic; deduplicated submissions
// publish nothing.
func (s *TopicService) CreateTopicRequest(ctx context.Context, rawQuery string) (*domain.Topic, error) {
	s.logger.Info().Str("raw_query", rawQuery).Msg("processing topic submission")

	normalized, err := s.normalizer.Normalize(ctx, rawQuery)
	if err != nil {
		return nil, domain.NewUpstreamError("normalizer", "query normalization failed", err)
	}

	s.logger.Info().Str("normalized_query", normalized).Msg("query normalized")

	existing, err := s.repo.GetByNormalizedQuery(ctx, normalized)
	if err == nil {
		dedupLogger := observability.WithTopicContext(s.logger, existing.ID.String(), normalized)
		dedupLogger.Info().Msg("deduplication hit, returning existing topic")
		if s.metrics != nil {
			s.metrics.RecordTopicDeduplicated()
		}
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to check for existing topic: %w", err)
	}

	now := time.Now().UTC()
	topic := &domain.Topic{
		ID:              uuid.New(),
		RawQuery:        rawQuery,
		NormalizedQuery: normalized,
		Status:          domain.TopicStatusPending,
		VideoInsights:   []domain.VideoInsight{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Create(ctx, topic); err != nil {
		// A concurrent submission of an equivalent query won the insert
		// race; the unique constraint arbitrates. Return the winner's row
		// without publishing a second event.
		if errors.Is(err, domain.ErrAlreadyExists) {
			winner, getErr := s.repo.GetByNormalizedQuery(ctx, normalized)
			if getErr != nil {
				return nil, fmt.Errorf("failed to reload topic after create race: %w", getErr)
			}
			raceLogger := observability.WithTopicContext(s.logger, winner.ID.String(), normalized)
			raceLogger.Info().Msg("lost create race, returning concurrently created topic")
			if s.metrics != nil {
				s.metrics.RecordTopicDeduplicated()
			}
			return winner, nil
		}
		return nil, fmt.Errorf("failed to create topic: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordTopicSubmitted()
	}

	event := domain.TopicSubmittedEvent{
		TopicID:         topic.ID,
		NormalizedQuery: normalized,
	}
	if err := s.publisher.PublishTopicSubmitted(ctx, event); err != nil {
		// The topic row is already durable; failing the request now would
		// leave the caller retrying into the dedup path with no event
		// either way. Surface through logs and metrics instead.
		s.logger.Error().
			Err(err).
			Str("topic_id", topic.ID.String()).
			Msg("failed to publish topic submitted event")
		if s.metrics != nil {
			s.metrics.RecordEventPublishFailed(domain.TopicSubmittedEventsTopic)
		}
	}

	createdLogger := observability.WithTopicContext(s.logger, topic.ID.String(), normalized)
	createdLogger.Info().Msg("topic created and submitted")

	return topic, nil
}

// GetTopicDetails retrieves a topic with its insights.
func (s *TopicService) GetTopicDetails(ctx context.Context, topicID uuid.UUID) (*domain.Topic, error) {
	return s.repo.GetByID(ctx, topicID)
}

// SyncStatus applies a pipeline status signal to its topic.
//
// Messages without a topic id or with an unknown status token are discarded
// without error; the signal channel is advisory and a bad message must not
// wedge the consumer. An unknown topic id is likewise discarded. Only a
// persistence failure returns an error, so the consumer can leave the
// message uncommitted for redelivery.
func (s *TopicService) SyncStatus(ctx context.Context, event domain.StatusUpdateEvent) error {
	if event.TopicID == nil {
		s.logger.Warn().Str("status", event.Status).Msg("status update without topic id, discarding")
		if s.metrics != nil {
			s.metrics.RecordStatusRejected("missing_topic_id")
		}
		return nil
	}

	status, ok := domain.ParseTopicStatus(event.Status)
	if !ok {
		s.logger.Warn().
			Str("topic_id", event.TopicID.String()).
			Str("status", event.Status).
			Msg("unknown status token, discarding")
		if s.metrics != nil {
			s.metrics.RecordStatusRejected("unknown_status")
		}
		return nil
	}

	err := s.repo.Update(ctx, *event.TopicID, func(topic *domain.Topic) error {
		topic.ApplyStatus(status)
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn().
				Str("topic_id", event.TopicID.String()).
				Str("status", string(status)).
				Msg("status update for unknown topic, discarding")
			if s.metrics != nil {
				s.metrics.RecordStatusRejected("unknown_topic")
			}
			return nil
		}
		return fmt.Errorf("failed to apply status update: %w", err)
	}

	s.logger.Info().
		Str("topic_id", event.TopicID.String()).
		Str("status", string(status)).
		Str("message", event.Message).
		Msg("status update applied")
	if s.metrics != nil {
		s.metrics.RecordStatusApplied(string(status))
		if status == domain.TopicStatusFailed {
			s.metrics.RecordTopicFailed()
		}
	}

	return nil
}

// ApplyAnalysis merges an analysis event into its topic in one atomic update.
//
// Segments are appended unless their (videoId, timestamp) key is already
// present, so redelivered and overlapping events are harmless. When the
// event carries a terminal synthesis the analysis result is replaced
// wholesale and the topic completes. Partial and final content in the same
// event are both honored.
func (s *TopicService) ApplyAnalysis(ctx context.Context, event domain.AnalysisCompletedEvent) error {
	if event.TopicID == nil {
		s.logger.Warn().Msg("analysis event without topic id, discarding")
		return nil
	}

	isFinal := event.IsFinal()
	kind := "partial"
	if isFinal {
		kind = "final"
	}
	if s.metrics != nil {
		s.metrics.RecordAnalysisEvent(kind)
	}

	var merged, duplicate int
	err := s.repo.Update(ctx, *event.TopicID, func(topic *domain.Topic) error {
		if isFinal {
			topic.ApplyStatus(domain.TopicStatusCompleted)
			result := &domain.AnalysisResult{
				FinalSummary:        *event.FinalSummary,
				SentimentScore:      event.SentimentScore,
				ConsensusPercentage: event.ConsensusPercentage,
			}
			if event.CommonClaims != nil {
				result.CommonClaims = *event.CommonClaims
			}
			topic.AnalysisResult = result
		}

		for _, seg := range event.Segments {
			added := topic.AddInsight(domain.VideoInsight{
				VideoID:         seg.VideoID,
				VideoTitle:      seg.VideoTitle,
				VideoURL:        seg.VideoURL,
				Timestamp:       seg.Timestamp,
				BestExplanation: seg.BestExplanation,
				SegmentSummary:  seg.SegmentSummary,
			})
			if added {
				merged++
			} else {
				duplicate++
			}
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Error().
				Str("topic_id", event.TopicID.String()).
				Msg("analysis event for unknown topic")
			return err
		}
		return fmt.Errorf("failed to merge analysis event: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordInsightsMerged(merged, duplicate)
		if isFinal {
			s.metrics.RecordTopicCompleted()
		}
	}

	s.logger.Info().
		Str("topic_id", event.TopicID.String()).
		Bool("final", isFinal).
		Int("insights_merged", merged).
		Int("insights_duplicate", duplicate).
		Msg("analysis event merged")

	return nil
}

// HandleTopicFailure marks a topic failed. An unknown topic id is a no-op;
// the failure signal may race topic deletion or arrive for a foreign id.
func (s *TopicService) HandleTopicFailure(ctx context.Context, topicID uuid.UUID, reason string) error {
	err := s.repo.Update(ctx, topicID, func(topic *domain.Topic) error {
		topic.ApplyStatus(domain.TopicStatusFailed)
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to mark topic failed: %w", err)
	}

	s.logger.Error().
		Str("topic_id", topicID.String()).
		Str("reason", reason).
		Msg("pipeline failure recorded for topic")
	if s.metrics != nil {
		s.metrics.RecordTopicFailed()
	}

	return nil
}
