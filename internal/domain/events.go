package domain

import (
	"strings"

	"github.com/google/uuid"
)

// Kafka topic names shared with the downstream video and AI services.
// These are wire contracts and must not drift.
const (
	// TopicSubmittedEventsTopic carries one message per newly created topic
	// and starts the downstream pipeline.
	TopicSubmittedEventsTopic = "topic-submitted-events"

	// StatusUpdatesTopic carries lightweight progress signals from the
	// downstream services.
	StatusUpdatesTopic = "topic-status-updates"

	// AnalysisCompletedEventsTopic carries partial and final synthesis
	// payloads from the AI service.
	AnalysisCompletedEventsTopic = "analysis-completed-events"
)

// TopicSubmittedEvent is published exactly once per newly created topic.
// The Kafka message key is the topic id so all future messages about the
// same topic land on the same partition.
type TopicSubmittedEvent struct {
	TopicID         uuid.UUID `json:"topicId"`
	NormalizedQuery string    `json:"normalizedQuery"`
}

// StatusUpdateEvent is a progress signal consumed from the status channel.
// Status is free text matched case-insensitively against TopicStatus;
// Message is advisory only and never drives logic.
type StatusUpdateEvent struct {
	TopicID *uuid.UUID `json:"topicId"`
	Status  string     `json:"status"`
	Message string     `json:"message,omitempty"`
}

// SegmentInsight is one video-segment highlight carried by an analysis event.
type SegmentInsight struct {
	VideoID         string `json:"videoId"`
	VideoTitle      string `json:"videoTitle"`
	VideoURL        string `json:"videoUrl"`
	Timestamp       string `json:"timestamp"`
	BestExplanation string `json:"bestExplanation"`
	SegmentSummary  string `json:"segmentSummary"`
}

// AnalysisCompletedEvent carries partial (segments only) or final (summary
// plus metrics) output from the AI service. All result fields are optional;
// segments and the final synthesis may arrive in any order, in any
// combination, and more than once.
type AnalysisCompletedEvent struct {
	TopicID             *uuid.UUID       `json:"topicId"`
	FinalSummary        *string          `json:"finalSummary,omitempty"`
	SentimentScore      *float64         `json:"sentimentScore,omitempty"`
	ConsensusPercentage *float64         `json:"consensusPercentage,omitempty"`
	CommonClaims        *string          `json:"commonClaims,omitempty"`
	Segments            []SegmentInsight `json:"segments,omitempty"`
}

// IsFinal reports whether the event carries a terminal synthesis: a
// finalSummary that is present and is not a partial-progress narration.
func (e *AnalysisCompletedEvent) IsFinal() bool {
	return e.FinalSummary != nil && !strings.Contains(*e.FinalSummary, PartialProgressMarker)
}
