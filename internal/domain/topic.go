// Package domain provides domain models and business logic for the Topic Management Service.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TopicStatus represents the lifecycle states of a research topic.
// These values must match the database enum topic_status.
type TopicStatus string

const (
	// TopicStatusPending means the request was accepted and normalized but
	// downstream processing has not started.
	TopicStatusPending TopicStatus = "pending"

	// TopicStatusExtracting means the video service is discovering videos
	// and scraping transcripts.
	TopicStatusExtracting TopicStatus = "extracting"

	// TopicStatusAnalyzing means the AI service is synthesizing insights
	// from the extracted transcripts.
	TopicStatusAnalyzing TopicStatus = "analyzing"

	// TopicStatusCompleted means the final report and highlights are stored.
	TopicStatusCompleted TopicStatus = "completed"

	// TopicStatusFailed means some service in the chain hit an unrecoverable
	// error (quota exhaustion, permanent upstream failure).
	TopicStatusFailed TopicStatus = "failed"
)

// IsTerminal returns true if the status represents a final state that will not change.
func (s TopicStatus) IsTerminal() bool {
	switch s {
	case TopicStatusCompleted, TopicStatusFailed:
		return true
	default:
		return false
	}
}

// ParseTopicStatus maps a free-text status token, case-insensitively, to a
// known TopicStatus. Returns false if the token does not name a known state.
func ParseTopicStatus(token string) (TopicStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "pending":
		return TopicStatusPending, true
	case "extracting":
		return TopicStatusExtracting, true
	case "analyzing":
		return TopicStatusAnalyzing, true
	case "completed":
		return TopicStatusCompleted, true
	case "failed":
		return TopicStatusFailed, true
	default:
		return "", false
	}
}

// PartialProgressMarker is the literal substring that distinguishes a
// partial-progress narration from a terminal synthesis when both reuse the
// finalSummary field. Downstream services emit e.g. "Analyzing video 1 of 3..."
// while work is still in flight. Kept verbatim for wire compatibility even
// though a legitimate final summary containing it would be misclassified.
const PartialProgressMarker = "Analyzing video"

// AnalysisResult holds the final AI-generated synthesis for a topic.
// Present on a Topic only after a final analysis event has been merged.
type AnalysisResult struct {
	// FinalSummary is the executive summary synthesized from all video sources.
	FinalSummary string `json:"final_summary"`

	// SentimentScore is the overall perception score in [0, 1].
	SentimentScore *float64 `json:"sentiment_score,omitempty"`

	// ConsensusPercentage is the factual agreement percentage in [0, 100].
	ConsensusPercentage *float64 `json:"consensus_percentage,omitempty"`

	// CommonClaims is a stringified list of factual points found across sources.
	CommonClaims string `json:"common_claims,omitempty"`
}

// VideoInsight is a single highlight extracted from one video, owned by its
// parent Topic. Insights are immutable once inserted; redelivery of the same
// (VideoID, Timestamp) pair is a no-op.
type VideoInsight struct {
	ID      uuid.UUID `json:"id"`
	TopicID uuid.UUID `json:"topic_id"`

	VideoID    string `json:"video_id"`
	VideoTitle string `json:"video_title"`
	VideoURL   string `json:"video_url"`

	// Timestamp is a free-form position marker, e.g. "05:20" or "320".
	Timestamp string `json:"timestamp"`

	// BestExplanation states why this video segment is relevant.
	BestExplanation string `json:"best_explanation"`

	// SegmentSummary summarizes what happens at the timestamp.
	SegmentSummary string `json:"segment_summary"`

	CreatedAt time.Time `json:"created_at"`
}

// Topic is the aggregate root representing one deduplicated research query
// and everything the pipeline has accumulated for it.
type Topic struct {
	ID uuid.UUID `json:"id"`

	// RawQuery is the original user text, immutable.
	RawQuery string `json:"raw_query"`

	// NormalizedQuery is the SEO keyword string derived from RawQuery.
	// Unique across topics; set exactly once at creation.
	NormalizedQuery string `json:"normalized_query"`

	Status TopicStatus `json:"status"`

	// AnalysisResult is nil until a final synthesis event has been merged.
	AnalysisResult *AnalysisResult `json:"analysis_result,omitempty"`

	VideoInsights []VideoInsight `json:"video_insights"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ApplyStatus overwrites the topic status with the given state.
//
// The pipeline does not enforce monotonic ordering of status tokens, so a
// late-arriving stale status can regress the visible state. That last-writer-
// wins behavior is deliberately isolated here so a future version can add
// monotonicity checking without touching callers.
func (t *Topic) ApplyStatus(s TopicStatus) {
	t.Status = s
}

// HasInsight reports whether an insight with the given dedup key
// (videoID, timestamp) already exists on the topic.
func (t *Topic) HasInsight(videoID, timestamp string) bool {
	for _, in := range t.VideoInsights {
		if in.VideoID == videoID && in.Timestamp == timestamp {
			return true
		}
	}
	return false
}

// AddInsight appends an insight unless its (VideoID, Timestamp) key is
// already present. Returns true if the insight was added.
func (t *Topic) AddInsight(in VideoInsight) bool {
	if t.HasInsight(in.VideoID, in.Timestamp) {
		return false
	}
	in.TopicID = t.ID
	t.VideoInsights = append(t.VideoInsights, in)
	return true
}
