package httpserver

import (
	"strings"

	"github.com/google/uuid"

	"github.com/aiyoutube/topic-management-service/internal/domain"
)

// Projection fallbacks returned while a topic has no analysis result yet.
// The frontend renders these verbatim as progress placeholders.
const (
	summaryPlaceholder = "Analysis in progress..."
	claimsPlaceholder  = "Gathering claims..."
)

// TopicResponse is the API projection of a topic. Field names are camelCase
// for frontend compatibility. Every field is always present: in-flight
// topics render placeholder values rather than nulls.
type TopicResponse struct {
	TopicID             uuid.UUID              `json:"topicId"`
	Query               string                 `json:"query"`
	Status              string                 `json:"status"`
	Summary             string                 `json:"summary"`
	SentimentScore      float64                `json:"sentimentScore"`
	ConsensusPercentage float64                `json:"consensusPercentage"`
	CommonClaims        string                 `json:"commonClaims"`
	VideoHighlights     []VideoInsightResponse `json:"videoHighlights"`
}

// VideoInsightResponse is the API projection of one video insight.
type VideoInsightResponse struct {
	VideoTitle  string `json:"videoTitle"`
	VideoURL    string `json:"videoUrl"`
	Timestamp   string `json:"timestamp"`
	Explanation string `json:"explanation"`
	Summary     string `json:"summary"`
}

// toTopicResponse projects a topic into its API shape. The mapping is total:
// it never fails and never emits nulls, whatever the topic's lifecycle state.
func toTopicResponse(topic *domain.Topic) TopicResponse {
	resp := TopicResponse{
		TopicID:             topic.ID,
		Query:               topic.NormalizedQuery,
		Status:              strings.ToUpper(string(topic.Status)),
		Summary:             summaryPlaceholder,
		SentimentScore:      0.0,
		ConsensusPercentage: 0.0,
		CommonClaims:        claimsPlaceholder,
		VideoHighlights:     []VideoInsightResponse{},
	}

	if resp.Query == "" {
		resp.Query = topic.RawQuery
	}

	if result := topic.AnalysisResult; result != nil {
		// A stored result replaces the summary placeholder even when the
		// pipeline produced an empty synthesis.
		resp.Summary = result.FinalSummary
		if result.SentimentScore != nil {
			resp.SentimentScore = *result.SentimentScore
		}
		if result.ConsensusPercentage != nil {
			resp.ConsensusPercentage = *result.ConsensusPercentage
		}
		if result.CommonClaims != "" {
			resp.CommonClaims = result.CommonClaims
		}
	}

	for _, in := range topic.VideoInsights {
		resp.VideoHighlights = append(resp.VideoHighlights, VideoInsightResponse{
			VideoTitle:  in.VideoTitle,
			VideoURL:    in.VideoURL,
			Timestamp:   in.Timestamp,
			Explanation: in.BestExplanation,
			Summary:     in.SegmentSummary,
		})
	}

	return resp
}
