package httpserver

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiyoutube/topic-management-service/internal/domain"
)

func TestToTopicResponse(t *testing.T) {
	t.Run("pending topic renders placeholders", func(t *testing.T) {
		topic := &domain.Topic{
			ID:              uuid.New(),
			RawQuery:        "What do people think about the Cybertruck?",
			NormalizedQuery: "cybertruck public opinion review",
			Status:          domain.TopicStatusPending,
		}

		resp := toTopicResponse(topic)
		assert.Equal(t, "cybertruck public opinion review", resp.Query)
		assert.Equal(t, "PENDING", resp.Status)
		assert.Equal(t, "Analysis in progress...", resp.Summary)
		assert.Equal(t, 0.0, resp.SentimentScore)
		assert.Equal(t, 0.0, resp.ConsensusPercentage)
		assert.Equal(t, "Gathering claims...", resp.CommonClaims)
		assert.NotNil(t, resp.VideoHighlights)
		assert.Empty(t, resp.VideoHighlights)
	})

	t.Run("completed topic renders the stored result", func(t *testing.T) {
		score := 0.82
		consensus := 74.5
		topic := &domain.Topic{
			ID:              uuid.New(),
			RawQuery:        "cybertruck",
			NormalizedQuery: "cybertruck public opinion review",
			Status:          domain.TopicStatusCompleted,
			AnalysisResult: &domain.AnalysisResult{
				FinalSummary:        "Reception is cautiously positive.",
				SentimentScore:      &score,
				ConsensusPercentage: &consensus,
				CommonClaims:        "Range claims hold up.",
			},
			VideoInsights: []domain.VideoInsight{
				{
					VideoTitle:      "Cybertruck Review",
					VideoURL:        "https://youtube.com/watch?v=abc123",
					Timestamp:       "05:20",
					BestExplanation: "Covers the range test",
					SegmentSummary:  "Highway range measured",
				},
			},
		}

		resp := toTopicResponse(topic)
		assert.Equal(t, "COMPLETED", resp.Status)
		assert.Equal(t, "Reception is cautiously positive.", resp.Summary)
		assert.Equal(t, 0.82, resp.SentimentScore)
		assert.Equal(t, 74.5, resp.ConsensusPercentage)
		assert.Equal(t, "Range claims hold up.", resp.CommonClaims)
		require.Len(t, resp.VideoHighlights, 1)
		assert.Equal(t, "Cybertruck Review", resp.VideoHighlights[0].VideoTitle)
		assert.Equal(t, "Covers the range test", resp.VideoHighlights[0].Explanation)
	})

	t.Run("result with missing numerics falls back to zero", func(t *testing.T) {
		topic := &domain.Topic{
			ID:             uuid.New(),
			Status:         domain.TopicStatusCompleted,
			AnalysisResult: &domain.AnalysisResult{FinalSummary: "Done."},
		}

		resp := toTopicResponse(topic)
		assert.Equal(t, "Done.", resp.Summary)
		assert.Equal(t, 0.0, resp.SentimentScore)
		assert.Equal(t, 0.0, resp.ConsensusPercentage)
		assert.Equal(t, "Gathering claims...", resp.CommonClaims)
	})

	t.Run("stored empty summary renders empty, not the placeholder", func(t *testing.T) {
		topic := &domain.Topic{
			ID:             uuid.New(),
			Status:         domain.TopicStatusCompleted,
			AnalysisResult: &domain.AnalysisResult{},
		}

		resp := toTopicResponse(topic)
		assert.Equal(t, "", resp.Summary)
		assert.Equal(t, "COMPLETED", resp.Status)
	})

	t.Run("falls back to raw query when normalization is missing", func(t *testing.T) {
		topic := &domain.Topic{
			ID:       uuid.New(),
			RawQuery: "cybertruck",
			Status:   domain.TopicStatusPending,
		}
		assert.Equal(t, "cybertruck", toTopicResponse(topic).Query)
	})

	t.Run("serializes with camelCase field names and no nulls", func(t *testing.T) {
		topic := &domain.Topic{ID: uuid.New(), RawQuery: "q", Status: domain.TopicStatusFailed}

		data, err := json.Marshal(toTopicResponse(topic))
		require.NoError(t, err)

		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &m))
		for _, key := range []string{"topicId", "query", "status", "summary", "sentimentScore", "consensusPercentage", "commonClaims", "videoHighlights"} {
			v, ok := m[key]
			assert.True(t, ok, "missing key %s", key)
			assert.NotNil(t, v, "null value for key %s", key)
		}
		assert.Equal(t, "FAILED", m["status"])
	})
}
