package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestTopicStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   TopicStatus
		terminal bool
	}{
		{TopicStatusPending, false},
		{TopicStatusExtracting, false},
		{TopicStatusAnalyzing, false},
		{TopicStatusCompleted, true},
		{TopicStatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
		})
	}
}

func TestParseTopicStatus(t *testing.T) {
	tests := []struct {
		token    string
		expected TopicStatus
		ok       bool
	}{
		{"pending", TopicStatusPending, true},
		{"EXTRACTING", TopicStatusExtracting, true},
		{"Analyzing", TopicStatusAnalyzing, true},
		{"  completed  ", TopicStatusCompleted, true},
		{"FAILED", TopicStatusFailed, true},
		{"done", "", false},
		{"", "", false},
		{"completed!", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			status, ok := ParseTopicStatus(tt.token)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, status)
		})
	}
}

func TestTopic_ApplyStatus(t *testing.T) {
	topic := &Topic{ID: uuid.New(), Status: TopicStatusPending}

	topic.ApplyStatus(TopicStatusAnalyzing)
	assert.Equal(t, TopicStatusAnalyzing, topic.Status)

	// Last writer wins, even when the new state moves backwards.
	topic.ApplyStatus(TopicStatusExtracting)
	assert.Equal(t, TopicStatusExtracting, topic.Status)
}

func TestTopic_AddInsight(t *testing.T) {
	t.Run("appends and assigns ownership", func(t *testing.T) {
		topic := &Topic{ID: uuid.New()}

		added := topic.AddInsight(VideoInsight{VideoID: "abc123", Timestamp: "05:20"})
		assert.True(t, added)
		assert.Len(t, topic.VideoInsights, 1)
		assert.Equal(t, topic.ID, topic.VideoInsights[0].TopicID)
	})

	t.Run("rejects a duplicate dedup key", func(t *testing.T) {
		topic := &Topic{ID: uuid.New()}
		topic.AddInsight(VideoInsight{VideoID: "abc123", Timestamp: "05:20"})

		added := topic.AddInsight(VideoInsight{VideoID: "abc123", Timestamp: "05:20", VideoTitle: "other title"})
		assert.False(t, added)
		assert.Len(t, topic.VideoInsights, 1)
	})

	t.Run("same video at a different timestamp is distinct", func(t *testing.T) {
		topic := &Topic{ID: uuid.New()}
		topic.AddInsight(VideoInsight{VideoID: "abc123", Timestamp: "05:20"})

		added := topic.AddInsight(VideoInsight{VideoID: "abc123", Timestamp: "07:45"})
		assert.True(t, added)
		assert.Len(t, topic.VideoInsights, 2)
	})
}

func TestTopic_HasInsight(t *testing.T) {
	topic := &Topic{ID: uuid.New()}
	topic.AddInsight(VideoInsight{VideoID: "abc123", Timestamp: "05:20"})

	assert.True(t, topic.HasInsight("abc123", "05:20"))
	assert.False(t, topic.HasInsight("abc123", "05:21"))
	assert.False(t, topic.HasInsight("xyz789", "05:20"))
}
