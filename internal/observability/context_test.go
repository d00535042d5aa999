package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestIDContext(t *testing.T) {
	t.Run("stores and retrieves request ID", func(t *testing.T) {
		ctx := context.Background()
		ctx = WithRequestID(ctx, "req-123")

		result := RequestIDFromContext(ctx)
		assert.Equal(t, "req-123", result)
	})

	t.Run("returns empty string when not set", func(t *testing.T) {
		ctx := context.Background()
		result := RequestIDFromContext(ctx)
		assert.Equal(t, "", result)
	})
}

func TestTopicIDContext(t *testing.T) {
	t.Run("stores and retrieves topic ID", func(t *testing.T) {
		ctx := context.Background()
		ctx = WithTopicID(ctx, "7d444840-9dc0-11d1-b245-5ffdce74fad2")

		result := TopicIDFromContext(ctx)
		assert.Equal(t, "7d444840-9dc0-11d1-b245-5ffdce74fad2", result)
	})

	t.Run("returns empty string when not set", func(t *testing.T) {
		ctx := context.Background()
		result := TopicIDFromContext(ctx)
		assert.Equal(t, "", result)
	})

	t.Run("keys do not collide", func(t *testing.T) {
		ctx := context.Background()
		ctx = WithRequestID(ctx, "req-123")
		ctx = WithTopicID(ctx, "topic-456")

		assert.Equal(t, "req-123", RequestIDFromContext(ctx))
		assert.Equal(t, "topic-456", TopicIDFromContext(ctx))
	})
}
