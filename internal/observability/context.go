package observability

import (
	"context"
)

// Context keys for observability data.
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	topicIDKey   contextKey = "topic_id"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext retrieves the request ID from context.
// Returns empty string if not present.
func RequestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// WithTopicID adds a topic ID to the context.
func WithTopicID(ctx context.Context, topicID string) context.Context {
	return context.WithValue(ctx, topicIDKey, topicID)
}

// TopicIDFromContext retrieves the topic ID from context.
// Returns empty string if not present.
func TopicIDFromContext(ctx context.Context) string {
	if v := ctx.Value(topicIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
