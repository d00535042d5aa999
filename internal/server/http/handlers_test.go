package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiyoutube/topic-management-service/internal/domain"
	"github.com/aiyoutube/topic-management-service/internal/service"
)

// stubRepo backs the service with a fixed set of topics.
type stubRepo struct {
	topics map[uuid.UUID]*domain.Topic
}

func newStubRepo() *stubRepo {
	return &stubRepo{topics: make(map[uuid.UUID]*domain.Topic)}
}

func (s *stubRepo) Create(ctx context.Context, topic *domain.Topic) error {
	s.topics[topic.ID] = topic
	return nil
}

func (s *stubRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Topic, error) {
	topic, ok := s.topics[id]
	if !ok {
		return nil, domain.NewNotFoundError("topic", id.String())
	}
	return topic, nil
}

func (s *stubRepo) GetByNormalizedQuery(ctx context.Context, q string) (*domain.Topic, error) {
	for _, topic := range s.topics {
		if topic.NormalizedQuery == q {
			return topic, nil
		}
	}
	return nil, domain.NewNotFoundError("topic", q)
}

func (s *stubRepo) Update(ctx context.Context, id uuid.UUID, fn func(*domain.Topic) error) error {
	topic, ok := s.topics[id]
	if !ok {
		return domain.NewNotFoundError("topic", id.String())
	}
	return fn(topic)
}

type stubPublisher struct{}

func (stubPublisher) PublishTopicSubmitted(ctx context.Context, event domain.TopicSubmittedEvent) error {
	return nil
}

type stubNormalizer struct {
	result string
	err    error
}

func (s stubNormalizer) Normalize(ctx context.Context, rawQuery string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.result, nil
}

func newTestServer(repo *stubRepo, norm stubNormalizer) *Server {
	svc := service.NewTopicService(repo, stubPublisher{}, norm, zerolog.Nop(), nil)
	return NewServer(Config{Address: "127.0.0.1:0"}, svc, nil, zerolog.Nop())
}

func TestCreateTopicHandler(t *testing.T) {
	t.Run("accepts a submission with 202", func(t *testing.T) {
		repo := newStubRepo()
		srv := newTestServer(repo, stubNormalizer{result: "cybertruck public opinion review"})

		body := `{"query": "What do people think about the Cybertruck?"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/topics", strings.NewReader(body))
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)

		require.Equal(t, http.StatusAccepted, rec.Code)

		var resp TopicResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "cybertruck public opinion review", resp.Query)
		assert.Equal(t, "PENDING", resp.Status)
		assert.Equal(t, "Analysis in progress...", resp.Summary)
		assert.Len(t, repo.topics, 1)
	})

	t.Run("rejects invalid JSON", func(t *testing.T) {
		srv := newTestServer(newStubRepo(), stubNormalizer{result: "x y z"})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/topics", strings.NewReader("{{"))
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects a missing query", func(t *testing.T) {
		srv := newTestServer(newStubRepo(), stubNormalizer{result: "x y z"})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/topics", strings.NewReader(`{"query": "  "}`))
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "required")
	})

	t.Run("rejects a too-short query", func(t *testing.T) {
		srv := newTestServer(newStubRepo(), stubNormalizer{result: "x y z"})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/topics", strings.NewReader(`{"query": "ab"}`))
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "at least 3 characters")
	})

	t.Run("returns 503 when the normalizer is down", func(t *testing.T) {
		srv := newTestServer(newStubRepo(), stubNormalizer{
			err: domain.NewUpstreamError("normalizer", "timeout", nil),
		})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/topics", strings.NewReader(`{"query": "cybertruck opinions"}`))
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("resubmission returns the existing topic", func(t *testing.T) {
		repo := newStubRepo()
		srv := newTestServer(repo, stubNormalizer{result: "cybertruck public opinion review"})

		first := httptest.NewRequest(http.MethodPost, "/api/v1/topics", strings.NewReader(`{"query": "cybertruck opinions"}`))
		rec1 := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec1, first)
		require.Equal(t, http.StatusAccepted, rec1.Code)

		second := httptest.NewRequest(http.MethodPost, "/api/v1/topics", strings.NewReader(`{"query": "opinions on the cybertruck!!!"}`))
		rec2 := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec2, second)
		require.Equal(t, http.StatusAccepted, rec2.Code)

		var resp1, resp2 TopicResponse
		require.NoError(t, json.Unmarshal(rec1.Body.Bytes(), &resp1))
		require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &resp2))
		assert.Equal(t, resp1.TopicID, resp2.TopicID)
		assert.Len(t, repo.topics, 1)
	})
}

func TestGetTopicHandler(t *testing.T) {
	t.Run("returns the projected topic", func(t *testing.T) {
		repo := newStubRepo()
		topicID := uuid.New()
		score := 0.9
		repo.topics[topicID] = &domain.Topic{
			ID:              topicID,
			RawQuery:        "cybertruck",
			NormalizedQuery: "cybertruck public opinion review",
			Status:          domain.TopicStatusCompleted,
			AnalysisResult: &domain.AnalysisResult{
				FinalSummary:   "Positive.",
				SentimentScore: &score,
			},
		}
		srv := newTestServer(repo, stubNormalizer{})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/topics/"+topicID.String(), nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp TopicResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, topicID, resp.TopicID)
		assert.Equal(t, "COMPLETED", resp.Status)
		assert.Equal(t, "Positive.", resp.Summary)
		assert.Equal(t, 0.9, resp.SentimentScore)
	})

	t.Run("returns 404 for an unknown topic", func(t *testing.T) {
		srv := newTestServer(newStubRepo(), stubNormalizer{})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/topics/"+uuid.NewString(), nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("returns 400 for a malformed id", func(t *testing.T) {
		srv := newTestServer(newStubRepo(), stubNormalizer{})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/topics/not-a-uuid", nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
