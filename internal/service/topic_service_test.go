package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiyoutube/topic-management-service/internal/domain"
)

// fakeTopicRepo is an in-memory TopicRepository for service tests.
type fakeTopicRepo struct {
	byID        map[uuid.UUID]*domain.Topic
	byQuery     map[string]uuid.UUID
	createErr   error
	updateErr   error
	updateCalls int

	// missQueryOnce makes the next GetByNormalizedQuery miss, simulating the
	// window between the dedup lookup and a concurrent insert.
	missQueryOnce bool
}

func newFakeTopicRepo() *fakeTopicRepo {
	return &fakeTopicRepo{
		byID:    make(map[uuid.UUID]*domain.Topic),
		byQuery: make(map[string]uuid.UUID),
	}
}

func (f *fakeTopicRepo) Create(ctx context.Context, topic *domain.Topic) error {
	if f.createErr != nil {
		return f.createErr
	}
	if _, exists := f.byQuery[topic.NormalizedQuery]; exists {
		return domain.NewAlreadyExistsError("topic", topic.NormalizedQuery)
	}
	cp := *topic
	f.byID[topic.ID] = &cp
	f.byQuery[topic.NormalizedQuery] = topic.ID
	return nil
}

func (f *fakeTopicRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Topic, error) {
	topic, ok := f.byID[id]
	if !ok {
		return nil, domain.NewNotFoundError("topic", id.String())
	}
	cp := *topic
	return &cp, nil
}

func (f *fakeTopicRepo) GetByNormalizedQuery(ctx context.Context, normalizedQuery string) (*domain.Topic, error) {
	if f.missQueryOnce {
		f.missQueryOnce = false
		return nil, domain.NewNotFoundError("topic", normalizedQuery)
	}
	id, ok := f.byQuery[normalizedQuery]
	if !ok {
		return nil, domain.NewNotFoundError("topic", normalizedQuery)
	}
	return f.GetByID(ctx, id)
}

func (f *fakeTopicRepo) Update(ctx context.Context, id uuid.UUID, fn func(*domain.Topic) error) error {
	f.updateCalls++
	if f.updateErr != nil {
		return f.updateErr
	}
	topic, ok := f.byID[id]
	if !ok {
		return domain.NewNotFoundError("topic", id.String())
	}
	if err := fn(topic); err != nil {
		return err
	}
	return nil
}

// seed inserts a topic directly into the fake store.
func (f *fakeTopicRepo) seed(topic *domain.Topic) {
	f.byID[topic.ID] = topic
	f.byQuery[topic.NormalizedQuery] = topic.ID
}

// fakePublisher records published submission events.
type fakePublisher struct {
	events []domain.TopicSubmittedEvent
	err    error
}

func (f *fakePublisher) PublishTopicSubmitted(ctx context.Context, event domain.TopicSubmittedEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

// fakeNormalizer returns a canned normalized query.
type fakeNormalizer struct {
	result string
	err    error
	calls  int
}

func (f *fakeNormalizer) Normalize(ctx context.Context, rawQuery string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.result, nil
}

func newService(repo *fakeTopicRepo, pub *fakePublisher, norm *fakeNormalizer) *TopicService {
	return NewTopicService(repo, pub, norm, zerolog.Nop(), nil)
}

func TestCreateTopicRequest(t *testing.T) {
	t.Run("creates topic and publishes one submission event", func(t *testing.T) {
		repo := newFakeTopicRepo()
		pub := &fakePublisher{}
		norm := &fakeNormalizer{result: "cybertruck public opinion review"}
		svc := newService(repo, pub, norm)

		topic, err := svc.CreateTopicRequest(context.Background(), "What do people think about the Cybertruck?")
		require.NoError(t, err)

		assert.Equal(t, "What do people think about the Cybertruck?", topic.RawQuery)
		assert.Equal(t, "cybertruck public opinion review", topic.NormalizedQuery)
		assert.Equal(t, domain.TopicStatusPending, topic.Status)
		assert.Nil(t, topic.AnalysisResult)
		assert.Empty(t, topic.VideoInsights)

		require.Len(t, pub.events, 1)
		assert.Equal(t, topic.ID, pub.events[0].TopicID)
		assert.Equal(t, "cybertruck public opinion review", pub.events[0].NormalizedQuery)
	})

	t.Run("equivalent queries deduplicate to one topic without a second event", func(t *testing.T) {
		repo := newFakeTopicRepo()
		pub := &fakePublisher{}
		norm := &fakeNormalizer{result: "cybertruck public opinion review"}
		svc := newService(repo, pub, norm)

		first, err := svc.CreateTopicRequest(context.Background(), "What do people think about the Cybertruck?")
		require.NoError(t, err)

		second, err := svc.CreateTopicRequest(context.Background(), "cybertruck opinions???")
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Len(t, pub.events, 1)
	})

	t.Run("normalizer failure surfaces as upstream unavailable and persists nothing", func(t *testing.T) {
		repo := newFakeTopicRepo()
		pub := &fakePublisher{}
		norm := &fakeNormalizer{err: errors.New("groq down")}
		svc := newService(repo, pub, norm)

		_, err := svc.CreateTopicRequest(context.Background(), "cybertruck")
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrUpstreamUnavailable))
		assert.Empty(t, repo.byID)
		assert.Empty(t, pub.events)
	})

	t.Run("losing the create race returns the winner without publishing", func(t *testing.T) {
		repo := newFakeTopicRepo()
		winner := &domain.Topic{
			ID:              uuid.New(),
			RawQuery:        "cybertruck",
			NormalizedQuery: "cybertruck public opinion review",
			Status:          domain.TopicStatusPending,
		}
		repo.seed(winner)
		// The dedup lookup misses, then the insert hits the unique
		// constraint laid down by the concurrent winner.
		repo.missQueryOnce = true

		pub := &fakePublisher{}
		norm := &fakeNormalizer{result: winner.NormalizedQuery}
		svc := newService(repo, pub, norm)

		topic, err := svc.CreateTopicRequest(context.Background(), "cybertruck")
		require.NoError(t, err)
		assert.Equal(t, winner.ID, topic.ID)
		assert.Empty(t, pub.events)
	})

	t.Run("publish failure does not fail the request", func(t *testing.T) {
		repo := newFakeTopicRepo()
		pub := &fakePublisher{err: errors.New("broker unreachable")}
		norm := &fakeNormalizer{result: "cybertruck public opinion review"}
		svc := newService(repo, pub, norm)

		topic, err := svc.CreateTopicRequest(context.Background(), "cybertruck")
		require.NoError(t, err)
		assert.NotNil(t, topic)
		assert.Len(t, repo.byID, 1)
	})
}

func TestSyncStatus(t *testing.T) {
	seeded := func() (*fakeTopicRepo, *domain.Topic) {
		repo := newFakeTopicRepo()
		topic := &domain.Topic{
			ID:              uuid.New(),
			RawQuery:        "cybertruck",
			NormalizedQuery: "cybertruck public opinion review",
			Status:          domain.TopicStatusPending,
		}
		repo.seed(topic)
		return repo, topic
	}

	t.Run("applies a status token case-insensitively", func(t *testing.T) {
		repo, topic := seeded()
		svc := newService(repo, &fakePublisher{}, &fakeNormalizer{})

		err := svc.SyncStatus(context.Background(), domain.StatusUpdateEvent{
			TopicID: &topic.ID,
			Status:  "EXTRACTING",
			Message: "scraping transcripts",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.TopicStatusExtracting, repo.byID[topic.ID].Status)
	})

	t.Run("discards unknown status tokens without touching state", func(t *testing.T) {
		repo, topic := seeded()
		svc := newService(repo, &fakePublisher{}, &fakeNormalizer{})

		err := svc.SyncStatus(context.Background(), domain.StatusUpdateEvent{
			TopicID: &topic.ID,
			Status:  "TRANSMOGRIFYING",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.TopicStatusPending, repo.byID[topic.ID].Status)
		assert.Zero(t, repo.updateCalls)
	})

	t.Run("discards messages without a topic id", func(t *testing.T) {
		repo, _ := seeded()
		svc := newService(repo, &fakePublisher{}, &fakeNormalizer{})

		err := svc.SyncStatus(context.Background(), domain.StatusUpdateEvent{Status: "analyzing"})
		require.NoError(t, err)
		assert.Zero(t, repo.updateCalls)
	})

	t.Run("discards updates for unknown topics", func(t *testing.T) {
		repo, _ := seeded()
		svc := newService(repo, &fakePublisher{}, &fakeNormalizer{})

		unknown := uuid.New()
		err := svc.SyncStatus(context.Background(), domain.StatusUpdateEvent{
			TopicID: &unknown,
			Status:  "analyzing",
		})
		require.NoError(t, err)
	})

	t.Run("propagates persistence failures", func(t *testing.T) {
		repo, topic := seeded()
		repo.updateErr = errors.New("connection reset")
		svc := newService(repo, &fakePublisher{}, &fakeNormalizer{})

		err := svc.SyncStatus(context.Background(), domain.StatusUpdateEvent{
			TopicID: &topic.ID,
			Status:  "analyzing",
		})
		require.Error(t, err)
	})

	t.Run("stale update still overwrites a newer state", func(t *testing.T) {
		repo, topic := seeded()
		repo.byID[topic.ID].Status = domain.TopicStatusAnalyzing
		svc := newService(repo, &fakePublisher{}, &fakeNormalizer{})

		err := svc.SyncStatus(context.Background(), domain.StatusUpdateEvent{
			TopicID: &topic.ID,
			Status:  "extracting",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.TopicStatusExtracting, repo.byID[topic.ID].Status)
	})
}

func TestApplyAnalysis(t *testing.T) {
	seeded := func() (*fakeTopicRepo, *domain.Topic) {
		repo := newFakeTopicRepo()
		topic := &domain.Topic{
			ID:              uuid.New(),
			RawQuery:        "cybertruck",
			NormalizedQuery: "cybertruck public opinion review",
			Status:          domain.TopicStatusAnalyzing,
		}
		repo.seed(topic)
		return repo, topic
	}

	segment := func(videoID, timestamp string) domain.SegmentInsight {
		return domain.SegmentInsight{
			VideoID:         videoID,
			VideoTitle:      "Cybertruck Review",
			VideoURL:        "https://youtube.com/watch?v=" + videoID,
			Timestamp:       timestamp,
			BestExplanation: "Covers the relevant claim",
			SegmentSummary:  "Walkthrough of the feature",
		}
	}

	t.Run("partial event merges segments without completing", func(t *testing.T) {
		repo, topic := seeded()
		svc := newService(repo, &fakePublisher{}, &fakeNormalizer{})

		progress := "Analyzing video 1 of 3..."
		err := svc.ApplyAnalysis(context.Background(), domain.AnalysisCompletedEvent{
			TopicID:      &topic.ID,
			FinalSummary: &progress,
			Segments:     []domain.SegmentInsight{segment("abc123", "05:20")},
		})
		require.NoError(t, err)

		stored := repo.byID[topic.ID]
		assert.Equal(t, domain.TopicStatusAnalyzing, stored.Status)
		assert.Nil(t, stored.AnalysisResult)
		require.Len(t, stored.VideoInsights, 1)
		assert.Equal(t, "abc123", stored.VideoInsights[0].VideoID)
	})

	t.Run("final event completes the topic and stores the result", func(t *testing.T) {
		repo, topic := seeded()
		svc := newService(repo, &fakePublisher{}, &fakeNormalizer{})

		summary := "Overall reception is cautiously positive."
		score := 0.82
		consensus := 74.5
		claims := "Build quality is divisive; range claims hold up."
		err := svc.ApplyAnalysis(context.Background(), domain.AnalysisCompletedEvent{
			TopicID:             &topic.ID,
			FinalSummary:        &summary,
			SentimentScore:      &score,
			ConsensusPercentage: &consensus,
			CommonClaims:        &claims,
			Segments:            []domain.SegmentInsight{segment("abc123", "05:20")},
		})
		require.NoError(t, err)

		stored := repo.byID[topic.ID]
		assert.Equal(t, domain.TopicStatusCompleted, stored.Status)
		require.NotNil(t, stored.AnalysisResult)
		assert.Equal(t, summary, stored.AnalysisResult.FinalSummary)
		assert.Equal(t, &score, stored.AnalysisResult.SentimentScore)
		assert.Equal(t, claims, stored.AnalysisResult.CommonClaims)
		assert.Len(t, stored.VideoInsights, 1)
	})

	t.Run("redelivered event is idempotent", func(t *testing.T) {
		repo, topic := seeded()
		svc := newService(repo, &fakePublisher{}, &fakeNormalizer{})

		summary := "Overall reception is cautiously positive."
		event := domain.AnalysisCompletedEvent{
			TopicID:      &topic.ID,
			FinalSummary: &summary,
			Segments:     []domain.SegmentInsight{segment("abc123", "05:20"), segment("def456", "01:10")},
		}

		require.NoError(t, svc.ApplyAnalysis(context.Background(), event))
		require.NoError(t, svc.ApplyAnalysis(context.Background(), event))

		stored := repo.byID[topic.ID]
		assert.Len(t, stored.VideoInsights, 2)
		assert.Equal(t, domain.TopicStatusCompleted, stored.Status)
	})

	t.Run("same video different timestamps are distinct insights", func(t *testing.T) {
		repo, topic := seeded()
		svc := newService(repo, &fakePublisher{}, &fakeNormalizer{})

		err := svc.ApplyAnalysis(context.Background(), domain.AnalysisCompletedEvent{
			TopicID:  &topic.ID,
			Segments: []domain.SegmentInsight{segment("abc123", "05:20"), segment("abc123", "12:45")},
		})
		require.NoError(t, err)
		assert.Len(t, repo.byID[topic.ID].VideoInsights, 2)
	})

	t.Run("segments arriving after the final event still merge", func(t *testing.T) {
		repo, topic := seeded()
		svc := newService(repo, &fakePublisher{}, &fakeNormalizer{})

		summary := "Done."
		require.NoError(t, svc.ApplyAnalysis(context.Background(), domain.AnalysisCompletedEvent{
			TopicID:      &topic.ID,
			FinalSummary: &summary,
		}))
		require.NoError(t, svc.ApplyAnalysis(context.Background(), domain.AnalysisCompletedEvent{
			TopicID:  &topic.ID,
			Segments: []domain.SegmentInsight{segment("abc123", "05:20")},
		}))

		stored := repo.byID[topic.ID]
		assert.Equal(t, domain.TopicStatusCompleted, stored.Status)
		assert.Len(t, stored.VideoInsights, 1)
	})

	t.Run("unknown topic returns not found", func(t *testing.T) {
		repo, _ := seeded()
		svc := newService(repo, &fakePublisher{}, &fakeNormalizer{})

		unknown := uuid.New()
		summary := "Done."
		err := svc.ApplyAnalysis(context.Background(), domain.AnalysisCompletedEvent{
			TopicID:      &unknown,
			FinalSummary: &summary,
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("event without topic id is discarded", func(t *testing.T) {
		repo, _ := seeded()
		svc := newService(repo, &fakePublisher{}, &fakeNormalizer{})

		err := svc.ApplyAnalysis(context.Background(), domain.AnalysisCompletedEvent{})
		require.NoError(t, err)
		assert.Zero(t, repo.updateCalls)
	})
}

func TestHandleTopicFailure(t *testing.T) {
	t.Run("marks the topic failed", func(t *testing.T) {
		repo := newFakeTopicRepo()
		topic := &domain.Topic{
			ID:              uuid.New(),
			NormalizedQuery: "cybertruck public opinion review",
			Status:          domain.TopicStatusExtracting,
		}
		repo.seed(topic)
		svc := newService(repo, &fakePublisher{}, &fakeNormalizer{})

		err := svc.HandleTopicFailure(context.Background(), topic.ID, "youtube quota exhausted")
		require.NoError(t, err)
		assert.Equal(t, domain.TopicStatusFailed, repo.byID[topic.ID].Status)
	})

	t.Run("unknown topic is a no-op", func(t *testing.T) {
		repo := newFakeTopicRepo()
		svc := newService(repo, &fakePublisher{}, &fakeNormalizer{})

		err := svc.HandleTopicFailure(context.Background(), uuid.New(), "whatever")
		require.NoError(t, err)
	})
}
