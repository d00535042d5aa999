package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/aiyoutube/topic-management-service/internal/database"
	"github.com/aiyoutube/topic-management-service/internal/domain"
)

// txRunner is implemented by handles that run a function inside a managed
// transaction with rollback on error. Preferred over txBeginner when
// available so panic-safe rollback lives in one place.
type txRunner interface {
	WithTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error
	WithReadOnlyTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error
}

var _ txRunner = (*database.DB)(nil)

// txBeginner is an interface for types that can begin a transaction (e.g., *pgxpool.Pool).
// Used by Update to automatically wrap SELECT FOR UPDATE + UPDATE in a transaction
// when the underlying DBTX is a pool rather than an existing transaction.
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgreSQL error codes used for constraint violation detection.
const (
	pgUniqueViolation = "23505" // unique_violation
)

const topicColumns = `id, raw_query, normalized_query, status,
		final_summary, sentiment_score, consensus_percentage, common_claims,
		created_at, updated_at`

const insightColumns = `id, topic_id, video_id, video_title, video_url,
		"timestamp", best_explanation, segment_summary, created_at`

// Compile-time interface verification.
var _ TopicRepository = (*PgTopicRepository)(nil)

// PgTopicRepository is a PostgreSQL implementation of TopicRepository.
type PgTopicRepository struct {
	db DBTX
}

// NewPgTopicRepository creates a new PostgreSQL topic repository.
func NewPgTopicRepository(db DBTX) *PgTopicRepository {
	return &PgTopicRepository{db: db}
}

// Create inserts a new topic row.
// The normalized_query column carries a unique constraint, so two concurrent
// submissions of equivalent queries cannot both insert; the loser receives
// domain.ErrAlreadyExists and should reload the winner's row.
func (r *PgTopicRepository) Create(ctx context.Context, topic *domain.Topic) error {
	if topic == nil {
		return domain.NewValidationError("topic", "topic cannot be nil")
	}
	if topic.ID == uuid.Nil {
		return domain.NewValidationError("id", "topic ID is required")
	}
	if topic.RawQuery == "" {
		return domain.NewValidationError("raw_query", "raw query is required")
	}
	if topic.NormalizedQuery == "" {
		return domain.NewValidationError("normalized_query", "normalized query is required")
	}

	query := `
		INSERT INTO topics (
			id, raw_query, normalized_query, status,
			final_summary, sentiment_score, consensus_percentage, common_claims,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10
		)`

	var finalSummary, commonClaims *string
	var sentimentScore, consensusPercentage *float64
	if ar := topic.AnalysisResult; ar != nil {
		finalSummary = &ar.FinalSummary
		sentimentScore = ar.SentimentScore
		consensusPercentage = ar.ConsensusPercentage
		commonClaims = nullString(ar.CommonClaims)
	}

	_, err := r.db.Exec(ctx, query,
		topic.ID, topic.RawQuery, topic.NormalizedQuery, topic.Status,
		finalSummary, sentimentScore, consensusPercentage, commonClaims,
		topic.CreatedAt, topic.UpdatedAt,
	)

	if err != nil {
		if isPgUniqueViolation(err) {
			return domain.NewAlreadyExistsError("topic", topic.NormalizedQuery)
		}
		return fmt.Errorf("failed to create topic: %w", err)
	}

	return nil
}

// GetByID retrieves a topic and its video insights. When the handle supports
// managed transactions the topic row and its insights are read in one
// read-only transaction, so the two queries see the same snapshot.
func (r *PgTopicRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Topic, error) {
	if runner, ok := r.db.(txRunner); ok {
		var topic *domain.Topic
		err := runner.WithReadOnlyTransaction(ctx, func(tx pgx.Tx) error {
			var txErr error
			topic, txErr = (&PgTopicRepository{db: tx}).getByID(ctx, id)
			return txErr
		})
		if err != nil {
			return nil, err
		}
		return topic, nil
	}
	return r.getByID(ctx, id)
}

func (r *PgTopicRepository) getByID(ctx context.Context, id uuid.UUID) (*domain.Topic, error) {
	query := fmt.Sprintf(`SELECT %s FROM topics WHERE id = $1`, topicColumns)

	row := r.db.QueryRow(ctx, query, id)
	topic, err := scanTopic(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("topic", id.String())
		}
		return nil, fmt.Errorf("failed to get topic: %w", err)
	}

	if err := r.loadInsights(ctx, topic); err != nil {
		return nil, err
	}

	return topic, nil
}

// GetByNormalizedQuery retrieves a topic by its unique normalized query.
func (r *PgTopicRepository) GetByNormalizedQuery(ctx context.Context, normalizedQuery string) (*domain.Topic, error) {
	if normalizedQuery == "" {
		return nil, domain.NewValidationError("normalized_query", "normalized query is required")
	}

	if runner, ok := r.db.(txRunner); ok {
		var topic *domain.Topic
		err := runner.WithReadOnlyTransaction(ctx, func(tx pgx.Tx) error {
			var txErr error
			topic, txErr = (&PgTopicRepository{db: tx}).getByNormalizedQuery(ctx, normalizedQuery)
			return txErr
		})
		if err != nil {
			return nil, err
		}
		return topic, nil
	}
	return r.getByNormalizedQuery(ctx, normalizedQuery)
}

func (r *PgTopicRepository) getByNormalizedQuery(ctx context.Context, normalizedQuery string) (*domain.Topic, error) {
	query := fmt.Sprintf(`SELECT %s FROM topics WHERE normalized_query = $1`, topicColumns)

	row := r.db.QueryRow(ctx, query, normalizedQuery)
	topic, err := scanTopic(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("topic", normalizedQuery)
		}
		return nil, fmt.Errorf("failed to get topic by normalized query: %w", err)
	}

	if err := r.loadInsights(ctx, topic); err != nil {
		return nil, err
	}

	return topic, nil
}

// Update performs a locked read-modify-write on a topic using SELECT FOR UPDATE.
//
// This method requires a transaction for correct row locking. When the
// handle runs managed transactions (*database.DB) the whole read-modify-write
// executes under WithTransaction; a bare pool falls back to Begin/Commit. If
// the underlying DBTX is already a transaction, it executes within that
// existing transaction.
//
// Insights appended to the topic by fn are inserted with ON CONFLICT DO
// NOTHING on the (topic_id, video_id, timestamp) key, so redelivered
// analysis events are harmless.
func (r *PgTopicRepository) Update(ctx context.Context, id uuid.UUID, fn func(*domain.Topic) error) error {
	if runner, ok := r.db.(txRunner); ok {
		return runner.WithTransaction(ctx, func(tx pgx.Tx) error {
			return (&PgTopicRepository{db: tx}).updateInTx(ctx, id, fn)
		})
	}

	if beginner, ok := r.db.(txBeginner); ok {
		tx, err := beginner.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for update: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		txRepo := &PgTopicRepository{db: tx}
		if err := txRepo.updateInTx(ctx, id, fn); err != nil {
			return err
		}
		return tx.Commit(ctx)
	}

	// Already running within a transaction, execute directly.
	return r.updateInTx(ctx, id, fn)
}

// updateInTx performs the actual SELECT FOR UPDATE + UPDATE within the current DBTX.
// This must be called within a transaction for correct row-level locking.
func (r *PgTopicRepository) updateInTx(ctx context.Context, id uuid.UUID, fn func(*domain.Topic) error) error {
	selectQuery := fmt.Sprintf(`SELECT %s FROM topics WHERE id = $1 FOR UPDATE`, topicColumns)

	rows, err := r.db.Query(ctx, selectQuery, id)
	if err != nil {
		return fmt.Errorf("failed to query topic for update: %w", err)
	}

	topic, err := scanTopicRows(rows)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.NewNotFoundError("topic", id.String())
		}
		return fmt.Errorf("failed to scan topic: %w", err)
	}

	if err := r.loadInsights(ctx, topic); err != nil {
		return err
	}
	existing := len(topic.VideoInsights)

	if err := fn(topic); err != nil {
		return err
	}

	topic.UpdatedAt = time.Now().UTC()

	var finalSummary, commonClaims *string
	var sentimentScore, consensusPercentage *float64
	if ar := topic.AnalysisResult; ar != nil {
		finalSummary = &ar.FinalSummary
		sentimentScore = ar.SentimentScore
		consensusPercentage = ar.ConsensusPercentage
		commonClaims = nullString(ar.CommonClaims)
	}

	updateQuery := `
		UPDATE topics SET
			status = $1,
			final_summary = $2,
			sentiment_score = $3,
			consensus_percentage = $4,
			common_claims = $5,
			updated_at = $6
		WHERE id = $7`

	_, err = r.db.Exec(ctx, updateQuery,
		topic.Status,
		finalSummary,
		sentimentScore,
		consensusPercentage,
		commonClaims,
		topic.UpdatedAt,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update topic: %w", err)
	}

	// Persist insights appended by fn. The unique key absorbs redeliveries.
	for i := existing; i < len(topic.VideoInsights); i++ {
		in := &topic.VideoInsights[i]
		if in.ID == uuid.Nil {
			in.ID = uuid.New()
		}
		if in.CreatedAt.IsZero() {
			in.CreatedAt = topic.UpdatedAt
		}

		insertQuery := `
			INSERT INTO video_insights (
				id, topic_id, video_id, video_title, video_url,
				"timestamp", best_explanation, segment_summary, created_at
			) VALUES (
				$1, $2, $3, $4, $5,
				$6, $7, $8, $9
			)
			ON CONFLICT (topic_id, video_id, "timestamp") DO NOTHING`

		_, err = r.db.Exec(ctx, insertQuery,
			in.ID, topic.ID, in.VideoID, in.VideoTitle, in.VideoURL,
			in.Timestamp, in.BestExplanation, in.SegmentSummary, in.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert video insight: %w", err)
		}
	}

	return nil
}

// loadInsights populates topic.VideoInsights ordered by creation time.
func (r *PgTopicRepository) loadInsights(ctx context.Context, topic *domain.Topic) error {
	query := fmt.Sprintf(`
		SELECT %s
		FROM video_insights
		WHERE topic_id = $1
		ORDER BY created_at ASC, video_id ASC, "timestamp" ASC`, insightColumns)

	rows, err := r.db.Query(ctx, query, topic.ID)
	if err != nil {
		return fmt.Errorf("failed to query video insights: %w", err)
	}
	defer rows.Close()

	insights := make([]domain.VideoInsight, 0)
	for rows.Next() {
		var in domain.VideoInsight
		if err := rows.Scan(
			&in.ID, &in.TopicID, &in.VideoID, &in.VideoTitle, &in.VideoURL,
			&in.Timestamp, &in.BestExplanation, &in.SegmentSummary, &in.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to scan video insight: %w", err)
		}
		insights = append(insights, in)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating video insights: %w", err)
	}

	topic.VideoInsights = insights
	return nil
}

// isPgUniqueViolation checks if the error is a PostgreSQL unique constraint violation.
func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}

// topicScanDest holds the destination pointers for scanning a topic row.
// This eliminates code duplication between pgx.Row and pgx.Rows scanning.
type topicScanDest struct {
	topic               domain.Topic
	finalSummary        *string
	sentimentScore      *float64
	consensusPercentage *float64
	commonClaims        *string
}

// destinations returns the slice of pointers for Scan operations.
func (d *topicScanDest) destinations() []interface{} {
	return []interface{}{
		&d.topic.ID, &d.topic.RawQuery, &d.topic.NormalizedQuery, &d.topic.Status,
		&d.finalSummary, &d.sentimentScore, &d.consensusPercentage, &d.commonClaims,
		&d.topic.CreatedAt, &d.topic.UpdatedAt,
	}
}

// finalize assembles the nullable result columns into an AnalysisResult.
// A topic has a result only once final_summary is set.
func (d *topicScanDest) finalize() (*domain.Topic, error) {
	if d.finalSummary != nil {
		result := &domain.AnalysisResult{
			FinalSummary:        *d.finalSummary,
			SentimentScore:      d.sentimentScore,
			ConsensusPercentage: d.consensusPercentage,
		}
		if d.commonClaims != nil {
			result.CommonClaims = *d.commonClaims
		}
		d.topic.AnalysisResult = result
	}
	return &d.topic, nil
}

// scanTopic scans a single row into a Topic.
func scanTopic(row pgx.Row) (*domain.Topic, error) {
	var dest topicScanDest
	if err := row.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize()
}

// scanTopicRows scans a single row from pgx.Rows into a Topic.
// This is used with SELECT FOR UPDATE which returns Rows instead of Row.
func scanTopicRows(rows pgx.Rows) (*domain.Topic, error) {
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}

	var dest topicScanDest
	if err := rows.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize()
}

// nullString returns a pointer to the string if non-empty, otherwise nil.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
