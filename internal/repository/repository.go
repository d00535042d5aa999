// Package repository provides data access interfaces and implementations
// for the Topic Management Service.
//
// # Overview
//
// This package defines repository interfaces and their PostgreSQL implementations
// following the repository pattern to abstract data persistence from business logic.
//
// # Thread Safety
//
// All repository implementations are safe for concurrent use by multiple goroutines.
// The underlying pgxpool handles connection pooling and synchronization.
//
// # Error Handling
//
// All methods return domain-specific errors from the domain package.
// Wrap database errors with context using fmt.Errorf with %w verb.
// Common errors include:
//
//   - domain.ErrNotFound: Resource does not exist
//   - domain.ErrAlreadyExists: Unique constraint violation
//   - domain.ErrInvalidInput: Invalid parameters provided
//
// # Transactions
//
// Use the DBTX interface to support both pool and transaction contexts.
// Pass a transaction from database.DB.WithTransaction for atomic operations.
package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/aiyoutube/topic-management-service/internal/database"
	"github.com/aiyoutube/topic-management-service/internal/domain"
)

// DBTX is the database interface supporting both pool and transaction contexts.
// This allows repositories to work with both direct pool connections and transactions.
//
// Repository implementations follow a constructor pattern that accepts DBTX:
//
//	repo := repository.NewPgTopicRepository(pool)
//
// Passing a pgx.Tx instead scopes every operation to that transaction, which
// also makes testing with pgxmock straightforward.
type DBTX = database.DBTX

// TopicRepository manages the persistence of topic aggregates.
//
// Update is the only mutation path after creation. It loads the topic with a
// row lock, applies fn, and persists the result in one transaction, so
// concurrent status updates and analysis merges for the same topic serialize
// at the database.
type TopicRepository interface {
	// Create inserts a new topic. Returns domain.ErrAlreadyExists if a topic
	// with the same normalized query was inserted concurrently.
	Create(ctx context.Context, topic *domain.Topic) error

	// GetByID retrieves a topic with its video insights.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Topic, error)

	// GetByNormalizedQuery retrieves a topic by its unique normalized query.
	GetByNormalizedQuery(ctx context.Context, normalizedQuery string) (*domain.Topic, error)

	// Update loads the topic under a row lock, applies fn, and persists the
	// mutated aggregate. fn returning an error aborts without writing.
	Update(ctx context.Context, id uuid.UUID, fn func(*domain.Topic) error) error
}
