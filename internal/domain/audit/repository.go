package audit

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Insert records a new entry, inside the caller's transaction when there is one
	Insert(ctx context.Context, entry *Entry) error

	// GetPending returns unpublished entries oldest first, locking them for this worker
	GetPending(ctx context.Context, limit int) ([]*Entry, error)

	MarkPublished(ctx context.Context, id uuid.UUID) error

	// MarkFailed increments the attempt counter and gives up after MaxAttempts
	MarkFailed(ctx context.Context, id uuid.UUID) error
}
