package outbox

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Insert creates a new outbox entry inside the caller's transaction
	Insert(ctx context.Context, entry *Entry) error

	// GetPending returns pending entries, locked for the current transaction
	GetPending(ctx context.Context, limit int) ([]*Entry, error)

	// MarkPublished marks an outbox entry as published
	MarkPublished(ctx context.Context, id uuid.UUID) error

	// MarkFailed increments the retry count and fails the entry once retries run out
	MarkFailed(ctx context.Context, id uuid.UUID) error

	// CountPending reports the relay backlog
	CountPending(ctx context.Context) (int64, error)
}
