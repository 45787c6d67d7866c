package promotion

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// GetByCode returns the promotion for a normalized code or ErrPromotionNotFound
	GetByCode(ctx context.Context, code string) (*Promotion, error)

	// Lock selects the promotion row FOR UPDATE (must run inside a transaction)
	Lock(ctx context.Context, id uuid.UUID) (*Promotion, error)
}
