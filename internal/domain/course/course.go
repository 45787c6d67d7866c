package course

import (
	"context"

	"github.com/google/uuid"
)

// Course is the purchasable unit. Content management lives elsewhere; the
// payment flow only reads price and availability.
type Course struct {
	ID         uuid.UUID
	Title      string
	PriceMinor int64
	Currency   string
	Published  bool
}

type Repository interface {
	// GetByID returns a published course or ErrCourseNotFound
	GetByID(ctx context.Context, id uuid.UUID) (*Course, error)
}
