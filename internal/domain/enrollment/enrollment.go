package enrollment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Status of a user's relationship with a course.
type Status string

const (
	StatusWishlist  Status = "wishlist"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// GrantsAccess reports whether s gives the user course access.
func (s Status) GrantsAccess() bool {
	return s == StatusActive || s == StatusCompleted
}

// Enrollment is unique per (UserID, CourseID).
type Enrollment struct {
	ID          uuid.UUID
	UserID      string
	CourseID    uuid.UUID
	Status      Status
	PromotionID *uuid.UUID
	AttemptID   *uuid.UUID
	EnrolledAt  time.Time
}

// NewActive builds the active enrollment granted by a paid attempt.
func NewActive(userID string, courseID uuid.UUID, promotionID, attemptID *uuid.UUID) *Enrollment {
	return &Enrollment{
		ID:          uuid.New(),
		UserID:      userID,
		CourseID:    courseID,
		Status:      StatusActive,
		PromotionID: promotionID,
		AttemptID:   attemptID,
		EnrolledAt:  time.Now().UTC(),
	}
}

type Repository interface {
	// Activate inserts e, or upgrades an existing wishlist row for the same
	// (user, course). Existing active or completed rows are left untouched.
	// Reports whether a row was written.
	Activate(ctx context.Context, e *Enrollment) (bool, error)

	// Get returns the enrollment for (user, course) or ErrEnrollmentNotFound
	Get(ctx context.Context, userID string, courseID uuid.UUID) (*Enrollment, error)

	// CountByPromotion returns the derived redemption count of a promotion
	CountByPromotion(ctx context.Context, promotionID uuid.UUID) (int, error)
}
