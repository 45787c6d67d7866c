package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/cassiomorais/coursepay/internal/domain/enrollment"
	domainErrors "github.com/cassiomorais/coursepay/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EnrollmentRepository implements enrollment.Repository using PostgreSQL.
type EnrollmentRepository struct {
	pool *pgxpool.Pool
}

func NewEnrollmentRepository(pool *pgxpool.Pool) *EnrollmentRepository {
	return &EnrollmentRepository{pool: pool}
}

func (r *EnrollmentRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// Activate relies on the (user_id, course_id) unique constraint. A wishlist
// row is upgraded in place, any other existing row makes the upsert a no-op.
func (r *EnrollmentRepository) Activate(ctx context.Context, e *enrollment.Enrollment) (bool, error) {
	tag, err := r.db(ctx).Exec(ctx,
		`INSERT INTO enrollments (id, user_id, course_id, status, promotion_id, attempt_id, enrolled_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (user_id, course_id) DO UPDATE SET
		   status = EXCLUDED.status,
		   promotion_id = EXCLUDED.promotion_id,
		   attempt_id = EXCLUDED.attempt_id,
		   enrolled_at = EXCLUDED.enrolled_at
		 WHERE enrollments.status = 'wishlist'`,
		e.ID, e.UserID, e.CourseID, string(e.Status), e.PromotionID, e.AttemptID, e.EnrolledAt,
	)
	if err != nil {
		return false, fmt.Errorf("activate enrollment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *EnrollmentRepository) Get(ctx context.Context, userID string, courseID uuid.UUID) (*enrollment.Enrollment, error) {
	e := &enrollment.Enrollment{}
	var status string
	err := r.db(ctx).QueryRow(ctx,
		`SELECT id, user_id, course_id, status, promotion_id, attempt_id, enrolled_at
		 FROM enrollments WHERE user_id = $1 AND course_id = $2`, userID, courseID,
	).Scan(&e.ID, &e.UserID, &e.CourseID, &status, &e.PromotionID, &e.AttemptID, &e.EnrolledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("get enrollment: %w", err)
	}
	e.Status = enrollment.Status(status)
	return e, nil
}

func (r *EnrollmentRepository) CountByPromotion(ctx context.Context, promotionID uuid.UUID) (int, error) {
	var n int
	err := r.db(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM enrollments
		 WHERE promotion_id = $1 AND status IN ('active', 'completed')`, promotionID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count promotion redemptions: %w", err)
	}
	return n, nil
}
