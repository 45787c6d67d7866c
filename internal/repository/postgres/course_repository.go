package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/cassiomorais/coursepay/internal/domain/course"
	domainErrors "github.com/cassiomorais/coursepay/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CourseRepository struct {
	pool *pgxpool.Pool
}

func NewCourseRepository(pool *pgxpool.Pool) *CourseRepository {
	return &CourseRepository{pool: pool}
}

func (r *CourseRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// GetByID hides unpublished courses behind ErrCourseNotFound.
func (r *CourseRepository) GetByID(ctx context.Context, id uuid.UUID) (*course.Course, error) {
	c := &course.Course{}
	var priceStr string
	err := r.db(ctx).QueryRow(ctx,
		`SELECT id, title, price, currency, published FROM courses WHERE id = $1 AND published`, id,
	).Scan(&c.ID, &c.Title, &priceStr, &c.Currency, &c.Published)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrCourseNotFound
		}
		return nil, fmt.Errorf("get course: %w", err)
	}

	if c.PriceMinor, err = numericStringToMinor(priceStr); err != nil {
		return nil, fmt.Errorf("parse course price: %w", err)
	}
	return c, nil
}
