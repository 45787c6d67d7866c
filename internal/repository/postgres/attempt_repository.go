package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/coursepay/internal/domain/errors"
	"github.com/cassiomorais/coursepay/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const attemptColumns = `id, processor, user_id, course_id, promotion_id, method, charge_id, source_id,
	amount, currency, status, failure_code, failure_message, created_at, updated_at, paid_at, failed_at`

// AttemptRepository implements payment.Repository using PostgreSQL.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

func (r *AttemptRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func (r *AttemptRepository) Create(ctx context.Context, a *payment.Attempt) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO payment_attempts (`+attemptColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		a.ID, a.Processor, a.UserID, a.CourseID, a.PromotionID, string(a.Method), a.ChargeID, a.SourceID,
		minorToNumericString(a.Amount.Minor), a.Amount.Currency, string(a.Status), a.FailureCode, a.FailureMessage,
		a.CreatedAt, a.UpdatedAt, a.PaidAt, a.FailedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domainErrors.ErrDuplicateCharge
		}
		return fmt.Errorf("insert payment attempt: %w", err)
	}
	return nil
}

func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*payment.Attempt, error) {
	return r.scanAttempt(r.db(ctx).QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM payment_attempts WHERE id = $1`, id))
}

func (r *AttemptRepository) GetByChargeID(ctx context.Context, chargeID string) (*payment.Attempt, error) {
	return r.scanAttempt(r.db(ctx).QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM payment_attempts WHERE charge_id = $1`, chargeID))
}

// Transition is the single write path for attempt status. The WHERE clause
// on the current status makes concurrent callers race on the row lock; the
// loser sees zero rows affected.
func (r *AttemptRepository) Transition(ctx context.Context, id uuid.UUID, t payment.Transition) (int64, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}

	var paidAt, failedAt *time.Time
	switch t.To {
	case payment.StatusPaid:
		paidAt = &t.At
	case payment.StatusFailed:
		failedAt = &t.At
	}

	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE payment_attempts SET
		  status = $1, updated_at = $2,
		  paid_at = COALESCE($3, paid_at), failed_at = COALESCE($4, failed_at),
		  failure_code = COALESCE($5, failure_code), failure_message = COALESCE($6, failure_message)
		 WHERE id = $7 AND status = $8`,
		string(t.To), t.At, paidAt, failedAt, t.FailureCode, t.FailureMessage, id, string(t.From),
	)
	if err != nil {
		return 0, fmt.Errorf("transition payment attempt: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *AttemptRepository) ListStalePending(ctx context.Context, before time.Time, limit int) ([]*payment.Attempt, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.list(ctx,
		`SELECT `+attemptColumns+` FROM payment_attempts
		 WHERE status = 'pending' AND created_at < $1
		 ORDER BY created_at ASC LIMIT $2`, before, limit)
}

func (r *AttemptRepository) ListPaidWithoutEnrollment(ctx context.Context, limit int) ([]*payment.Attempt, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.list(ctx,
		`SELECT `+prefixed("pa", attemptColumns)+` FROM payment_attempts pa
		 LEFT JOIN enrollments e
		   ON e.user_id = pa.user_id AND e.course_id = pa.course_id AND e.status IN ('active', 'completed')
		 WHERE pa.status = 'paid' AND e.id IS NULL
		 ORDER BY pa.paid_at ASC LIMIT $1`, limit)
}

func (r *AttemptRepository) AddEvent(ctx context.Context, event *payment.Event) error {
	data, err := json.Marshal(event.EventData)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO payment_events (id, attempt_id, event_type, event_data, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		event.ID, event.AttemptID, event.EventType, data, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment event: %w", err)
	}
	return nil
}

func (r *AttemptRepository) LogCallback(ctx context.Context, cb *payment.Callback) error {
	var sig *string
	if cb.Signature != "" {
		sig = &cb.Signature
	}
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO processor_callbacks (id, processor, signature, payload, received_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		cb.ID, cb.Processor, sig, cb.Payload, cb.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("insert processor callback: %w", err)
	}
	return nil
}

func (r *AttemptRepository) list(ctx context.Context, query string, args ...any) ([]*payment.Attempt, error) {
	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payment attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*payment.Attempt
	for rows.Next() {
		a, err := r.scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func (r *AttemptRepository) scanAttempt(s scanner) (*payment.Attempt, error) {
	a := &payment.Attempt{}
	var (
		method    string
		amountStr string
		status    string
	)
	err := s.Scan(
		&a.ID, &a.Processor, &a.UserID, &a.CourseID, &a.PromotionID, &method, &a.ChargeID, &a.SourceID,
		&amountStr, &a.Amount.Currency, &status, &a.FailureCode, &a.FailureMessage,
		&a.CreatedAt, &a.UpdatedAt, &a.PaidAt, &a.FailedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("scan payment attempt: %w", err)
	}

	minor, err := numericStringToMinor(amountStr)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	a.Amount.Minor = minor
	a.Method = payment.Method(method)
	a.Status = payment.Status(status)
	return a, nil
}

// prefixed qualifies a comma separated column list with a table alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
