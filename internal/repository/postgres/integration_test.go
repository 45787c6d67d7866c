//go:build integration

package postgres

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cassiomorais/coursepay/internal/domain/enrollment"
	domainErrors "github.com/cassiomorais/coursepay/internal/domain/errors"
	"github.com/cassiomorais/coursepay/internal/domain/outbox"
	"github.com/cassiomorais/coursepay/internal/domain/payment"
	"github.com/cassiomorais/coursepay/internal/testutil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("coursepay"),
		tcpostgres.WithUsername("coursepay"),
		tcpostgres.WithPassword("coursepay"),
		tcpostgres.WithInitScripts(filepath.Join("migrations", "000001_init_schema.up.sql")),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func insertCourse(t *testing.T, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()
	c := testutil.NewTestCourse(100000, "THB")
	_, err := pool.Exec(context.Background(),
		`INSERT INTO courses (id, title, price, currency, published) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.Title, minorToNumericString(c.PriceMinor), c.Currency, c.Published)
	require.NoError(t, err)
	return c.ID
}

func TestIntegration_AttemptTransitionIsGuarded(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	repo := NewAttemptRepository(pool)

	courseID := insertCourse(t, pool)
	course, err := NewCourseRepository(pool).GetByID(ctx, courseID)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), course.PriceMinor)

	a := testutil.NewPendingAttempt("user-1", courseID, "chrg_1", 100000)
	require.NoError(t, repo.Create(ctx, a))
	assert.ErrorIs(t, repo.Create(ctx, testutil.NewPendingAttempt("user-2", courseID, "chrg_1", 100000)),
		domainErrors.ErrDuplicateCharge)

	// A webhook and a poll race to settle the same charge.
	var applied atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := repo.Transition(ctx, a.ID, payment.MarkPaid(time.Now().UTC()))
			assert.NoError(t, err)
			applied.Add(n)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), applied.Load())

	n, err := repo.Transition(ctx, a.ID, payment.MarkFailed("expired", "charge expired", time.Now().UTC()))
	require.NoError(t, err)
	assert.Zero(t, n, "paid is terminal")

	stored, err := repo.GetByChargeID(ctx, "chrg_1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPaid, stored.Status)
	assert.NotNil(t, stored.PaidAt)
	assert.Nil(t, stored.FailureCode)
}

func TestIntegration_ActivateUpgradesWishlistOnce(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	attempts := NewAttemptRepository(pool)
	enrollments := NewEnrollmentRepository(pool)
	courseID := insertCourse(t, pool)

	a := testutil.NewPaidAttempt("user-1", courseID, "chrg_1", 100000)
	require.NoError(t, attempts.Create(ctx, a))

	orphans, err := attempts.ListPaidWithoutEnrollment(ctx, 10)
	require.NoError(t, err)
	require.Len(t, orphans, 1)

	wish := enrollment.NewActive("user-1", courseID, nil, nil)
	wish.Status = enrollment.StatusWishlist
	created, err := enrollments.Activate(ctx, wish)
	require.NoError(t, err)
	require.True(t, created)

	created, err = enrollments.Activate(ctx, enrollment.NewActive("user-1", courseID, nil, &a.ID))
	require.NoError(t, err)
	assert.True(t, created, "wishlist is upgraded")

	created, err = enrollments.Activate(ctx, enrollment.NewActive("user-1", courseID, nil, &a.ID))
	require.NoError(t, err)
	assert.False(t, created)

	e, err := enrollments.Get(ctx, "user-1", courseID)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusActive, e.Status)
	assert.Equal(t, &a.ID, e.AttemptID)

	orphans, err = attempts.ListPaidWithoutEnrollment(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, orphans)
}

func TestIntegration_OutboxAndIdempotency(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	tx := NewTxManager(pool)
	outboxRepo := NewOutboxRepository(pool)
	keys := NewIdempotencyRepository(pool)

	entry := outbox.NewEntry("payment_attempt", uuid.New(), payment.EventPaid, map[string]any{"charge_id": "chrg_1"})

	// Rolled back with the business write.
	err := tx.WithTransaction(ctx, func(txCtx context.Context) error {
		require.NoError(t, outboxRepo.Insert(txCtx, entry))
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)
	pending, err := outboxRepo.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)

	require.NoError(t, tx.WithTransaction(ctx, func(txCtx context.Context) error {
		return outboxRepo.Insert(txCtx, entry)
	}))
	require.NoError(t, tx.WithTransaction(ctx, func(txCtx context.Context) error {
		entries, err := outboxRepo.GetPending(txCtx, 10)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		return outboxRepo.MarkPublished(txCtx, entries[0].ID)
	}))
	pending, err = outboxRepo.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)

	require.NoError(t, keys.Save(ctx, "user-1:k1", 201, `{"success":true}`, time.Hour))
	require.NoError(t, keys.Save(ctx, "user-1:old", 201, `{}`, -time.Hour))

	got, err := keys.Get(ctx, "user-1:k1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 201, got.ResponseStatus)

	removed, err := keys.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestIntegration_PercentPromotionsAreWhole(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	insert := `INSERT INTO promotions (id, code, kind, value) VALUES ($1, $2, 'percent', $3)`

	_, err := pool.Exec(ctx, insert, uuid.New(), "HALF", "12.50")
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "23514", pgErr.Code)

	_, err = pool.Exec(ctx, insert, uuid.New(), "FIFTEEN", "15")
	require.NoError(t, err)

	p, err := NewPromotionRepository(pool).GetByCode(ctx, "FIFTEEN")
	require.NoError(t, err)
	assert.Equal(t, int64(15), p.Value)
	assert.Equal(t, int64(15000), p.Discount(100000))
}
