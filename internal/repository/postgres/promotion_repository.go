package postgres

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/cassiomorais/coursepay/internal/domain/errors"
	"github.com/cassiomorais/coursepay/internal/domain/promotion"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const promotionColumns = `id, code, kind, value, min_price, max_uses, valid_from, valid_until, created_at`

// PromotionRepository implements promotion.Repository using PostgreSQL.
type PromotionRepository struct {
	pool *pgxpool.Pool
}

func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

func (r *PromotionRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *PromotionRepository) GetByCode(ctx context.Context, code string) (*promotion.Promotion, error) {
	return r.scanPromotion(r.db(ctx).QueryRow(ctx,
		`SELECT `+promotionColumns+` FROM promotions WHERE code = $1`, promotion.NormalizeCode(code)))
}

// Lock must run inside a transaction; the row stays locked until it ends.
func (r *PromotionRepository) Lock(ctx context.Context, id uuid.UUID) (*promotion.Promotion, error) {
	if !InTransaction(ctx) {
		return nil, fmt.Errorf("lock promotion %s: no transaction in context", id)
	}
	return r.scanPromotion(r.db(ctx).QueryRow(ctx,
		`SELECT `+promotionColumns+` FROM promotions WHERE id = $1 FOR UPDATE`, id))
}

// value holds major units for fixed promotions and a whole percent for
// percent promotions.
func (r *PromotionRepository) scanPromotion(s scanner) (*promotion.Promotion, error) {
	p := &promotion.Promotion{}
	var (
		kind     string
		valueStr string
		minStr   string
	)
	err := s.Scan(&p.ID, &p.Code, &kind, &valueStr, &minStr, &p.MaxUses, &p.ValidFrom, &p.ValidUntil, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrPromotionNotFound
		}
		return nil, fmt.Errorf("scan promotion: %w", err)
	}

	p.Kind = promotion.Kind(kind)
	if p.Kind == promotion.KindPercent {
		p.Value, err = numericStringToPercent(valueStr)
	} else {
		p.Value, err = numericStringToMinor(valueStr)
	}
	if err != nil {
		return nil, fmt.Errorf("parse promotion value: %w", err)
	}

	if p.MinPriceMinor, err = numericStringToMinor(minStr); err != nil {
		return nil, fmt.Errorf("parse promotion minimum: %w", err)
	}
	return p, nil
}
