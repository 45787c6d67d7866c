package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cassiomorais/coursepay/internal/domain/enrollment"
	domainErrors "github.com/cassiomorais/coursepay/internal/domain/errors"
	"github.com/cassiomorais/coursepay/internal/domain/promotion"
)

// PromotionService evaluates discount codes. It never records a redemption:
// usage is derived from enrollments at evaluation time.
type PromotionService struct {
	promotionRepo  promotion.Repository
	enrollmentRepo enrollment.Repository
	now            func() time.Time
}

func NewPromotionService(promotionRepo promotion.Repository, enrollmentRepo enrollment.Repository) *PromotionService {
	return &PromotionService{
		promotionRepo:  promotionRepo,
		enrollmentRepo: enrollmentRepo,
		now:            time.Now,
	}
}

// Check returns the quote for code applied to baseMinor, or one of
// ErrPromotionNotFound, ErrPromotionExhausted, ErrPromotionMinimumNotMet.
func (s *PromotionService) Check(ctx context.Context, code string, baseMinor int64) (promotion.Quote, error) {
	code = promotion.NormalizeCode(code)
	if code == "" {
		return promotion.Quote{}, domainErrors.ErrPromotionNotFound
	}
	if baseMinor < 0 {
		return promotion.Quote{}, domainErrors.NewValidationError("price", "must not be negative")
	}

	p, err := s.promotionRepo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, domainErrors.ErrPromotionNotFound) {
			return promotion.Quote{}, err
		}
		return promotion.Quote{}, fmt.Errorf("failed to get promotion: %w", err)
	}

	used, err := s.enrollmentRepo.CountByPromotion(ctx, p.ID)
	if err != nil {
		return promotion.Quote{}, fmt.Errorf("failed to count promotion usage: %w", err)
	}

	return promotion.Evaluate(p, used, baseMinor, s.now())
}
