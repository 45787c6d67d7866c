package testutil

import (
	"time"

	"github.com/cassiomorais/coursepay/internal/domain/course"
	"github.com/cassiomorais/coursepay/internal/domain/payment"
	"github.com/cassiomorais/coursepay/internal/domain/promotion"
	"github.com/google/uuid"
)

func NewTestCourse(priceMinor int64, currency string) *course.Course {
	return &course.Course{
		ID:         uuid.New(),
		Title:      "Intro to Go",
		PriceMinor: priceMinor,
		Currency:   currency,
		Published:  true,
	}
}

func NewFixedPromotion(code string, valueMinor int64) *promotion.Promotion {
	return &promotion.Promotion{
		ID:        uuid.New(),
		Code:      promotion.NormalizeCode(code),
		Kind:      promotion.KindFixed,
		Value:     valueMinor,
		CreatedAt: time.Now(),
	}
}

func NewPercentPromotion(code string, percent int64) *promotion.Promotion {
	p := NewFixedPromotion(code, 0)
	p.Kind = promotion.KindPercent
	p.Value = percent
	return p
}

// WithMaxUses sets the redemption cap of p and returns it.
func WithMaxUses(p *promotion.Promotion, maxUses int) *promotion.Promotion {
	p.MaxUses = &maxUses
	return p
}

func NewPendingAttempt(userID string, courseID uuid.UUID, chargeID string, amountMinor int64) *payment.Attempt {
	now := time.Now().UTC()
	return &payment.Attempt{
		ID:        uuid.New(),
		Processor: "mock",
		UserID:    userID,
		CourseID:  courseID,
		Method:    payment.MethodScan,
		ChargeID:  chargeID,
		Amount:    payment.Amount{Minor: amountMinor, Currency: "THB"},
		Status:    payment.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func NewPaidAttempt(userID string, courseID uuid.UUID, chargeID string, amountMinor int64) *payment.Attempt {
	a := NewPendingAttempt(userID, courseID, chargeID, amountMinor)
	paidAt := time.Now().UTC()
	a.Status = payment.StatusPaid
	a.PaidAt = &paidAt
	return a
}
