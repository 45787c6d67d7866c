package promotion

import (
	"strings"
	"time"

	"github.com/cassiomorais/coursepay/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind is the discount kind of a promotion.
type Kind string

const (
	KindFixed   Kind = "fixed"
	KindPercent Kind = "percent"
)

// Promotion is an administrator-created discount code. It is read-only to
// the payment flow; redemptions are derived from enrollments.
type Promotion struct {
	ID            uuid.UUID
	Code          string
	Kind          Kind
	Value         int64 // minor units for fixed, whole percent for percent
	MinPriceMinor int64
	MaxUses       *int
	ValidFrom     *time.Time
	ValidUntil    *time.Time
	CreatedAt     time.Time
}

// Quote is the result of applying a promotion to a base price.
type Quote struct {
	PromotionID   uuid.UUID
	Code          string
	BaseMinor     int64
	DiscountMinor int64
	FinalMinor    int64
}

// NormalizeCode canonicalises a user-entered code for lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ActiveAt reports whether t lies inside the validity window. Either bound may be open.
func (p *Promotion) ActiveAt(t time.Time) bool {
	if p.ValidFrom != nil && t.Before(*p.ValidFrom) {
		return false
	}
	if p.ValidUntil != nil && t.After(*p.ValidUntil) {
		return false
	}
	return true
}

// Exhausted reports whether used redemptions reach the cap.
func (p *Promotion) Exhausted(used int) bool {
	return p.MaxUses != nil && used >= *p.MaxUses
}

// Discount computes the discount for base, never exceeding base.
func (p *Promotion) Discount(baseMinor int64) int64 {
	var d int64
	switch p.Kind {
	case KindFixed:
		d = p.Value
	case KindPercent:
		d = decimal.NewFromInt(baseMinor).
			Mul(decimal.NewFromInt(p.Value)).
			Div(decimal.NewFromInt(100)).
			Round(0).
			IntPart()
	}
	if d < 0 {
		return 0
	}
	if d > baseMinor {
		return baseMinor
	}
	return d
}

// Evaluate validates p against its window, usage cap and minimum price and
// returns the resulting quote. It has no side effects.
func Evaluate(p *Promotion, used int, baseMinor int64, now time.Time) (Quote, error) {
	if p == nil || !p.ActiveAt(now) {
		return Quote{}, errors.ErrPromotionNotFound
	}
	if p.Exhausted(used) {
		return Quote{}, errors.ErrPromotionExhausted
	}
	if baseMinor < p.MinPriceMinor {
		return Quote{}, errors.ErrPromotionMinimumNotMet
	}

	discount := p.Discount(baseMinor)
	return Quote{
		PromotionID:   p.ID,
		Code:          p.Code,
		BaseMinor:     baseMinor,
		DiscountMinor: discount,
		FinalMinor:    baseMinor - discount,
	}, nil
}
