package promotion

import (
	"testing"
	"time"

	"github.com/cassiomorais/coursepay/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int { return &i }

func timePtr(t time.Time) *time.Time { return &t }

func TestEvaluate_Discounts(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name         string
		promo        Promotion
		base         int64
		wantDiscount int64
		wantFinal    int64
	}{
		{"fixed 200 on 1000", Promotion{Kind: KindFixed, Value: 200}, 1000, 200, 800},
		{"percent 20 on 1000", Promotion{Kind: KindPercent, Value: 20}, 1000, 200, 800},
		{"fixed exceeding base clamps to zero", Promotion{Kind: KindFixed, Value: 5000}, 1000, 1000, 0},
		{"percent over 100 clamps to zero", Promotion{Kind: KindPercent, Value: 150}, 1000, 1000, 0},
		{"percent rounds to minor unit", Promotion{Kind: KindPercent, Value: 15}, 999, 150, 849},
		{"zero discount", Promotion{Kind: KindFixed, Value: 0}, 1000, 0, 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.promo.ID = uuid.New()
			q, err := Evaluate(&tt.promo, 0, tt.base, now)
			require.NoError(t, err)
			assert.Equal(t, tt.wantDiscount, q.DiscountMinor)
			assert.Equal(t, tt.wantFinal, q.FinalMinor)
			assert.Equal(t, tt.base, q.BaseMinor)
			assert.Equal(t, tt.promo.ID, q.PromotionID)
			assert.GreaterOrEqual(t, q.FinalMinor, int64(0))
		})
	}
}

func TestEvaluate_Exhausted(t *testing.T) {
	p := &Promotion{Kind: KindFixed, Value: 200, MaxUses: intPtr(1)}

	_, err := Evaluate(p, 1, 1000, time.Now())
	assert.ErrorIs(t, err, errors.ErrPromotionExhausted)

	_, err = Evaluate(p, 0, 1000, time.Now())
	assert.NoError(t, err)
}

func TestEvaluate_NoCapNeverExhausted(t *testing.T) {
	p := &Promotion{Kind: KindFixed, Value: 200}

	_, err := Evaluate(p, 1_000_000, 1000, time.Now())
	assert.NoError(t, err)
}

func TestEvaluate_OutsideWindowIsNotFound(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name  string
		promo Promotion
	}{
		{"not yet valid", Promotion{ValidFrom: timePtr(now.Add(time.Hour))}},
		{"expired", Promotion{ValidUntil: timePtr(now.Add(-time.Hour))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.promo.Kind = KindFixed
			_, err := Evaluate(&tt.promo, 0, 1000, now)
			assert.ErrorIs(t, err, errors.ErrPromotionNotFound)
		})
	}
}

func TestEvaluate_OpenEndedWindow(t *testing.T) {
	now := time.Now()
	p := &Promotion{Kind: KindFixed, Value: 100, ValidFrom: timePtr(now.Add(-time.Hour))}

	_, err := Evaluate(p, 0, 1000, now)
	assert.NoError(t, err)
}

func TestEvaluate_MinimumNotMet(t *testing.T) {
	p := &Promotion{Kind: KindFixed, Value: 100, MinPriceMinor: 5000}

	_, err := Evaluate(p, 0, 4999, time.Now())
	assert.ErrorIs(t, err, errors.ErrPromotionMinimumNotMet)

	_, err = Evaluate(p, 0, 5000, time.Now())
	assert.NoError(t, err)
}

func TestEvaluate_NilPromotion(t *testing.T) {
	_, err := Evaluate(nil, 0, 1000, time.Now())
	assert.ErrorIs(t, err, errors.ErrPromotionNotFound)
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "SPRING20", NormalizeCode("  spring20 "))
}
