package controller

import (
	"fmt"
	"testing"
	"time"

	"github.com/cassiomorais/coursepay/internal/domain/payment"
	"github.com/cassiomorais/coursepay/internal/domain/promotion"
	"github.com/cassiomorais/coursepay/internal/service"
	"github.com/cassiomorais/coursepay/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestMinorToMajor(t *testing.T) {
	tests := []struct {
		minor int64
		want  float64
	}{
		{100000, 1000.00},
		{80000, 800.00},
		{12345, 123.45},
		{1, 0.01},
		{0, 0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d", tt.minor), func(t *testing.T) {
			assert.Equal(t, tt.want, minorToMajor(tt.minor))
		})
	}
}

func TestFromCheckout_Pending(t *testing.T) {
	a := testutil.NewPendingAttempt("user-1", uuid.New(), "chrg_1", 80000)
	expires := time.Now().Add(15 * time.Minute)

	out := FromCheckout(&service.CheckoutResponse{
		Attempt:           a,
		Quote:             &promotion.Quote{Code: "FIXED200", BaseMinor: 100000, DiscountMinor: 20000, FinalMinor: 80000},
		ScannableImageURI: "https://example.test/qr.png",
		PollInterval:      5 * time.Second,
		ExpiresAt:         &expires,
	})

	assert.True(t, out.Success)
	assert.Equal(t, "pending", out.Status)
	assert.Equal(t, 800.0, out.Amount)
	assert.Equal(t, int64(80000), out.AmountMinor)
	assert.Equal(t, "FIXED200", out.PromoCode)
	assert.Equal(t, int64(20000), out.DiscountMinor)
	assert.Equal(t, 5, out.PollIntervalSeconds)
	assert.Equal(t, &expires, out.ExpiresAt)
	assert.False(t, out.Enrolled)
}

func TestFromPaymentStatus(t *testing.T) {
	a := testutil.NewPaidAttempt("user-1", uuid.New(), "chrg_1", 100000)

	out := FromPaymentStatus(&service.PaymentStatus{Attempt: a, Paid: true})

	assert.Equal(t, "chrg_1", out.ChargeID)
	assert.Equal(t, string(payment.StatusPaid), out.Status)
	assert.True(t, out.Paid)
	assert.Equal(t, 1000.0, out.Amount)
	assert.Equal(t, a.CourseID.String(), out.CourseID)
	assert.NotNil(t, out.PaidAt)
}
