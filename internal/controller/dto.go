package controller

import (
	"time"

	"github.com/cassiomorais/coursepay/internal/domain/enrollment"
	"github.com/cassiomorais/coursepay/internal/domain/payment"
	"github.com/cassiomorais/coursepay/internal/service"
	"github.com/shopspring/decimal"
)

// --- Request DTOs ---
// These DTOs handle HTTP/JSON concerns (string ids, validation tags).
// Controllers convert them to service layer DTOs before calling business logic.

// CheckoutRequest starts a charge for a course. Card payments carry a
// single-use token and, for processors that need it, the card brand the
// tokenizer reported. Scan payments carry a pre-created source.
type CheckoutRequest struct {
	CourseID  string `json:"course_id" validate:"required,uuid"`
	Method    string `json:"method" validate:"required,oneof=card scan"`
	Token     string `json:"token,omitempty" validate:"required_if=Method card"`
	CardBrand string `json:"card_brand,omitempty" validate:"omitempty,max=32,alphanum"`
	SourceID  string `json:"source_id,omitempty" validate:"required_if=Method scan"`
	PromoCode string `json:"promo_code,omitempty" validate:"omitempty,max=64"`
}

// PromotionCheckRequest evaluates a code against a candidate price in minor units.
type PromotionCheckRequest struct {
	Code       string `json:"code" validate:"required,max=64"`
	PriceMinor *int64 `json:"price_minor" validate:"required,gte=0"`
}

// --- Response DTOs ---

type CheckoutResponse struct {
	Success             bool       `json:"success"`
	AttemptID           string     `json:"attempt_id"`
	ChargeID            string     `json:"charge_id"`
	Status              string     `json:"status"`
	Amount              float64    `json:"amount"`
	AmountMinor         int64      `json:"amount_minor"`
	Currency            string     `json:"currency"`
	CourseID            string     `json:"course_id"`
	Enrolled            bool       `json:"enrolled"`
	PromoCode           string     `json:"promo_code,omitempty"`
	DiscountMinor       int64      `json:"discount_minor,omitempty"`
	ScannableImageURI   string     `json:"scannable_image_uri,omitempty"`
	AuthorizeURI        string     `json:"authorize_uri,omitempty"`
	PollIntervalSeconds int        `json:"poll_interval_seconds,omitempty"`
	ExpiresAt           *time.Time `json:"expires_at,omitempty"`
}

// PaymentStatusResponse is the store's view of a charge after reconciliation.
type PaymentStatusResponse struct {
	ChargeID       string     `json:"charge_id"`
	Status         string     `json:"status"`
	Paid           bool       `json:"paid"`
	Amount         float64    `json:"amount"`
	AmountMinor    int64      `json:"amount_minor"`
	Currency       string     `json:"currency"`
	CourseID       string     `json:"course_id"`
	FailureCode    *string    `json:"failure_code,omitempty"`
	FailureMessage *string    `json:"failure_message,omitempty"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
}

type PromotionCheckResponse struct {
	Valid         bool   `json:"valid"`
	Code          string `json:"code"`
	DiscountMinor int64  `json:"discount_minor"`
	FinalMinor    int64  `json:"final_minor"`
}

type EnrollmentResponse struct {
	CourseID   string    `json:"course_id"`
	Status     string    `json:"status"`
	HasAccess  bool      `json:"has_access"`
	EnrolledAt time.Time `json:"enrolled_at"`
}

// WebhookResponse acknowledges a processor callback.
type WebhookResponse struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error       string `json:"error"`
	Code        string `json:"code"`
	DeclineCode string `json:"decline_code,omitempty"`
}

// --- Conversion helpers ---

func FromCheckout(resp *service.CheckoutResponse) *CheckoutResponse {
	a := resp.Attempt
	out := &CheckoutResponse{
		Success:           a.Status != payment.StatusFailed,
		AttemptID:         a.ID.String(),
		ChargeID:          a.ChargeID,
		Status:            string(a.Status),
		Amount:            minorToMajor(a.Amount.Minor),
		AmountMinor:       a.Amount.Minor,
		Currency:          a.Amount.Currency,
		CourseID:          a.CourseID.String(),
		Enrolled:          resp.Enrolled,
		ScannableImageURI: resp.ScannableImageURI,
		AuthorizeURI:      resp.AuthorizeURI,
		ExpiresAt:         resp.ExpiresAt,
	}
	if resp.Quote != nil {
		out.PromoCode = resp.Quote.Code
		out.DiscountMinor = resp.Quote.DiscountMinor
	}
	if resp.PollInterval > 0 {
		out.PollIntervalSeconds = int(resp.PollInterval / time.Second)
	}
	return out
}

func FromPaymentStatus(st *service.PaymentStatus) *PaymentStatusResponse {
	a := st.Attempt
	return &PaymentStatusResponse{
		ChargeID:       a.ChargeID,
		Status:         string(a.Status),
		Paid:           st.Paid,
		Amount:         minorToMajor(a.Amount.Minor),
		AmountMinor:    a.Amount.Minor,
		Currency:       a.Amount.Currency,
		CourseID:       a.CourseID.String(),
		FailureCode:    a.FailureCode,
		FailureMessage: a.FailureMessage,
		PaidAt:         a.PaidAt,
	}
}

func FromEnrollment(e *enrollment.Enrollment) *EnrollmentResponse {
	return &EnrollmentResponse{
		CourseID:   e.CourseID.String(),
		Status:     string(e.Status),
		HasAccess:  e.Status.GrantsAccess(),
		EnrolledAt: e.EnrolledAt,
	}
}

// minorToMajor converts minor units to a display amount in the major unit.
func minorToMajor(minor int64) float64 {
	return decimal.New(minor, -2).InexactFloat64()
}
