package service

import (
	"time"

	"github.com/cassiomorais/coursepay/internal/domain/enrollment"
	"github.com/cassiomorais/coursepay/internal/domain/payment"
	"github.com/cassiomorais/coursepay/internal/domain/promotion"
	"github.com/google/uuid"
)

// Controllers convert their HTTP DTOs to this type.
type CheckoutRequest struct {
	UserID     string
	PayerEmail string
	CourseID   uuid.UUID
	Method     payment.Method
	Token      string // card
	CardBrand  string // card
	SourceID   string // scan
	PromoCode  string
}

type CheckoutResponse struct {
	Attempt *payment.Attempt
	Quote   *promotion.Quote

	// Enrolled is true when the charge captured synchronously and access was granted inline.
	Enrolled          bool
	ScannableImageURI string
	AuthorizeURI      string
	PollInterval      time.Duration
	ExpiresAt         *time.Time
}

// PaymentStatus is the store's view of an attempt after a reconciliation attempt.
type PaymentStatus struct {
	Attempt *payment.Attempt
	Paid    bool
}

// Activation reports what one Activator run did.
type Activation struct {
	Enrollment    *enrollment.Enrollment
	Created       bool
	OverRedeemed  bool
	PromotionCode string // set when OverRedeemed
}

// ReconcileSource names the channel that delivered a charge status.
type ReconcileSource string

const (
	SourceCheckout ReconcileSource = "checkout"
	SourceCallback ReconcileSource = "callback"
	SourcePoll     ReconcileSource = "poll"
	SourceSweeper  ReconcileSource = "sweeper"
)

// ReconcileOutcome is the result of applying a charge status to the store.
type ReconcileOutcome string

const (
	OutcomeApplied       ReconcileOutcome = "applied"
	OutcomeNoop          ReconcileOutcome = "noop"
	OutcomePending       ReconcileOutcome = "pending"
	OutcomeUnknownCharge ReconcileOutcome = "unknown_charge"
)
