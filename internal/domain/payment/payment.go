package payment

import (
	"fmt"
	"strings"
	"time"

	"github.com/cassiomorais/coursepay/internal/domain/errors"
	"github.com/google/uuid"
)

// Method is the way the payer funds a charge.
type Method string

const (
	// MethodCard is an instant-capture charge against a single-use card token.
	MethodCard Method = "card"
	// MethodScan is an asynchronous scan-to-pay charge against a pre-created source.
	MethodScan Method = "scan"
)

// Valid reports whether m is a known method.
func (m Method) Valid() bool {
	return m == MethodCard || m == MethodScan
}

// Status represents the attempt status in the state machine
type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
)

// IsTerminal reports whether no further transition is possible from s.
func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusFailed
}

var transitions = map[Status][]Status{
	StatusPending: {StatusPaid, StatusFailed},
	StatusPaid:    {},
	StatusFailed:  {},
}

// CanTransition checks if an attempt may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Event types recorded in the attempt audit trail and the outbox.
const (
	EventCreated               = "payment.created"
	EventPaid                  = "payment.paid"
	EventFailed                = "payment.failed"
	EventEnrollmentActivated   = "enrollment.activated"
	EventPromotionOverRedeemed = "enrollment.promotion_over_redeemed"
	EventActivationDeferred    = "enrollment.activation_deferred"
)

// AggregateType identifies attempts in the outbox.
const AggregateType = "payment_attempt"

// Attempt is the durable record of one charge creation call.
type Attempt struct {
	ID             uuid.UUID
	Processor      string
	UserID         string
	CourseID       uuid.UUID
	PromotionID    *uuid.UUID
	Method         Method
	ChargeID       string
	SourceID       *string
	Amount         Amount
	Status         Status
	FailureCode    *string
	FailureMessage *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	PaidAt         *time.Time
	FailedAt       *time.Time
}

// Amount represents a monetary amount in minor currency units.
type Amount struct {
	Minor    int64
	Currency string
}

// String returns a human-readable representation of the amount.
func (a Amount) String() string {
	whole := a.Minor / 100
	frac := a.Minor % 100
	if frac < 0 {
		frac = -frac
	}
	return fmt.Sprintf("%d.%02d %s", whole, frac, a.Currency)
}

// Validate checks that the amount is valid.
func (a Amount) Validate() error {
	if a.Minor <= 0 {
		return errors.NewValidationError("amount", "must be greater than 0")
	}
	if len(a.Currency) != 3 {
		return errors.NewValidationError("currency", "must be a 3-letter ISO code")
	}
	return nil
}

// NewAttemptParams holds the data captured when a charge is created.
type NewAttemptParams struct {
	Processor   string
	UserID      string
	CourseID    uuid.UUID
	PromotionID *uuid.UUID
	Method      Method
	ChargeID    string
	SourceID    *string
	Amount      Amount
}

// NewAttempt creates a pending attempt for a charge the processor has accepted.
func NewAttempt(p NewAttemptParams) (*Attempt, error) {
	if !p.Method.Valid() {
		return nil, errors.ErrInvalidPaymentMethod
	}
	if strings.TrimSpace(p.ChargeID) == "" {
		return nil, errors.NewValidationError("charge_id", "cannot be empty")
	}
	if p.UserID == "" {
		return nil, errors.NewValidationError("user_id", "cannot be empty")
	}
	if err := p.Amount.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Attempt{
		ID:          uuid.New(),
		Processor:   p.Processor,
		UserID:      p.UserID,
		CourseID:    p.CourseID,
		PromotionID: p.PromotionID,
		Method:      p.Method,
		ChargeID:    p.ChargeID,
		SourceID:    p.SourceID,
		Amount:      p.Amount,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Transition is a guarded status change. It only applies while the stored
// status still equals From.
type Transition struct {
	From           Status
	To             Status
	FailureCode    *string
	FailureMessage *string
	At             time.Time
}

// MarkPaid builds the pending -> paid transition.
func MarkPaid(at time.Time) Transition {
	return Transition{From: StatusPending, To: StatusPaid, At: at}
}

// MarkFailed builds the pending -> failed transition.
func MarkFailed(code, message string, at time.Time) Transition {
	t := Transition{From: StatusPending, To: StatusFailed, At: at}
	if code != "" {
		t.FailureCode = &code
	}
	if message != "" {
		t.FailureMessage = &message
	}
	return t
}

// Validate rejects transitions the state machine does not allow.
func (t Transition) Validate() error {
	if !CanTransition(t.From, t.To) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition from "+string(t.From)+" to "+string(t.To),
			errors.ErrInvalidStateTransition,
		)
	}
	return nil
}

// Apply performs the transition on the in-memory attempt. It reports false
// without modifying a when the current status does not match t.From.
func (a *Attempt) Apply(t Transition) (bool, error) {
	if err := t.Validate(); err != nil {
		return false, err
	}
	if a.Status != t.From {
		return false, nil
	}

	a.Status = t.To
	a.UpdatedAt = t.At
	switch t.To {
	case StatusPaid:
		at := t.At
		a.PaidAt = &at
	case StatusFailed:
		at := t.At
		a.FailedAt = &at
		a.FailureCode = t.FailureCode
		a.FailureMessage = t.FailureMessage
	}
	return true, nil
}

// IsPaid reports whether the attempt has been paid.
func (a *Attempt) IsPaid() bool {
	return a.Status == StatusPaid
}
