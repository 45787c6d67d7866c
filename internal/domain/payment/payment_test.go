package payment_test

import (
	"testing"
	"time"

	"github.com/cassiomorais/coursepay/internal/domain/errors"
	"github.com/cassiomorais/coursepay/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validParams() payment.NewAttemptParams {
	return payment.NewAttemptParams{
		Processor: "mock",
		UserID:    "user-1",
		CourseID:  uuid.New(),
		Method:    payment.MethodCard,
		ChargeID:  "chrg_test_1",
		Amount:    payment.Amount{Minor: 100000, Currency: "THB"},
	}
}

func TestNewAttempt_Valid(t *testing.T) {
	a, err := payment.NewAttempt(validParams())
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, a.Status)
	assert.Equal(t, "chrg_test_1", a.ChargeID)
	assert.Equal(t, int64(100000), a.Amount.Minor)
	assert.NotEqual(t, uuid.Nil, a.ID)
	assert.Nil(t, a.PaidAt)
	assert.Nil(t, a.FailedAt)
}

func TestNewAttempt_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *payment.NewAttemptParams)
	}{
		{"unknown method", func(p *payment.NewAttemptParams) { p.Method = "wire" }},
		{"empty charge id", func(p *payment.NewAttemptParams) { p.ChargeID = " " }},
		{"empty user", func(p *payment.NewAttemptParams) { p.UserID = "" }},
		{"zero amount", func(p *payment.NewAttemptParams) { p.Amount.Minor = 0 }},
		{"bad currency", func(p *payment.NewAttemptParams) { p.Amount.Currency = "TH" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			tt.mutate(&p)
			_, err := payment.NewAttempt(p)
			assert.Error(t, err)
		})
	}
}

func TestAmount_String(t *testing.T) {
	assert.Equal(t, "1000.00 THB", payment.Amount{Minor: 100000, Currency: "THB"}.String())
	assert.Equal(t, "8.05 USD", payment.Amount{Minor: 805, Currency: "USD"}.String())
}

func TestCanTransition(t *testing.T) {
	statuses := []payment.Status{payment.StatusPending, payment.StatusPaid, payment.StatusFailed}
	allowed := map[[2]payment.Status]bool{
		{payment.StatusPending, payment.StatusPaid}:   true,
		{payment.StatusPending, payment.StatusFailed}: true,
	}

	for _, from := range statuses {
		for _, to := range statuses {
			assert.Equal(t, allowed[[2]payment.Status{from, to}], payment.CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.False(t, payment.StatusPending.IsTerminal())
	assert.True(t, payment.StatusPaid.IsTerminal())
	assert.True(t, payment.StatusFailed.IsTerminal())
}

func TestApply_PendingToPaid(t *testing.T) {
	a, err := payment.NewAttempt(validParams())
	require.NoError(t, err)

	at := time.Now().UTC()
	applied, err := a.Apply(payment.MarkPaid(at))
	require.NoError(t, err)
	assert.True(t, applied)
	assert.True(t, a.IsPaid())
	require.NotNil(t, a.PaidAt)
	assert.Equal(t, at, *a.PaidAt)
}

func TestApply_PendingToFailed(t *testing.T) {
	a, err := payment.NewAttempt(validParams())
	require.NoError(t, err)

	applied, err := a.Apply(payment.MarkFailed("expired_charge", "charge expired", time.Now()))
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, payment.StatusFailed, a.Status)
	assert.Equal(t, "expired_charge", *a.FailureCode)
	assert.Equal(t, "charge expired", *a.FailureMessage)
	assert.NotNil(t, a.FailedAt)
}

func TestApply_TerminalIsNeverLeft(t *testing.T) {
	a, err := payment.NewAttempt(validParams())
	require.NoError(t, err)
	_, err = a.Apply(payment.MarkPaid(time.Now()))
	require.NoError(t, err)

	applied, err := a.Apply(payment.MarkFailed("late", "late failure", time.Now()))
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, payment.StatusPaid, a.Status)
	assert.Nil(t, a.FailureCode)

	applied, err = a.Apply(payment.MarkPaid(time.Now()))
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestApply_RejectsInvalidTransition(t *testing.T) {
	a, err := payment.NewAttempt(validParams())
	require.NoError(t, err)

	_, err = a.Apply(payment.Transition{From: payment.StatusPaid, To: payment.StatusPending, At: time.Now()})
	assert.ErrorIs(t, err, errors.ErrInvalidStateTransition)
	assert.Equal(t, payment.StatusPending, a.Status)
}

func TestMarkFailed_EmptyFieldsStayNil(t *testing.T) {
	tr := payment.MarkFailed("", "", time.Now())
	assert.Nil(t, tr.FailureCode)
	assert.Nil(t, tr.FailureMessage)
	assert.NoError(t, tr.Validate())
}
