package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *DomainError
		expected string
	}{
		{
			name: "with wrapped error",
			err: &DomainError{
				Code:    "activation_failed",
				Message: "enrollment activation failed",
				Err:     errors.New("connection reset"),
			},
			expected: "enrollment activation failed: connection reset",
		},
		{
			name: "without wrapped error",
			err: &DomainError{
				Code:    "invalid_state",
				Message: "attempt is no longer pending",
			},
			expected: "attempt is no longer pending",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	originalErr := errors.New("original error")
	domainErr := NewDomainError("test", "test message", originalErr)

	assert.Equal(t, originalErr, domainErr.Unwrap())
	assert.ErrorIs(t, domainErr, originalErr)
}

func TestNewDomainError_NilWrappedError(t *testing.T) {
	err := NewDomainError("test_code", "test message", nil)

	assert.Equal(t, "test_code", err.Code)
	assert.Equal(t, "test message", err.Message)
	assert.Nil(t, err.Err)
}

func TestValidationError_Error(t *testing.T) {
	err := NewValidationError("token", "required for card payments")

	assert.Equal(t, "token", err.Field)
	assert.Equal(t, "validation failed for field token: required for card payments", err.Error())
}

func TestDeclineError(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{"code and message", "insufficient_fund", "insufficient funds in the account", "insufficient funds in the account (insufficient_fund)"},
		{"message only", "", "card expired", "card expired"},
		{"empty message falls back", "", "", ErrChargeDeclined.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewDeclineError(tt.code, tt.message)
			assert.Equal(t, tt.expected, err.Error())
			assert.ErrorIs(t, err, ErrChargeDeclined)
		})
	}
}

func TestErrorUnwrapping(t *testing.T) {
	wrappedErr := NewDomainError("promotion_rejected", "cannot apply promotion", ErrPromotionExhausted)

	assert.True(t, errors.Is(wrappedErr, ErrPromotionExhausted))
	assert.False(t, errors.Is(wrappedErr, ErrPromotionNotFound))
}
