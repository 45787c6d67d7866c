package errors

import (
	"errors"
	"fmt"
)

var (
	// Course errors
	ErrCourseNotFound = errors.New("course not found")

	// Promotion errors
	ErrPromotionNotFound      = errors.New("promotion not found")
	ErrPromotionExhausted     = errors.New("promotion usage limit reached")
	ErrPromotionMinimumNotMet = errors.New("price below promotion minimum")

	// Payment errors
	ErrPaymentNotFound        = errors.New("payment not found")
	ErrPaymentNotPaid         = errors.New("payment is not paid")
	ErrInvalidPaymentMethod   = errors.New("invalid payment method")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrBelowMinimumCharge     = errors.New("amount below processor minimum")
	ErrDuplicateCharge        = errors.New("charge already recorded")

	// Enrollment errors
	ErrEnrollmentNotFound = errors.New("enrollment not found")
	ErrAlreadyEnrolled    = errors.New("already enrolled in course")

	// Processor errors
	ErrProcessorNotFound    = errors.New("payment processor not found")
	ErrProcessorUnavailable = errors.New("payment processor unavailable")
	ErrChargeDeclined       = errors.New("charge declined by processor")
	ErrChargeNotFound       = errors.New("charge not found at processor")
	ErrInvalidSignature     = errors.New("invalid callback signature")
	ErrMalformedEvent       = errors.New("malformed processor event")

	// Idempotency errors
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// Lock errors
	ErrLockAcquisitionFailed = errors.New("failed to acquire lock")
	ErrLockNotHeld           = errors.New("lock not held")

	// Auth errors
	ErrUnauthorized = errors.New("unauthorized")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// DeclineError carries the processor's decline reason verbatim so it can be
// shown to the payer. It unwraps to ErrChargeDeclined.
type DeclineError struct {
	Code    string
	Message string
}

func (e *DeclineError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

func (e *DeclineError) Unwrap() error {
	return ErrChargeDeclined
}

// NewDeclineError creates a decline error from a processor failure code and message.
func NewDeclineError(code, message string) *DeclineError {
	if message == "" {
		message = ErrChargeDeclined.Error()
	}
	return &DeclineError{Code: code, Message: message}
}
