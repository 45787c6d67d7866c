package controller

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	domainErrors "github.com/cassiomorais/coursepay/internal/domain/errors"
	"github.com/cassiomorais/coursepay/internal/processor"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		payload      any
		expectedBody string
	}{
		{
			name:         "simple map",
			status:       http.StatusOK,
			payload:      map[string]string{"status": "ok"},
			expectedBody: `{"status":"ok"}`,
		},
		{
			name:         "error response",
			status:       http.StatusBadRequest,
			payload:      ErrorResponse{Error: "bad request", Code: "invalid_input"},
			expectedBody: `{"error":"bad request","code":"invalid_input"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeJSON(w, tt.status, tt.payload)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
		})
	}
}

func TestWriteError_ValidationError(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, domainErrors.NewValidationError("token", "is required for card payments"))

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "validation_error", response.Code)
	assert.Contains(t, response.Error, "token")
}

func TestWriteError_DomainErrors(t *testing.T) {
	tests := []struct {
		err            error
		expectedStatus int
		expectedCode   string
	}{
		{domainErrors.ErrCourseNotFound, http.StatusNotFound, "course_not_found"},
		{domainErrors.ErrPromotionNotFound, http.StatusNotFound, "promotion_not_found"},
		{domainErrors.ErrPaymentNotFound, http.StatusNotFound, "payment_not_found"},
		{domainErrors.ErrEnrollmentNotFound, http.StatusNotFound, "enrollment_not_found"},
		{domainErrors.ErrProcessorNotFound, http.StatusNotFound, "processor_not_found"},
		{domainErrors.ErrPromotionExhausted, http.StatusConflict, "promotion_exhausted"},
		{domainErrors.ErrAlreadyEnrolled, http.StatusConflict, "already_enrolled"},
		{domainErrors.ErrPromotionMinimumNotMet, http.StatusUnprocessableEntity, "promotion_minimum_not_met"},
		{domainErrors.ErrInvalidPaymentMethod, http.StatusBadRequest, "invalid_payment_method"},
		{domainErrors.ErrMalformedEvent, http.StatusBadRequest, "malformed_event"},
		{domainErrors.ErrChargeDeclined, http.StatusPaymentRequired, "payment_declined"},
		{domainErrors.ErrProcessorUnavailable, http.StatusServiceUnavailable, "processor_unavailable"},
		{domainErrors.ErrInvalidSignature, http.StatusUnauthorized, "invalid_signature"},
		{domainErrors.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	}

	for _, tt := range tests {
		t.Run(tt.expectedCode, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeError(w, fmt.Errorf("wrapped: %w", tt.err))

			assert.Equal(t, tt.expectedStatus, w.Code)

			var response ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, tt.expectedCode, response.Code)
		})
	}
}

func TestWriteError_BelowMinimumCharge(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, domainErrors.NewDomainError("below_minimum_charge", "charge of 15.00 THB is below the minimum", domainErrors.ErrBelowMinimumCharge))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var response ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "below_minimum_charge", response.Code)
}

func TestWriteError_DeclineCarriesProcessorText(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, domainErrors.NewDeclineError("insufficient_fund", "Insufficient funds in the account"))

	assert.Equal(t, http.StatusPaymentRequired, w.Code)

	var response ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "payment_declined", response.Code)
	assert.Equal(t, "Insufficient funds in the account", response.Error)
	assert.Equal(t, "insufficient_fund", response.DeclineCode)
}

func TestWriteError_BreakerOpen(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, processor.Unavailable(gobreaker.ErrOpenState))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestWriteError_GenericDomainError(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, domainErrors.NewDomainError("custom_error", "custom error message", nil))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var response ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "custom_error", response.Code)
	assert.Equal(t, "custom error message", response.Error)
}

func TestWriteError_UnknownError_FallbackToInternalServerError(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, errors.New("unexpected error"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var response ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "internal_error", response.Code)
	assert.Equal(t, "internal server error", response.Error)
}

func TestDecodeAndValidate_Checkout(t *testing.T) {
	courseID := "7f1d5bde-6f6c-4a4c-9e59-5b0f1a1f9f10"
	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{"valid card", `{"course_id":"` + courseID + `","method":"card","token":"tok_1"}`, ""},
		{"valid scan", `{"course_id":"` + courseID + `","method":"scan","source_id":"src_1"}`, ""},
		{"card without token", `{"course_id":"` + courseID + `","method":"card"}`, "token"},
		{"scan without source", `{"course_id":"` + courseID + `","method":"scan"}`, "source_id"},
		{"unknown method", `{"course_id":"` + courseID + `","method":"cash"}`, "method"},
		{"bad course id", `{"course_id":"nope","method":"card","token":"tok_1"}`, "course_id"},
		{"invalid JSON", `{invalid json}`, "body"},
		{"empty body", ``, "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(tt.body))
			var dst CheckoutRequest
			err := decodeAndValidate(req, &dst)

			if tt.wantField == "" {
				require.NoError(t, err)
				return
			}
			var validationErr *domainErrors.ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.wantField, validationErr.Field)
		})
	}
}

func TestDecodeAndValidate_PromotionCheck(t *testing.T) {
	var dst PromotionCheckRequest
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(`{"code":"FIXED200","price_minor":0}`)))
	require.NoError(t, decodeAndValidate(req, &dst))
	assert.Equal(t, int64(0), *dst.PriceMinor)

	req = httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(`{"code":"FIXED200"}`)))
	var validationErr *domainErrors.ValidationError
	require.ErrorAs(t, decodeAndValidate(req, &PromotionCheckRequest{}), &validationErr)
	assert.Equal(t, "price_minor", validationErr.Field)

	req = httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(`{"code":"FIXED200","price_minor":-1}`)))
	assert.Error(t, decodeAndValidate(req, &PromotionCheckRequest{}))
}
