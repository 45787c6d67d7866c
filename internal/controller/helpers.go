package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	domainErrors "github.com/cassiomorais/coursepay/internal/domain/errors"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

// maxBodySize bounds JSON request bodies and processor callbacks.
const maxBodySize = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report JSON field names in validation errors.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{domainErrors.ErrCourseNotFound, http.StatusNotFound, "course_not_found"},
	{domainErrors.ErrPromotionNotFound, http.StatusNotFound, "promotion_not_found"},
	{domainErrors.ErrPaymentNotFound, http.StatusNotFound, "payment_not_found"},
	{domainErrors.ErrEnrollmentNotFound, http.StatusNotFound, "enrollment_not_found"},
	{domainErrors.ErrProcessorNotFound, http.StatusNotFound, "processor_not_found"},
	{domainErrors.ErrPromotionExhausted, http.StatusConflict, "promotion_exhausted"},
	{domainErrors.ErrAlreadyEnrolled, http.StatusConflict, "already_enrolled"},
	{domainErrors.ErrPromotionMinimumNotMet, http.StatusUnprocessableEntity, "promotion_minimum_not_met"},
	{domainErrors.ErrBelowMinimumCharge, http.StatusUnprocessableEntity, "below_minimum_charge"},
	{domainErrors.ErrInvalidPaymentMethod, http.StatusBadRequest, "invalid_payment_method"},
	{domainErrors.ErrMalformedEvent, http.StatusBadRequest, "malformed_event"},
	{domainErrors.ErrChargeDeclined, http.StatusPaymentRequired, "payment_declined"},
	{domainErrors.ErrProcessorUnavailable, http.StatusServiceUnavailable, "processor_unavailable"},
	{domainErrors.ErrInvalidSignature, http.StatusUnauthorized, "invalid_signature"},
	{domainErrors.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error()}

	var validationErr *domainErrors.ValidationError
	if errors.As(err, &validationErr) {
		resp.Code = "validation_error"
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	// The processor's decline text is shown to the payer as-is.
	var declineErr *domainErrors.DeclineError
	if errors.As(err, &declineErr) {
		resp.Code = "payment_declined"
		resp.Error = declineErr.Message
		resp.DeclineCode = declineErr.Code
		writeJSON(w, http.StatusPaymentRequired, resp)
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			resp.Code = m.code
			writeJSON(w, m.status, resp)
			return
		}
	}

	var domainErr *domainErrors.DomainError
	if errors.As(err, &domainErr) {
		resp.Code = domainErr.Code
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}

	log.Error().Err(err).Msg("unhandled error in handler")
	resp.Code = "internal_error"
	resp.Error = "internal server error"
	writeJSON(w, http.StatusInternalServerError, resp)
}

func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodySize)).Decode(dst); err != nil {
		return domainErrors.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		if ve, ok := err.(validator.ValidationErrors); ok && len(ve) > 0 {
			return domainErrors.NewValidationError(ve[0].Field(), ve[0].Tag()+" validation failed")
		}
		return domainErrors.NewValidationError("body", err.Error())
	}
	return nil
}
