package controller

import (
	"net/http"

	"github.com/cassiomorais/coursepay/internal/domain/payment"
	"github.com/cassiomorais/coursepay/internal/middleware"
	"github.com/cassiomorais/coursepay/internal/service"
	"github.com/google/uuid"
)

// CheckoutController starts course payments.
type CheckoutController struct {
	checkout *service.CheckoutService
}

func NewCheckoutController(checkout *service.CheckoutService) *CheckoutController {
	return &CheckoutController{checkout: checkout}
}

// Checkout handles POST /api/v1/checkout. A captured card charge answers 201,
// a pending scan charge 202 with the data the client needs to poll.
func (h *CheckoutController) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	userID, _ := middleware.GetUserID(r.Context())
	courseID, err := uuid.Parse(req.CourseID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid course_id", Code: "invalid_id"})
		return
	}

	resp, err := h.checkout.Initiate(r.Context(), service.CheckoutRequest{
		UserID:     userID,
		PayerEmail: middleware.GetEmail(r.Context()),
		CourseID:   courseID,
		Method:     payment.Method(req.Method),
		Token:      req.Token,
		CardBrand:  req.CardBrand,
		SourceID:   req.SourceID,
		PromoCode:  req.PromoCode,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusCreated
	if resp.Attempt.Status == payment.StatusPending {
		status = http.StatusAccepted
	}
	writeJSON(w, status, FromCheckout(resp))
}
