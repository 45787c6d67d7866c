package controller

import (
	"net/http"

	"github.com/cassiomorais/coursepay/internal/middleware"
	"github.com/cassiomorais/coursepay/internal/service"
	"github.com/go-chi/chi/v5"
)

// PaymentController serves the payer's status poll.
type PaymentController struct {
	reconcile *service.ReconciliationService
}

func NewPaymentController(reconcile *service.ReconciliationService) *PaymentController {
	return &PaymentController{reconcile: reconcile}
}

// Status handles GET /api/v1/payments/{chargeID}/status. Each call may settle
// a pending attempt against the processor before answering.
func (h *PaymentController) Status(w http.ResponseWriter, r *http.Request) {
	chargeID := chi.URLParam(r, "chargeID")
	if chargeID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "missing charge id", Code: "invalid_id"})
		return
	}
	userID, _ := middleware.GetUserID(r.Context())

	st, err := h.reconcile.Poll(r.Context(), userID, chargeID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromPaymentStatus(st))
}
