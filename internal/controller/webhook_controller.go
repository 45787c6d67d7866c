package controller

import (
	"io"
	"net/http"

	"github.com/cassiomorais/coursepay/internal/processor"
	"github.com/cassiomorais/coursepay/internal/service"
	"github.com/go-chi/chi/v5"
)

// WebhookController receives processor callbacks. Delivery is at-least-once,
// so every outcome the gateway can interpret is acknowledged with 200 and
// only transport, signature and parse failures are refused.
type WebhookController struct {
	reconcile *service.ReconciliationService
}

func NewWebhookController(reconcile *service.ReconciliationService) *WebhookController {
	return &WebhookController{reconcile: reconcile}
}

// Handle handles POST /webhooks/{processor}.
func (h *WebhookController) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "unreadable body", Code: "malformed_event"})
		return
	}

	outcome, err := h.reconcile.HandleCallback(r.Context(), chi.URLParam(r, "processor"), processor.SignedRequest{
		Header:  r.Header,
		Query:   r.URL.Query(),
		Payload: payload,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, WebhookResponse{Received: true, Outcome: string(outcome)})
}
