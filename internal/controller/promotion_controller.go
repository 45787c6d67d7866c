package controller

import (
	"net/http"

	"github.com/cassiomorais/coursepay/internal/service"
)

type PromotionController struct {
	promotions *service.PromotionService
}

func NewPromotionController(promotions *service.PromotionService) *PromotionController {
	return &PromotionController{promotions: promotions}
}

// Check handles POST /api/v1/promotions/check. Rejections use the regular
// error mapping: 404 not found, 409 exhausted, 422 minimum not met.
func (h *PromotionController) Check(w http.ResponseWriter, r *http.Request) {
	var req PromotionCheckRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	q, err := h.promotions.Check(r.Context(), req.Code, *req.PriceMinor)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, PromotionCheckResponse{
		Valid:         true,
		Code:          q.Code,
		DiscountMinor: q.DiscountMinor,
		FinalMinor:    q.FinalMinor,
	})
}
