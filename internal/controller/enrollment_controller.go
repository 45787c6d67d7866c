package controller

import (
	"net/http"

	"github.com/cassiomorais/coursepay/internal/middleware"
	"github.com/cassiomorais/coursepay/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type EnrollmentController struct {
	enrollments *service.EnrollmentService
}

func NewEnrollmentController(enrollments *service.EnrollmentService) *EnrollmentController {
	return &EnrollmentController{enrollments: enrollments}
}

// Get handles GET /api/v1/courses/{courseID}/enrollment for the calling user.
func (h *EnrollmentController) Get(w http.ResponseWriter, r *http.Request) {
	courseID, err := uuid.Parse(chi.URLParam(r, "courseID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid course id", Code: "invalid_id"})
		return
	}
	userID, _ := middleware.GetUserID(r.Context())

	e, err := h.enrollments.Status(r.Context(), userID, courseID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromEnrollment(e))
}
