package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/civicvoice/backend/internal/models"
	"github.com/civicvoice/backend/internal/services"
)

type SchoolHandler struct {
	schools     *services.SchoolService
	assignments *services.AssignmentService
}

func NewSchoolHandler(schools *services.SchoolService, assignments *services.AssignmentService) *SchoolHandler {
	return &SchoolHandler{schools: schools, assignments: assignments}
}

func (h *SchoolHandler) ListSchools(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r.Context(), services.DefaultRequestTimeout())
	defer cancel()

	schools, err := h.schools.List(ctx)
	if err != nil {
		writeServiceError(w, "schools", err, "Failed to list schools")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(schools))
}

func (h *SchoolHandler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r.Context(), services.DefaultRequestTimeout())
	defer cancel()

	assignments, err := h.assignments.ListForAccount(ctx, accountID(r))
	if err != nil {
		writeServiceError(w, "schools", err, "Failed to list assignments")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(assignments))
}

func (h *SchoolHandler) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	acctID := accountID(r)
	if acctID == "" {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}

	var req models.CreateAssignmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	date, errors := req.Validate()
	if len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(errors))
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), services.DefaultRequestTimeout())
	defer cancel()

	a, err := h.assignments.Create(ctx, acctID, req.SchoolID, date)
	if err != nil {
		writeServiceError(w, "schools", err, "Failed to create assignment")
		return
	}
	writeJSON(w, http.StatusCreated, models.NewSuccessResponse(a))
}

func (h *SchoolHandler) DeleteAssignment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r.Context(), services.DefaultRequestTimeout())
	defer cancel()

	if err := h.assignments.Delete(ctx, chi.URLParam(r, "assignmentId"), accountID(r)); err != nil {
		writeServiceError(w, "schools", err, "Failed to delete assignment")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(nil))
}
