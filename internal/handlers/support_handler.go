package handlers

import (
	"net/http"
	"time"

	"github.com/civicvoice/backend/internal/models"
	"github.com/civicvoice/backend/internal/services"
)

type SupportHandler struct {
	support *services.SupportService
}

func NewSupportHandler(support *services.SupportService) *SupportHandler {
	return &SupportHandler{support: support}
}

func (h *SupportHandler) SubmitSupportRequest(w http.ResponseWriter, r *http.Request) {
	var req models.SupportRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Normalize()
	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(errs))
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	ticket, err := h.support.Submit(ctx, &req, clientIP(r))
	if err != nil {
		writeServiceError(w, "support", err, "Failed to send support request")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(ticket))
}
