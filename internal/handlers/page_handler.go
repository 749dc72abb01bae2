package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/civicvoice/backend/internal/models"
	"github.com/civicvoice/backend/internal/pages"
)

type PageHandler struct {
	pages *pages.Renderer
}

func NewPageHandler(renderer *pages.Renderer) *PageHandler {
	return &PageHandler{pages: renderer}
}

func (h *PageHandler) GetPage(w http.ResponseWriter, r *http.Request) {
	page, err := h.pages.Render(chi.URLParam(r, "slug"))
	if err != nil {
		if errors.Is(err, pages.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, models.NewErrorResponse("Page not found"))
			return
		}
		writeServiceError(w, "pages", err, "Failed to render page")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(page))
}
