package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/civicvoice/backend/internal/middleware"
	"github.com/civicvoice/backend/internal/models"
	"github.com/civicvoice/backend/internal/services"
)

type EventHandler struct {
	events *services.EventService
}

func NewEventHandler(events *services.EventService) *EventHandler {
	return &EventHandler{events: events}
}

func accountID(r *http.Request) string {
	if user := middleware.GetUser(r.Context()); user != nil && user.Account != nil {
		return user.Account.ID
	}
	return ""
}

// ListEvents returns active events; a signed-in caller also sees its RSVPs.
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r.Context(), services.DefaultRequestTimeout())
	defer cancel()

	events, err := h.events.List(ctx, accountID(r), false)
	if err != nil {
		writeServiceError(w, "events", err, "Failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(events))
}

func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r.Context(), services.DefaultRequestTimeout())
	defer cancel()

	event, err := h.events.Get(ctx, chi.URLParam(r, "eventId"), accountID(r), false)
	if err != nil {
		writeServiceError(w, "events", err, "Failed to get event")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(event))
}

func (h *EventHandler) RSVP(w http.ResponseWriter, r *http.Request) {
	acctID := accountID(r)
	if acctID == "" {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), services.DefaultRequestTimeout())
	defer cancel()

	event, err := h.events.RSVP(ctx, chi.URLParam(r, "eventId"), acctID)
	if err != nil {
		writeServiceError(w, "events", err, "Failed to RSVP")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(event))
}

func (h *EventHandler) CancelRSVP(w http.ResponseWriter, r *http.Request) {
	acctID := accountID(r)
	if acctID == "" {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), services.DefaultRequestTimeout())
	defer cancel()

	if err := h.events.CancelRSVP(ctx, chi.URLParam(r, "eventId"), acctID); err != nil {
		writeServiceError(w, "events", err, "Failed to cancel RSVP")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(nil))
}
