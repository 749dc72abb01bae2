package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/civicvoice/backend/internal/middleware"
	"github.com/civicvoice/backend/internal/models"
	"github.com/civicvoice/backend/internal/services"
)

// AdminHandler serves the staff-only API. Routes are mounted behind
// RequireUser and RequireAdmin.
type AdminHandler struct {
	users     *services.UserService
	accounts  *services.AccountService
	comments  *services.CommentService
	events    *services.EventService
	revisions *services.Revisions
}

func NewAdminHandler(users *services.UserService, accounts *services.AccountService, comments *services.CommentService, events *services.EventService, revisions *services.Revisions) *AdminHandler {
	return &AdminHandler{
		users:     users,
		accounts:  accounts,
		comments:  comments,
		events:    events,
		revisions: revisions,
	}
}

func (h *AdminHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	errors := map[string]string{}
	filter := models.AccountFilter{
		Role:  models.Role(strings.ToLower(strings.TrimSpace(q.Get("role")))),
		Query: strings.TrimSpace(q.Get("q")),
	}

	for key, dst := range map[string]**bool{
		"is_public":    &filter.IsPublic,
		"is_voter":     &filter.IsVoter,
		"is_moderated": &filter.IsModerated,
	} {
		v, ok := queryBool(r, key)
		if !ok {
			errors[key] = "Must be true or false"
			continue
		}
		*dst = v
	}
	if raw := strings.TrimSpace(q.Get("zone")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || !models.Zone(n).Valid() {
			errors["zone"] = "Zone is invalid"
		} else {
			z := models.Zone(n)
			filter.Zone = &z
		}
	}
	if filter.Role != "" && !filter.Role.Valid() {
		errors["role"] = "Role is invalid"
	}
	if len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(errors))
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), services.DefaultRequestTimeout())
	defer cancel()

	accounts, err := h.accounts.List(ctx, filter)
	if err != nil {
		writeServiceError(w, "admin", err, "Failed to list accounts")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(accounts))
}

func (h *AdminHandler) ModerateAccount(w http.ResponseWriter, r *http.Request) {
	h.setModerated(w, r, true)
}

func (h *AdminHandler) UnmoderateAccount(w http.ResponseWriter, r *http.Request) {
	h.setModerated(w, r, false)
}

func (h *AdminHandler) setModerated(w http.ResponseWriter, r *http.Request, moderated bool) {
	actorID := middleware.GetUserID(r.Context())

	ctx, cancel := contextWithTimeout(r.Context(), services.DefaultRequestTimeout())
	defer cancel()

	acct, err := h.accounts.SetModerated(ctx, actorID, chi.URLParam(r, "accountId"), moderated)
	if err != nil {
		writeServiceError(w, "admin", err, "Failed to update account")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(acct))
}

func (h *AdminHandler) SyncAccount(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r.Context(), services.DefaultRequestTimeout())
	defer cancel()

	if err := h.accounts.Sync(ctx, chi.URLParam(r, "accountId")); err != nil {
		writeServiceError(w, "admin", err, "Failed to sync account")
		return
	}
	writeJSON(w, http.StatusAccepted, models.NewSuccessResponse(nil))
}

func (h *AdminHandler) VerifyAccount(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r.Context(), services.DefaultRequestTimeout())
	defer cancel()

	if err := h.accounts.RequestVoterMatch(ctx, chi.URLParam(r, "accountId")); err != nil {
		writeServiceError(w, "admin", err, "Failed to verify account")
		return
	}
	writeJSON(w, http.StatusAccepted, models.NewSuccessResponse(nil))
}

type setVoterRequest struct {
	IsVoter bool `json:"is_voter"`
}

// SetVoter overrides the voter-roll result by hand.
func (h *AdminHandler) SetVoter(w http.ResponseWriter, r *http.Request) {
	var req setVoterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), services.DefaultRequestTimeout())
	defer cancel()

	id := chi.URLParam(r, "accountId")
	if err := h.accounts.SetVoter(ctx, id, req.IsVoter); err != nil {
		writeServiceError(w, "admin", err, "Failed to update account")
		return
	}
	acct, err := h.accounts.Get(ctx, id)
	if err != nil {
		writeServiceError(w, "admin", err, "Failed to get account")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(acct))
}

func (h *AdminHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.CommentFilter{
		Status:    models.CommentStatus(q.Get("status")),
		EventID:   q.Get("event_id"),
		AccountID: q.Get("account_id"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(map[string]string{"status": "Status is invalid"}))
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), services.DefaultRequestTimeout())
	defer cancel()

	comments, err := h.comments.List(ctx, filter)
	if err != nil {
		writeServiceError(w, "admin", err, "Failed to list comments")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(comments))
}

func (h *AdminHandler) UpdateCommentStatus(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateCommentStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), services.DefaultRequestTimeout())
	defer cancel()

	c, err := h.comments.Transition(ctx, middleware.GetUserID(r.Context()), chi.URLParam(r, "commentId"), req.Status)
	if err != nil {
		writeServiceError(w, "admin", err, "Failed to update comment")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(c))
}

// ListEvents includes inactive events.
func (h *AdminHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r.Context(), services.DefaultRequestTimeout())
	defer cancel()

	events, err := h.events.List(ctx, "", true)
	if err != nil {
		writeServiceError(w, "admin", err, "Failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(events))
}

func (h *AdminHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req models.EventRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(errors))
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), services.DefaultRequestTimeout())
	defer cancel()

	event, err := h.events.Create(ctx, middleware.GetUserID(r.Context()), &req)
	if err != nil {
		writeServiceError(w, "admin", err, "Failed to create event")
		return
	}
	writeJSON(w, http.StatusCreated, models.NewSuccessResponse(event))
}

func (h *AdminHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var req models.EventRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(errors))
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), services.DefaultRequestTimeout())
	defer cancel()

	event, err := h.events.Update(ctx, middleware.GetUserID(r.Context()), chi.URLParam(r, "eventId"), &req)
	if err != nil {
		writeServiceError(w, "admin", err, "Failed to update event")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(event))
}

func (h *AdminHandler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r.Context(), services.DefaultRequestTimeout())
	defer cancel()

	if err := h.events.Delete(ctx, middleware.GetUserID(r.Context()), chi.URLParam(r, "eventId")); err != nil {
		writeServiceError(w, "admin", err, "Failed to delete event")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(nil))
}

func (h *AdminHandler) ListAttendees(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r.Context(), services.DefaultRequestTimeout())
	defer cancel()

	attendees, err := h.events.Attendees(ctx, chi.URLParam(r, "eventId"))
	if err != nil {
		writeServiceError(w, "admin", err, "Failed to list attendees")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(attendees))
}

func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	actorID := middleware.GetUserID(r.Context())
	id := chi.URLParam(r, "userId")
	if id == actorID && ((req.IsAdmin != nil && !*req.IsAdmin) || (req.IsActive != nil && !*req.IsActive)) {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("You cannot remove your own admin access"))
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), services.DefaultRequestTimeout())
	defer cancel()

	user, err := h.users.AdminUpdate(ctx, actorID, id, &req)
	if err != nil {
		writeServiceError(w, "admin", err, "Failed to update user")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(user))
}

var revisionKinds = map[string]bool{
	services.KindUser:    true,
	services.KindAccount: true,
	services.KindComment: true,
	services.KindEvent:   true,
}

func (h *AdminHandler) ListRevisions(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	if !revisionKinds[kind] {
		writeJSON(w, http.StatusNotFound, models.NewErrorResponse("Unknown revision kind"))
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), services.DefaultRequestTimeout())
	defer cancel()

	revs, err := h.revisions.List(ctx, kind, chi.URLParam(r, "objectId"))
	if err != nil {
		writeServiceError(w, "admin", err, "Failed to list revisions")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(revs))
}
