package handlers

import (
	"net/http"

	"github.com/civicvoice/backend/internal/middleware"
	"github.com/civicvoice/backend/internal/models"
	"github.com/civicvoice/backend/internal/services"
)

type AccountHandler struct {
	accounts *services.AccountService
	users    *services.UserService
	sessions *middleware.Sessions
}

func NewAccountHandler(accounts *services.AccountService, users *services.UserService, sessions *middleware.Sessions) *AccountHandler {
	return &AccountHandler{accounts: accounts, users: users, sessions: sessions}
}

// PublicListing is the home page: public accounts plus the total count.
func (h *AccountHandler) PublicListing(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r.Context(), services.DefaultRequestTimeout())
	defer cancel()

	listing, err := h.accounts.PublicListing(ctx)
	if err != nil {
		writeServiceError(w, "accounts", err, "Failed to list accounts")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(listing))
}

func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	ctx, cancel := contextWithTimeout(r.Context(), services.DefaultRequestTimeout())
	defer cancel()

	acct, err := h.accounts.GetByUserID(ctx, userID)
	if err != nil {
		writeServiceError(w, "accounts", err, "Failed to get account")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(acct))
}

func (h *AccountHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req models.UpdateAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Normalize()
	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(errors))
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), services.DefaultRequestTimeout())
	defer cancel()

	acct, err := h.accounts.Update(ctx, userID, &req)
	if err != nil {
		writeServiceError(w, "accounts", err, "Failed to update account")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(acct))
}

// DeleteAccount removes the user and everything it owns, then ends the
// session.
func (h *AccountHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req models.DeleteAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.Confirm {
		writeServiceError(w, "accounts", services.ErrConfirmRequired, "")
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), services.DefaultAccountTimeout())
	defer cancel()

	if err := h.users.Delete(ctx, userID); err != nil {
		writeServiceError(w, "accounts", err, "Failed to delete account")
		return
	}
	h.sessions.Clear(w)
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(nil))
}
