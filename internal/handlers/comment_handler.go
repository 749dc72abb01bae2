package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/civicvoice/backend/internal/middleware"
	"github.com/civicvoice/backend/internal/models"
	"github.com/civicvoice/backend/internal/services"
)

type CommentHandler struct {
	comments *services.CommentService
}

func NewCommentHandler(comments *services.CommentService) *CommentHandler {
	return &CommentHandler{comments: comments}
}

func (h *CommentHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r.Context(), services.DefaultRequestTimeout())
	defer cancel()

	comments, err := h.comments.ListPublic(ctx, r.URL.Query().Get("event_id"))
	if err != nil {
		writeServiceError(w, "comments", err, "Failed to list comments")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(comments))
}

func (h *CommentHandler) CreateComment(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil || user.Account == nil {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}

	var req models.CreateCommentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(errors))
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), services.DefaultRequestTimeout())
	defer cancel()

	c, err := h.comments.Create(ctx, user.Account, &req)
	if err != nil {
		writeServiceError(w, "comments", err, "Failed to create comment")
		return
	}
	writeJSON(w, http.StatusCreated, models.NewSuccessResponse(c))
}

// CreateVideoComment reserves a comment and returns where to upload the
// recording. The comment is filled in when the upload is finalized.
func (h *CommentHandler) CreateVideoComment(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil || user.Account == nil {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}

	var req models.CreateVideoCommentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), services.DefaultRequestTimeout())
	defer cancel()

	upload, err := h.comments.CreateVideo(ctx, user.Account, &req)
	if err != nil {
		writeServiceError(w, "comments", err, "Failed to create video comment")
		return
	}
	writeJSON(w, http.StatusCreated, models.NewSuccessResponse(upload))
}

func (h *CommentHandler) GetComment(w http.ResponseWriter, r *http.Request) {
	viewer := middleware.GetUser(r.Context())

	ctx, cancel := contextWithTimeout(r.Context(), services.DefaultRequestTimeout())
	defer cancel()

	c, err := h.comments.GetVisible(ctx, chi.URLParam(r, "commentId"), viewer)
	if err != nil {
		writeServiceError(w, "comments", err, "Failed to get comment")
		return
	}
	if viewer != nil && (viewer.IsAdmin || (viewer.Account != nil && viewer.Account.ID == c.AccountID)) {
		writeJSON(w, http.StatusOK, models.NewSuccessResponse(c))
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(c.Public()))
}

func (h *CommentHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	viewer := middleware.GetUser(r.Context())

	ctx, cancel := contextWithTimeout(r.Context(), services.DefaultRequestTimeout())
	defer cancel()

	if err := h.comments.Delete(ctx, chi.URLParam(r, "commentId"), viewer); err != nil {
		writeServiceError(w, "comments", err, "Failed to delete comment")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(nil))
}
