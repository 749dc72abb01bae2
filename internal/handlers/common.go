package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/civicvoice/backend/internal/logging"
	"github.com/civicvoice/backend/internal/models"
	"github.com/civicvoice/backend/internal/services"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid request body"))
		return false
	}
	return true
}

func contextWithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, d)
}

// writeServiceError maps service sentinels to HTTP statuses. Anything
// unrecognised is logged and reported as a 500 with fallback as the message.
func writeServiceError(w http.ResponseWriter, tag string, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		writeJSON(w, http.StatusNotFound, models.NewErrorResponse("Not found"))
	case errors.Is(err, services.ErrForbidden):
		writeJSON(w, http.StatusForbidden, models.NewErrorResponse("Forbidden"))
	case errors.Is(err, services.ErrConflict):
		writeJSON(w, http.StatusConflict, models.NewErrorResponse("Already exists"))
	case errors.Is(err, services.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, models.NewErrorResponse("Invalid status transition"))
	case errors.Is(err, services.ErrConfirmRequired):
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Confirmation required"))
	case errors.Is(err, services.ErrEmptyComment):
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(map[string]string{"text": "Comment text is required"}))
	case errors.Is(err, services.ErrCommentTooLong):
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(map[string]string{"text": "Comment is too long"}))
	case errors.Is(err, services.ErrCaptchaFailed):
		writeJSON(w, http.StatusForbidden, models.NewErrorResponse("reCAPTCHA verification failed"))
	case errors.Is(err, services.ErrNotConfigured):
		logging.Component(tag).WithError(err).Error(fallback)
		writeJSON(w, http.StatusServiceUnavailable, models.NewErrorResponse(fallback))
	default:
		logging.Component(tag).WithError(err).Error(fallback)
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse(fallback))
	}
}

// queryBool parses an optional boolean filter. ok is false when the value is
// present but not a boolean.
func queryBool(r *http.Request, key string) (value *bool, ok bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, true
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, false
	}
	return &b, true
}

func clientIP(r *http.Request) string {
	// Behind a load balancer X-Forwarded-For carries the client first.
	xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && net.ParseIP(host) != nil {
		return host
	}
	if net.ParseIP(r.RemoteAddr) != nil {
		return r.RemoteAddr
	}
	return ""
}
