package handlers

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/civicvoice/backend/internal/logging"
	"github.com/civicvoice/backend/internal/middleware"
	"github.com/civicvoice/backend/internal/models"
	"github.com/civicvoice/backend/internal/services"
)

const (
	stateCookieName = "civicvoice_oauth_state"
	stateCookieTTL  = 10 * time.Minute
)

// AuthConfig describes the hosted identity provider's authorization code
// flow.
type AuthConfig struct {
	Domain       string
	ClientID     string
	ClientSecret string
	PublicURL    string
	Secure       bool
}

// OAuthConfig builds the oauth2 client for an identity provider domain.
func (c AuthConfig) OAuthConfig() *oauth2.Config {
	base := "https://" + strings.TrimSuffix(c.Domain, "/")
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.PublicURL + "/callback",
		Scopes:       []string{"openid", "profile", "email"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   base + "/authorize",
			TokenURL:  base + "/oauth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (c AuthConfig) logoutURL() string {
	q := url.Values{}
	q.Set("client_id", c.ClientID)
	q.Set("return_to", c.PublicURL+"/")
	return "https://" + strings.TrimSuffix(c.Domain, "/") + "/v2/logout?" + q.Encode()
}

type AuthHandler struct {
	oauth    *oauth2.Config
	verifier services.TokenVerifier
	users    *services.UserService
	sessions *middleware.Sessions
	cfg      AuthConfig
}

func NewAuthHandler(cfg AuthConfig, oauth *oauth2.Config, verifier services.TokenVerifier, users *services.UserService, sessions *middleware.Sessions) *AuthHandler {
	return &AuthHandler{
		oauth:    oauth,
		verifier: verifier,
		users:    users,
		sessions: sessions,
		cfg:      cfg,
	}
}

// Join starts the code flow on the provider's sign-up screen.
func (h *AuthHandler) Join(w http.ResponseWriter, r *http.Request) {
	h.redirectToProvider(w, r, oauth2.SetAuthURLParam("screen_hint", "signup"))
}

// Login starts the code flow and always asks the provider for credentials.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	h.redirectToProvider(w, r, oauth2.SetAuthURLParam("prompt", "login"))
}

func (h *AuthHandler) redirectToProvider(w http.ResponseWriter, r *http.Request, opt oauth2.AuthCodeOption) {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   int(stateCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.oauth.AuthCodeURL(state, opt), http.StatusFound)
}

func (h *AuthHandler) clearState(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Callback completes the code flow. The state cookie is single use.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	log := logging.Component("auth")

	stateCookie, err := r.Cookie(stateCookieName)
	h.clearState(w)
	state := r.URL.Query().Get("state")
	if err != nil || stateCookie.Value == "" || state == "" || stateCookie.Value != state {
		log.WithField("ip", clientIP(r)).Warn("callback state mismatch")
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid state"))
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Missing authorization code"))
		return
	}

	if h.verifier == nil {
		writeJSON(w, http.StatusServiceUnavailable, models.NewErrorResponse("Login is not configured"))
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), services.DefaultRequestTimeout())
	defer cancel()

	token, err := h.oauth.Exchange(ctx, code)
	if err != nil {
		log.WithError(err).Warn("code exchange failed")
		writeJSON(w, http.StatusBadGateway, models.NewErrorResponse("Failed to complete login"))
		return
	}
	rawIDToken, _ := token.Extra("id_token").(string)
	if rawIDToken == "" {
		log.Warn("token response had no id_token")
		writeJSON(w, http.StatusBadGateway, models.NewErrorResponse("Failed to complete login"))
		return
	}

	profile, err := h.verifier.VerifyIDToken(ctx, rawIDToken)
	if err != nil {
		log.WithError(err).Warn("id token rejected")
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Invalid identity token"))
		return
	}

	user, created, err := h.users.LoginFromProfile(ctx, profile)
	if err != nil {
		writeServiceError(w, "auth", err, "Failed to complete login")
		return
	}
	if !user.IsActive {
		log.WithField("user_id", user.ID).Warn("inactive user tried to log in")
		writeJSON(w, http.StatusForbidden, models.NewErrorResponse("Account is disabled"))
		return
	}
	if !created {
		_ = h.users.RequestRefresh(ctx, user.ID)
	}

	if _, err := h.sessions.Issue(w, user.ID); err != nil {
		writeServiceError(w, "auth", err, "Failed to start session")
		return
	}

	log.WithField("user_id", user.ID).WithField("created", created).Info("login")
	if user.IsAdmin {
		http.Redirect(w, r, "/admin", http.StatusFound)
		return
	}
	http.Redirect(w, r, "/account", http.StatusFound)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Clear(w)
	http.Redirect(w, r, h.cfg.logoutURL(), http.StatusFound)
}

// Me returns the session user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(user))
}
