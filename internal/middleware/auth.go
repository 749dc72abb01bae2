package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/civicvoice/backend/internal/logging"
	"github.com/civicvoice/backend/internal/models"
)

type contextKey string

const (
	UserIDKey contextKey = "userID"
	UserKey   contextKey = "user"

	SessionCookieName = "civicvoice_session"
)

var ErrNoSession = errors.New("no session")

// UserLoader resolves the user a session belongs to.
type UserLoader interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// Sessions issues and reads HS256-signed session cookies.
type Sessions struct {
	secret     []byte
	expiration time.Duration
	secure     bool
}

func NewSessions(secret string, expiration time.Duration, secure bool) *Sessions {
	return &Sessions{secret: []byte(secret), expiration: expiration, secure: secure}
}

// Issue signs a session for userID and sets it as an HttpOnly cookie.
func (s *Sessions) Issue(w http.ResponseWriter, userID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     now.Add(s.expiration).Unix(),
		"iat":     now.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.expiration.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}

func (s *Sessions) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Parse returns the user id of the request's session. The cookie wins over a
// Bearer header.
func (s *Sessions) Parse(r *http.Request) (string, error) {
	tokenString := ""
	if c, err := r.Cookie(SessionCookieName); err == nil {
		tokenString = c.Value
	} else if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return "", errors.New("invalid authorization header format")
		}
		tokenString = parts[1]
	}
	if tokenString == "" {
		return "", ErrNoSession
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", errors.New("invalid or expired session")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid session claims")
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", errors.New("invalid user id in session")
	}
	return userID, nil
}

// Auth loads the session user into the request context.
type Auth struct {
	sessions *Sessions
	users    UserLoader
}

func NewAuth(sessions *Sessions, users UserLoader) *Auth {
	return &Auth{sessions: sessions, users: users}
}

func (a *Auth) load(r *http.Request) (*models.User, error) {
	userID, err := a.sessions.Parse(r)
	if err != nil {
		return nil, err
	}
	user, err := a.users.GetByID(r.Context(), userID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, errors.New("user is inactive")
	}
	return user, nil
}

func withUser(r *http.Request, user *models.User) *http.Request {
	return r.WithContext(WithUser(r.Context(), user))
}

// RequireUser rejects requests without a valid session for an active user.
func (a *Auth) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := a.load(r)
		if err != nil {
			if !errors.Is(err, ErrNoSession) {
				logging.Component("auth").WithError(err).WithField("path", r.URL.Path).Debug("session rejected")
			}
			writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
			return
		}
		next.ServeHTTP(w, withUser(r, user))
	})
}

// OptionalUser attaches the session user when there is one and otherwise
// passes the request through anonymously.
func (a *Auth) OptionalUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, err := a.load(r); err == nil {
			r = withUser(r, user)
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin must run after RequireUser.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := GetUser(r.Context())
		if user == nil {
			writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
			return
		}
		if !user.IsAdmin {
			writeJSON(w, http.StatusForbidden, models.NewErrorResponse("Admin access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetUserID extracts user ID from context
func GetUserID(ctx context.Context) string {
	userID, ok := ctx.Value(UserIDKey).(string)
	if !ok {
		return ""
	}
	return userID
}

func GetUser(ctx context.Context) *models.User {
	user, _ := ctx.Value(UserKey).(*models.User)
	return user
}

// WithUser returns ctx carrying user as the authenticated caller.
func WithUser(ctx context.Context, user *models.User) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, user.ID)
	return context.WithValue(ctx, UserKey, user)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
