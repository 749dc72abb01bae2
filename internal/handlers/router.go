package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/civicvoice/backend/internal/middleware"
)

// Handlers is everything NewRouter mounts.
type Handlers struct {
	Auth     *middleware.Auth
	Login    *AuthHandler
	Accounts *AccountHandler
	Comments *CommentHandler
	Events   *EventHandler
	Schools  *SchoolHandler
	Support  *SupportHandler
	Pages    *PageHandler
	Admin    *AdminHandler
	Webhooks *WebhookHandler

	AllowedOrigins []string
}

func NewRouter(h Handlers) chi.Router {
	origins := h.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Get("/join", h.Login.Join)
	r.Get("/login", h.Login.Login)
	r.Get("/callback", h.Login.Callback)
	r.Get("/logout", h.Login.Logout)
	r.Get("/pages/{slug}", h.Pages.GetPage)

	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/sendgrid", h.Webhooks.SendGrid)
		r.Post("/inbound", h.Webhooks.Inbound)
		r.Post("/media", h.Webhooks.Media)
	})

	r.Route("/api", func(r chi.Router) {
		// Public routes; a session, when present, personalizes the response.
		r.Group(func(r chi.Router) {
			r.Use(h.Auth.OptionalUser)

			r.Get("/accounts/public", h.Accounts.PublicListing)
			r.Get("/events", h.Events.ListEvents)
			r.Get("/events/{eventId}", h.Events.GetEvent)
			r.Get("/comments", h.Comments.ListComments)
			r.Get("/comments/{commentId}", h.Comments.GetComment)
			r.Get("/schools", h.Schools.ListSchools)
			r.Post("/support", h.Support.SubmitSupportRequest)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(h.Auth.RequireUser)

			r.Get("/me", h.Login.Me)

			r.Get("/account", h.Accounts.GetAccount)
			r.Put("/account", h.Accounts.UpdateAccount)
			r.Delete("/account", h.Accounts.DeleteAccount)

			r.Post("/events/{eventId}/rsvp", h.Events.RSVP)
			r.Delete("/events/{eventId}/rsvp", h.Events.CancelRSVP)

			r.Post("/comments", h.Comments.CreateComment)
			r.Post("/comments/video", h.Comments.CreateVideoComment)
			r.Delete("/comments/{commentId}", h.Comments.DeleteComment)

			r.Get("/assignments", h.Schools.ListAssignments)
			r.Post("/assignments", h.Schools.CreateAssignment)
			r.Delete("/assignments/{assignmentId}", h.Schools.DeleteAssignment)

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireAdmin)

				r.Get("/accounts", h.Admin.ListAccounts)
				r.Route("/accounts/{accountId}", func(r chi.Router) {
					r.Post("/moderate", h.Admin.ModerateAccount)
					r.Post("/unmoderate", h.Admin.UnmoderateAccount)
					r.Post("/sync", h.Admin.SyncAccount)
					r.Post("/verify", h.Admin.VerifyAccount)
					r.Post("/voter", h.Admin.SetVoter)
				})

				r.Get("/comments", h.Admin.ListComments)
				r.Post("/comments/{commentId}/status", h.Admin.UpdateCommentStatus)

				r.Get("/events", h.Admin.ListEvents)
				r.Post("/events", h.Admin.CreateEvent)
				r.Put("/events/{eventId}", h.Admin.UpdateEvent)
				r.Delete("/events/{eventId}", h.Admin.DeleteEvent)
				r.Get("/events/{eventId}/attendees", h.Admin.ListAttendees)

				r.Put("/users/{userId}", h.Admin.UpdateUser)
				r.Get("/revisions/{kind}/{objectId}", h.Admin.ListRevisions)
			})
		})
	})

	return r
}
