package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/civicvoice/backend/internal/logging"
	"github.com/civicvoice/backend/internal/models"
	"github.com/civicvoice/backend/internal/services"
	"github.com/civicvoice/backend/internal/storage"
)

const (
	webhookSendGrid = "sendgrid"
	webhookInbound  = "inbound"
	webhookMedia    = "media"

	maxInboundBytes = 10 << 20
)

// undeliverableEvents mark an address as unusable.
var undeliverableEvents = map[string]bool{
	"bounce":     true,
	"dropped":    true,
	"spamreport": true,
}

type WebhookHandler struct {
	docs       storage.Documents
	accounts   *services.AccountService
	moderator  *services.MediaModerator
	mailer     services.Mailer
	adminEmail string
	token      string
}

func NewWebhookHandler(docs storage.Documents, accounts *services.AccountService, moderator *services.MediaModerator, mailer services.Mailer, adminEmail, token string) *WebhookHandler {
	return &WebhookHandler{
		docs:       docs,
		accounts:   accounts,
		moderator:  moderator,
		mailer:     mailer,
		adminEmail: adminEmail,
		token:      token,
	}
}

// authorized checks the optional shared-secret query token.
func (h *WebhookHandler) authorized(w http.ResponseWriter, r *http.Request) bool {
	if h.token == "" {
		return true
	}
	got := r.URL.Query().Get("token")
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) == 1 {
		return true
	}
	logging.Component("webhooks").WithField("path", r.URL.Path).WithField("ip", clientIP(r)).Warn("bad webhook token")
	writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
	return false
}

func (h *WebhookHandler) logEvent(r *http.Request, ev models.WebhookEvent) {
	ev.ReceivedAt = time.Now().UTC()
	if err := h.docs.LogWebhook(r.Context(), ev); err != nil {
		logging.Component("webhooks").WithError(err).WithField("source", ev.Source).Warn("log webhook failed")
	}
}

// SendGrid receives delivery event batches.
func (h *WebhookHandler) SendGrid(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}

	var events []map[string]interface{}
	if !decodeJSON(w, r, &events) {
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), services.DefaultRequestTimeout())
	defer cancel()

	log := logging.Component("webhooks")
	invalid := int64(0)
	for _, payload := range events {
		typ, _ := payload["event"].(string)
		email, _ := payload["email"].(string)
		h.logEvent(r, models.WebhookEvent{Source: webhookSendGrid, Type: typ, Email: email, Payload: payload})

		if !undeliverableEvents[typ] {
			continue
		}
		n, err := h.accounts.MarkEmailInvalid(ctx, email)
		if err != nil {
			writeServiceError(w, "webhooks", err, "Failed to process events")
			return
		}
		log.WithField("event", typ).WithField("email", email).WithField("accounts", n).Info("email marked invalid")
		invalid += n
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(map[string]int64{
		"events":  int64(len(events)),
		"invalid": invalid,
	}))
}

type inboundEmailData struct {
	Subject string
	From    string
	Text    string
}

// Inbound forwards a parsed inbound email to the admin address.
func (h *WebhookHandler) Inbound(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxInboundBytes)
	if err := r.ParseMultipartForm(maxInboundBytes); err != nil && err != http.ErrNotMultipart {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid form"))
		return
	}

	data := inboundEmailData{
		Subject: strings.TrimSpace(r.FormValue("subject")),
		From:    strings.TrimSpace(r.FormValue("from")),
		Text:    strings.TrimSpace(r.FormValue("text")),
	}
	if data.Subject == "" {
		data.Subject = "(no subject)"
	}

	replyTo := ""
	replyName := ""
	if addr, err := mail.ParseAddress(data.From); err == nil {
		replyTo = addr.Address
		replyName = addr.Name
	}

	h.logEvent(r, models.WebhookEvent{
		Source: webhookInbound,
		Type:   "email",
		Email:  replyTo,
		Payload: map[string]interface{}{
			"from":    data.From,
			"subject": data.Subject,
			"text":    data.Text,
		},
	})

	ctx, cancel := contextWithTimeout(r.Context(), services.DefaultRequestTimeout())
	defer cancel()

	msg, err := services.RenderEmail(services.EmailInbound, data)
	if err == nil {
		msg.To = []string{h.adminEmail}
		msg.ReplyTo = replyTo
		msg.ReplyToName = replyName
		err = h.mailer.Send(ctx, msg)
	}
	if err != nil {
		logging.Component("webhooks").WithError(err).WithField("from", data.From).Error("forward inbound email failed")
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Failed to forward email"))
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(nil))
}

// Media handles storage object-finalized notifications for comment uploads.
// Any failure is a 500 so the notification is redelivered.
func (h *WebhookHandler) Media(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid request body"))
		return
	}
	ev, err := services.ParseFinalizeEvent(raw)
	if err != nil || ev.Bucket == "" || ev.Name == "" {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid storage event"))
		return
	}

	payload := map[string]interface{}{}
	_ = json.Unmarshal(raw, &payload)
	h.logEvent(r, models.WebhookEvent{Source: webhookMedia, Type: "finalize", Payload: payload})

	ctx, cancel := contextWithTimeout(r.Context(), services.DefaultAccountTimeout())
	defer cancel()

	outcome, err := h.moderator.HandleFinalize(ctx, ev)
	if err != nil {
		logging.Component("webhooks").WithError(err).WithField("object", ev.Bucket+"/"+ev.Name).Error("media finalize failed")
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Failed to process upload"))
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(map[string]string{"outcome": string(outcome)}))
}
