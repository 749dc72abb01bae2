package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"github.com/civicvoice/backend/internal/logging"
	"github.com/civicvoice/backend/internal/models"
)

var ErrCaptchaFailed = errors.New("captcha verification failed")

// SupportService mails visitor support requests to the support inbox.
type SupportService struct {
	captcha CaptchaVerifier
	mailer  Mailer
	to      string
	now     func() time.Time
}

func NewSupportService(captcha CaptchaVerifier, mailer Mailer, to string) *SupportService {
	return &SupportService{captcha: captcha, mailer: mailer, to: to, now: time.Now}
}

type supportEmailData struct {
	Ticket  string
	Name    string
	Email   string
	Message string
}

// Submit checks the captcha, then mails a normalized, validated request and
// returns its ticket.
func (s *SupportService) Submit(ctx context.Context, req *models.SupportRequest, remoteIP string) (*models.SupportTicket, error) {
	log := logging.Component("support").WithField("ip", remoteIP)

	if s.captcha == nil || s.mailer == nil {
		return nil, ErrNotConfigured
	}

	ok, reason, err := s.captcha.Verify(ctx, req.RecaptchaToken, remoteIP)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "support: verify captcha")
	}
	if !ok {
		log.WithField("reason", reason).Warn("recaptcha failed")
		return nil, ErrCaptchaFailed
	}

	ticket := s.ticket()
	msg, err := RenderEmail(EmailSupport, supportEmailData{
		Ticket:  ticket,
		Name:    req.Name,
		Email:   req.Email,
		Message: req.Message,
	})
	if err != nil {
		return nil, err
	}
	msg.To = []string{s.to}
	msg.ReplyTo = req.Email
	msg.ReplyToName = req.Name
	msg.CustomArgs = map[string]string{"ticket": ticket}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return nil, pkgerrors.Wrapf(err, "support: send ticket %s", ticket)
	}

	log.WithField("ticket", ticket).Info("support request sent")
	return &models.SupportTicket{Ticket: ticket}, nil
}

// ticket looks like CV-20260131-032508-A1B2C3D4.
func (s *SupportService) ticket() string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "CV-" + s.now().UTC().Format("20060102-150405") + "-" + id[:8]
}
