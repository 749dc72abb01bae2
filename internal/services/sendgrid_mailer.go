package services

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Message is one plain-text transactional email.
type Message struct {
	To          []string
	Subject     string
	Text        string
	ReplyTo     string
	ReplyToName string
	CustomArgs  map[string]string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type SendGridMailer struct {
	APIKey     string
	FromEmail  string
	FromName   string
	HTTPClient *http.Client
	Endpoint   string
}

func NewSendGridMailer(apiKey, fromEmail, fromName string) *SendGridMailer {
	return &SendGridMailer{
		APIKey:    strings.TrimSpace(apiKey),
		FromEmail: strings.TrimSpace(fromEmail),
		FromName:  strings.TrimSpace(fromName),
		Endpoint:  "https://api.sendgrid.com/v3/mail/send",
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type sendGridEmailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridPersonalization struct {
	To         []sendGridEmailAddress `json:"to"`
	Subject    string                 `json:"subject"`
	CustomArgs map[string]string      `json:"custom_args,omitempty"`
}

type sendGridMailSendRequest struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridEmailAddress      `json:"from"`
	ReplyTo          *sendGridEmailAddress     `json:"reply_to,omitempty"`
	Content          []sendGridContent         `json:"content"`
}

func (m *SendGridMailer) Send(ctx context.Context, msg Message) error {
	if m == nil || m.APIKey == "" {
		return errors.Wrap(ErrNotConfigured, "sendgrid: missing SENDGRID_API_KEY")
	}
	if m.FromEmail == "" {
		return errors.Wrap(ErrNotConfigured, "sendgrid: missing FROM_EMAIL")
	}

	to := make([]sendGridEmailAddress, 0, len(msg.To))
	for _, addr := range msg.To {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, sendGridEmailAddress{Email: addr})
		}
	}
	if len(to) == 0 {
		return errors.New("sendgrid: message has no recipients")
	}

	body := strings.TrimSpace(msg.Text)
	if body == "" {
		body = "(empty message)"
	}

	reqBody := sendGridMailSendRequest{
		Personalizations: []sendGridPersonalization{
			{
				To:         to,
				Subject:    msg.Subject,
				CustomArgs: msg.CustomArgs,
			},
		},
		From: sendGridEmailAddress{
			Email: m.FromEmail,
			Name:  m.FromName,
		},
		Content: []sendGridContent{
			{Type: "text/plain", Value: body + "\n"},
		},
	}
	if strings.TrimSpace(msg.ReplyTo) != "" {
		reqBody.ReplyTo = &sendGridEmailAddress{
			Email: strings.TrimSpace(msg.ReplyTo),
			Name:  strings.TrimSpace(msg.ReplyToName),
		}
	}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.APIKey)
	req.Header.Set("Content-Type", "application/json")

	client := m.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrap(err, "sendgrid: mail send")
	}
	defer resp.Body.Close()

	// SendGrid returns 202 Accepted on success.
	if resp.StatusCode != http.StatusAccepted {
		return errors.Errorf("sendgrid: mail send http %d", resp.StatusCode)
	}
	return nil
}
