package services

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/slack-go/slack"
)

// Notifier posts short operational messages for administrators.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

type SlackNotifier struct {
	WebhookURL string
}

func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{WebhookURL: strings.TrimSpace(webhookURL)}
}

func (s *SlackNotifier) Notify(ctx context.Context, text string) error {
	if s == nil || s.WebhookURL == "" {
		return errors.Wrap(ErrNotConfigured, "slack")
	}
	msg := &slack.WebhookMessage{Text: text}
	if err := slack.PostWebhookContext(ctx, s.WebhookURL, msg); err != nil {
		return errors.Wrap(err, "slack: post webhook")
	}
	return nil
}
