package services

import (
	"bytes"
	"strings"
	"text/template"

	"github.com/pkg/errors"
)

// Email template names.
const (
	EmailWelcome       = "welcome"
	EmailGoodbye       = "goodbye"
	EmailAccountUpdate = "account_update"
	EmailCommentNotify = "comment_notify"
	EmailSupport       = "support"
	EmailInbound       = "inbound"
	EmailOutreach      = "outreach"
	EmailFinal         = "final"
)

type emailTemplate struct {
	subject *template.Template
	body    *template.Template
}

var emailTemplates = map[string]emailTemplate{
	EmailWelcome: mustEmail(
		"Welcome to CivicVoice!",
		`Hi {{.Name}},

Thanks for joining. You can update your account, share a comment and RSVP
to upcoming events at {{.URL}}/account.

If you did not sign up, reply to this email and we will remove you.`,
	),
	EmailGoodbye: mustEmail(
		"CivicVoice - Account Deleted",
		`Your account and everything associated with it has been deleted.

You have also been removed from our mailing list. You are welcome back
any time at {{.URL}}.`,
	),
	EmailAccountUpdate: mustEmail(
		"Account Update: {{.Name}}",
		`{{.Name}} <{{.Email}}> updated their account.

Zone: {{.Zone}}
Role: {{.Role}}
Public: {{.IsPublic}}
Voter: {{.IsVoter}}
{{if .Comments}}
Comments:
{{.Comments}}
{{end}}`,
	),
	EmailCommentNotify: mustEmail(
		"New {{.Kind}} comment from {{.Author}}",
		`A new comment is waiting for review.

Author: {{.Author}}
Kind: {{.Kind}}
{{if .Text}}
{{.Text}}
{{end}}
Review: {{.URL}}/api/admin/comments?status=new`,
	),
	EmailSupport: mustEmail(
		"Support Request: #{{.Ticket}}",
		`Support ticket: {{.Ticket}}
From: {{.Name}} <{{.Email}}>

Message:
{{.Message}}`,
	),
	EmailInbound: mustEmail(
		"Fwd: {{.Subject}}",
		`Forwarded inbound email
From: {{.From}}

{{.Text}}`,
	),
	EmailOutreach: mustEmail(
		"CivicVoice - Final Request",
		`Hi {{.Name}},

We are making one last push before the board votes. If you have not yet
shared a comment, now is the time: {{.URL}}/account.

Public comments carry the most weight. You can change what is shown at any
time from your account page.`,
	),
	EmailFinal: mustEmail(
		"CivicVoice - Shutdown Notice",
		`Hi {{.Name}},

The campaign is over and CivicVoice is shutting down. Thank you for taking
part.

Your account and comments will be deleted when the site closes. Nothing
else is required of you.`,
	),
}

func mustEmail(subject, body string) emailTemplate {
	return emailTemplate{
		subject: template.Must(template.New("subject").Parse(subject)),
		body:    template.Must(template.New("body").Parse(body)),
	}
}

// RenderEmail executes a named template into a Message without recipients.
func RenderEmail(name string, data interface{}) (Message, error) {
	tmpl, ok := emailTemplates[name]
	if !ok {
		return Message{}, errors.Errorf("email: unknown template %q", name)
	}

	var subject, body bytes.Buffer
	if err := tmpl.subject.Execute(&subject, data); err != nil {
		return Message{}, errors.Wrapf(err, "email: render %s subject", name)
	}
	if err := tmpl.body.Execute(&body, data); err != nil {
		return Message{}, errors.Wrapf(err, "email: render %s body", name)
	}
	return Message{
		Subject: strings.TrimSpace(subject.String()),
		Text:    strings.TrimSpace(body.String()),
	}, nil
}
