// Package tasks holds the background job handlers that forward model changes
// to the identity provider, the mailing list and email.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/civicvoice/backend/internal/jobs"
	"github.com/civicvoice/backend/internal/logging"
	"github.com/civicvoice/backend/internal/models"
	"github.com/civicvoice/backend/internal/services"
)

// Deps are the services the handlers need. Integrations may be nil, in which
// case their jobs are logged and dropped.
type Deps struct {
	Users    *services.UserService
	Accounts *services.AccountService
	Comments *services.CommentService
	Voters   *services.VoterService

	Identity    services.IdentityProvider
	MailingList services.MailingList
	Mailer      services.Mailer
	Notifier    services.Notifier

	AdminEmail string
	PublicURL  string
}

type runner struct {
	Deps
}

// Register installs a handler for every job type on w.
func Register(w *jobs.Worker, d Deps) {
	r := &runner{Deps: d}

	handlers := map[string]jobs.HandlerFunc{
		services.JobIdentityUpdate:     r.identityUpdate,
		services.JobIdentityDelete:     r.identityDelete,
		services.JobIdentityCreateUser: r.identityCreateUser,
		services.JobUserRefresh:        r.userRefresh,
		services.JobMailingListUpsert:  r.mailingListUpsert,
		services.JobMailingListDelete:  r.mailingListDelete,
		services.JobEmailWelcome:       r.emailWelcome,
		services.JobEmailGoodbye:       r.emailGoodbye,
		services.JobEmailAccountUpdate: r.emailAccountUpdate,
		services.JobEmailOutreach:      r.emailOutreach,
		services.JobEmailFinal:         r.emailFinal,
		services.JobAdminCommentNotify: r.adminCommentNotify,
		services.JobVoterMatch:         r.voterMatch,
	}
	for typ, h := range handlers {
		w.Handle(typ, settle(typ, h))
	}
}

// settle turns outcomes that a retry cannot fix into success: missing rows
// and unconfigured integrations.
func settle(typ string, h jobs.HandlerFunc) jobs.HandlerFunc {
	return func(ctx context.Context, job jobs.Job) error {
		err := h(ctx, job)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, services.ErrNotFound):
			logging.Component("tasks").WithField("type", typ).WithField("job_id", job.ID).Info("target no longer exists, skipping")
			return nil
		case errors.Is(err, services.ErrNotConfigured):
			logging.Component("tasks").WithField("type", typ).WithError(err).Warn("integration not configured, skipping")
			return nil
		}
		return err
	}
}

func (r *runner) identityUpdate(ctx context.Context, job jobs.Job) error {
	var p services.IdentityUpdatePayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	if r.Identity == nil {
		return services.ErrNotConfigured
	}
	return r.Identity.UpdateName(ctx, p.Subject, p.Name)
}

func (r *runner) identityDelete(ctx context.Context, job jobs.Job) error {
	var p services.IdentityDeletePayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	if r.Identity == nil {
		return services.ErrNotConfigured
	}
	return r.Identity.DeleteUser(ctx, p.Subject)
}

// identityCreateUser creates a provider user for an email and mirrors it
// locally.
func (r *runner) identityCreateUser(ctx context.Context, job jobs.Job) error {
	var p services.IdentityCreatePayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	if r.Identity == nil {
		return services.ErrNotConfigured
	}
	if _, err := r.Users.FindByEmail(ctx, p.Email); err == nil {
		return nil
	}

	subject, err := r.Identity.CreateUser(ctx, p.Email, p.Name)
	if err != nil {
		return err
	}
	_, _, err = r.Users.CreateFromProvider(ctx, subject, p.Name, p.Email)
	return err
}

func (r *runner) userRefresh(ctx context.Context, job jobs.Job) error {
	var p services.UserPayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	if r.Identity == nil {
		return services.ErrNotConfigured
	}
	user, err := r.Users.GetByID(ctx, p.UserID)
	if err != nil {
		return err
	}
	profile, err := r.Identity.GetUser(ctx, user.Username)
	if err != nil {
		return err
	}
	_, err = r.Users.RefreshProfile(ctx, user.ID, profile)
	return err
}

func (r *runner) mailingListUpsert(ctx context.Context, job jobs.Job) error {
	var p services.AccountPayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	if r.MailingList == nil {
		return services.ErrNotConfigured
	}
	acct, err := r.Accounts.Get(ctx, p.AccountID)
	if err != nil {
		return err
	}
	if acct.Email == "" || acct.IsEmailInvalid {
		return nil
	}
	return r.MailingList.Upsert(ctx, services.MemberFromAccount(acct))
}

func (r *runner) mailingListDelete(ctx context.Context, job jobs.Job) error {
	var p services.EmailAddressPayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	if r.MailingList == nil {
		return services.ErrNotConfigured
	}
	return r.MailingList.Delete(ctx, p.Email)
}

type welcomeData struct {
	Name string
	URL  string
}

func (r *runner) emailWelcome(ctx context.Context, job jobs.Job) error {
	var p services.AccountPayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	acct, err := r.Accounts.Get(ctx, p.AccountID)
	if err != nil {
		return err
	}
	if acct.Email == "" {
		return nil
	}
	return r.send(ctx, services.EmailWelcome, welcomeData{Name: greeting(acct.Name), URL: r.PublicURL}, acct.Email)
}

func (r *runner) emailGoodbye(ctx context.Context, job jobs.Job) error {
	var p services.EmailAddressPayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	if p.Email == "" {
		return nil
	}
	return r.send(ctx, services.EmailGoodbye, welcomeData{Name: p.Name, URL: r.PublicURL}, p.Email)
}

func (r *runner) emailOutreach(ctx context.Context, job jobs.Job) error {
	var p services.AccountPayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	acct, err := r.Accounts.Get(ctx, p.AccountID)
	if err != nil {
		return err
	}
	if acct.Email == "" || acct.IsEmailInvalid {
		return nil
	}
	return r.send(ctx, services.EmailOutreach, welcomeData{Name: greeting(acct.Name), URL: r.PublicURL}, acct.Email)
}

func (r *runner) emailFinal(ctx context.Context, job jobs.Job) error {
	var p services.UserPayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	user, err := r.Users.GetByID(ctx, p.UserID)
	if err != nil {
		return err
	}
	if user.Email == "" {
		return nil
	}
	return r.send(ctx, services.EmailFinal, welcomeData{Name: greeting(user.Name), URL: r.PublicURL}, user.Email)
}

func greeting(name string) string {
	if name == "" {
		return "there"
	}
	return name
}

type accountUpdateData struct {
	Name     string
	Email    string
	Zone     string
	Role     string
	IsPublic bool
	IsVoter  bool
	Comments string
}

func (r *runner) emailAccountUpdate(ctx context.Context, job jobs.Job) error {
	var p services.AccountPayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	acct, err := r.Accounts.Get(ctx, p.AccountID)
	if err != nil {
		return err
	}
	data := accountUpdateData{
		Name:     acct.Name,
		Email:    acct.Email,
		Role:     string(acct.Role),
		IsPublic: acct.IsPublic,
		IsVoter:  acct.IsVoter,
		Comments: acct.Comments,
	}
	if acct.Zone != nil {
		data.Zone = acct.Zone.String()
	}
	return r.send(ctx, services.EmailAccountUpdate, data, r.AdminEmail)
}

type commentNotifyData struct {
	Author string
	Kind   models.CommentKind
	Text   string
	URL    string
}

// adminCommentNotify prefers Slack and falls back to email.
func (r *runner) adminCommentNotify(ctx context.Context, job jobs.Job) error {
	var p services.CommentPayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	c, err := r.Comments.Get(ctx, p.CommentID)
	if err != nil {
		return err
	}

	data := commentNotifyData{Kind: c.Kind, Text: c.Text, URL: r.PublicURL}
	if c.Account != nil {
		data.Author = c.Account.Name
	}
	msg, err := services.RenderEmail(services.EmailCommentNotify, data)
	if err != nil {
		return err
	}

	if r.Notifier != nil {
		err := r.Notifier.Notify(ctx, fmt.Sprintf("*%s*\n%s", msg.Subject, msg.Text))
		if err == nil || !errors.Is(err, services.ErrNotConfigured) {
			return err
		}
	}
	return r.send(ctx, services.EmailCommentNotify, data, r.AdminEmail)
}

func (r *runner) voterMatch(ctx context.Context, job jobs.Job) error {
	var p services.AccountPayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	_, err := r.Voters.Verify(ctx, p.AccountID)
	return err
}

func (r *runner) send(ctx context.Context, template string, data interface{}, to string) error {
	if r.Mailer == nil {
		return services.ErrNotConfigured
	}
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("email %s: %w", template, services.ErrNotConfigured)
	}
	msg, err := services.RenderEmail(template, data)
	if err != nil {
		return err
	}
	msg.To = []string{to}
	msg.CustomArgs = map[string]string{"template": template}
	return r.Mailer.Send(ctx, msg)
}
