package services

import (
	"context"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/pkg/errors"
	"google.golang.org/api/option"

	"github.com/civicvoice/backend/internal/models"
)

// IdentityProvider is the management surface of the hosted identity provider.
// The provider owns credentials and profile data; users here mirror it.
// Login tokens are checked separately by a TokenVerifier.
type IdentityProvider interface {
	GetUser(ctx context.Context, subject string) (*models.IdentityProfile, error)
	// CreateUser returns the subject of the new (or already existing) user
	// with this email.
	CreateUser(ctx context.Context, email, name string) (string, error)
	UpdateName(ctx context.Context, subject, name string) error
	DeleteUser(ctx context.Context, subject string) error
}

type FirebaseIdentityConfig struct {
	ProjectID       string
	CredentialsFile string
}

type FirebaseIdentity struct {
	client *auth.Client
}

func NewFirebaseIdentity(ctx context.Context, cfg FirebaseIdentityConfig) (*FirebaseIdentity, error) {
	var opts []option.ClientOption
	if strings.TrimSpace(cfg.CredentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	var fbCfg *firebase.Config
	if strings.TrimSpace(cfg.ProjectID) != "" {
		fbCfg = &firebase.Config{ProjectID: cfg.ProjectID}
	}

	app, err := firebase.NewApp(ctx, fbCfg, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "identity: init app")
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "identity: init auth client")
	}
	return &FirebaseIdentity{client: client}, nil
}

func (f *FirebaseIdentity) GetUser(ctx context.Context, subject string) (*models.IdentityProfile, error) {
	u, err := f.client.GetUser(ctx, subject)
	if err != nil {
		if auth.IsUserNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "identity: get user %s", subject)
	}
	return recordProfile(u), nil
}

func (f *FirebaseIdentity) CreateUser(ctx context.Context, email, name string) (string, error) {
	params := (&auth.UserToCreate{}).Email(email)
	if strings.TrimSpace(name) != "" {
		params = params.DisplayName(name)
	}

	u, err := f.client.CreateUser(ctx, params)
	if err == nil {
		return u.UID, nil
	}
	if auth.IsEmailAlreadyExists(err) {
		existing, lookupErr := f.client.GetUserByEmail(ctx, email)
		if lookupErr != nil {
			return "", errors.Wrapf(lookupErr, "identity: lookup %s", email)
		}
		return existing.UID, nil
	}
	return "", errors.Wrapf(err, "identity: create user %s", email)
}

func (f *FirebaseIdentity) UpdateName(ctx context.Context, subject, name string) error {
	if strings.TrimSpace(name) == "" {
		return nil
	}
	params := (&auth.UserToUpdate{}).DisplayName(name)
	if _, err := f.client.UpdateUser(ctx, subject, params); err != nil {
		return errors.Wrapf(err, "identity: update user %s", subject)
	}
	return nil
}

// DeleteUser removes the provider user. A missing user is not an error.
func (f *FirebaseIdentity) DeleteUser(ctx context.Context, subject string) error {
	if err := f.client.DeleteUser(ctx, subject); err != nil && !auth.IsUserNotFound(err) {
		return errors.Wrapf(err, "identity: delete user %s", subject)
	}
	return nil
}

func recordProfile(u *auth.UserRecord) *models.IdentityProfile {
	return &models.IdentityProfile{
		Subject: u.UID,
		Name:    u.DisplayName,
		Email:   u.Email,
		Picture: u.PhotoURL,
		Phone:   u.PhoneNumber,
		Raw: map[string]interface{}{
			"uid":            u.UID,
			"name":           u.DisplayName,
			"email":          u.Email,
			"picture":        u.PhotoURL,
			"phone_number":   u.PhoneNumber,
			"email_verified": u.EmailVerified,
			"disabled":       u.Disabled,
		},
	}
}
