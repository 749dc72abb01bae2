package services

import (
	"context"
	"crypto"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"

	"github.com/civicvoice/backend/internal/models"
)

// TokenVerifier checks an id_token returned by the login provider and
// extracts the profile it asserts.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, rawIDToken string) (*models.IdentityProfile, error)
}

// OIDCIssuer returns the issuer URL of a hosted provider domain. The
// trailing slash is part of the issuer the provider puts in `iss`.
func OIDCIssuer(domain string) string {
	domain = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(domain), "https://"), "/")
	return "https://" + domain + "/"
}

// OIDCVerifier validates id_tokens against the issuer's signing keys, the
// issuer URL and the client id audience.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier fetches signing keys from the issuer's JWKS endpoint on
// demand. ctx bounds the lifetime of the key fetches, not a single call.
func NewOIDCVerifier(ctx context.Context, issuer, clientID string) *OIDCVerifier {
	keys := oidc.NewRemoteKeySet(ctx, issuer+".well-known/jwks.json")
	return &OIDCVerifier{verifier: oidc.NewVerifier(issuer, keys, &oidc.Config{ClientID: clientID})}
}

// NewStaticOIDCVerifier trusts only the given public keys.
func NewStaticOIDCVerifier(issuer, clientID string, keys ...crypto.PublicKey) *OIDCVerifier {
	keySet := &oidc.StaticKeySet{PublicKeys: keys}
	return &OIDCVerifier{verifier: oidc.NewVerifier(issuer, keySet, &oidc.Config{ClientID: clientID})}
}

type idTokenClaims struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
	Phone   string `json:"phone_number"`
}

func (v *OIDCVerifier) VerifyIDToken(ctx context.Context, rawIDToken string) (*models.IdentityProfile, error) {
	tok, err := v.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, errors.Wrap(err, "oidc: verify id token")
	}

	var claims idTokenClaims
	if err := tok.Claims(&claims); err != nil {
		return nil, errors.Wrap(err, "oidc: decode claims")
	}
	raw := map[string]interface{}{}
	if err := tok.Claims(&raw); err != nil {
		return nil, errors.Wrap(err, "oidc: decode claims")
	}

	return &models.IdentityProfile{
		Subject: tok.Subject,
		Name:    claims.Name,
		Email:   claims.Email,
		Picture: claims.Picture,
		Phone:   claims.Phone,
		Raw:     raw,
	}, nil
}
