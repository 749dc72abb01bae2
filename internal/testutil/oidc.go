package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/civicvoice/backend/internal/models"
	"github.com/civicvoice/backend/internal/services"
)

var (
	signingKeyOnce sync.Once
	signingKey     *rsa.PrivateKey
	signingKeyErr  error
)

func sharedSigningKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	signingKeyOnce.Do(func() {
		signingKey, signingKeyErr = rsa.GenerateKey(rand.Reader, 2048)
	})
	if signingKeyErr != nil {
		t.Fatalf("failed to generate signing key: %v", signingKeyErr)
	}
	return signingKey
}

// TokenIssuer signs RS256 id_tokens the way a hosted OIDC provider does.
type TokenIssuer struct {
	Issuer   string
	ClientID string
	key      *rsa.PrivateKey
}

func NewTokenIssuer(t *testing.T, issuer, clientID string) *TokenIssuer {
	return &TokenIssuer{Issuer: issuer, ClientID: clientID, key: sharedSigningKey(t)}
}

// Verifier trusts only this issuer's key.
func (i *TokenIssuer) Verifier() *services.OIDCVerifier {
	return services.NewStaticOIDCVerifier(i.Issuer, i.ClientID, &i.key.PublicKey)
}

// Claims returns valid claims for p; tests tweak them before SignClaims.
func (i *TokenIssuer) Claims(p *models.IdentityProfile) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":   i.Issuer,
		"aud":   i.ClientID,
		"sub":   p.Subject,
		"name":  p.Name,
		"email": p.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
}

func (i *TokenIssuer) Sign(t *testing.T, p *models.IdentityProfile) string {
	return i.SignClaims(t, i.Claims(p))
}

func (i *TokenIssuer) SignClaims(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(i.key)
	if err != nil {
		t.Fatalf("failed to sign id token: %v", err)
	}
	return raw
}

// SignForged signs claims with a key the verifier does not trust.
func (i *TokenIssuer) SignForged(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign id token: %v", err)
	}
	return raw
}
