package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicvoice/backend/internal/models"
	"github.com/civicvoice/backend/internal/services"
	"github.com/civicvoice/backend/internal/testutil"
)

func TestOIDCIssuer(t *testing.T) {
	for _, domain := range []string{"civicvoice.us.auth0.com", "https://civicvoice.us.auth0.com/", " civicvoice.us.auth0.com/ "} {
		assert.Equal(t, "https://civicvoice.us.auth0.com/", services.OIDCIssuer(domain), domain)
	}
}

func TestOIDCVerifier(t *testing.T) {
	issuer := testutil.NewTokenIssuer(t, "https://login.civic.example/", "civic-client")
	verifier := issuer.Verifier()
	ctx := context.Background()
	jane := &models.IdentityProfile{Subject: "auth0|jane", Name: "Jane Doe", Email: "jane@example.com"}

	profile, err := verifier.VerifyIDToken(ctx, issuer.Sign(t, jane))
	require.NoError(t, err)
	assert.Equal(t, "auth0|jane", profile.Subject)
	assert.Equal(t, "Jane Doe", profile.Name)
	assert.Equal(t, "jane@example.com", profile.Email)
	assert.Equal(t, "https://login.civic.example/", profile.Raw["iss"])

	tests := []struct {
		name  string
		token func() string
	}{
		{"other issuer", func() string {
			c := issuer.Claims(jane)
			c["iss"] = "https://securetoken.google.com/civicvoice"
			return issuer.SignClaims(t, c)
		}},
		{"other audience", func() string {
			c := issuer.Claims(jane)
			c["aud"] = "someone-else"
			return issuer.SignClaims(t, c)
		}},
		{"expired", func() string {
			c := issuer.Claims(jane)
			c["exp"] = time.Now().Add(-time.Hour).Unix()
			return issuer.SignClaims(t, c)
		}},
		{"untrusted key", func() string { return issuer.SignForged(t, issuer.Claims(jane)) }},
		{"garbage", func() string { return "not-a-jwt" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.VerifyIDToken(ctx, tt.token())
			assert.Error(t, err)
		})
	}
}
