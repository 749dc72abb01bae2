package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/civicvoice/backend/internal/logging"
)

// CaptchaVerifier checks a client-side challenge token. It returns
// (ok, reason, error); reason explains a failed but well-formed check.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, string, error)
}

const (
	recaptchaEndpoint = "https://www.google.com/recaptcha/api/siteverify"
	recaptchaTimeout  = 8 * time.Second
)

// RecaptchaVerifier verifies reCAPTCHA v2 checkbox tokens against siteverify.
// When Hostname is set, tokens solved on any other host are rejected.
type RecaptchaVerifier struct {
	Secret   string
	Hostname string
	Endpoint string
	client   *http.Client
}

type siteverifyResult struct {
	Success    bool     `json:"success"`
	Hostname   string   `json:"hostname"`
	ErrorCodes []string `json:"error-codes"`
}

func NewRecaptchaVerifier(secret string) *RecaptchaVerifier {
	return &RecaptchaVerifier{
		Secret:   strings.TrimSpace(secret),
		Endpoint: recaptchaEndpoint,
		client:   &http.Client{Timeout: recaptchaTimeout},
	}
}

func (v *RecaptchaVerifier) Verify(ctx context.Context, token, remoteIP string) (bool, string, error) {
	switch {
	case v == nil:
		return false, "verifier_not_configured", nil
	case v.Secret == "":
		return false, "missing_secret", nil
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return false, "missing_token", nil
	}

	result, err := v.siteverify(ctx, token, strings.TrimSpace(remoteIP))
	if err != nil {
		return false, "", err
	}

	if !result.Success {
		reason := "verification_failed"
		if len(result.ErrorCodes) > 0 {
			reason = strings.Join(result.ErrorCodes, ",")
		}
		logging.Component("recaptcha").WithField("reason", reason).Info("challenge rejected")
		return false, reason, nil
	}
	if v.Hostname != "" && !strings.EqualFold(result.Hostname, v.Hostname) {
		logging.Component("recaptcha").WithField("hostname", result.Hostname).Warn("challenge solved on another host")
		return false, "hostname_mismatch", nil
	}
	return true, "", nil
}

func (v *RecaptchaVerifier) siteverify(ctx context.Context, token, remoteIP string) (*siteverifyResult, error) {
	form := url.Values{"secret": {v.Secret}, "response": {token}}
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "recaptcha: build request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := v.client
	if client == nil {
		client = &http.Client{Timeout: recaptchaTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "recaptcha: verify")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("recaptcha: verify http %d", resp.StatusCode)
	}

	var out siteverifyResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "recaptcha: decode")
	}
	return &out, nil
}
