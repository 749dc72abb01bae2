package services

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/civicvoice/backend/internal/models"
)

// Member is the mailing-list view of an account.
type Member struct {
	Email       string
	FirstName   string
	LastName    string
	Zone        string
	Role        string
	IsPublic    bool
	IsVoter     bool
	IsModerated bool
}

func MemberFromAccount(a *models.Account) Member {
	first, last := a.FirstLastName()
	m := Member{
		Email:       a.Email,
		FirstName:   first,
		LastName:    last,
		Role:        string(a.Role),
		IsPublic:    a.IsPublic,
		IsVoter:     a.IsVoter,
		IsModerated: a.IsModerated,
	}
	if a.Zone != nil {
		m.Zone = a.Zone.String()
	}
	return m
}

type MailingList interface {
	Upsert(ctx context.Context, m Member) error
	Delete(ctx context.Context, email string) error
}

// MailchimpClient talks to the Mailchimp Marketing v3 API. Members are keyed
// by the MD5 of the lowercased email.
type MailchimpClient struct {
	APIKey     string
	ListID     string
	BaseURL    string
	HTTPClient *http.Client
}

func NewMailchimpClient(apiKey, listID string) *MailchimpClient {
	apiKey = strings.TrimSpace(apiKey)
	dc := "us1"
	if i := strings.LastIndex(apiKey, "-"); i >= 0 && i < len(apiKey)-1 {
		dc = apiKey[i+1:]
	}
	return &MailchimpClient{
		APIKey:  apiKey,
		ListID:  strings.TrimSpace(listID),
		BaseURL: fmt.Sprintf("https://%s.api.mailchimp.com/3.0", dc),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func SubscriberHash(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}

type mailchimpMember struct {
	EmailAddress string            `json:"email_address"`
	StatusIfNew  string            `json:"status_if_new"`
	MergeFields  map[string]string `json:"merge_fields"`
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func (c *MailchimpClient) Upsert(ctx context.Context, m Member) error {
	if strings.TrimSpace(m.Email) == "" {
		return errors.New("mailchimp: member has no email")
	}
	body := mailchimpMember{
		EmailAddress: strings.TrimSpace(m.Email),
		StatusIfNew:  "subscribed",
		MergeFields: map[string]string{
			"FNAME":     m.FirstName,
			"LNAME":     m.LastName,
			"ZONE":      m.Zone,
			"ROLE":      m.Role,
			"PUBLIC":    yesNo(m.IsPublic),
			"VOTER":     yesNo(m.IsVoter),
			"MODERATED": yesNo(m.IsModerated),
		},
	}
	path := fmt.Sprintf("/lists/%s/members/%s", c.ListID, SubscriberHash(m.Email))
	return c.do(ctx, http.MethodPut, path, body)
}

// Delete permanently removes the member. A missing member is not an error.
func (c *MailchimpClient) Delete(ctx context.Context, email string) error {
	if strings.TrimSpace(email) == "" {
		return nil
	}
	path := fmt.Sprintf("/lists/%s/members/%s/actions/delete-permanent", c.ListID, SubscriberHash(email))
	err := c.do(ctx, http.MethodPost, path, nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func (c *MailchimpClient) do(ctx context.Context, method, path string, payload interface{}) error {
	if c == nil || c.APIKey == "" || c.ListID == "" {
		return errors.Wrap(ErrNotConfigured, "mailchimp")
	}

	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, &body)
	if err != nil {
		return err
	}
	req.SetBasicAuth("civicvoice", c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "mailchimp: %s %s", method, path)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errors.Wrapf(ErrNotFound, "mailchimp: %s %s", method, path)
	case resp.StatusCode >= 300:
		var problem struct {
			Title  string `json:"title"`
			Detail string `json:"detail"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&problem)
		return errors.Errorf("mailchimp: %s %s http %d: %s %s", method, path, resp.StatusCode, problem.Title, problem.Detail)
	}
	return nil
}
