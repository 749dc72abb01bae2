package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicvoice/backend/internal/models"
	"github.com/civicvoice/backend/internal/services"
)

func TestSendGridMailerSend(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	m := services.NewSendGridMailer("key", "from@example.com", "CivicVoice")
	m.Endpoint = srv.URL

	err := m.Send(context.Background(), services.Message{
		To:      []string{"to@example.com", " "},
		Subject: "Hello",
		Text:    "Body",
		ReplyTo: "reply@example.com",
	})
	require.NoError(t, err)

	personalizations := got["personalizations"].([]interface{})
	first := personalizations[0].(map[string]interface{})
	assert.Equal(t, "Hello", first["subject"])
	assert.Len(t, first["to"], 1)
	assert.Equal(t, "reply@example.com", got["reply_to"].(map[string]interface{})["email"])
}

func TestSendGridMailerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	unconfigured := services.NewSendGridMailer("", "from@example.com", "")
	err := unconfigured.Send(context.Background(), services.Message{To: []string{"a@example.com"}})
	assert.True(t, errors.Is(err, services.ErrNotConfigured))

	m := services.NewSendGridMailer("key", "from@example.com", "")
	m.Endpoint = srv.URL
	err = m.Send(context.Background(), services.Message{To: []string{"a@example.com"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestMailchimpUpsertAndDelete(t *testing.T) {
	type call struct {
		Method string
		Path   string
		Body   string
	}
	var calls []call
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.NotEmpty(t, user)
		assert.Equal(t, "abc-us5", pass)
		body, _ := io.ReadAll(r.Body)
		calls = append(calls, call{Method: r.Method, Path: r.URL.Path, Body: strings.TrimSpace(string(body))})
		if strings.HasSuffix(r.URL.Path, "delete-permanent") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := services.NewMailchimpClient("abc-us5", "list1")
	assert.Equal(t, "https://us5.api.mailchimp.com/3.0", c.BaseURL)
	c.BaseURL = srv.URL

	zone := models.Zone4
	acct := &models.Account{Name: "Jane Q Doe", Email: "Jane@Example.com", Zone: &zone, Role: models.RoleParent, IsVoter: true}
	require.NoError(t, c.Upsert(context.Background(), services.MemberFromAccount(acct)))
	require.NoError(t, c.Delete(context.Background(), "jane@example.com"), "missing members are not an error")

	hash := services.SubscriberHash("jane@example.com")
	assert.Equal(t, services.SubscriberHash(" JANE@example.com "), hash)
	require.Len(t, calls, 2)
	assert.Equal(t, http.MethodPut, calls[0].Method)
	assert.Equal(t, "/lists/list1/members/"+hash, calls[0].Path)
	assert.Equal(t, "/lists/list1/members/"+hash+"/actions/delete-permanent", calls[1].Path)

	var member struct {
		EmailAddress string            `json:"email_address"`
		StatusIfNew  string            `json:"status_if_new"`
		MergeFields  map[string]string `json:"merge_fields"`
	}
	require.NoError(t, json.Unmarshal([]byte(calls[0].Body), &member))
	want := map[string]string{
		"FNAME":     "Jane",
		"LNAME":     "Q Doe",
		"ZONE":      "Zone 4",
		"ROLE":      "parent",
		"PUBLIC":    "No",
		"VOTER":     "Yes",
		"MODERATED": "No",
	}
	if diff := cmp.Diff(want, member.MergeFields); diff != "" {
		t.Errorf("merge fields mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "subscribed", member.StatusIfNew)
}

func TestSlackNotifier(t *testing.T) {
	var text string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Text string `json:"text"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		text = body.Text
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, services.NewSlackNotifier(srv.URL).Notify(context.Background(), "new comment"))
	assert.Equal(t, "new comment", text)

	err := services.NewSlackNotifier("").Notify(context.Background(), "x")
	assert.True(t, errors.Is(err, services.ErrNotConfigured))
}

func TestRecaptchaVerifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		switch r.PostForm.Get("response") {
		case "good":
			_, _ = w.Write([]byte(`{"success":true,"hostname":"civic.example"}`))
			return
		case "elsewhere":
			_, _ = w.Write([]byte(`{"success":true,"hostname":"evil.example"}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":false,"error-codes":["invalid-input-response"]}`))
	}))
	defer srv.Close()

	v := services.NewRecaptchaVerifier("secret")
	v.Endpoint = srv.URL

	ok, _, err := v.Verify(context.Background(), "good", "127.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, reason, err := v.Verify(context.Background(), "bad", "")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "invalid-input-response", reason)

	ok, reason, _ = v.Verify(context.Background(), "", "")
	assert.False(t, ok)
	assert.Equal(t, "missing_token", reason)

	ok, _, err = v.Verify(context.Background(), "elsewhere", "")
	require.NoError(t, err)
	assert.True(t, ok)

	v.Hostname = "civic.example"
	ok, reason, err = v.Verify(context.Background(), "elsewhere", "")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "hostname_mismatch", reason)

	ok, _, err = v.Verify(context.Background(), "good", "")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, reason, _ = services.NewRecaptchaVerifier("").Verify(context.Background(), "good", "")
	assert.False(t, ok)
	assert.Equal(t, "missing_secret", reason)
}

func TestRenderEmail(t *testing.T) {
	msg, err := services.RenderEmail(services.EmailSupport, map[string]string{
		"Ticket":  "CV-1",
		"Name":    "Sam",
		"Email":   "sam@example.com",
		"Message": "Help",
	})
	require.NoError(t, err)
	assert.Equal(t, "Support Request: #CV-1", msg.Subject)
	assert.Contains(t, msg.Text, "From: Sam <sam@example.com>")

	_, err = services.RenderEmail("nope", nil)
	assert.Error(t, err)
}

func TestSafeSearchIsUnsafe(t *testing.T) {
	cases := []struct {
		result services.SafeSearchResult
		unsafe bool
	}{
		{services.SafeSearchResult{Adult: "VERY_UNLIKELY"}, false},
		{services.SafeSearchResult{Racy: "POSSIBLE", Medical: "VERY_LIKELY"}, false},
		{services.SafeSearchResult{Violence: "LIKELY"}, true},
		{services.SafeSearchResult{Racy: "VERY_LIKELY"}, true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.unsafe, tc.result.IsUnsafe(), "%+v", tc.result)
	}
}
