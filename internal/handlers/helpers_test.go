package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/civicvoice/backend/internal/handlers"
	"github.com/civicvoice/backend/internal/jobs"
	"github.com/civicvoice/backend/internal/middleware"
	"github.com/civicvoice/backend/internal/models"
	"github.com/civicvoice/backend/internal/pages"
	"github.com/civicvoice/backend/internal/services"
	"github.com/civicvoice/backend/internal/storage"
	"github.com/civicvoice/backend/internal/testutil"
)

const (
	testAdminEmail   = "admin@example.com"
	testSupportEmail = "support@example.com"
	testWebhookToken = "hook-secret"
	testCaptchaToken = "human"
)

type env struct {
	t        *testing.T
	db       *gorm.DB
	queue    *jobs.MemoryQueue
	docs     *storage.MemoryDocuments
	sessions *middleware.Sessions
	router   http.Handler

	users       *services.UserService
	accounts    *services.AccountService
	comments    *services.CommentService
	events      *services.EventService
	schools     *services.SchoolService
	assignments *services.AssignmentService

	issuer     *testutil.TokenIssuer
	tokensMu   sync.Mutex
	tokens     map[string]string // id_token by authorization code
	mailer     *testutil.FakeMailer
	media      *testutil.FakeMedia
	classifier *testutil.FakeClassifier
}

// newEnv wires every handler against an in-memory database and fakes. The
// provider's token endpoint answers with the id_token registered for the
// authorization code, signed by a test issuer for idp.example.com.
func newEnv(t *testing.T) *env {
	t.Helper()

	db := testutil.NewTestDB(t)
	queue := jobs.NewMemoryQueue()
	dispatcher := jobs.NewDispatcher(queue)
	docs := storage.NewMemoryDocuments()
	revisions := services.NewRevisions(docs)

	e := &env{
		t:          t,
		db:         db,
		queue:      queue,
		docs:       docs,
		sessions:   middleware.NewSessions("test-secret", time.Hour, false),
		tokens:     map[string]string{},
		mailer:     &testutil.FakeMailer{},
		media:      testutil.NewFakeMedia(),
		classifier: &testutil.FakeClassifier{},
	}
	e.users = services.NewUserService(db, dispatcher, revisions)
	e.accounts = services.NewAccountService(db, dispatcher, revisions)
	e.comments = services.NewCommentService(db, dispatcher, revisions)
	e.events = services.NewEventService(db, revisions)
	e.schools = services.NewSchoolService(db)
	e.assignments = services.NewAssignmentService(db)

	authCfg := handlers.AuthConfig{
		Domain:       "idp.example.com",
		ClientID:     "client",
		ClientSecret: "secret",
		PublicURL:    "https://civic.example",
	}
	e.issuer = testutil.NewTokenIssuer(t, services.OIDCIssuer(authCfg.Domain), authCfg.ClientID)

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		e.tokensMu.Lock()
		idToken, ok := e.tokens[r.PostForm.Get("code")]
		e.tokensMu.Unlock()
		if !ok {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "access",
			"token_type":   "Bearer",
			"id_token":     idToken,
		})
	}))
	t.Cleanup(tokenServer.Close)
	oauth := authCfg.OAuthConfig()
	oauth.Endpoint.TokenURL = tokenServer.URL

	moderator := services.NewMediaModerator(e.media, e.classifier, e.comments, e.accounts, e.users, dispatcher)

	e.router = handlers.NewRouter(handlers.Handlers{
		Auth:     middleware.NewAuth(e.sessions, e.users),
		Login:    handlers.NewAuthHandler(authCfg, oauth, e.issuer.Verifier(), e.users, e.sessions),
		Accounts: handlers.NewAccountHandler(e.accounts, e.users, e.sessions),
		Comments: handlers.NewCommentHandler(e.comments),
		Events:   handlers.NewEventHandler(e.events),
		Schools:  handlers.NewSchoolHandler(e.schools, e.assignments),
		Support:  handlers.NewSupportHandler(services.NewSupportService(&testutil.FakeCaptcha{Token: testCaptchaToken}, e.mailer, testSupportEmail)),
		Pages:    handlers.NewPageHandler(pages.NewRenderer()),
		Admin:    handlers.NewAdminHandler(e.users, e.accounts, e.comments, e.events, revisions),
		Webhooks: handlers.NewWebhookHandler(docs, e.accounts, moderator, e.mailer, testAdminEmail, testWebhookToken),
	})
	return e
}

// grant makes the token endpoint answer code with idToken.
func (e *env) grant(code, idToken string) {
	e.tokensMu.Lock()
	defer e.tokensMu.Unlock()
	e.tokens[code] = idToken
}

// grantProfile registers a valid id_token for p under code.
func (e *env) grantProfile(code string, p *models.IdentityProfile) {
	e.grant(code, e.issuer.Sign(e.t, p))
}

func (e *env) createUser(username, name, email string) *models.User {
	return testutil.CreateUser(e.t, e.db, username, name, email)
}

func (e *env) createAdmin() *models.User {
	u := e.createUser("admin", "Ada Admin", testAdminEmail)
	require.NoError(e.t, e.db.Model(u).Update("is_admin", true).Error)
	u.IsAdmin = true
	return u
}

func (e *env) sessionCookie(user *models.User) *http.Cookie {
	rec := httptest.NewRecorder()
	_, err := e.sessions.Issue(rec, user.ID)
	require.NoError(e.t, err)
	return rec.Result().Cookies()[0]
}

// do sends a request as user (anonymous when nil). body is JSON-encoded
// unless it is already an io.Reader.
func (e *env) do(method, path string, body interface{}, user *models.User) *httptest.ResponseRecorder {
	e.t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case io.Reader:
		reader = b
	default:
		raw, err := json.Marshal(b)
		require.NoError(e.t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != nil {
		req.AddCookie(e.sessionCookie(user))
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool              `json:"success"`
	Data    json.RawMessage   `json:"data"`
	Error   string            `json:"error"`
	Errors  map[string]string `json:"errors"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	if data != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
