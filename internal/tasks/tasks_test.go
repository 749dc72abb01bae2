package tasks

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/civicvoice/backend/internal/jobs"
	"github.com/civicvoice/backend/internal/models"
	"github.com/civicvoice/backend/internal/services"
	"github.com/civicvoice/backend/internal/storage"
	"github.com/civicvoice/backend/internal/testutil"
)

type harness struct {
	db       *gorm.DB
	queue    *jobs.MemoryQueue
	worker   *jobs.Worker
	deps     Deps
	identity *testutil.FakeIdentity
	list     *testutil.FakeMailingList
	mailer   *testutil.FakeMailer
	notifier *testutil.FakeNotifier
}

func newHarness(t *testing.T, configure func(*Deps)) *harness {
	t.Helper()

	db := testutil.NewTestDB(t)
	queue := jobs.NewMemoryQueue()
	dispatcher := jobs.NewDispatcher(queue)
	revisions := services.NewRevisions(storage.NewMemoryDocuments())

	h := &harness{
		db:       db,
		queue:    queue,
		worker:   jobs.NewWorker(queue, 1, 3),
		identity: testutil.NewFakeIdentity(),
		list:     testutil.NewFakeMailingList(),
		mailer:   &testutil.FakeMailer{},
		notifier: &testutil.FakeNotifier{},
	}
	h.deps = Deps{
		Users:       services.NewUserService(db, dispatcher, revisions),
		Accounts:    services.NewAccountService(db, dispatcher, revisions),
		Comments:    services.NewCommentService(db, dispatcher, revisions),
		Voters:      services.NewVoterService(db, time.Hour),
		Identity:    h.identity,
		MailingList: h.list,
		Mailer:      h.mailer,
		Notifier:    h.notifier,
		AdminEmail:  "admin@example.com",
		PublicURL:   "https://civic.example",
	}
	if configure != nil {
		configure(&h.deps)
	}
	Register(h.worker, h.deps)
	return h
}

func (h *harness) drain(t *testing.T) {
	t.Helper()
	require.NoError(t, h.worker.Drain(context.Background()))
}

func TestSignupSendsWelcomeAndSubscribes(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, _, err := h.deps.Users.LoginFromProfile(ctx, &models.IdentityProfile{Subject: "fb|1", Name: "Jane Doe", Email: "jane@example.com"})
	require.NoError(t, err)
	h.drain(t)

	sent := h.mailer.Messages()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"jane@example.com"}, sent[0].To)
	assert.Equal(t, "Welcome to CivicVoice!", sent[0].Subject)
	assert.Contains(t, sent[0].Text, "Hi Jane Doe")
	assert.Contains(t, sent[0].Text, "https://civic.example/account")

	member, ok := h.list.Members["jane@example.com"]
	require.True(t, ok)
	assert.Equal(t, "Jane", member.FirstName)
	assert.Equal(t, "Doe", member.LastName)
}

func TestDeleteUserCleansUpExternally(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	user, _, err := h.deps.Users.LoginFromProfile(ctx, &models.IdentityProfile{Subject: "fb|2", Name: "Gone Soon", Email: "gone@example.com"})
	require.NoError(t, err)
	h.drain(t)
	h.mailer.Sent = nil

	require.NoError(t, h.deps.Users.Delete(ctx, user.ID))
	h.drain(t)

	assert.Equal(t, []string{"fb|2"}, h.identity.Deleted)
	assert.Equal(t, []string{"gone@example.com"}, h.list.Deleted)
	assert.NotContains(t, h.list.Members, "gone@example.com")
	sent := h.mailer.Messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "CivicVoice - Account Deleted", sent[0].Subject)
}

func TestAccountUpdateFansOut(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	user, _, err := h.deps.Users.LoginFromProfile(ctx, &models.IdentityProfile{Subject: "fb|3", Name: "Ann Old", Email: "ann@example.com"})
	require.NoError(t, err)
	h.drain(t)
	h.mailer.Sent = nil

	req := &models.UpdateAccountRequest{Name: "Ann New", Email: "ann@example.com", IsPublic: true, Comments: "Hello board"}
	req.Normalize()
	require.Empty(t, req.Validate())
	_, err = h.deps.Accounts.Update(ctx, user.ID, req)
	require.NoError(t, err)
	h.drain(t)

	assert.Equal(t, "Ann New", h.identity.Updated["fb|3"])
	assert.Equal(t, "Ann", h.list.Members["ann@example.com"].FirstName)
	assert.True(t, h.list.Members["ann@example.com"].IsPublic)

	sent := h.mailer.Messages()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"admin@example.com"}, sent[0].To)
	assert.Equal(t, "Account Update: Ann New", sent[0].Subject)
	assert.Contains(t, sent[0].Text, "Hello board")
}

func TestCommentNotifyPrefersSlack(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	user := testutil.CreateUser(t, h.db, "c", "Com Ment", "c@example.com")

	_, err := h.deps.Comments.Create(ctx, user.Account, &models.CreateCommentRequest{Text: "Please fund music"})
	require.NoError(t, err)
	h.drain(t)

	require.Len(t, h.notifier.Texts, 1)
	assert.Contains(t, h.notifier.Texts[0], "New written comment from Com Ment")
	assert.Empty(t, h.mailer.Messages())
}

func TestCommentNotifyFallsBackToEmail(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Notifier = services.NewSlackNotifier("") })
	ctx := context.Background()
	user := testutil.CreateUser(t, h.db, "c", "Com Ment", "c@example.com")

	_, err := h.deps.Comments.Create(ctx, user.Account, &models.CreateCommentRequest{Text: "Please fund music"})
	require.NoError(t, err)
	h.drain(t)

	sent := h.mailer.Messages()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"admin@example.com"}, sent[0].To)
	assert.Contains(t, sent[0].Text, "Please fund music")
}

func TestIdentityCreateUserMirrorsLocally(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	job, err := jobs.NewJob(services.JobIdentityCreateUser, services.IdentityCreatePayload{Email: "vid@example.com", Name: "Vid Eo"})
	require.NoError(t, err)
	assert.True(t, h.worker.Process(ctx, job))

	user, err := h.deps.Users.FindByEmail(ctx, "vid@example.com")
	require.NoError(t, err)
	assert.Equal(t, "fake|vid@example.com", user.Username)
	assert.Equal(t, []string{"vid@example.com"}, h.identity.Created)

	// A second request for the same email is a no-op.
	assert.True(t, h.worker.Process(ctx, job))
	assert.Len(t, h.identity.Created, 1)
}

func TestUserRefresh(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	user, _, err := h.deps.Users.LoginFromProfile(ctx, &models.IdentityProfile{Subject: "fb|r", Name: "Re Fresh", Email: "r@example.com"})
	require.NoError(t, err)
	h.identity.Users["fb|r"] = &models.IdentityProfile{Subject: "fb|r", Name: "Re Freshed", Email: "r@example.com", Picture: "https://img.example/r.png"}

	require.NoError(t, h.deps.Users.RequestRefresh(ctx, user.ID))
	h.drain(t)

	got, err := h.deps.Users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Re Freshed", got.Name)
	assert.Equal(t, "https://img.example/r.png", got.Picture)
}

func TestUnconfiguredIntegrationsAreSkipped(t *testing.T) {
	h := newHarness(t, func(d *Deps) {
		d.MailingList = nil
		d.Mailer = nil
	})
	ctx := context.Background()

	_, _, err := h.deps.Users.LoginFromProfile(ctx, &models.IdentityProfile{Subject: "fb|x", Name: "No Where", Email: "x@example.com"})
	require.NoError(t, err)

	for _, job := range h.queue.Pending() {
		assert.True(t, h.worker.Process(ctx, job), job.Type)
	}
}

func TestFailingIntegrationIsRetried(t *testing.T) {
	h := newHarness(t, nil)
	h.list.Err = errors.New("mailchimp down")
	ctx := context.Background()

	_, _, err := h.deps.Users.LoginFromProfile(ctx, &models.IdentityProfile{Subject: "fb|y", Name: "Re Try", Email: "y@example.com"})
	require.NoError(t, err)
	h.drain(t)

	assert.Empty(t, h.list.Members)
	assert.Len(t, h.mailer.Messages(), 1, "the welcome email is unaffected")
}

func TestVoterMatchJob(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	user, _, err := h.deps.Users.LoginFromProfile(ctx, &models.IdentityProfile{Subject: "fb|v", Name: "Vera Voter", Email: "v@example.com"})
	require.NoError(t, err)
	_, err = h.deps.Voters.Import(ctx, strings.NewReader("voter_id,name,zone\nV1,Vera Voter,2\n"))
	require.NoError(t, err)

	require.NoError(t, h.deps.Accounts.RequestVoterMatch(ctx, user.Account.ID))
	h.drain(t)

	acct, err := h.deps.Accounts.Get(ctx, user.Account.ID)
	require.NoError(t, err)
	assert.True(t, acct.IsVoter)
}

func TestOutreachSkipsInvalidAddresses(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	for _, p := range []models.IdentityProfile{
		{Subject: "fb|o1", Name: "Olive Out", Email: "olive@example.com"},
		{Subject: "fb|o2", Name: "Bo Unce", Email: "bounce@example.com"},
	} {
		p := p
		_, _, err := h.deps.Users.LoginFromProfile(ctx, &p)
		require.NoError(t, err)
	}
	h.drain(t)
	h.mailer.Sent = nil

	_, err := h.deps.Accounts.MarkEmailInvalid(ctx, "bounce@example.com")
	require.NoError(t, err)

	n, err := h.deps.Accounts.QueueOutreach(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	h.drain(t)

	sent := h.mailer.Messages()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"olive@example.com"}, sent[0].To)
	assert.Equal(t, "CivicVoice - Final Request", sent[0].Subject)
	assert.Contains(t, sent[0].Text, "Hi Olive Out")
	assert.Contains(t, sent[0].Text, "https://civic.example/account")
}

func TestShutdownNoticeGoesToActiveUsers(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, _, err := h.deps.Users.LoginFromProfile(ctx, &models.IdentityProfile{Subject: "fb|f1", Name: "Fin Al", Email: "fin@example.com"})
	require.NoError(t, err)
	gone, _, err := h.deps.Users.LoginFromProfile(ctx, &models.IdentityProfile{Subject: "fb|f2", Name: "In Active", Email: "inactive@example.com"})
	require.NoError(t, err)
	inactive := false
	_, err = h.deps.Users.AdminUpdate(ctx, "", gone.ID, &models.UpdateUserRequest{IsActive: &inactive})
	require.NoError(t, err)
	h.drain(t)
	h.mailer.Sent = nil

	n, err := h.deps.Users.QueueShutdownNotice(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	h.drain(t)

	sent := h.mailer.Messages()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"fin@example.com"}, sent[0].To)
	assert.Equal(t, "CivicVoice - Shutdown Notice", sent[0].Subject)
}

func TestOutreachForDeletedAccountIsSkipped(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	job, err := jobs.NewJob(services.JobEmailOutreach, services.AccountPayload{AccountID: "missing"})
	require.NoError(t, err)
	assert.True(t, h.worker.Process(ctx, job))
	assert.Empty(t, h.mailer.Messages())
}
