package app

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicvoice/backend/internal/config"
	"github.com/civicvoice/backend/internal/jobs"
	"github.com/civicvoice/backend/internal/models"
	"github.com/civicvoice/backend/internal/services"
	"github.com/civicvoice/backend/internal/storage"
)

func testConfig() *config.Config {
	return &config.Config{
		DatabaseURL:     "sqlite:file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=1",
		AdminEmail:      "admin@example.com",
		PublicURL:       "https://civic.example",
		JobsWorkers:     1,
		JobsMaxAttempts: 2,
	}
}

func TestNewWithoutOptionalStores(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig())
	require.NoError(t, err)
	defer a.Close(ctx)

	require.NoError(t, storage.Migrate(a.DB))
	assert.IsType(t, &storage.MemoryDocuments{}, a.Docs)
	assert.IsType(t, &jobs.MemoryQueue{}, a.Queue)
	assert.Nil(t, a.Identity)
	assert.Nil(t, a.Verifier)
	assert.NotNil(t, a.Support)
	assert.Nil(t, a.Media)
	assert.Nil(t, a.Classifier)
}

func TestNewBuildsVerifierForAuthDomain(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.AuthDomain = "civicvoice.us.auth0.com"
	cfg.AuthClientID = "client"
	a, err := New(ctx, cfg)
	require.NoError(t, err)
	defer a.Close(ctx)

	assert.IsType(t, &services.OIDCVerifier{}, a.Verifier)
}

// Without credentials every integration job settles instead of retrying.
func TestWorkerSettlesUnconfiguredIntegrations(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig())
	require.NoError(t, err)
	defer a.Close(ctx)
	require.NoError(t, storage.Migrate(a.DB))

	_, created, err := a.Users.LoginFromProfile(ctx, &models.IdentityProfile{Subject: "s", Name: "Sam Ple", Email: "sam@example.com"})
	require.NoError(t, err)
	require.True(t, created)

	q := a.Queue.(*jobs.MemoryQueue)
	assert.Equal(t, []string{services.JobEmailWelcome, services.JobMailingListUpsert}, q.PendingTypes())

	w := a.NewWorker()
	for _, job := range q.Pending() {
		assert.True(t, w.Process(ctx, job), job.Type)
	}
}
