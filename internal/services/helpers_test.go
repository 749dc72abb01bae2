package services_test

import (
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/civicvoice/backend/internal/jobs"
	"github.com/civicvoice/backend/internal/services"
	"github.com/civicvoice/backend/internal/storage"
	"github.com/civicvoice/backend/internal/testutil"
)

type env struct {
	db        *gorm.DB
	queue     *jobs.MemoryQueue
	docs      *storage.MemoryDocuments
	users     *services.UserService
	accounts  *services.AccountService
	comments  *services.CommentService
	events    *services.EventService
	schools   *services.SchoolService
	assigns   *services.AssignmentService
	voters    *services.VoterService
	revisions *services.Revisions
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db := testutil.NewTestDB(t)
	queue := jobs.NewMemoryQueue()
	dispatcher := jobs.NewDispatcher(queue)
	docs := storage.NewMemoryDocuments()
	revisions := services.NewRevisions(docs)

	return &env{
		db:        db,
		queue:     queue,
		docs:      docs,
		revisions: revisions,
		users:     services.NewUserService(db, dispatcher, revisions),
		accounts:  services.NewAccountService(db, dispatcher, revisions),
		comments:  services.NewCommentService(db, dispatcher, revisions),
		events:    services.NewEventService(db, revisions),
		schools:   services.NewSchoolService(db),
		assigns:   services.NewAssignmentService(db),
		voters:    services.NewVoterService(db, time.Hour),
	}
}
