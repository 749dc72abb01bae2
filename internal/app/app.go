// Package app builds the service graph shared by the server, the job worker
// and the admin CLI.
package app

import (
	"context"
	"net/url"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/civicvoice/backend/internal/config"
	"github.com/civicvoice/backend/internal/jobs"
	"github.com/civicvoice/backend/internal/logging"
	"github.com/civicvoice/backend/internal/services"
	"github.com/civicvoice/backend/internal/storage"
	"github.com/civicvoice/backend/internal/tasks"
)

const sqlitePrefix = "sqlite:"

// App holds every long-lived dependency. Integration fields are nil when the
// integration is not configured.
type App struct {
	Config *config.Config

	DB         *gorm.DB
	Docs       storage.Documents
	Queue      jobs.Queue
	Dispatcher *jobs.Dispatcher
	Revisions  *services.Revisions

	Users       *services.UserService
	Accounts    *services.AccountService
	Comments    *services.CommentService
	Events      *services.EventService
	Schools     *services.SchoolService
	Assignments *services.AssignmentService
	Voters      *services.VoterService

	Identity    services.IdentityProvider
	Verifier    services.TokenVerifier
	Mailer      services.Mailer
	MailingList services.MailingList
	Notifier    services.Notifier
	Captcha     services.CaptchaVerifier
	Media       services.MediaStore
	Classifier  services.ImageClassifier
	Moderator   *services.MediaModerator
	Support     *services.SupportService

	closers []func(context.Context) error
}

// OpenDB connects to DATABASE_URL. A "sqlite:" prefix selects a SQLite file,
// which is handy for local tooling.
func OpenDB(cfg *config.Config) (*gorm.DB, error) {
	if strings.HasPrefix(cfg.DatabaseURL, sqlitePrefix) {
		return storage.OpenSQLite(strings.TrimPrefix(cfg.DatabaseURL, sqlitePrefix))
	}
	return storage.OpenPostgres(cfg.DatabaseURL)
}

// New connects to the stores and builds every service. Optional stores fall
// back to in-process versions: Mongo to MemoryDocuments and Redis to
// MemoryQueue.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logging.Component("app")

	db, err := OpenDB(cfg)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, DB: db}
	a.closers = append(a.closers, func(context.Context) error { return storage.Close(db) })

	if cfg.MongoURI != "" {
		mctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		docs, err := storage.NewMongoDocuments(mctx, cfg.MongoURI, cfg.MongoDB)
		cancel()
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		a.Docs = docs
		a.closers = append(a.closers, docs.Close)
	} else {
		log.Warn("MONGO_URI not set, keeping revisions and webhook logs in memory")
		a.Docs = storage.NewMemoryDocuments()
	}

	if cfg.RedisAddr != "" {
		q, err := jobs.NewRedisQueue(ctx, cfg.RedisAddr, cfg.RedisPass, cfg.JobsQueue)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		a.Queue = q
		a.closers = append(a.closers, func(context.Context) error { return q.Close() })
	} else {
		log.Warn("REDIS_ADDR not set, jobs run from an in-process queue")
		a.Queue = jobs.NewMemoryQueue()
	}

	a.Dispatcher = jobs.NewDispatcher(a.Queue)
	a.Revisions = services.NewRevisions(a.Docs)

	a.Users = services.NewUserService(db, a.Dispatcher, a.Revisions)
	a.Accounts = services.NewAccountService(db, a.Dispatcher, a.Revisions)
	a.Comments = services.NewCommentService(db, a.Dispatcher, a.Revisions)
	a.Events = services.NewEventService(db, a.Revisions)
	a.Schools = services.NewSchoolService(db)
	a.Assignments = services.NewAssignmentService(db)
	a.Voters = services.NewVoterService(db, cfg.VoterCacheTTL)

	a.openIntegrations(ctx)
	a.Moderator = services.NewMediaModerator(a.Media, a.Classifier, a.Comments, a.Accounts, a.Users, a.Dispatcher)
	a.Support = services.NewSupportService(a.Captcha, a.Mailer, cfg.SupportEmail)
	return a, nil
}

// openIntegrations connects the third-party clients. A client that fails to
// start is left nil and logged; the rest of the app keeps working.
func (a *App) openIntegrations(ctx context.Context) {
	cfg := a.Config
	log := logging.Component("app")

	if cfg.AuthDomain != "" && cfg.AuthClientID != "" {
		// The key set fetches lazily for the life of the process.
		a.Verifier = services.NewOIDCVerifier(context.Background(), services.OIDCIssuer(cfg.AuthDomain), cfg.AuthClientID)
	} else {
		log.Warn("AUTH_DOMAIN or AUTH_CLIENT_ID not set, login is disabled")
	}

	if cfg.FirebaseProjectID != "" || cfg.FirebaseCredentials != "" {
		identity, err := services.NewFirebaseIdentity(ctx, services.FirebaseIdentityConfig{
			ProjectID:       cfg.FirebaseProjectID,
			CredentialsFile: cfg.FirebaseCredentials,
		})
		if err != nil {
			log.WithError(err).Warn("identity provider unavailable")
		} else {
			a.Identity = identity
		}
	}

	a.Mailer = services.NewSendGridMailer(cfg.SendGridAPIKey, cfg.FromEmail, "CivicVoice")
	a.MailingList = services.NewMailchimpClient(cfg.MailchimpAPIKey, cfg.MailchimpListID)
	a.Notifier = services.NewSlackNotifier(cfg.SlackWebhookURL)
	captcha := services.NewRecaptchaVerifier(cfg.RecaptchaSecret)
	if u, err := url.Parse(cfg.PublicURL); err == nil && cfg.IsProd() {
		captcha.Hostname = u.Hostname()
	}
	a.Captcha = captcha

	if cfg.MediaBucket != "" {
		media, err := services.NewGCSMedia(ctx)
		if err != nil {
			log.WithError(err).Warn("media storage unavailable")
		} else {
			a.Media = media
			a.closers = append(a.closers, func(context.Context) error { return media.Close() })
		}

		classifier, err := services.NewVisionSafeSearch(ctx)
		if err != nil {
			log.WithError(err).Warn("safesearch unavailable")
		} else {
			a.Classifier = classifier
		}
	}
}

// TaskDeps is what the job handlers need.
func (a *App) TaskDeps() tasks.Deps {
	return tasks.Deps{
		Users:       a.Users,
		Accounts:    a.Accounts,
		Comments:    a.Comments,
		Voters:      a.Voters,
		Identity:    a.Identity,
		MailingList: a.MailingList,
		Mailer:      a.Mailer,
		Notifier:    a.Notifier,
		AdminEmail:  a.Config.AdminEmail,
		PublicURL:   a.Config.PublicURL,
	}
}

// NewWorker returns a worker with every job handler registered.
func (a *App) NewWorker() *jobs.Worker {
	w := jobs.NewWorker(a.Queue, a.Config.JobsWorkers, a.Config.JobsMaxAttempts)
	tasks.Register(w, a.TaskDeps())
	return w
}

// Close releases connections in reverse order of opening.
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			logging.Component("app").WithError(err).Warn("close failed")
		}
	}
	a.closers = nil
}
