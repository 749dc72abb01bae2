package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/civicvoice/backend/internal/app"
	"github.com/civicvoice/backend/internal/config"
	"github.com/civicvoice/backend/internal/handlers"
	"github.com/civicvoice/backend/internal/logging"
	"github.com/civicvoice/backend/internal/middleware"
	"github.com/civicvoice/backend/internal/pages"
	"github.com/civicvoice/backend/internal/storage"
)

func main() {
	config.LoadDotEnvs()
	cfg := config.Load()
	logging.Init("civicvoice-api", cfg.IsProd())
	log := logging.Component("server")
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to start")
	}
	defer a.Close(context.Background())

	if !cfg.IsProd() {
		if err := storage.Migrate(a.DB); err != nil {
			log.WithError(err).Fatal("migration failed")
		}
	}

	// Without Redis nobody else can see the queue, so drain it here.
	if cfg.RedisAddr == "" {
		worker := a.NewWorker()
		go func() {
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("in-process worker stopped")
			}
		}()
	}

	sessions := middleware.NewSessions(cfg.SessionSecret, cfg.SessionExpiration, cfg.IsProd())
	authCfg := handlers.AuthConfig{
		Domain:       cfg.AuthDomain,
		ClientID:     cfg.AuthClientID,
		ClientSecret: cfg.AuthClientSecret,
		PublicURL:    cfg.PublicURL,
		Secure:       cfg.IsProd(),
	}

	router := handlers.NewRouter(handlers.Handlers{
		Auth:     middleware.NewAuth(sessions, a.Users),
		Login:    handlers.NewAuthHandler(authCfg, authCfg.OAuthConfig(), a.Verifier, a.Users, sessions),
		Accounts: handlers.NewAccountHandler(a.Accounts, a.Users, sessions),
		Comments: handlers.NewCommentHandler(a.Comments),
		Events:   handlers.NewEventHandler(a.Events),
		Schools:  handlers.NewSchoolHandler(a.Schools, a.Assignments),
		Support:  handlers.NewSupportHandler(a.Support),
		Pages:    handlers.NewPageHandler(pages.NewRenderer()),
		Admin:    handlers.NewAdminHandler(a.Users, a.Accounts, a.Comments, a.Events, a.Revisions),
		Webhooks: handlers.NewWebhookHandler(a.Docs, a.Accounts, a.Moderator, a.Mailer, cfg.AdminEmail, cfg.WebhookToken),

		AllowedOrigins: []string{cfg.PublicURL},
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("graceful shutdown failed")
		}
	}()

	log.WithField("addr", cfg.ServerAddress).Info("CivicVoice API server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("server failed")
	}
}
