package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/civicvoice/backend/internal/app"
	"github.com/civicvoice/backend/internal/config"
	"github.com/civicvoice/backend/internal/logging"
)

func main() {
	config.LoadDotEnvs()
	cfg := config.Load()
	logging.Init("civicvoice-worker", cfg.IsProd())
	log := logging.Component("worker")
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	if cfg.RedisAddr == "" {
		log.Fatal("REDIS_ADDR is required: the worker reads jobs enqueued by the API server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to start")
	}
	defer a.Close(context.Background())

	log.WithField("queue", cfg.JobsQueue).WithField("workers", cfg.JobsWorkers).Info("worker starting")
	if err := a.NewWorker().Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		a.Close(context.Background())
		log.WithError(err).Fatal("worker stopped")
	}
	log.Info("worker stopped")
}
