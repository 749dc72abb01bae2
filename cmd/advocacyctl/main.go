// Command advocacyctl runs one-off administrative tasks against the
// CivicVoice database.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/civicvoice/backend/internal/config"
	"github.com/civicvoice/backend/internal/logging"
)

func main() {
	config.LoadDotEnvs()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logging.Component("advocacyctl").WithError(err).Debug("command failed")
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
