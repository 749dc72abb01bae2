package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/civicvoice/backend/internal/app"
	"github.com/civicvoice/backend/internal/config"
	"github.com/civicvoice/backend/internal/jobs"
	"github.com/civicvoice/backend/internal/logging"
	"github.com/civicvoice/backend/internal/services"
	"github.com/civicvoice/backend/internal/storage"
)

const commandTimeout = 10 * time.Minute

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "advocacyctl",
		Short:         "CivicVoice administration",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Init("civicvoice-ctl", false)
		},
	}

	var domain string
	deleteTestAccounts := &cobra.Command{
		Use:   "delete-test-accounts",
		Short: "Delete every user whose email belongs to --domain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				n, err := a.Users.DeleteByEmailDomain(ctx, domain)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d users\n", n)
				return nil
			})
		},
	}
	deleteTestAccounts.Flags().StringVar(&domain, "domain", "", "email domain of the test accounts")
	_ = deleteTestAccounts.MarkFlagRequired("domain")

	root.AddCommand(
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or update the database schema",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				db, err := app.OpenDB(config.Load())
				if err != nil {
					return err
				}
				defer storage.Close(db)
				if err := storage.Migrate(db); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
				return nil
			},
		},
		deleteTestAccounts,
		&cobra.Command{
			Use:   "import-schools FILE",
			Short: "Upsert schools from an NCES public school CSV export",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return importFile(cmd, args[0], "schools", func(ctx context.Context, a *app.App, f *os.File) (int, error) {
					return a.Schools.ImportNCES(ctx, f)
				})
			},
		},
		&cobra.Command{
			Use:   "import-voters FILE",
			Short: "Upsert the voter roll from a CSV file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return importFile(cmd, args[0], "voters", func(ctx context.Context, a *app.App, f *os.File) (int, error) {
					return a.Voters.Import(ctx, f)
				})
			},
		},
		&cobra.Command{
			Use:   "export-accounts FILE",
			Short: "Write every account to a JSON file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, func(ctx context.Context, a *app.App) error {
					accounts, err := a.Accounts.All(ctx)
					if err != nil {
						return err
					}
					out, err := storage.NewJSONFile(args[0])
					if err != nil {
						return err
					}
					if err := out.Write(accounts); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "exported %d accounts to %s\n", len(accounts), out.Path())
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "send-outreach",
			Short: "Email the final request to every account with a deliverable address",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return queueEmails(cmd, "outreach", func(ctx context.Context, a *app.App) (int, error) {
					return a.Accounts.QueueOutreach(ctx)
				})
			},
		},
		&cobra.Command{
			Use:   "send-final",
			Short: "Email the shutdown notice to every active user",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return queueEmails(cmd, "shutdown", func(ctx context.Context, a *app.App) (int, error) {
					return a.Users.QueueShutdownNotice(ctx)
				})
			},
		},
		&cobra.Command{
			Use:   "promote-admin USERNAME",
			Short: "Grant admin rights to a user by identity-provider subject",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, func(ctx context.Context, a *app.App) error {
					if err := a.Users.PromoteAdmin(ctx, args[0]); err != nil {
						if errors.Is(err, services.ErrNotFound) {
							return fmt.Errorf("no user with username %q", args[0])
						}
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s is now an admin\n", args[0])
					return nil
				})
			},
		},
	)
	return root
}

func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()

	a, err := app.New(ctx, config.Load())
	if err != nil {
		return err
	}
	defer a.Close(context.Background())
	return fn(ctx, a)
}

func importFile(cmd *cobra.Command, path, what string, fn func(ctx context.Context, a *app.App, f *os.File) (int, error)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		n, err := fn(ctx, a, f)
		var importErr *services.ImportError
		if errors.As(err, &importErr) {
			for _, row := range importErr.Rows {
				fmt.Fprintf(cmd.ErrOrStderr(), "line %d: %v\n", row.Line, row.Errors)
			}
			return fmt.Errorf("%d invalid rows, nothing imported", len(importErr.Rows))
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d %s\n", n, what)
		return nil
	})
}

// queueEmails schedules a bulk send. Without Redis nothing else would read the
// in-memory queue, so the jobs are run before returning.
func queueEmails(cmd *cobra.Command, what string, fn func(ctx context.Context, a *app.App) (int, error)) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		n, err := fn(ctx, a)
		if err != nil {
			return err
		}
		if _, ok := a.Queue.(*jobs.MemoryQueue); ok {
			if err := a.NewWorker().Drain(ctx); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "queued %d %s emails\n", n, what)
		return nil
	})
}
