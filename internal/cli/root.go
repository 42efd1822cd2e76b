// Package cli implements identityctl, a command line front end that
// reconciles observations against a local SQLite contact store.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"reconciler/internal/contact"
	"reconciler/internal/contact/service"
	"reconciler/internal/platform/config"
	"reconciler/internal/platform/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DB      string
	Format  string // "json" | "text"
	Verbose bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"json", "text"}

// NewRootCommand creates the identityctl root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "identityctl",
		Short: "Reconcile contact observations into identities",
		Long: `identityctl runs the identity reconciler against a SQLite contact store.

Each identify call links the observation to every identity it shares an email
or phone number with, merging identities when it bridges them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitValidation, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if opts.DB == "" {
				return NewExitError(ExitValidation, "--db is required")
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.DB, "db", "reconciler.db", "path to the SQLite contact store")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "json", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log reconciliation decisions to stderr")

	cmd.AddCommand(NewIdentifyCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}

func (o *RootOptions) storeConfig() config.StoreConfig {
	return config.StoreConfig{
		Backend:    config.BackendSQLite,
		SQLitePath: o.DB,
		TxTimeout:  5 * time.Second,
	}
}

func (o *RootOptions) logger(stderr io.Writer) *slog.Logger {
	if !o.Verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return logger.NewWithWriter(stderr, config.LogConfig{Level: "debug", Format: "text"})
}

// openService opens the store and returns a service over it. The caller
// closes the returned backend.
func (o *RootOptions) openService(ctx context.Context, cmd *cobra.Command) (*contact.Service, *contact.Backend, error) {
	backend, err := contact.OpenBackend(ctx, o.storeConfig())
	if err != nil {
		return nil, nil, WrapExitError(ExitFailure, "open store", err)
	}
	svc, err := contact.NewService(backend.Tx, service.WithLogger(o.logger(cmd.ErrOrStderr())))
	if err != nil {
		_ = backend.Close()
		return nil, nil, err
	}
	return svc, backend, nil
}
