package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"reconciler/internal/contact"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the contact schema if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := contact.OpenBackend(cmd.Context(), rootOpts.storeConfig())
			if err != nil {
				return WrapExitError(ExitFailure, "migrate", err)
			}
			defer backend.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "schema ready in %s\n", rootOpts.DB)
			return nil
		},
	}
}
