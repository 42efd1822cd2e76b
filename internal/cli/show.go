package cli

import (
	"github.com/spf13/cobra"

	id "reconciler/pkg/domain"
)

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <contact-id>",
		Short: "Print the identity a contact belongs to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			contactID, err := id.ParseContactID(args[0])
			if err != nil {
				return fromServiceError(err)
			}

			ctx := cmd.Context()
			svc, backend, err := rootOpts.openService(ctx, cmd)
			if err != nil {
				return err
			}
			defer backend.Close()

			view, err := svc.Lookup(ctx, contactID)
			if err != nil {
				return fromServiceError(err)
			}
			return writeView(cmd.OutOrStdout(), rootOpts.Format, view)
		},
	}
}
