package cli

import (
	"github.com/spf13/cobra"

	"reconciler/internal/contact/models"
)

// IdentifyOptions holds flags for the identify command.
type IdentifyOptions struct {
	*RootOptions
	Email string
	Phone string
}

// NewIdentifyCommand creates the identify command.
func NewIdentifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IdentifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "identify",
		Short: "Reconcile an email and/or phone number and print the identity",
		Long: `Reconcile an email and/or phone number and print the identity it belongs to.

Example:
  identityctl identify --db contacts.db --email mcfly@hillvalley.edu --phone 123456`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIdentify(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Email, "email", "", "observed email address")
	cmd.Flags().StringVar(&opts.Phone, "phone", "", "observed phone number")

	return cmd
}

func runIdentify(cmd *cobra.Command, opts *IdentifyOptions) error {
	ctx := cmd.Context()
	svc, backend, err := opts.openService(ctx, cmd)
	if err != nil {
		return err
	}
	defer backend.Close()

	result, err := svc.Identify(ctx, models.Observation{Email: opts.Email, Phone: opts.Phone})
	if err != nil {
		return fromServiceError(err)
	}
	return writeView(cmd.OutOrStdout(), opts.Format, result.View)
}
