package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewValidateCommand creates the validate command
func NewValidateCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <token>",
		Short: "Check a token with the identity provider",
		Long: `Ask the identity provider whether a token is valid. The token is used
to authenticate its own validation request, so no service account is needed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := app.identityAPI().Validate(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(app.Stdout, "valid: true\nuser: %s\ntenant: %s\nexpires: %s\n",
				v.UserName, v.TenantID, v.ExpiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}

	return cmd
}
