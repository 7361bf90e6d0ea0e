package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/idrotate/internal/logging"
)

// NewTokenCommand creates the token command
func NewTokenCommand(app *App) *cobra.Command {
	var show bool

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Authenticate with the service account and print the token",
		Long: `Fetch the service account from the configured secret, authenticate with
the identity provider and print the resulting token.

The token is redacted unless --show is given.`,
		Example: `  # Check the service account can authenticate
  idrotate token

  # Use the token in a script
  export AUTH_TOKEN=$(idrotate token --show)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := app.directClient(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			token, err := client.Token(cmd.Context())
			if err != nil {
				return err
			}

			if show {
				fmt.Fprintln(app.Stdout, token)
				return nil
			}

			fmt.Fprintf(app.Stdout, "token: %v\nexpires: %s\n",
				logging.Secret(token), client.ExpiresAt().UTC().Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().BoolVar(&show, "show", false, "Print the token instead of redacting it")

	return cmd
}
