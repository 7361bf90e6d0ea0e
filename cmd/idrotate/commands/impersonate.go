package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/idrotate/internal/identity"
	"github.com/systmms/idrotate/internal/logging"
)

// NewImpersonateCommand creates the impersonate command
func NewImpersonateCommand(app *App) *cobra.Command {
	var (
		show bool
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "impersonate <tenant-id>...",
		Short: "Mint a token for a tenant's admin user",
		Long: `Authenticate with the service account, look up the admin user of each
tenant and mint an impersonation token for that user.

Tokens are cached per tenant, so a tenant named more than once is only
impersonated once.

When a tenant has more than one admin the admin_selection setting decides:
"first" takes the first user returned, "unique" fails.`,
		Example: `  idrotate impersonate 123456
  idrotate impersonate 123456 654321 --ttl 2h
  idrotate impersonate 123456 --show --ttl 1h`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			selection, err := identity.ParseAdminSelection(app.Settings().AdminSelection)
			if err != nil {
				return err
			}

			client, cleanup, err := app.directClient(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			imp := identity.NewImpersonator(client, app.identityAPI(),
				identity.WithAdminSelection(selection),
				identity.WithImpersonationTTL(ttl),
				identity.WithImpersonatorLogger(app.Logger),
			)
			cache := identity.NewTenantCache(imp, ttl,
				identity.WithExpiryPadding(impersonationPadding(ttl)),
				identity.WithLogger(app.Logger),
			)

			for i, tenantID := range args {
				token, err := cache.Token(cmd.Context(), tenantID)
				if err != nil {
					return fmt.Errorf("tenant %s: %w", tenantID, err)
				}

				if show {
					fmt.Fprintln(app.Stdout, token)
					continue
				}

				if i > 0 {
					fmt.Fprintln(app.Stdout)
				}
				fmt.Fprintf(app.Stdout, "tenant: %s\ntoken: %v\nexpires: %s\n",
					tenantID, logging.Secret(token),
					cache.Client(tenantID).ExpiresAt().UTC().Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&show, "show", false, "Print the token instead of redacting it")
	cmd.Flags().DurationVar(&ttl, "ttl", identity.DefaultImpersonationTTL, "Requested token lifetime")

	return cmd
}

// impersonationPadding keeps short-lived tokens usable: the default padding
// would mark a token requested for an hour or less as already expired.
func impersonationPadding(ttl time.Duration) time.Duration {
	if ttl > 2*identity.DefaultExpiryPadding {
		return identity.DefaultExpiryPadding
	}
	return ttl / 2
}
