package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/systmms/idrotate/internal/rotation"
)

// NewRotateCommand creates the rotate command
func NewRotateCommand(app *App) *cobra.Command {
	var (
		secretID string
		token    string
		step     string
	)

	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Run rotation steps for a secret version",
		Long: `Run one rotation step, or all four in order, for a version that
Secrets Manager has staged as AWSPENDING.

This is the same code path the Lambda handler takes. It is useful for
finishing a rotation that stalled or for testing the function's IAM role
from a workstation.`,
		Example: `  # Run every step for a pending version
  idrotate rotate --secret-id prod/identity-token --token 8a1f...

  # Re-run only the test step
  idrotate rotate --secret-id prod/identity-token --token 8a1f... --step testSecret`,
		RunE: func(cmd *cobra.Command, args []string) error {
			coord, err := app.coordinator(cmd.Context())
			if err != nil {
				return err
			}

			if step == "" {
				if err := coord.Rotate(cmd.Context(), secretID, token); err != nil {
					return err
				}
				app.Logger.Info("Rotation of %s completed for version %s", secretID, token)
				return nil
			}

			// Unknown steps reach the coordinator so the staging guard runs first
			outcome, err := coord.HandleOutcome(cmd.Context(), rotation.Event{
				SecretID:           secretID,
				ClientRequestToken: token,
				Step:               rotation.Step(step),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(app.Stdout, "%s: %s\n", step, outcome)
			return nil
		},
	}

	cmd.Flags().StringVar(&secretID, "secret-id", "", "Secret ARN or name")
	cmd.Flags().StringVar(&token, "token", "", "Client request token (the pending version id)")
	cmd.Flags().StringVar(&step, "step", "", "Single step to run: createSecret, setSecret, testSecret, finishSecret")
	_ = cmd.MarkFlagRequired("secret-id")
	_ = cmd.MarkFlagRequired("token")
	_ = cmd.RegisterFlagCompletionFunc("step", completeSteps)

	return cmd
}

func completeSteps(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	names := make([]string, 0, len(rotation.Steps))
	for _, s := range rotation.Steps {
		if strings.HasPrefix(s.String(), toComplete) {
			names = append(names, s.String())
		}
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}
