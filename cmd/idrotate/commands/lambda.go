package commands

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"

	"github.com/systmms/idrotate/internal/logging"
	"github.com/systmms/idrotate/internal/rotation"
)

// NewLambdaCommand creates the command that serves the Lambda runtime API
func NewLambdaCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lambda",
		Short: "Serve rotation events as an AWS Lambda function",
		Long: `Start the Lambda runtime loop. Each invocation carries a Secrets Manager
rotation event ({"SecretId", "ClientRequestToken", "Step"}) and runs one step.

Logs are written as JSON so CloudWatch can index them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app.Logger = logging.NewJSON(app.Settings().Debug)
			app.Config.Logger = app.Logger

			coord, err := app.coordinator(cmd.Context())
			if err != nil {
				return err
			}

			lambda.StartWithOptions(NewLambdaHandler(coord), lambda.WithContext(cmd.Context()))
			return nil
		},
	}

	return cmd
}

// NewLambdaHandler adapts a coordinator to the Lambda handler signature
func NewLambdaHandler(coord *rotation.Coordinator) func(ctx context.Context, payload json.RawMessage) error {
	return func(ctx context.Context, payload json.RawMessage) error {
		ev, err := rotation.ParseEvent(payload)
		if err != nil {
			return err
		}
		return coord.Handle(ctx, ev)
	}
}
