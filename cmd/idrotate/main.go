package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/systmms/idrotate/cmd/idrotate/commands"
	dserrors "github.com/systmms/idrotate/internal/errors"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", dserrors.SimplifyError(err))
		os.Exit(1)
	}
}

func run() error {
	app := commands.NewApp()

	rootCmd := &cobra.Command{
		Use:   "idrotate",
		Short: "Identity token rotation for AWS Secrets Manager",
		Long: `idrotate keeps an identity API token stored in AWS Secrets Manager fresh.

It runs the four-step Secrets Manager rotation protocol as a Lambda function
or from the command line, and ships the supporting tools used around it:
token minting and validation, tenant impersonation, Lambda layer packaging,
and network connectivity checks.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.Setup(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			app.Close()
		},
	}

	app.BindFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		commands.NewRotateCommand(app),
		commands.NewLambdaCommand(app),
		commands.NewTokenCommand(app),
		commands.NewValidateCommand(app),
		commands.NewImpersonateCommand(app),
		commands.NewPackageCommand(app),
		commands.NewConnectivityCommand(app),
		commands.NewHistoryCommand(app),
		commands.NewDoctorCommand(app),
		commands.NewCompletionCommand(app),
	)

	return rootCmd.Execute()
}
