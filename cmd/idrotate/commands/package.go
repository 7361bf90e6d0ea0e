package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/systmms/idrotate/internal/layer"
)

// NewPackageCommand creates the layer packaging command
func NewPackageCommand(app *App) *cobra.Command {
	var (
		q          layer.Query
		prePackage []string
		buildRoot  string
	)

	cmd := &cobra.Command{
		Use:   "package",
		Short: "Build a Lambda dependency layer archive",
		Long: `Build a Lambda layer from a poetry, npm or yarn lock file.

By default the request is read from stdin as the JSON object a Terraform
external data source sends, and the result is written to stdout as
{"output_path": "..."}. Use flags instead of stdin with --dependency-manager.`,
		Example: `  # Terraform external data source
  echo '{"dependency_manager":"poetry","runtime":"python3.12","dependency_lock_file":"src/poetry.lock"}' | idrotate package

  # From flags
  idrotate package --dependency-manager npm --runtime nodejs20.x --lock-file web/package-lock.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := q
			if cmd.Flags().Changed("dependency-manager") {
				query.PrePackageCommands = prePackage
			} else {
				data, err := io.ReadAll(app.Stdin)
				if err != nil {
					return fmt.Errorf("failed to read query from stdin: %w", err)
				}
				query, err = layer.ParseQuery(data)
				if err != nil {
					return err
				}
			}

			runner, err := app.NewRunner(app.Logger)
			if err != nil {
				return err
			}

			packager := layer.NewPackager(runner,
				layer.WithBuildRoot(buildRoot),
				layer.WithLogger(app.Logger),
			)

			path, err := packager.Package(cmd.Context(), query)
			if err != nil {
				return err
			}

			return json.NewEncoder(app.Stdout).Encode(map[string]string{"output_path": path})
		},
	}

	cmd.Flags().StringVar(&q.DependencyManager, "dependency-manager", "", "poetry, npm or yarn")
	cmd.Flags().StringVar(&q.Runtime, "runtime", "", "Lambda runtime, for example python3.12")
	cmd.Flags().StringVar(&q.DependencyLockFile, "lock-file", "", "Path to the dependency lock file")
	cmd.Flags().StringVar(&q.DockerImage, "docker-image", "", "Build image (default lambci/lambda:build-<runtime>)")
	cmd.Flags().StringArrayVar(&prePackage, "pre-package", nil, "Command to run in the build container before installing (repeatable)")
	cmd.Flags().StringVar(&buildRoot, "build-root", "./builds", "Directory for build output")

	return cmd
}
