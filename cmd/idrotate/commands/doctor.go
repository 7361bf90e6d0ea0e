package commands

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/spf13/cobra"

	"github.com/systmms/idrotate/internal/config"
	dserrors "github.com/systmms/idrotate/internal/errors"
	"github.com/systmms/idrotate/internal/secretstores"
)

// CheckResult is the outcome of one doctor check
type CheckResult struct {
	Name    string
	Status  string // healthy, error, skipped
	Message string
}

// NewDoctorCommand creates the doctor command
func NewDoctorCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, AWS access and identity authentication",
		Long: `Verify that idrotate can do a rotation from this environment.

This command checks:
- AWS credentials (sts:GetCallerIdentity)
- The service account secret can be read and is complete
- The service account can authenticate with the identity provider
- Configured connectivity targets are reachable`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			results := []CheckResult{checkAWS(ctx, app)}

			client, cleanup, err := app.directClient(ctx)
			if err != nil {
				results = append(results,
					CheckResult{Name: "service account", Status: "error", Message: oneLine(err)},
					CheckResult{Name: "identity", Status: "skipped", Message: "no service account"},
				)
			} else {
				results = append(results, CheckResult{Name: "service account", Status: "healthy", Message: "username and password present"})
				if _, err := client.Token(ctx); err != nil {
					results = append(results, CheckResult{Name: "identity", Status: "error", Message: oneLine(dserrors.ServiceError("identity", "authenticate", err))})
				} else {
					results = append(results, CheckResult{Name: "identity", Status: "healthy", Message: "authenticated against " + app.Settings().IdentityBaseURL()})
				}
				cleanup()
			}

			results = append(results, checkConnectivity(ctx, app)...)

			displayCheckResults(app, results)

			healthy := 0
			failed := 0
			for _, r := range results {
				switch r.Status {
				case "healthy":
					healthy++
				case "error":
					failed++
				}
			}

			fmt.Fprintf(app.Stdout, "\nSummary: %d/%d checks healthy\n", healthy, len(results))
			if failed > 0 {
				return fmt.Errorf("%d checks failed", failed)
			}
			app.Logger.Info("All systems operational")
			return nil
		},
	}

	return cmd
}

// CallerIdentity returns the ARN of the AWS principal in use
func CallerIdentity(ctx context.Context, s *config.Settings) (string, error) {
	cfg, err := secretstores.LoadAWSConfig(ctx, s.AWSOptions())
	if err != nil {
		return "", err
	}
	out, err := sts.NewFromConfig(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.Arn), nil
}

func checkAWS(ctx context.Context, app *App) CheckResult {
	arn, err := app.CallerIdentity(ctx, app.Settings())
	if err != nil {
		return CheckResult{Name: "aws", Status: "error", Message: oneLine(dserrors.ServiceError("aws", "sts:GetCallerIdentity", err))}
	}
	return CheckResult{Name: "aws", Status: "healthy", Message: arn}
}

func checkConnectivity(ctx context.Context, app *App) []CheckResult {
	targets := app.Settings().Connectivity
	if len(targets) == 0 {
		return nil
	}

	var results []CheckResult
	for _, r := range app.newChecker().Check(ctx, targets) {
		name := fmt.Sprintf("%s %s:%d", r.Protocol, r.Host, r.Port)
		switch {
		case r.Success:
			results = append(results, CheckResult{Name: name, Status: "healthy", Message: fmt.Sprintf("%dms", r.LatencyMs)})
		case r.Critical:
			results = append(results, CheckResult{Name: name, Status: "error", Message: r.Error})
		default:
			results = append(results, CheckResult{Name: name, Status: "skipped", Message: "unreachable (not critical): " + r.Error})
		}
	}
	return results
}

// oneLine folds a multi-line user error into one table cell
func oneLine(err error) string {
	return strings.Join(strings.Fields(err.Error()), " ")
}

func displayCheckResults(app *App, results []CheckResult) {
	w := tabwriter.NewWriter(app.Stdout, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintf(w, "CHECK\tSTATUS\tMESSAGE\n")
	_, _ = fmt.Fprintf(w, "-----\t------\t-------\n")

	for _, result := range results {
		status := result.Status
		switch result.Status {
		case "healthy":
			status = "✓ " + status
		case "error":
			status = "✗ " + status
		default:
			status = "- " + status
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", result.Name, status, result.Message)
	}

	_ = w.Flush()
}
