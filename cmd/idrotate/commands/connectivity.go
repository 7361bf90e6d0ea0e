package commands

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/systmms/idrotate/internal/connectivity"
)

// NewConnectivityCommand creates the connectivity check command
func NewConnectivityCommand(app *App) *cobra.Command {
	var (
		targetFlags []string
		format      string
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "connectivity",
		Short: "Check network endpoints the rotation depends on",
		Long: `Check that endpoints are reachable from where idrotate runs.

Targets come from the connectivity list in the config file, or from
--target flags of the form protocol://host:port[/path]. Supported protocols
are tcp, http, https, postgres and mysql.

The command fails when any target marked critical is unreachable.`,
		Example: `  idrotate connectivity --target https://identity.api.rackspacecloud.com:443/v2.0
  idrotate connectivity --target postgres://db.internal:5432 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			targets := app.Settings().Connectivity
			if len(targetFlags) > 0 {
				targets = nil
				for _, raw := range targetFlags {
					t, err := parseTarget(raw)
					if err != nil {
						return err
					}
					targets = append(targets, t)
				}
			}
			if len(targets) == 0 {
				return fmt.Errorf("no connectivity targets configured; pass --target or set connectivity in the config file")
			}

			results := app.newChecker(connectivity.WithConcurrency(concurrency)).Check(cmd.Context(), targets)

			if err := writeConnectivity(app, results, format); err != nil {
				return err
			}

			var failed []string
			for _, r := range results {
				if r.Critical && !r.Success {
					failed = append(failed, fmt.Sprintf("%s:%d", r.Host, r.Port))
				}
			}
			if len(failed) > 0 {
				return fmt.Errorf("critical targets unreachable: %s", strings.Join(failed, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&targetFlags, "target", nil, "Target as protocol://host:port[/path] (repeatable, critical)")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table, json, yaml")
	cmd.Flags().IntVar(&concurrency, "concurrency", 8, "Maximum concurrent checks")

	return cmd
}

// parseTarget parses protocol://host:port[/path]. Targets given on the
// command line are always critical.
func parseTarget(raw string) (connectivity.Target, error) {
	proto, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return connectivity.Target{}, fmt.Errorf("invalid target %q: expected protocol://host:port", raw)
	}

	hostPort, path, _ := strings.Cut(rest, "/")
	i := strings.LastIndex(hostPort, ":")
	if i <= 0 {
		return connectivity.Target{}, fmt.Errorf("invalid target %q: missing port", raw)
	}
	port, err := strconv.Atoi(hostPort[i+1:])
	if err != nil || port <= 0 || port > 65535 {
		return connectivity.Target{}, fmt.Errorf("invalid target %q: bad port", raw)
	}

	t := connectivity.Target{
		Host:     strings.Trim(hostPort[:i], "[]"),
		Port:     port,
		Protocol: connectivity.Protocol(strings.ToLower(proto)),
		Critical: true,
	}
	if path != "" {
		t.Path = "/" + path
	}
	return t, nil
}

func writeConnectivity(app *App, results []connectivity.Result, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(app.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	case "yaml":
		enc := yaml.NewEncoder(app.Stdout)
		enc.SetIndent(2)
		return enc.Encode(results)
	}

	w := tabwriter.NewWriter(app.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TARGET\tPROTOCOL\tSTATUS\tLATENCY\tDETAIL")
	fmt.Fprintln(w, "------\t--------\t------\t-------\t------")
	for _, r := range results {
		status := "✓ ok"
		detail := r.ResolvedIP
		if !r.Success {
			status = "✗ failed"
			detail = r.Error
			if r.ErrorCode != "" {
				detail = r.ErrorCode + ": " + r.Error
			}
		}
		if r.HTTPStatus != 0 {
			detail = fmt.Sprintf("HTTP %d", r.HTTPStatus)
		}
		if r.Critical {
			status += " (critical)"
		}
		fmt.Fprintf(w, "%s:%d\t%s\t%s\t%dms\t%s\n", r.Host, r.Port, r.Protocol, status, r.LatencyMs, detail)
	}
	return w.Flush()
}
