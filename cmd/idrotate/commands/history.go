package commands

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/systmms/idrotate/internal/rotation/storage"
)

// NewHistoryCommand creates the rotation history command
func NewHistoryCommand(app *App) *cobra.Command {
	var (
		historyLimit  int
		historySince  string
		historyUntil  string
		historyStatus string
		historyFormat string
	)

	cmd := &cobra.Command{
		Use:   "history [secret-arn]",
		Short: "Show rotation step history",
		Long: `Display the recorded rotation steps for one or all secrets.

Every step invocation is recorded with its version, outcome (success,
noop or failed), duration and error.`,
		Example: `  # Show history for all secrets
  idrotate history

  # Show history for one secret
  idrotate history arn:aws:secretsmanager:us-east-1:123456789012:secret:identity-token

  # Show only failures since a date
  idrotate history --status failed --since 2026-01-01`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := app.historyStore()

			var sinceTime, untilTime *time.Time
			if historySince != "" {
				t, err := time.Parse("2006-01-02", historySince)
				if err != nil {
					return fmt.Errorf("invalid since date format (use YYYY-MM-DD): %w", err)
				}
				sinceTime = &t
			}
			if historyUntil != "" {
				t, err := time.Parse("2006-01-02", historyUntil)
				if err != nil {
					return fmt.Errorf("invalid until date format (use YYYY-MM-DD): %w", err)
				}
				endOfDay := t.Add(24*time.Hour - time.Second)
				untilTime = &endOfDay
			}

			// Filters apply after the read, so read everything and limit last
			var (
				entries []storage.HistoryEntry
				err     error
			)
			if len(args) > 0 {
				entries, err = store.GetHistory(args[0], -1)
			} else {
				entries, err = store.GetAllHistory(-1)
			}
			if err != nil {
				return fmt.Errorf("failed to get history: %w", err)
			}

			filtered := filterHistoryEntries(entries, sinceTime, untilTime, historyStatus)
			if historyLimit > 0 && len(filtered) > historyLimit {
				filtered = filtered[:historyLimit]
			}

			switch historyFormat {
			case "json":
				enc := json.NewEncoder(app.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(historyDocument(filtered, false))
			case "yaml":
				enc := yaml.NewEncoder(app.Stdout)
				enc.SetIndent(2)
				return enc.Encode(historyDocument(filtered, true))
			default:
				return writeHistoryTable(app, filtered, historyStatus)
			}
		},
	}

	cmd.Flags().IntVar(&historyLimit, "limit", 50, "Maximum number of entries to show")
	cmd.Flags().StringVar(&historySince, "since", "", "Show entries since date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&historyUntil, "until", "", "Show entries until date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&historyStatus, "status", "", "Filter by status: success, noop, failed")
	cmd.Flags().StringVar(&historyFormat, "format", "table", "Output format: table, json, yaml")

	return cmd
}

func filterHistoryEntries(entries []storage.HistoryEntry, since, until *time.Time, status string) []storage.HistoryEntry {
	var filtered []storage.HistoryEntry

	for _, entry := range entries {
		if since != nil && entry.Timestamp.Before(*since) {
			continue
		}
		if until != nil && entry.Timestamp.After(*until) {
			continue
		}
		if status != "" && !strings.EqualFold(entry.Status, status) {
			continue
		}
		filtered = append(filtered, entry)
	}

	return filtered
}

func writeHistoryTable(app *App, entries []storage.HistoryEntry, status string) error {
	if len(entries) == 0 {
		fmt.Fprintln(app.Stdout, "No rotation history found matching criteria")
		return nil
	}

	w := tabwriter.NewWriter(app.Stdout, 0, 0, 3, ' ', 0)

	fmt.Fprintln(w, "TIMESTAMP\tSECRET\tVERSION\tSTEP\tSTATUS\tDURATION\tERROR")
	fmt.Fprintln(w, "---------\t------\t-------\t----\t------\t--------\t-----")

	for _, entry := range entries {
		errorMsg := "-"
		if entry.Error != "" {
			errorMsg = entry.Error
			if len(errorMsg) > 50 {
				errorMsg = errorMsg[:47] + "..."
			}
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			entry.Timestamp.Format("2006-01-02 15:04:05"),
			shortARN(entry.SecretARN),
			entry.Version,
			entry.Step,
			formatStatus(entry.Status),
			formatDuration(entry.Duration),
			errorMsg,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(app.Stdout, "\nShowing %d entries", len(entries))
	if status != "" {
		fmt.Fprintf(app.Stdout, " (filtered by status: %s)", status)
	}
	fmt.Fprintln(app.Stdout)

	return nil
}

func historyDocument(entries []storage.HistoryEntry, rfc3339 bool) map[string]interface{} {
	out := make([]map[string]interface{}, len(entries))

	for i, entry := range entries {
		e := map[string]interface{}{
			"timestamp":   entry.Timestamp,
			"secret_arn":  entry.SecretARN,
			"version":     entry.Version,
			"step":        entry.Step,
			"status":      entry.Status,
			"duration_ms": entry.Duration.Milliseconds(),
		}
		if rfc3339 {
			e["timestamp"] = entry.Timestamp.Format(time.RFC3339)
		}
		if entry.Error != "" {
			e["error"] = entry.Error
		}
		if len(entry.Metadata) > 0 {
			e["metadata"] = entry.Metadata
		}
		out[i] = e
	}

	return map[string]interface{}{
		"count":   len(entries),
		"entries": out,
	}
}

// shortARN drops the arn:aws:secretsmanager:<region>:<account>:secret: prefix
func shortARN(arn string) string {
	if i := strings.Index(arn, ":secret:"); i >= 0 {
		return arn[i+len(":secret:"):]
	}
	return arn
}

func formatStatus(status string) string {
	switch status {
	case storage.StatusSuccess:
		return "✓ " + status
	case storage.StatusFailed:
		return "✗ " + status
	case storage.StatusNoop:
		return "- " + status
	default:
		return status
	}
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "-"
	}

	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}
