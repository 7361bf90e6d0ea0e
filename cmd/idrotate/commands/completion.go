package commands

import (
	"github.com/spf13/cobra"
)

// NewCompletionCommand creates the completion command for generating shell completions.
func NewCompletionCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for idrotate.

Bash:
  $ source <(idrotate completion bash)

Zsh:
  $ idrotate completion zsh > "${fpath[1]}/_idrotate"

Fish:
  $ idrotate completion fish | source

PowerShell:
  PS> idrotate completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		// Completion needs no configuration
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(app.Stdout)
			case "zsh":
				return cmd.Root().GenZshCompletion(app.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(app.Stdout, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(app.Stdout)
			}
			return nil
		},
	}

	return cmd
}
