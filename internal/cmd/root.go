package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for crucible
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crucible",
		Short: "Iterative test-driven code refinement",
		Long: `Crucible drives iterative refinement of a candidate source file. Each
iteration runs the candidate against its test suite in an isolated sandbox,
analyzes the failures, and asks a code-generation agent for a corrected
candidate until the suite passes, the pass rate plateaus, or the iteration
budget runs out.

Configuration is loaded from .crucible/config.yaml if present.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "Path to config file (default: .crucible/config.yaml)")
	cmd.PersistentFlags().String("log-level", "", "Log level: trace, debug, info, warn, error")

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewAnalyzeCommand())
	cmd.AddCommand(NewEvalCommand())
	cmd.AddCommand(NewToolchainsCommand())

	return cmd
}
