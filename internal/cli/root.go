// Package cli defines the Cobra command tree for the mnemex CLI.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// version, commit, date are set via -ldflags at build time.
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "mnemex",
	Short: "Context-managed memory core for AI agents",
	Long: `Mnemex gives an AI agent a working memory that manages itself.

Observations flow through a token-budgeted context buffer; what no longer
fits is consolidated into episodic memories, recurring episodes become
patterns, and reliable patterns become rules. Recall searches every tier
with hybrid lexical and semantic ranking.

Run 'mnemex init' to set up the data directory and config.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute(v, c, d string) {
	version, commit, date = v, c, d
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(
		newInitCmd(),
		newObserveCmd(),
		newAskCmd(),
		newRecallCmd(),
		newSearchCmd(),
		newConsolidateCmd(),
		newStatusCmd(),
		newExportCmd(),
		newImportCmd(),
		newServeCmd(),
		newVersionCmd(),
	)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mnemex %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
