package cli

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func newConsolidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consolidate",
		Short: "Run one consolidation pass over the memory hierarchy",
		Long: `Extract patterns from semantically similar episodes, generalize
high-confidence patterns into rules, and forget episodes whose decayed
value fell below the threshold. Safe to run repeatedly.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, cleanup, err := openSession(false)
			if err != nil {
				return err
			}
			defer cleanup()

			bar := progressbar.NewOptions(-1,
				progressbar.OptionSetDescription("  Consolidating"),
				progressbar.OptionSpinnerType(14),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionClearOnFinish(),
			)

			stats, err := sess.Consolidate(cmd.Context())
			_ = bar.Finish()
			if err != nil {
				return err
			}

			fmt.Printf("Patterns: %d created, %d updated\n", stats.PatternsCreated, stats.PatternsUpdated)
			fmt.Printf("Rules:    %d created, %d updated\n", stats.RulesCreated, stats.RulesUpdated)
			fmt.Printf("Forgotten episodes: %d\n", stats.Forgotten)
			return nil
		},
	}
}
