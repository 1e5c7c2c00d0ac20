package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mnemex/mnemex/internal/hierarchy"
	"github.com/mnemex/mnemex/internal/index"
)

func newRecallCmd() *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "recall <query>",
		Short: "Recall memories relevant to a query",
		Long: `Search the episodic, tactical, and strategic tiers with hybrid ranking.
At equal relevance, rules outrank patterns and patterns outrank episodes.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			sess, cleanup, err := openSession(false)
			if err != nil {
				return err
			}
			defer cleanup()

			memories, err := sess.Recall(cmd.Context(), query, topK)
			if err != nil {
				if errors.Is(err, index.ErrEmptyIndex) {
					fmt.Println("No memories stored yet.")
					return nil
				}
				return err
			}
			if len(memories) == 0 {
				fmt.Println("No relevant memories.")
				return nil
			}

			printRecalled(memories)
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Maximum number of memories (default from config)")
	return cmd
}

func printRecalled(memories []hierarchy.Recalled) {
	for _, m := range memories {
		fmt.Printf("[%-9s %.2f] %s\n", m.Tier, m.Score, m.Summary)
	}
}
