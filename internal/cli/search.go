package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mnemex/mnemex/internal/index"
)

func newSearchCmd() *cobra.Command {
	var topK int
	var mode string

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search every memory tier, including working context",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			m := index.Mode(mode)
			switch m {
			case index.ModeLexical, index.ModeSemantic, index.ModeHybrid:
			default:
				return fmt.Errorf("invalid mode %q (valid: lexical, semantic, hybrid)", mode)
			}

			sess, cleanup, err := openSession(false)
			if err != nil {
				return err
			}
			defer cleanup()

			hits, err := sess.Search(cmd.Context(), query, topK, m)
			if err != nil {
				if errors.Is(err, index.ErrEmptyIndex) {
					fmt.Println("No memories stored yet.")
					return nil
				}
				return err
			}
			if len(hits) == 0 {
				fmt.Println("No results found.")
				return nil
			}

			printRecalled(hits)
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Maximum number of results (default from config)")
	cmd.Flags().StringVarP(&mode, "mode", "m", string(index.ModeHybrid), "Scoring mode: lexical, semantic, or hybrid")
	return cmd
}
