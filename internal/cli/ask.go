package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newAskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question with memory-augmented context",
		Long: `Recall relevant memories, assemble them with the working context into the
system prompt, and ask the configured model. The exchange is observed back
into working memory.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")

			sess, cleanup, err := openSession(true)
			if err != nil {
				return err
			}
			defer cleanup()

			answer, err := sess.Ask(cmd.Context(), question)
			if err != nil {
				return err
			}

			fmt.Println(answer)
			return nil
		},
	}
}
