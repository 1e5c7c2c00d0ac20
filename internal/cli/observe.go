package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newObserveCmd() *cobra.Command {
	var importance float64

	cmd := &cobra.Command{
		Use:   "observe [content]",
		Short: "Store content in working memory",
		Long: `Add content to the working-context buffer. When the buffer's token budget
fills, the least relevant items are consolidated into episodic memory.

Content is read from the argument, or from stdin when no argument is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var content string
			if len(args) == 1 {
				content = args[0]
			} else {
				data, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				content = strings.TrimSpace(string(data))
			}
			if content == "" {
				return fmt.Errorf("nothing to observe")
			}

			sess, cleanup, err := openSession(false)
			if err != nil {
				return err
			}
			defer cleanup()

			id, err := sess.Observe(cmd.Context(), content, importance)
			if err != nil {
				return err
			}

			st := sess.Status()
			fmt.Printf("Observed (id: %d). Buffer at %.0f%% of %d tokens.\n",
				id, st.BufferUsage*100, st.MaxTokens)
			return nil
		},
	}

	cmd.Flags().Float64VarP(&importance, "importance", "i", 0.5, "Importance in [0,1]")
	return cmd
}
