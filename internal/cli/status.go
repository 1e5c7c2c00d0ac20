package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mnemex/mnemex/internal/config"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show memory occupancy across all tiers",
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath, err := config.DBPath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(dbPath); os.IsNotExist(err) {
				return fmt.Errorf("mnemex not initialized. Run `mnemex init` first")
			}

			sess, cleanup, err := openSession(false)
			if err != nil {
				return err
			}
			defer cleanup()

			st := sess.Status()

			var dbSize int64
			if fi, err := os.Stat(dbPath); err == nil {
				dbSize = fi.Size()
			}

			fmt.Println()
			fmt.Printf("Buffer:   %d items, %d%% of %d tokens (policy: %s, margin: %.2f)\n",
				st.BufferItems, int(st.BufferUsage*100), st.MaxTokens, st.Policy, st.SafetyMargin)
			fmt.Println(usageBar(st.BufferUsage))
			fmt.Printf("Episodes: %d\n", st.Episodes)
			fmt.Printf("Patterns: %d\n", st.Patterns)
			fmt.Printf("Rules:    %d\n", st.Rules)
			fmt.Printf("Index:    %d entries\n", st.IndexEntries)
			fmt.Printf("DB size:  %s\n", formatBytes(dbSize))
			fmt.Println()
			return nil
		},
	}
}

// usageBar renders buffer occupancy as a bar sized to the terminal.
func usageBar(ratio float64) string {
	width := 40
	if term.IsTerminal(int(os.Stdout.Fd())) {
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 20 {
			width = w - 14
			if width > 60 {
				width = 60
			}
		}
	}

	if ratio < 0 {
		ratio = 0
	} else if ratio > 1 {
		ratio = 1
	}
	filled := int(ratio * float64(width))
	return "          [" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
