package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// importLine is one record of a JSONL import file.
type importLine struct {
	Content    string  `json:"content"`
	Importance float64 `json:"importance"`
}

func newImportCmd() *cobra.Command {
	var consolidateAfter bool

	cmd := &cobra.Command{
		Use:   "import <file.jsonl>",
		Short: "Bulk-import observations from a JSONL file",
		Long: `Read one JSON object per line ({"content": ..., "importance": ...}) and
observe each into memory. Items that overflow the buffer are consolidated
into episodic memory as usual.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open import file: %w", err)
			}
			defer f.Close()

			sess, cleanup, err := openSession(false)
			if err != nil {
				return err
			}
			defer cleanup()

			bar := progressbar.NewOptions(-1,
				progressbar.OptionSetDescription("  Importing"),
				progressbar.OptionSpinnerType(14),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionClearOnFinish(),
			)

			scanner := bufio.NewScanner(f)
			scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)

			imported, failed, lineNo := 0, 0, 0
			for scanner.Scan() {
				lineNo++
				line := scanner.Bytes()
				if len(line) == 0 {
					continue
				}

				var rec importLine
				if err := json.Unmarshal(line, &rec); err != nil {
					fmt.Fprintf(os.Stderr, "  Warning: line %d: %v\n", lineNo, err)
					failed++
					continue
				}
				if rec.Content == "" {
					continue
				}
				if rec.Importance == 0 {
					rec.Importance = 0.5
				}

				if _, err := sess.Observe(cmd.Context(), rec.Content, rec.Importance); err != nil {
					fmt.Fprintf(os.Stderr, "  Warning: line %d: %v\n", lineNo, err)
					failed++
					continue
				}
				imported++
				_ = bar.Add(1)
			}
			_ = bar.Finish()

			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read import file: %w", err)
			}

			fmt.Printf("%d observations imported", imported)
			if failed > 0 {
				fmt.Printf(", %d failed", failed)
			}
			fmt.Println()

			if consolidateAfter {
				stats, err := sess.Consolidate(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Printf("Consolidated: %d patterns, %d rules, %d forgotten\n",
					stats.PatternsCreated+stats.PatternsUpdated,
					stats.RulesCreated+stats.RulesUpdated, stats.Forgotten)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&consolidateAfter, "consolidate", false, "Run a consolidation pass after importing")
	return cmd
}
