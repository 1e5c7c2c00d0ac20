package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mnemex/mnemex/internal/export"
)

func newExportCmd() *cobra.Command {
	var format string
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the memory state to markdown or JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			exporter, ok := export.Get(format)
			if !ok {
				return fmt.Errorf("unknown format %q (valid: %s)",
					format, strings.Join(export.ValidFormats(), ", "))
			}

			sess, cleanup, err := openSession(false)
			if err != nil {
				return err
			}
			defer cleanup()

			rendered, err := exporter.Export(export.ExportData{
				Items:    sess.Buffer().Snapshot(),
				Episodes: sess.Hierarchy().Episodes(),
				Patterns: sess.Hierarchy().Patterns(),
				Rules:    sess.Hierarchy().Rules(),
			})
			if err != nil {
				return err
			}

			if output == "" {
				fmt.Print(rendered)
				return nil
			}
			if err := os.WriteFile(output, []byte(rendered), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Printf("Exported to %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "markdown", "Export format: markdown or json")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")
	return cmd
}
