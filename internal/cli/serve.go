package cli

import (
	"github.com/spf13/cobra"

	"github.com/mnemex/mnemex/internal/mcp"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the memory core over MCP on stdio",
		Long: `Expose observe, recall, search, consolidate, and status as Model Context
Protocol tools. Point an MCP-capable agent frontend at this command to give
it persistent, self-managing memory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, cleanup, err := openSession(false)
			if err != nil {
				return err
			}
			defer cleanup()

			return mcp.NewServer(sess, version).Serve()
		},
	}
}
