package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mnemex/mnemex/internal/config"
	"github.com/mnemex/mnemex/internal/db"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Set up the mnemex data directory and config",
		Long: `Create the data directory, the SQLite database, and a config file with
defaults. Existing config is left alone unless --force is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, err := config.Path()
			if err != nil {
				return err
			}

			if _, statErr := os.Stat(cfgPath); statErr == nil && !force {
				fmt.Printf("Config already exists at %s (use --force to overwrite).\n", cfgPath)
			} else {
				if err := config.Save(config.Default()); err != nil {
					return err
				}
				fmt.Printf("Wrote config to %s\n", cfgPath)
			}

			dbPath, err := config.DBPath()
			if err != nil {
				return err
			}
			database, err := db.Open(dbPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer database.Close()

			fmt.Printf("Database ready at %s\n", dbPath)
			fmt.Println()
			fmt.Println(`Tip: run "mnemex observe 'something worth remembering'" to get started.`)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}
