package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"phototrail/database"
)

// initDBCommand creates the command that bootstraps the storage schema.
func initDBCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "initdb",
		Short: "Create or migrate the photo database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			db, err := database.Init(cfg.DatabasePath)
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			if err := database.AutoMigrate(db); err != nil {
				return err
			}

			log.Printf("Database ready at %s", cfg.DatabasePath)
			return nil
		},
	}
}
