package main

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/identra/identra/pkg/sqlite"
)

func newMigrateCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			db, err := sql.Open("sqlite", cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()

			if err := sqlite.RunMigrations(db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}
