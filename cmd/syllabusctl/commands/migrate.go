package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"syllabussync/internal/bootstrap"
	"syllabussync/internal/config"
	"syllabussync/internal/platform/database"
)

func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			db, err := bootstrap.OpenDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer database.Close(db)

			if err := database.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", cfg.Database.Driver)
			return nil
		},
	}
}
