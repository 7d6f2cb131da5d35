package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-cms/pkg/simplecms/config"
	reposqlite "github.com/tendant/simple-cms/pkg/simplecms/repo/sqlite"
)

// NewMigrateCommand applies pending record-store migrations
func NewMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			switch cfg.DatabaseType {
			case config.DatabasePostgres:
				pool, err := config.OpenPostgres(cmd.Context(), cfg.DatabaseURL, cfg.DBSchema)
				if err != nil {
					return err
				}
				defer pool.Close()

				applied, err := config.MigratePostgres(cmd.Context(), pool, cfg.DBSchema)
				if err != nil {
					return fmt.Errorf("migrate postgres: %w", err)
				}
				fmt.Fprintf(out, "postgres schema %s: applied %d migration(s)\n", cfg.DBSchema, applied)

			case config.DatabaseSQLite:
				repo, err := reposqlite.Open(cfg.SQLitePath)
				if err != nil {
					return fmt.Errorf("migrate sqlite: %w", err)
				}
				defer repo.Close()

				current, err := reposqlite.CurrentVersion(repo.DB())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "sqlite %s: schema version %d (latest %d)\n", cfg.SQLitePath, current, reposqlite.LatestVersion())

			default:
				fmt.Fprintln(out, "memory record store: nothing to migrate")
			}
			return nil
		},
	}
}
