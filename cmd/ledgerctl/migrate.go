package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := a.setup()
			if err != nil {
				return err
			}
			if err := a.runMigrations(cfg.Postgres.URL, cfg.Postgres.MigrationsPath); err != nil {
				return err
			}
			log.Info("Migrations applied", "path", cfg.Postgres.MigrationsPath)
			return nil
		},
	}

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := a.setup()
			if err != nil {
				return err
			}
			v, dirty, err := a.migrationVersion(cfg.Postgres.URL, cfg.Postgres.MigrationsPath)
			if err != nil {
				return err
			}
			return a.printJSON(struct {
				Version uint `json:"version"`
				Dirty   bool `json:"dirty"`
			}{Version: v, Dirty: dirty})
		},
	}

	var steps int
	rollback := &cobra.Command{
		Use:   "rollback",
		Short: "Roll back the most recent migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if steps <= 0 {
				return fmt.Errorf("--steps must be greater than 0, got %d", steps)
			}
			cfg, log, err := a.setup()
			if err != nil {
				return err
			}
			if err := a.rollbackMigrations(cfg.Postgres.URL, cfg.Postgres.MigrationsPath, steps); err != nil {
				return err
			}
			log.Info("Migrations rolled back", "steps", steps)
			return nil
		},
	}
	rollback.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	cmd.AddCommand(up, version, rollback)
	return cmd
}
