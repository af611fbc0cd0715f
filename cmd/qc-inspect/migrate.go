package main

import (
	"database/sql"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/tendant/qc-inspect/pkg/repository"
)

func newMigrateCmd(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
	}
	cmd.AddCommand(
		migrateStep(logger, "up", "Apply all pending migrations", repository.MigrateUp),
		migrateStep(logger, "down", "Roll back the most recent migration", repository.MigrateDown),
		migrateStep(logger, "status", "Print migration status", repository.MigrateStatus),
	)
	return cmd
}

func migrateStep(logger *slog.Logger, use, short string, run func(*sql.DB) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, db, err := openDB(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := run(db); err != nil {
				return err
			}
			logger.Info("migrate finished", "step", use)
			return nil
		},
	}
}
