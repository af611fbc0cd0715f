package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tendant/qc-inspect/internal/config"
	"github.com/tendant/qc-inspect/pkg/repository"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := newRootCmd(logger).Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "qc-inspect",
		Short:         "QC inspection edge gate and account service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(
		newServeCmd(logger),
		newMigrateCmd(logger),
		newCleanupCmd(logger),
	)
	return cmd
}

// openDB loads configuration and connects to Postgres.
func openDB(ctx context.Context, logger *slog.Logger) (*config.Config, *sql.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}

	db, err := repository.NewDB(ctx, repository.Config{
		URL:             cfg.DatabaseURL(),
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info("connected to database", "host", cfg.DBHost, "name", cfg.DBName)
	return cfg, db, nil
}
