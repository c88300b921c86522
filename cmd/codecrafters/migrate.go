package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/terra-clan/codecrafters/internal/config"
	"github.com/terra-clan/codecrafters/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Database.Driver != config.DriverPostgres {
			return fmt.Errorf("migrations need the %s driver, got %q", config.DriverPostgres, cfg.Database.Driver)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		slog.Info("running database migrations", "dir", cfg.Database.MigrationsDir)
		if err := storage.MigrateFromDSN(ctx, cfg.Database.DSN, cfg.Database.MigrationsDir); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		slog.Info("migrations complete")
		return nil
	},
}
