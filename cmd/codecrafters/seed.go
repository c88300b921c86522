package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/terra-clan/codecrafters/internal/catalog"
	"github.com/terra-clan/codecrafters/internal/config"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the challenge and achievement catalog into the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if cfg.Database.Driver == config.DriverMemory {
			slog.Warn("seeding the in-memory store has no lasting effect; serve seeds it on start")
		}

		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			dir = cfg.Catalog.Dir
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		repo, err := openRepository(ctx, cfg)
		if err != nil {
			return err
		}
		defer repo.Close()

		loader := catalog.NewLoader()
		if err := loader.LoadFromDir(dir); err != nil {
			return fmt.Errorf("failed to load catalog: %w", err)
		}

		challenges, achievements, err := loader.Seed(ctx, repo)
		if err != nil {
			return err
		}

		slog.Info("catalog seeded", "dir", dir, "challenges", challenges, "achievements", achievements)
		return nil
	},
}

func init() {
	seedCmd.Flags().String("dir", "", "Catalog directory (overrides CATALOG_DIR)")
}
