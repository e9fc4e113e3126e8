package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foothill/blog/internal/config"
	"github.com/foothill/blog/internal/database"
	"github.com/foothill/blog/internal/logging"
)

func runMigrateUp(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.NewLogger(cfg.Server.IsDevelopment())

	if err := database.MigrateUp(cfg.Database.URL()); err != nil {
		return err
	}
	logger.Info("migrations applied")
	return nil
}

func runMigrateDown(cmd *cobra.Command, args []string) error {
	steps, _ := cmd.Flags().GetInt("steps")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.NewLogger(cfg.Server.IsDevelopment())

	if err := database.MigrateDown(cfg.Database.URL(), steps); err != nil {
		return err
	}
	logger.Info("migrations rolled back", "steps", steps)
	return nil
}
