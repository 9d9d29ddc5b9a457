package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"creator-bridge/internal/app"
	"creator-bridge/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration and encryption keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		userID := uuid.New().String()
		cfg := config.NewConfig(userID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("User ID:  %s\n", userID)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])

		passphrase, err := readPassphrase()
		if err != nil {
			return err
		}
		if err := app.InitKeys(cfg, passphrase); err != nil {
			return err
		}
		fmt.Printf("Encryption keys written to %s\n", cfg.Encryption.PublicKeyPath)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", path)
		fmt.Printf("User ID:      %s\n", cfg.UserID)
		fmt.Printf("Base Dir:     %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:      %s\n", cfg.LogDir)
		fmt.Printf("Database:     %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Staging:      %s %s (max %s)\n", cfg.Staging.Type, cfg.Staging.StagingDir, humanize.IBytes(uint64(cfg.Staging.MaxSize)))
		fmt.Printf("Workers:      %d (retries %d)\n", cfg.Engine.Workers, cfg.Engine.MaxRetries)
		if cfg.Scheduler.Enabled {
			fmt.Printf("Auto-sync:    %s, staleness %s\n", cfg.Scheduler.Spec, cfg.Scheduler.Staleness)
		} else {
			fmt.Printf("Auto-sync:    disabled\n")
		}

		platforms := make([]string, 0, len(cfg.Platforms))
		for _, p := range cfg.Platforms {
			platforms = append(platforms, p.Type)
		}
		fmt.Printf("Platforms:    %s\n", strings.Join(platforms, ", "))
		for _, d := range cfg.Destinations {
			fmt.Printf("Destination:  %s (%s)\n", d.Name, d.Type)
		}
		fmt.Printf("API Addr:     %s\n", cfg.HTTP.Addr)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
}
