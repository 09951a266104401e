package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foxzi/equiptrack/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	fmt.Println("Configuration is valid")
	fmt.Printf("  Listen address: %s\n", cfg.Server.ListenAddr)
	fmt.Printf("  Data directory: %s\n", cfg.Storage.DataDir)
	fmt.Printf("  State file: %s\n", cfg.Storage.StatePath)
	fmt.Printf("  Role backend: %s\n", cfg.Storage.RoleBackend)
	fmt.Printf("  Auth mode: %s\n", cfg.Auth.Mode)
	fmt.Printf("  API keys: %d\n", len(cfg.Auth.APIKeys))
	fmt.Printf("  Admins see all databases: %v\n", cfg.AdminSeesAll())
	fmt.Printf("  Default interval: %d days (due soon within %d)\n",
		cfg.Maintenance.DefaultIntervalDays, cfg.Maintenance.DueSoonDays)
	fmt.Printf("  Metrics: %v\n", cfg.Metrics.Enabled)

	for _, a := range cfg.Access.Admins {
		fmt.Printf("    admin: %s\n", a)
	}

	return nil
}
