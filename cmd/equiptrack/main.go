package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/foxzi/equiptrack/internal/api"
	"github.com/foxzi/equiptrack/internal/app"
	"github.com/foxzi/equiptrack/internal/config"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "equiptrack",
	Short: "EquipTrack - multi-tenant equipment inventory and maintenance tracker",
	Long: `EquipTrack keeps per-user SQLite inventories of equipment, logs maintenance
and scans, and predicts when each item is next due for service.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		api.Version = version
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("equiptrack %s (built %s)\n", version, buildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/equiptrack/config.yaml", "Path to configuration file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(predictCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(apikeyCmd)
}

// openComponents loads the config and opens storage for a CLI command.
// Logs go to stderr at warn level so they do not mix with command output.
func openComponents() (*config.Config, *app.Components, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	logger := app.SetupLogger(config.LoggingConfig{Level: "warn", Format: cfg.Logging.Format}, os.Stderr)

	c, err := app.OpenComponents(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, c, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
