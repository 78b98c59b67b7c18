// Package commands wires the slate CLI.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/marshallshelly/slate-orm/pkg/runtime"
)

var (
	// Global flags
	dbURL      string
	configFile string
	verbose    bool
	jsonOutput bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "slate",
	Short: "Slate ORM - typed schema and query layer for PostgreSQL",
	Long: `Slate ORM turns Go struct declarations into PostgreSQL tables and gives
you a composable, immutable query builder over them.

The CLI covers the operational side: checking connectivity, listing
tables and inspecting column definitions. Connection settings come from
--db, slate.toml or SLATE_* environment variables.`,
	Version: "0.4.1",
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "Database connection URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to slate.toml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
}

// loadConfig merges the config file, environment and the --db flag.
func loadConfig() (*runtime.Config, error) {
	cfg, err := runtime.LoadConfig(configFile)
	if err != nil {
		return nil, err
	}
	if dbURL != "" {
		cfg.URL = dbURL
	}
	return cfg, nil
}

// logger builds the CLI logger, debug-level when --verbose is set.
func logger() *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	cfg := zap.NewDevelopmentConfig()
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}
