// Package main is the papersearch command-line client. It runs searches
// in-process with the same pipeline the worker and the HTTP server use.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/helixir/paper-search-service/internal/config"
	"github.com/helixir/paper-search-service/internal/observability"
)

// version is set at build time via ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "papersearch",
	Short: "Multi-source academic paper search",
	Long: `papersearch fans a query out to the configured academic providers,
deduplicates and ranks the results, and keeps only papers whose full text
could be stored.

Configuration is read the same way the service reads it: config.yaml in the
usual locations and PAPERSEARCH_* environment variables.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default: ./config.yaml, ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level for diagnostics on stderr")
}

// loadConfig reads configuration honoring the --config flag.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newLogger logs to stderr so stdout carries only results.
func newLogger(cmd *cobra.Command) zerolog.Logger {
	level, _ := cmd.Flags().GetString("log-level")
	return observability.NewLogger(observability.LoggingConfig{
		Level:  level,
		Format: "console",
		Output: "stderr",
	}).With().Str("component", "cli").Logger()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
