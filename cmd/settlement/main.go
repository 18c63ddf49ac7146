// Package main is the entry point of the settlement tool: run a campaign settlement from
// the command line, serve runs over HTTP, or verify the engine on the two-grower campaign.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/aristath/settlement/internal/config"
	"github.com/aristath/settlement/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	logLevel string
	verbose  bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "settlement",
	Short: "Campaign settlement engine",
	Long: `settlement computes the final price per week, commercial group and grade of a
cooperative campaign from delivered weights, reference prices and certification bonuses.

Source databases and output locations are read from the environment (.env supported).
Campaign parameters are read from a YAML campaign file.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(runCmd, serveCmd, checksCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads environment configuration and applies the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// newLogger builds the process logger. file, when set, receives a JSON copy of every line.
func newLogger(cfg *config.Config, file string) (zerolog.Logger, io.Closer, error) {
	log, closer, err := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
		File:   file,
		Out:    os.Stderr,
	})
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	logger.SetGlobalLogger(log)
	return log, closer, nil
}
