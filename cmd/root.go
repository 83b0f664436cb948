// Package cmd provides the syncrules command-line interface.
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/syncrules/cloudsync/internal/config"
	"github.com/syncrules/cloudsync/internal/logger"
)

var (
	cfgPath   string
	logLevel  string
	logFormat string
	cfg       *config.Config
	logOutput io.Writer = os.Stderr
)

var rootCmd = &cobra.Command{
	Use:   "syncrules",
	Short: "Bidirectional sync between a local directory and Google Drive",
	Long: `syncrules reconciles a local directory tree against a Google Drive
folder, keeping both sides converged without a server in the middle.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfigAndLogger,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config.yaml (default: searches standard locations)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text, json")
}

// loadConfigAndLogger is the PersistentPreRunE shared by every subcommand:
// it initializes the global logger first so config-loading errors are
// themselves logged, then loads and validates the config file.
func loadConfigAndLogger(c *cobra.Command, args []string) error {
	if err := logger.Init(logger.Config{
		Level:  logger.ParseLevel(logLevel),
		Format: logger.ParseFormat(logFormat),
		Outputs: []logger.OutputConfig{
			{Type: logger.OutputStderr, Writer: logOutput},
		},
	}); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}

	// "config validate" loads the config file itself, so it skips this.
	if c.Annotations["skip-config-load"] == "true" {
		return nil
	}

	loaded, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg = loaded
	return nil
}
