// Package cli implements the latex-preview command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"

	"go-latex-preview/internal/config"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "latex-preview",
	Short: "Live HTML preview of LaTeX documents",
	Long: `latex-preview watches a directory of .tex files and renders the
selected document to HTML through pandoc. The preview panel is served to the
browser and refreshes whenever the file changes on disk.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultFile, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig loads the config file and environment overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// NewLogger returns a text logger writing to w at the config's level.
func NewLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.Level()}))
}
