package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-latex-preview/internal/app"
	"go-latex-preview/internal/config"
	"go-latex-preview/internal/plugin"

	"github.com/spf13/cobra"
)

var serveFlags struct {
	root      string
	addr      string
	debounce  time.Duration
	hyphenate bool
	pandoc    string
}

var serveCmd = &cobra.Command{
	Use:   "serve [file]",
	Short: "Serve the preview panel for a directory of LaTeX files",
	Long: `Starts the preview panel on a loopback address. When a file is given it
becomes the active file and its preview is opened right away; otherwise pick
a file in the browser and use the ribbon action or the command list.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		applyServeFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		logger := NewLogger(os.Stderr, cfg)
		host, err := app.New(app.Options{Config: cfg, Watch: true, Logger: logger})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := host.Start(ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "latex-preview serving %s at %s\n", host.Vault().Root(), host.URL())

		if len(args) == 1 {
			if err := host.SetActivePath(args[0]); err != nil {
				logger.Warn("serve: setting active file failed", "path", args[0], "error", err)
			}
			if err := host.RunCommand(plugin.CommandID); err != nil {
				logger.Warn("serve: opening preview failed", "path", args[0], "error", err)
			}
		}

		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return host.Shutdown(stopCtx)
	},
}

// applyServeFlags overlays explicitly set flags on cfg.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("root") {
		cfg.Root = serveFlags.root
	}
	if flags.Changed("addr") {
		cfg.Addr = serveFlags.addr
	}
	if flags.Changed("debounce") {
		cfg.Debounce = serveFlags.debounce
	}
	if flags.Changed("hyphenate") {
		cfg.Hyphenate = serveFlags.hyphenate
	}
	if flags.Changed("pandoc") {
		cfg.Pandoc = serveFlags.pandoc
	}
}

func init() {
	defaults := config.Default()
	serveCmd.Flags().StringVar(&serveFlags.root, "root", defaults.Root, "directory holding the LaTeX files")
	serveCmd.Flags().StringVar(&serveFlags.addr, "addr", defaults.Addr, "panel server address")
	serveCmd.Flags().DurationVar(&serveFlags.debounce, "debounce", defaults.Debounce, "quiet period before re-rendering")
	serveCmd.Flags().BoolVar(&serveFlags.hyphenate, "hyphenate", defaults.Hyphenate, "enable hyphenation in the rendered document")
	serveCmd.Flags().StringVar(&serveFlags.pandoc, "pandoc", defaults.Pandoc, "pandoc executable")
	rootCmd.AddCommand(serveCmd)
}
