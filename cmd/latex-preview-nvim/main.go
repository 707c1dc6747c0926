package main

import (
	"log/slog"
	"os"

	"go-latex-preview/internal/config"
	"go-latex-preview/internal/nvimhost"

	"github.com/neovim/go-client/nvim/plugin"
)

// Set up the connection to Neovim
// Take the plugin object we register commands
// Keep the connection alive and listen for request
func main() {
	plugin.Main(func(p *plugin.Plugin) error {
		cfg, err := config.Load(config.DefaultFile)
		if err != nil {
			return err
		}
		// stdout carries the RPC stream; logs go to stderr.
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
		logger.Info("[latex-preview] registering handlers")
		return nvimhost.Register(p, nvimhost.Options{Config: cfg, Logger: logger})
	})
}
