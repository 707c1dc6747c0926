// Package nvimhost exposes the LaTeX preview host to Neovim as a remote
// plugin: the current buffer is the active file and buffer writes are vault
// modifications.
package nvimhost

import (
	"fmt"
	"log/slog"

	"go-latex-preview/internal/app"
	"go-latex-preview/internal/config"

	"github.com/neovim/go-client/nvim/plugin"
)

// Options configures Register.
type Options struct {
	Config *config.Config
	Logger *slog.Logger
}

// Register builds the preview host and registers Neovim command and
// autocmd handlers.
func Register(p *plugin.Plugin, opts Options) error {
	host, err := app.New(app.Options{
		Config: opts.Config,
		Logger: opts.Logger,
	})
	if err != nil {
		return fmt.Errorf("creating preview host: %w", err)
	}
	commands := NewCommands(host, p.Nvim, opts.Logger)

	p.Handle("poll", func() (string, error) {
		return "ok", nil
	})

	p.HandleCommand(&plugin.CommandOptions{
		Name: "LatexPreview",
	}, commands.LatexPreview)

	p.HandleCommand(&plugin.CommandOptions{
		Name: "LatexPreviewStop",
	}, commands.LatexPreviewStop)

	p.HandleAutocmd(&plugin.AutocmdOptions{
		Event:   "BufEnter",
		Group:   "LatexPreview",
		Pattern: "*",
		Eval:    "*",
	}, commands.BufEnter)

	p.HandleAutocmd(&plugin.AutocmdOptions{
		Event:   "BufWritePost",
		Group:   "LatexPreview",
		Pattern: "*",
		Eval:    "*",
	}, commands.BufWritePost)

	return nil
}
