package nvimhost

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go-latex-preview/internal/app"
	"go-latex-preview/internal/plugin"
	"go-latex-preview/internal/preview"
	"go-latex-preview/internal/workspace"

	"github.com/neovim/go-client/nvim"
)

const messagePrefix = "[latex-preview] "

// editor is the part of the Neovim API the handlers use.
type editor interface {
	BufferName(buffer nvim.Buffer) (string, error)
	Command(cmd string) error
}

// bufEval carries the buffer path an autocmd fired for.
type bufEval struct {
	Path string `eval:"expand('<afile>:p')"`
}

// Commands is a state container for Neovim command handlers. It starts the
// preview host on first use and forwards buffer events to it.
type Commands struct {
	host   *app.LivePreview
	ed     editor
	logger *slog.Logger

	mu      sync.Mutex
	started bool
}

// NewCommands returns handlers bound to host. Notices are echoed through ed.
func NewCommands(host *app.LivePreview, ed editor, logger *slog.Logger) *Commands {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Commands{host: host, ed: ed, logger: logger}
	host.Workspace().AddNotifier(workspace.NotifierFunc(c.echo))
	return c
}

// LatexPreview makes the current buffer the active file and runs the
// preview command.
func (c *Commands) LatexPreview(v *nvim.Nvim) error {
	return c.openPreview(v)
}

// LatexPreviewStop closes every preview leaf. The panel server keeps running.
func (c *Commands) LatexPreviewStop(v *nvim.Nvim) error {
	if !c.isStarted() {
		return nil
	}
	c.host.Workspace().DetachLeavesOfType(preview.ViewType)
	return nil
}

// BufEnter tracks the active file.
func (c *Commands) BufEnter(eval *bufEval) {
	if !c.isStarted() {
		return
	}
	if err := c.host.SetActivePath(eval.Path); err != nil {
		c.logger.Warn("nvimhost: setting active file failed", "path", eval.Path, "error", err)
	}
}

// BufWritePost reports the written file to the vault.
func (c *Commands) BufWritePost(eval *bufEval) {
	if !c.isStarted() || eval.Path == "" {
		return
	}
	c.host.Vault().NotifyModified(eval.Path)
}

// Shutdown stops the preview host if it was started.
func (c *Commands) Shutdown(ctx context.Context) error {
	if !c.isStarted() {
		return nil
	}
	return c.host.Shutdown(ctx)
}

func (c *Commands) openPreview(ed editor) error {
	if err := c.ensureStarted(); err != nil {
		return err
	}

	path, err := c.currentPath(ed)
	if err != nil {
		return err
	}
	if err := c.host.SetActivePath(path); err != nil {
		return err
	}
	if err := c.host.RunCommand(plugin.CommandID); err != nil {
		return err
	}
	return ed.Command(fmt.Sprintf(`echom "%spreview: %s"`, messagePrefix, c.host.URL()))
}

func (c *Commands) ensureStarted() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}
	if err := c.host.Start(context.Background()); err != nil {
		return fmt.Errorf("starting preview host: %w", err)
	}
	c.started = true
	return nil
}

func (c *Commands) isStarted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

func (c *Commands) currentPath(ed editor) (string, error) {
	absPath, err := ed.BufferName(0)
	if err != nil {
		return "", err
	}
	return absPath, nil
}

// echo shows msg in the message area.
func (c *Commands) echo(msg string) {
	if err := c.ed.Command("echom " + vimString(messagePrefix+msg)); err != nil {
		c.logger.Warn("nvimhost: echo failed", "message", msg, "error", err)
	}
}

// vimString quotes s as a single-quoted Vim string literal.
func vimString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
