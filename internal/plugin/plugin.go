// Package plugin bridges host lifecycle events to the LaTeX preview view: it
// registers the view type, routes .tex/.latex files to it and exposes the
// ribbon action and palette command that open a preview for the active file.
package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"go-latex-preview/internal/preview"
	"go-latex-preview/internal/vault"
	"go-latex-preview/internal/workspace"
)

const (
	CommandID   = "open-latex-preview"
	CommandName = "Open LaTeX preview for current file"
	RibbonIcon  = "sigma"
	RibbonTitle = "Open LaTeX preview"

	NoFileNotice = "Open a .tex file before launching the preview."
)

// SupportedExtensions are routed to the preview view.
var SupportedExtensions = []string{"tex", "latex"}

// LatexPlugin owns the registrations made on the workspace.
type LatexPlugin struct {
	ws     *workspace.Workspace
	views  preview.Options
	logger *slog.Logger

	ribbon *workspace.RibbonItem
	loaded bool
}

// New returns an unloaded plugin. views configures every preview it creates.
func New(ws *workspace.Workspace, views preview.Options, logger *slog.Logger) *LatexPlugin {
	if logger == nil {
		logger = slog.Default()
	}
	if views.Logger == nil {
		views.Logger = logger
	}
	return &LatexPlugin{ws: ws, views: views, logger: logger}
}

// OnLoad registers the view type, extensions, ribbon action and command.
func (p *LatexPlugin) OnLoad(ctx context.Context) error {
	if p.loaded {
		return nil
	}
	if err := p.ws.RegisterView(preview.ViewType, preview.Creator(p.views)); err != nil {
		return fmt.Errorf("registering view: %w", err)
	}
	if err := p.ws.RegisterExtensions(SupportedExtensions, preview.ViewType); err != nil {
		p.ws.UnregisterView(preview.ViewType)
		return fmt.Errorf("registering extensions: %w", err)
	}

	p.ribbon = p.ws.AddRibbonIcon(RibbonIcon, RibbonTitle, func() {
		if err := p.OpenPreviewForActiveFile(ctx); err != nil {
			p.logger.Error("plugin: opening preview failed", "error", err)
		}
	})

	p.ws.AddCommand(workspace.Command{
		ID:   CommandID,
		Name: CommandName,
		CheckCallback: func(checking bool) bool {
			file := p.ws.ActiveFile()
			if !Supported(file) {
				return false
			}
			if !checking {
				if _, err := p.ActivateView(ctx, file); err != nil {
					p.logger.Error("plugin: opening preview failed", "file", file.Path, "error", err)
				}
			}
			return true
		},
	})

	p.loaded = true
	p.logger.Info("plugin: loaded", "view", preview.ViewType, "extensions", SupportedExtensions)
	return nil
}

// OnUnload detaches every preview leaf and removes the registrations.
func (p *LatexPlugin) OnUnload() {
	if !p.loaded {
		return
	}
	p.ws.DetachLeavesOfType(preview.ViewType)
	p.ws.RemoveCommand(CommandID)
	if p.ribbon != nil {
		p.ws.RemoveRibbonIcon(p.ribbon)
		p.ribbon = nil
	}
	p.ws.UnregisterView(preview.ViewType)
	p.loaded = false
	p.logger.Info("plugin: unloaded")
}

// OpenPreviewForActiveFile activates a preview for the active file, or shows
// a notice when there is no supported active file.
func (p *LatexPlugin) OpenPreviewForActiveFile(ctx context.Context) error {
	file := p.ws.ActiveFile()
	if !Supported(file) {
		p.ws.Notice(NoFileNotice)
		return nil
	}
	_, err := p.ActivateView(ctx, file)
	return err
}

// ActivateView focuses the preview leaf already bound to file, or creates
// one.
func (p *LatexPlugin) ActivateView(ctx context.Context, file *vault.File) (*workspace.Leaf, error) {
	for _, leaf := range p.ws.LeavesOfType(preview.ViewType) {
		v := leaf.View()
		if v == nil {
			continue
		}
		if f := v.File(); f != nil && f.Path == file.Path {
			return leaf, p.ws.RevealLeaf(leaf)
		}
	}

	leaf := p.ws.GetLeaf(true)
	err := leaf.SetViewState(ctx, workspace.ViewState{
		Type:   preview.ViewType,
		File:   file.Path,
		Active: true,
	})
	if err != nil {
		leaf.Detach()
		return nil, fmt.Errorf("opening preview for %s: %w", file.Path, err)
	}
	if err := p.ws.RevealLeaf(leaf); err != nil {
		return nil, err
	}
	return leaf, nil
}

// Supported reports whether f has a previewable extension.
func Supported(f *vault.File) bool {
	return f != nil && slices.Contains(SupportedExtensions, strings.ToLower(f.Extension))
}
