// Package preview implements the read-only LaTeX preview view: it caches the
// bound file's text, re-reads it when the vault reports a modification and
// renders it through a latex.Converter behind a trailing-edge debounce.
package preview

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go-latex-preview/internal/debounce"
	"go-latex-preview/internal/latex"
	"go-latex-preview/internal/panel"
	"go-latex-preview/internal/vault"
	"go-latex-preview/internal/workspace"
)

const (
	// ViewType is the registered view type id.
	ViewType = "latex-preview"

	EmptyMessage   = "This LaTeX file is empty."
	FailureMessage = "Unable to render LaTeX. Check the developer console for details."

	// DefaultDebounce is the quiet period between a reload and its render.
	DefaultDebounce = 200 * time.Millisecond
)

const (
	containerClass = "latex-preview-view"
	messageClass   = "latex-preview-view__message"
	bodyClass      = "latex-preview-view__body"
	assetsClass    = "latex-preview-view__assets"
)

// Source is the part of the vault the view needs.
type Source interface {
	Read(ctx context.Context, f *vault.File) (string, error)
	On(event string, fn func(*vault.File)) *vault.EventRef
	Offref(ref *vault.EventRef)
}

// Options configures a LatexView.
type Options struct {
	Source    Source
	Converter latex.Converter
	// Debounce defaults to DefaultDebounce.
	Debounce  time.Duration
	Hyphenate bool
	Logger    *slog.Logger
}

// LatexView renders the bound .tex file into three regions: a status
// message, the document body and the auxiliary style markup.
type LatexView struct {
	leaf *workspace.Leaf
	opts Options

	container *panel.Container
	messageEl *panel.Element
	bodyEl    *panel.Element
	assetEl   *panel.Element

	renderLater *debounce.Debouncer

	// renderMu orders region commits against unloads and each other.
	renderMu  sync.Mutex
	committed uint64

	mu            sync.Mutex
	file          *vault.File
	currentSource string
	// gen advances on every load, unload and close; a render started under
	// an older gen is discarded.
	gen    uint64
	ticket uint64
	ref    *vault.EventRef
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a view for leaf.
func New(leaf *workspace.Leaf, opts Options) *LatexView {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	container := panel.NewContainer(containerClass)
	v := &LatexView{
		leaf:      leaf,
		opts:      opts,
		container: container,
		messageEl: container.CreateDiv(messageClass),
		bodyEl:    container.CreateDiv(bodyClass),
		assetEl:   container.CreateDiv(assetsClass),
	}
	v.assetEl.SetAttr("aria-hidden", "true")
	v.ctx, v.cancel = context.WithCancel(context.Background())
	v.renderLater = debounce.New(opts.Debounce, v.render)
	return v
}

// Creator returns a workspace.ViewCreator building views with opts.
func Creator(opts Options) workspace.ViewCreator {
	return func(leaf *workspace.Leaf) workspace.View {
		return New(leaf, opts)
	}
}

func (v *LatexView) ViewType() string { return ViewType }

func (v *LatexView) DisplayText() string {
	if f := v.File(); f != nil {
		return fmt.Sprintf("%s (LaTeX preview)", f.Basename)
	}
	return "LaTeX preview"
}

func (v *LatexView) Container() *panel.Container { return v.container }

func (v *LatexView) Leaf() *workspace.Leaf { return v.leaf }

func (v *LatexView) File() *vault.File {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.file
}

// OnOpen subscribes to vault modifications of the bound file.
func (v *LatexView) OnOpen(ctx context.Context) error {
	ref := v.opts.Source.On(vault.EventModify, v.onModify)

	v.mu.Lock()
	v.ref = ref
	v.mu.Unlock()
	return nil
}

// OnClose releases the vault subscription and cancels pending work.
func (v *LatexView) OnClose() error {
	v.mu.Lock()
	ref := v.ref
	v.ref = nil
	v.gen++
	v.mu.Unlock()

	v.opts.Source.Offref(ref)
	v.renderLater.Stop()
	v.cancel()
	return nil
}

// OnLoadFile binds f, reads it and schedules a render.
func (v *LatexView) OnLoadFile(ctx context.Context, f *vault.File) error {
	v.mu.Lock()
	v.file = f
	v.gen++
	v.mu.Unlock()

	return v.reloadFromDisk(ctx)
}

// OnUnloadFile drops the binding, the cached source and every region.
func (v *LatexView) OnUnloadFile(ctx context.Context, f *vault.File) error {
	v.renderLater.Cancel()

	v.renderMu.Lock()
	defer v.renderMu.Unlock()

	v.mu.Lock()
	v.file = nil
	v.currentSource = ""
	v.gen++
	v.mu.Unlock()

	v.container.Batch(v.clearRegions)
	return nil
}

func (v *LatexView) onModify(f *vault.File) {
	current := v.File()
	if current == nil || f.Path != current.Path {
		return
	}
	if err := v.reloadFromDisk(v.ctx); err != nil {
		v.opts.Logger.Warn("preview: reload failed", "file", f.Path, "error", err)
	}
}

func (v *LatexView) reloadFromDisk(ctx context.Context) error {
	v.mu.Lock()
	f := v.file
	gen := v.gen
	v.mu.Unlock()
	if f == nil {
		return nil
	}

	text, err := v.opts.Source.Read(ctx, f)
	if err != nil {
		return fmt.Errorf("reading %s: %w", f.Path, err)
	}

	v.mu.Lock()
	if gen != v.gen {
		// Unloaded or rebound while reading.
		v.mu.Unlock()
		return nil
	}
	v.currentSource = text
	v.mu.Unlock()

	v.renderLater.Trigger()
	return nil
}

func (v *LatexView) render() {
	v.mu.Lock()
	source := v.currentSource
	gen := v.gen
	f := v.file
	v.ticket++
	ticket := v.ticket
	v.mu.Unlock()

	if strings.TrimSpace(source) == "" {
		v.commit(gen, ticket, func() {
			v.messageEl.SetText(EmptyMessage)
		})
		return
	}

	start := time.Now()
	artifact, err := v.opts.Converter.Convert(v.ctx, source, latex.Options{Hyphenate: v.opts.Hyphenate})
	if err != nil {
		path := ""
		if f != nil {
			path = f.Path
		}
		v.opts.Logger.Error("preview: unable to render LaTeX file", "file", path, "error", err)
		v.commit(gen, ticket, func() {
			v.messageEl.SetText(FailureMessage)
		})
		return
	}

	if v.commit(gen, ticket, func() {
		v.bodyEl.SetHTML(artifact.Fragment)
		if artifact.Assets != "" {
			v.assetEl.SetHTML(artifact.Assets)
		}
	}) {
		v.opts.Logger.Debug("preview: rendered", "duration", time.Since(start), "bytes", len(artifact.Fragment))
	}
}

// commit clears the regions and applies fill as one panel change, unless the
// view moved on since the render started or a later render already landed.
func (v *LatexView) commit(gen, ticket uint64, fill func()) bool {
	v.renderMu.Lock()
	defer v.renderMu.Unlock()

	v.mu.Lock()
	stale := gen != v.gen
	v.mu.Unlock()
	if stale || ticket < v.committed {
		return false
	}
	v.committed = ticket

	v.container.Batch(func() {
		v.clearRegions()
		fill()
	})
	return true
}

func (v *LatexView) clearRegions() {
	v.bodyEl.Empty()
	v.assetEl.Empty()
	v.messageEl.Empty()
}
