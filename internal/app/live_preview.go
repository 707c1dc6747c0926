// Package app wires the vault, workspace, converter, LaTeX plugin and panel
// server into one running preview host.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go-latex-preview/internal/config"
	"go-latex-preview/internal/debounce"
	"go-latex-preview/internal/help"
	"go-latex-preview/internal/latex"
	"go-latex-preview/internal/plugin"
	"go-latex-preview/internal/preview"
	httptransport "go-latex-preview/internal/transport/http"
	"go-latex-preview/internal/vault"
	"go-latex-preview/internal/workspace"
)

// ErrStopped is returned when starting a host that was shut down.
var ErrStopped = errors.New("preview host stopped")

// publishWait coalesces bursts of workspace changes into one state message.
const publishWait = 25 * time.Millisecond

// Options configures a LivePreview.
type Options struct {
	Config *config.Config
	// Converter overrides the pandoc converter built from Config.
	Converter latex.Converter
	// Watch enables the filesystem watcher on the vault root.
	Watch  bool
	Logger *slog.Logger
}

// LivePreview is a coordinator between the workspace and HTTP delivery.
type LivePreview struct {
	cfg    *config.Config
	watch  bool
	logger *slog.Logger

	vault   *vault.Vault
	ws      *workspace.Workspace
	plugin  *plugin.LatexPlugin
	server  *httptransport.PreviewServer
	publish *debounce.Debouncer

	mu      sync.Mutex
	running bool
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
	watched chan struct{}
	fileRef *vault.EventRef
}

// New builds every component from opts. Nothing runs until Start.
func New(opts Options) (*LivePreview, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	v, err := vault.New(cfg.Root, logger)
	if err != nil {
		return nil, fmt.Errorf("opening vault: %w", err)
	}

	conv := opts.Converter
	if conv == nil {
		pc, err := latex.NewPandocConverter(latex.PandocOptions{
			Binary:         cfg.Pandoc,
			HighlightStyle: cfg.HighlightStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("creating converter: %w", err)
		}
		conv = pc
	}

	s := &LivePreview{
		cfg:    cfg,
		watch:  opts.Watch,
		logger: logger,
		vault:  v,
		ws:     workspace.New(workspace.Options{Files: v, Logger: logger}),
	}
	s.plugin = plugin.New(s.ws, preview.Options{
		Source:    v,
		Converter: conv,
		Debounce:  cfg.Debounce,
		Hyphenate: cfg.Hyphenate,
		Logger:    logger,
	}, logger)
	s.server = httptransport.NewPreviewServer(cfg.Addr, httptransport.Options{
		Dispatcher: s,
		Help:       s.renderHelp,
		Logger:     logger,
	})
	s.publish = debounce.New(publishWait, s.publishState)

	s.ws.AddNotifier(workspace.NotifierFunc(s.server.Notice))
	s.ws.OnChange(s.publish.Trigger)
	return s, nil
}

// Vault returns the host file store.
func (s *LivePreview) Vault() *vault.Vault { return s.vault }

// Workspace returns the host UI model.
func (s *LivePreview) Workspace() *workspace.Workspace { return s.ws }

// URL returns the browser URL of the panel server.
func (s *LivePreview) URL() string { return s.server.URL() }

// Start loads the plugin, then starts the watcher and the panel server. The
// plugin's callbacks run under a context that ends with Shutdown.
func (s *LivePreview) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := s.plugin.OnLoad(runCtx); err != nil {
		cancel()
		return fmt.Errorf("loading plugin: %w", err)
	}
	if err := s.server.Start(); err != nil {
		s.plugin.OnUnload()
		cancel()
		return err
	}

	// New or rewritten files change the file list shown in the panel.
	s.fileRef = s.vault.On(vault.EventModify, func(*vault.File) { s.publish.Trigger() })

	s.watched = make(chan struct{})
	if s.watch {
		go func() {
			defer close(s.watched)
			if err := s.vault.Watch(runCtx); err != nil {
				s.logger.Error("app: watcher stopped", "error", err)
			}
		}()
	} else {
		close(s.watched)
	}

	s.ctx, s.cancel = runCtx, cancel
	s.running = true
	s.publish.Trigger()
	s.logger.Info("app: preview host started", "root", s.vault.Root(), "url", s.server.URL())
	return nil
}

// Shutdown unloads the plugin and stops the panel server. A stopped host
// cannot be started again.
func (s *LivePreview) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	s.stopped = true

	s.plugin.OnUnload()
	s.vault.Offref(s.fileRef)
	s.fileRef = nil
	s.publish.Stop()
	s.cancel()
	<-s.watched

	if err := s.server.Stop(ctx); err != nil {
		return fmt.Errorf("stopping panel server: %w", err)
	}
	s.logger.Info("app: preview host stopped")
	return nil
}

// Run starts the host and blocks until ctx is done.
func (s *LivePreview) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.Shutdown(stopCtx)
}

// RunCommand executes a palette command. A command declining to run is
// reported to the user as a notice.
func (s *LivePreview) RunCommand(id string) error {
	ok, err := s.ws.ExecuteCommand(id)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if id == plugin.CommandID {
		s.ws.Notice(plugin.NoFileNotice)
		return nil
	}
	s.ws.Notice(fmt.Sprintf("Command %q is not available right now.", id))
	return nil
}

// SetActivePath makes the vault file at path the active file. Paths outside
// the vault or missing on disk clear the active file.
func (s *LivePreview) SetActivePath(path string) error {
	if path == "" {
		s.ws.SetActiveFile(nil)
		return nil
	}
	f, err := s.vault.GetFile(path)
	if err != nil {
		s.ws.SetActiveFile(nil)
		if errors.Is(err, vault.ErrNotFound) || errors.Is(err, vault.ErrOutsideVault) {
			return nil
		}
		return err
	}
	s.ws.SetActiveFile(f)
	return nil
}

// ExecuteCommand implements httptransport.Dispatcher.
func (s *LivePreview) ExecuteCommand(id string) error { return s.RunCommand(id) }

// ClickRibbon implements httptransport.Dispatcher.
func (s *LivePreview) ClickRibbon(id string) error { return s.ws.ClickRibbon(id) }

// SetActiveFile implements httptransport.Dispatcher.
func (s *LivePreview) SetActiveFile(path string) error { return s.SetActivePath(path) }

// OpenFile implements httptransport.Dispatcher.
func (s *LivePreview) OpenFile(path string) error {
	f, err := s.vault.GetFile(path)
	if err != nil {
		return err
	}
	_, err = s.ws.OpenFile(s.runContext(), f)
	return err
}

// CloseLeaf implements httptransport.Dispatcher.
func (s *LivePreview) CloseLeaf(id string) error {
	leaf, err := s.ws.LeafByID(id)
	if err != nil {
		return err
	}
	leaf.Detach()
	return nil
}

// RevealLeaf implements httptransport.Dispatcher.
func (s *LivePreview) RevealLeaf(id string) error {
	leaf, err := s.ws.LeafByID(id)
	if err != nil {
		return err
	}
	return s.ws.RevealLeaf(leaf)
}

func (s *LivePreview) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

func (s *LivePreview) publishState() {
	state := s.ws.State()

	files, err := s.vault.Files(plugin.SupportedExtensions...)
	if err != nil {
		s.logger.Warn("app: listing files failed", "error", err)
	}
	state.Files = make([]string, 0, len(files))
	for _, f := range files {
		state.Files = append(state.Files, f.Path)
	}
	s.server.Publish(state)
}

func (s *LivePreview) renderHelp() (string, error) {
	return help.Render(help.Page{
		URL:        s.server.URL(),
		Command:    plugin.CommandName,
		Extensions: plugin.SupportedExtensions,
	})
}
