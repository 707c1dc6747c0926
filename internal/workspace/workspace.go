// Package workspace is the host's UI model: registered view types, the
// leaves that host view instances, the active file, the command palette,
// the ribbon and transient notices.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go-latex-preview/internal/contracts"
	"go-latex-preview/internal/panel"
	"go-latex-preview/internal/vault"
)

var (
	ErrUnknownViewType    = errors.New("unknown view type")
	ErrViewTypeRegistered = errors.New("view type already registered")
	ErrUnknownCommand     = errors.New("unknown command")
	ErrUnknownRibbon      = errors.New("unknown ribbon item")
	ErrUnknownLeaf        = errors.New("unknown leaf")
	ErrNoViewForFile      = errors.New("no view registered for file extension")
	ErrLeafDetached       = errors.New("leaf is detached")
)

// View is a view instance hosted by a leaf.
type View interface {
	ViewType() string
	DisplayText() string
	Container() *panel.Container
	// File returns the bound file, or nil.
	File() *vault.File

	OnOpen(ctx context.Context) error
	OnClose() error
	OnLoadFile(ctx context.Context, f *vault.File) error
	OnUnloadFile(ctx context.Context, f *vault.File) error
}

// ViewCreator builds a view for a leaf.
type ViewCreator func(leaf *Leaf) View

// ViewState selects the view a leaf hosts and the file bound to it.
type ViewState struct {
	Type   string
	File   string
	Active bool
}

// FileResolver resolves vault paths for view state.
type FileResolver interface {
	GetFile(path string) (*vault.File, error)
}

// Notifier displays transient notices.
type Notifier interface {
	Notice(msg string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(msg string)

func (f NotifierFunc) Notice(msg string) { f(msg) }

// Command is a palette entry. When CheckCallback is set it is called with
// checking=true to decide availability and with checking=false to run.
type Command struct {
	ID            string
	Name          string
	Callback      func()
	CheckCallback func(checking bool) bool
}

// RibbonItem is a clickable action in the ribbon.
type RibbonItem struct {
	ID    string
	Icon  string
	Title string

	callback func()
}

// Options configures a Workspace.
type Options struct {
	Files  FileResolver
	Logger *slog.Logger
}

// Workspace owns the leaves and host registries. It is safe for concurrent
// use; view callbacks are never invoked with the workspace lock held.
type Workspace struct {
	files  FileResolver
	logger *slog.Logger

	mu         sync.Mutex
	views      map[string]ViewCreator
	extensions map[string]string
	leaves     []*Leaf
	activeLeaf *Leaf
	activeFile *vault.File
	commands   []Command
	ribbon     []*RibbonItem
	ribbonSeq  int
	notifiers  []Notifier
	listeners  []func()
}

// New returns an empty workspace.
func New(opts Options) *Workspace {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Workspace{
		files:      opts.Files,
		logger:     opts.Logger,
		views:      make(map[string]ViewCreator),
		extensions: make(map[string]string),
	}
}

// RegisterView maps a view type id to its creator.
func (w *Workspace) RegisterView(viewType string, creator ViewCreator) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.views[viewType]; ok {
		return fmt.Errorf("%s: %w", viewType, ErrViewTypeRegistered)
	}
	w.views[viewType] = creator
	return nil
}

// UnregisterView removes a view type and every extension routed to it.
func (w *Workspace) UnregisterView(viewType string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.views, viewType)
	for ext, vt := range w.extensions {
		if vt == viewType {
			delete(w.extensions, ext)
		}
	}
}

// RegisterExtensions routes files with the given extensions to viewType.
func (w *Workspace) RegisterExtensions(exts []string, viewType string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.views[viewType]; !ok {
		return fmt.Errorf("%s: %w", viewType, ErrUnknownViewType)
	}
	for _, ext := range exts {
		w.extensions[strings.ToLower(strings.TrimPrefix(ext, "."))] = viewType
	}
	return nil
}

// ViewTypeForExtension returns the view type registered for ext.
func (w *Workspace) ViewTypeForExtension(ext string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	vt, ok := w.extensions[strings.ToLower(ext)]
	return vt, ok
}

// ActiveFile returns the file the user is working on, or nil.
func (w *Workspace) ActiveFile() *vault.File {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.activeFile
}

// SetActiveFile changes the active file. A nil file clears it.
func (w *Workspace) SetActiveFile(f *vault.File) {
	w.mu.Lock()
	w.activeFile = f
	w.mu.Unlock()
	w.changed()
}

// GetLeaf returns a new leaf when newLeaf is set, otherwise the active leaf
// (creating one if the workspace has none).
func (w *Workspace) GetLeaf(newLeaf bool) *Leaf {
	w.mu.Lock()
	if !newLeaf && w.activeLeaf != nil {
		l := w.activeLeaf
		w.mu.Unlock()
		return l
	}
	l := newLeafFor(w)
	w.leaves = append(w.leaves, l)
	if w.activeLeaf == nil {
		w.activeLeaf = l
	}
	w.mu.Unlock()

	w.logger.Debug("workspace: leaf created", "leaf", l.id)
	w.changed()
	return l
}

// Leaves returns every attached leaf in creation order.
func (w *Workspace) Leaves() []*Leaf {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*Leaf, len(w.leaves))
	copy(out, w.leaves)
	return out
}

// LeafByID finds an attached leaf.
func (w *Workspace) LeafByID(id string) (*Leaf, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, l := range w.leaves {
		if l.id == id {
			return l, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", id, ErrUnknownLeaf)
}

// LeavesOfType returns the attached leaves hosting viewType.
func (w *Workspace) LeavesOfType(viewType string) []*Leaf {
	var out []*Leaf
	for _, l := range w.Leaves() {
		if v := l.View(); v != nil && v.ViewType() == viewType {
			out = append(out, l)
		}
	}
	return out
}

// ActiveLeaf returns the focused leaf, or nil.
func (w *Workspace) ActiveLeaf() *Leaf {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.activeLeaf
}

// RevealLeaf focuses leaf and makes its file the active file.
func (w *Workspace) RevealLeaf(leaf *Leaf) error {
	w.mu.Lock()
	if !w.attachedLocked(leaf) {
		w.mu.Unlock()
		return fmt.Errorf("%s: %w", leaf.id, ErrLeafDetached)
	}
	w.activeLeaf = leaf
	if v := leaf.View(); v != nil && v.File() != nil {
		w.activeFile = v.File()
	}
	w.mu.Unlock()

	w.changed()
	return nil
}

// DetachLeavesOfType detaches every leaf hosting viewType.
func (w *Workspace) DetachLeavesOfType(viewType string) {
	for _, l := range w.LeavesOfType(viewType) {
		l.Detach()
	}
}

// OpenFile opens f in a new leaf using the view registered for its extension.
func (w *Workspace) OpenFile(ctx context.Context, f *vault.File) (*Leaf, error) {
	viewType, ok := w.ViewTypeForExtension(f.Extension)
	if !ok {
		return nil, fmt.Errorf("%s: %w", f.Path, ErrNoViewForFile)
	}
	leaf := w.GetLeaf(true)
	if err := leaf.SetViewState(ctx, ViewState{Type: viewType, File: f.Path, Active: true}); err != nil {
		leaf.Detach()
		return nil, err
	}
	if err := w.RevealLeaf(leaf); err != nil {
		return nil, err
	}
	return leaf, nil
}

// AddCommand registers a palette command, replacing one with the same id.
func (w *Workspace) AddCommand(cmd Command) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, c := range w.commands {
		if c.ID == cmd.ID {
			w.commands[i] = cmd
			return
		}
	}
	w.commands = append(w.commands, cmd)
}

// RemoveCommand unregisters a palette command.
func (w *Workspace) RemoveCommand(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, c := range w.commands {
		if c.ID == id {
			w.commands = append(w.commands[:i:i], w.commands[i+1:]...)
			return
		}
	}
}

// Commands returns the registered palette commands.
func (w *Workspace) Commands() []Command {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Command, len(w.commands))
	copy(out, w.commands)
	return out
}

// CommandAvailable reports whether the command can run now.
func (w *Workspace) CommandAvailable(id string) (bool, error) {
	cmd, err := w.command(id)
	if err != nil {
		return false, err
	}
	return available(cmd), nil
}

// ExecuteCommand runs a palette command. It reports false when the command's
// check callback declined to run.
func (w *Workspace) ExecuteCommand(id string) (bool, error) {
	cmd, err := w.command(id)
	if err != nil {
		return false, err
	}
	if cmd.CheckCallback != nil {
		if !cmd.CheckCallback(true) {
			w.logger.Debug("workspace: command unavailable", "command", id)
			return false, nil
		}
		cmd.CheckCallback(false)
		return true, nil
	}
	if cmd.Callback != nil {
		cmd.Callback()
	}
	return true, nil
}

func (w *Workspace) command(id string) (Command, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, c := range w.commands {
		if c.ID == id {
			return c, nil
		}
	}
	return Command{}, fmt.Errorf("%s: %w", id, ErrUnknownCommand)
}

func available(cmd Command) bool {
	if cmd.CheckCallback != nil {
		return cmd.CheckCallback(true)
	}
	return true
}

// AddRibbonIcon adds a ribbon action.
func (w *Workspace) AddRibbonIcon(icon, title string, callback func()) *RibbonItem {
	w.mu.Lock()
	w.ribbonSeq++
	item := &RibbonItem{
		ID:       fmt.Sprintf("%s-%d", icon, w.ribbonSeq),
		Icon:     icon,
		Title:    title,
		callback: callback,
	}
	w.ribbon = append(w.ribbon, item)
	w.mu.Unlock()

	w.changed()
	return item
}

// RemoveRibbonIcon removes a ribbon action.
func (w *Workspace) RemoveRibbonIcon(item *RibbonItem) {
	w.mu.Lock()
	for i, r := range w.ribbon {
		if r == item {
			w.ribbon = append(w.ribbon[:i:i], w.ribbon[i+1:]...)
			break
		}
	}
	w.mu.Unlock()
	w.changed()
}

// RibbonItems returns the ribbon actions in insertion order.
func (w *Workspace) RibbonItems() []*RibbonItem {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*RibbonItem, len(w.ribbon))
	copy(out, w.ribbon)
	return out
}

// ClickRibbon invokes a ribbon action by id.
func (w *Workspace) ClickRibbon(id string) error {
	w.mu.Lock()
	var item *RibbonItem
	for _, r := range w.ribbon {
		if r.ID == id {
			item = r
			break
		}
	}
	w.mu.Unlock()

	if item == nil {
		return fmt.Errorf("%s: %w", id, ErrUnknownRibbon)
	}
	if item.callback != nil {
		item.callback()
	}
	return nil
}

// AddNotifier registers a notice sink.
func (w *Workspace) AddNotifier(n Notifier) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.notifiers = append(w.notifiers, n)
}

// Notice shows a transient message on every notifier.
func (w *Workspace) Notice(msg string) {
	w.mu.Lock()
	ns := make([]Notifier, len(w.notifiers))
	copy(ns, w.notifiers)
	w.mu.Unlock()

	w.logger.Info("workspace: notice", "message", msg)
	for _, n := range ns {
		n.Notice(msg)
	}
}

// OnChange registers fn to run after leaf layout, registry or panel changes.
func (w *Workspace) OnChange(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// State returns the wire form of the workspace. Files and Rev are left for
// the caller to fill.
func (w *Workspace) State() contracts.StateMessage {
	w.mu.Lock()
	leaves := make([]*Leaf, len(w.leaves))
	copy(leaves, w.leaves)
	active := w.activeLeaf
	activeFile := w.activeFile
	ribbon := make([]*RibbonItem, len(w.ribbon))
	copy(ribbon, w.ribbon)
	commands := make([]Command, len(w.commands))
	copy(commands, w.commands)
	w.mu.Unlock()

	state := contracts.StateMessage{
		Type:     contracts.MessageTypeState,
		Leaves:   make([]contracts.LeafState, 0, len(leaves)),
		Ribbon:   make([]contracts.RibbonState, 0, len(ribbon)),
		Commands: make([]contracts.CommandState, 0, len(commands)),
	}
	if activeFile != nil {
		state.ActiveFile = activeFile.Path
	}
	for _, l := range leaves {
		ls := contracts.LeafState{ID: l.id, Active: l == active, Title: "New tab"}
		if v := l.View(); v != nil {
			ls.ViewType = v.ViewType()
			ls.Title = v.DisplayText()
			ls.Panel = v.Container().Snapshot()
			if f := v.File(); f != nil {
				ls.File = f.Path
			}
		}
		state.Leaves = append(state.Leaves, ls)
	}
	for _, r := range ribbon {
		state.Ribbon = append(state.Ribbon, contracts.RibbonState{ID: r.ID, Icon: r.Icon, Title: r.Title})
	}
	for _, c := range commands {
		state.Commands = append(state.Commands, contracts.CommandState{
			ID:        c.ID,
			Name:      c.Name,
			Available: available(c),
		})
	}
	return state
}

func (w *Workspace) attachedLocked(leaf *Leaf) bool {
	for _, l := range w.leaves {
		if l == leaf {
			return true
		}
	}
	return false
}

func (w *Workspace) remove(leaf *Leaf) bool {
	w.mu.Lock()
	found := false
	for i, l := range w.leaves {
		if l == leaf {
			w.leaves = append(w.leaves[:i:i], w.leaves[i+1:]...)
			found = true
			break
		}
	}
	if found && w.activeLeaf == leaf {
		w.activeLeaf = nil
		if n := len(w.leaves); n > 0 {
			w.activeLeaf = w.leaves[n-1]
		}
	}
	w.mu.Unlock()
	return found
}

func (w *Workspace) resolve(path string) (*vault.File, error) {
	if w.files == nil {
		return nil, fmt.Errorf("%s: %w", path, vault.ErrNotFound)
	}
	return w.files.GetFile(path)
}

func (w *Workspace) creator(viewType string) (ViewCreator, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	c, ok := w.views[viewType]
	if !ok {
		return nil, fmt.Errorf("%s: %w", viewType, ErrUnknownViewType)
	}
	return c, nil
}

func (w *Workspace) changed() {
	w.mu.Lock()
	ls := make([]func(), len(w.listeners))
	copy(ls, w.listeners)
	w.mu.Unlock()

	for _, l := range ls {
		l()
	}
}
