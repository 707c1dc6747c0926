// Package vault is the host's document store: a directory of files addressed
// by slash-separated paths relative to the root, plus modify notifications.
package vault

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

var (
	ErrNotFound     = errors.New("file not found in vault")
	ErrOutsideVault = errors.New("path escapes the vault root")
)

// EventModify fires when a file's content changed on disk.
const EventModify = "modify"

// File identifies a document in the vault.
type File struct {
	// Path is relative to the vault root and uses forward slashes.
	Path      string
	Name      string
	Basename  string
	Extension string
}

func newFile(rel string) *File {
	name := path.Base(rel)
	ext := strings.TrimPrefix(path.Ext(name), ".")
	return &File{
		Path:      rel,
		Name:      name,
		Basename:  strings.TrimSuffix(name, path.Ext(name)),
		Extension: strings.ToLower(ext),
	}
}

// EventRef is returned by On and releases the subscription via Offref.
type EventRef struct {
	id    uint64
	event string
}

type handler struct {
	id uint64
	fn func(*File)
}

// Vault reads files under a root directory. It never writes them.
type Vault struct {
	root   string
	logger *slog.Logger

	mu       sync.Mutex
	nextID   uint64
	handlers map[string][]handler
}

// New returns a vault rooted at root. A nil logger uses slog.Default.
func New(root string, logger *slog.Logger) (*Vault, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving vault root %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("accessing vault root %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault root %s is not a directory", abs)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Vault{
		root:     abs,
		logger:   logger,
		handlers: make(map[string][]handler),
	}, nil
}

// Root returns the absolute root directory.
func (v *Vault) Root() string { return v.root }

// Rel converts an absolute or root-relative OS path into a vault path.
func (v *Vault) Rel(p string) (string, error) {
	if p == "" {
		return "", ErrNotFound
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(v.root, filepath.FromSlash(p))
	}
	rel, err := filepath.Rel(v.root, filepath.Clean(p))
	if err != nil {
		return "", fmt.Errorf("%s: %w", p, ErrOutsideVault)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s: %w", p, ErrOutsideVault)
	}
	return filepath.ToSlash(rel), nil
}

// GetFile resolves a vault path (or an absolute path inside the root).
func (v *Vault) GetFile(p string) (*File, error) {
	rel, err := v.Rel(p)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(v.abs(rel))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", rel, ErrNotFound)
		}
		return nil, fmt.Errorf("stat %s: %w", rel, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory: %w", rel, ErrNotFound)
	}
	return newFile(rel), nil
}

// Read returns the full text content of f.
func (v *Vault) Read(ctx context.Context, f *File) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(v.abs(f.Path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%s: %w", f.Path, ErrNotFound)
		}
		return "", fmt.Errorf("reading %s: %w", f.Path, err)
	}
	return string(data), nil
}

// Files lists every file in the vault whose extension is in exts (all files
// when exts is empty), sorted by path. Hidden directories are skipped.
func (v *Vault) Files(exts ...string) ([]*File, error) {
	want := make(map[string]bool, len(exts))
	for _, e := range exts {
		want[strings.ToLower(e)] = true
	}

	var files []*File
	err := filepath.WalkDir(v.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != v.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(v.root, p)
		if err != nil {
			return err
		}
		f := newFile(filepath.ToSlash(rel))
		if len(want) == 0 || want[f.Extension] {
			files = append(files, f)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing vault: %w", err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// On subscribes fn to event. Handlers run synchronously in registration order
// on the goroutine that publishes the event.
func (v *Vault) On(event string, fn func(*File)) *EventRef {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.nextID++
	v.handlers[event] = append(v.handlers[event], handler{id: v.nextID, fn: fn})
	return &EventRef{id: v.nextID, event: event}
}

// Offref releases a subscription. Releasing twice is a no-op.
func (v *Vault) Offref(ref *EventRef) {
	if ref == nil {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	hs := v.handlers[ref.event]
	for i, h := range hs {
		if h.id == ref.id {
			v.handlers[ref.event] = append(hs[:i:i], hs[i+1:]...)
			return
		}
	}
}

// NotifyModified publishes a modify event for p. Editor hosts call this when
// they know a buffer was written; Watch calls it for disk events.
func (v *Vault) NotifyModified(p string) {
	rel, err := v.Rel(p)
	if err != nil {
		v.logger.Debug("vault: ignoring modify outside root", "path", p)
		return
	}
	v.trigger(EventModify, newFile(rel))
}

func (v *Vault) trigger(event string, f *File) {
	v.mu.Lock()
	hs := make([]handler, len(v.handlers[event]))
	copy(hs, v.handlers[event])
	v.mu.Unlock()

	for _, h := range hs {
		h.fn(f)
	}
}

func (v *Vault) abs(rel string) string {
	return filepath.Join(v.root, filepath.FromSlash(rel))
}
