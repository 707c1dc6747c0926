package workspace

import (
	"context"
	"fmt"
	"sync"

	"go-latex-preview/internal/vault"

	"github.com/google/uuid"
)

// Leaf is a UI slot hosting at most one view.
type Leaf struct {
	id string
	ws *Workspace

	// op serialises view transitions; mu guards the fields below.
	op sync.Mutex

	mu       sync.Mutex
	view     View
	detached bool
}

func newLeafFor(w *Workspace) *Leaf {
	return &Leaf{id: uuid.NewString(), ws: w}
}

// ID returns the leaf's stable identifier.
func (l *Leaf) ID() string { return l.id }

// View returns the hosted view, or nil for an empty leaf.
func (l *Leaf) View() View {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.view
}

// Detached reports whether the leaf was removed from the workspace.
func (l *Leaf) Detached() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.detached
}

// SetViewState replaces the hosted view. The previous view unloads its file
// and closes before the new one opens; the new view then loads st.File.
func (l *Leaf) SetViewState(ctx context.Context, st ViewState) error {
	creator, err := l.ws.creator(st.Type)
	if err != nil {
		return err
	}
	var target *vault.File
	if st.File != "" {
		if target, err = l.ws.resolve(st.File); err != nil {
			return err
		}
	}

	l.op.Lock()
	defer l.op.Unlock()

	if l.Detached() {
		return fmt.Errorf("%s: %w", l.id, ErrLeafDetached)
	}

	if old := l.swap(nil); old != nil {
		l.closeView(ctx, old)
	}

	view := creator(l)
	view.Container().OnChange(l.ws.changed)
	if err := view.OnOpen(ctx); err != nil {
		_ = view.OnClose()
		return fmt.Errorf("opening %s view: %w", st.Type, err)
	}
	l.swap(view)

	if target != nil {
		if err := view.OnLoadFile(ctx, target); err != nil {
			l.ws.logger.Warn("workspace: loading file failed", "leaf", l.id, "file", target.Path, "error", err)
		}
	}

	if st.Active {
		return l.ws.RevealLeaf(l)
	}
	l.ws.changed()
	return nil
}

// Detach closes the hosted view and removes the leaf from the workspace.
func (l *Leaf) Detach() {
	l.op.Lock()
	defer l.op.Unlock()

	l.mu.Lock()
	if l.detached {
		l.mu.Unlock()
		return
	}
	l.detached = true
	old := l.view
	l.view = nil
	l.mu.Unlock()

	if old != nil {
		l.closeView(context.Background(), old)
	}
	if l.ws.remove(l) {
		l.ws.logger.Debug("workspace: leaf detached", "leaf", l.id)
	}
	l.ws.changed()
}

func (l *Leaf) swap(v View) View {
	l.mu.Lock()
	defer l.mu.Unlock()
	old := l.view
	l.view = v
	return old
}

func (l *Leaf) closeView(ctx context.Context, v View) {
	if f := v.File(); f != nil {
		if err := v.OnUnloadFile(ctx, f); err != nil {
			l.ws.logger.Warn("workspace: unloading file failed", "leaf", l.id, "file", f.Path, "error", err)
		}
	}
	if err := v.OnClose(); err != nil {
		l.ws.logger.Warn("workspace: closing view failed", "leaf", l.id, "view", v.ViewType(), "error", err)
	}
}
