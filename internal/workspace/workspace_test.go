package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"go-latex-preview/internal/panel"
	"go-latex-preview/internal/vault"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubView records lifecycle calls.
type stubView struct {
	viewType  string
	container *panel.Container

	mu     sync.Mutex
	file   *vault.File
	events []string
}

func (v *stubView) ViewType() string            { return v.viewType }
func (v *stubView) Container() *panel.Container { return v.container }

func (v *stubView) DisplayText() string {
	if f := v.File(); f != nil {
		return f.Basename
	}
	return "stub"
}

func (v *stubView) File() *vault.File {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.file
}

func (v *stubView) record(e string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.events = append(v.events, e)
}

func (v *stubView) log() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.events...)
}

func (v *stubView) OnOpen(context.Context) error { v.record("open"); return nil }
func (v *stubView) OnClose() error               { v.record("close"); return nil }

func (v *stubView) OnLoadFile(_ context.Context, f *vault.File) error {
	v.mu.Lock()
	v.file = f
	v.mu.Unlock()
	v.record("load:" + f.Path)
	return nil
}

func (v *stubView) OnUnloadFile(_ context.Context, f *vault.File) error {
	v.mu.Lock()
	v.file = nil
	v.mu.Unlock()
	v.record("unload:" + f.Path)
	return nil
}

type testEnv struct {
	ws    *Workspace
	vault *vault.Vault
	views []*stubView
}

func newTestEnv(t *testing.T, files ...string) *testEnv {
	t.Helper()
	root := t.TempDir()
	for _, name := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(name), 0o644))
	}
	v, err := vault.New(root, nil)
	require.NoError(t, err)

	env := &testEnv{vault: v, ws: New(Options{Files: v})}
	require.NoError(t, env.ws.RegisterView("stub", func(*Leaf) View {
		sv := &stubView{viewType: "stub", container: panel.NewContainer("stub")}
		env.views = append(env.views, sv)
		return sv
	}))
	return env
}

func (e *testEnv) file(t *testing.T, p string) *vault.File {
	t.Helper()
	f, err := e.vault.GetFile(p)
	require.NoError(t, err)
	return f
}

func TestRegisterView(t *testing.T) {
	env := newTestEnv(t)

	err := env.ws.RegisterView("stub", func(*Leaf) View { return nil })
	assert.ErrorIs(t, err, ErrViewTypeRegistered)

	err = env.ws.RegisterExtensions([]string{"tex"}, "missing")
	assert.ErrorIs(t, err, ErrUnknownViewType)

	require.NoError(t, env.ws.RegisterExtensions([]string{".TeX", "latex"}, "stub"))
	vt, ok := env.ws.ViewTypeForExtension("tex")
	assert.True(t, ok)
	assert.Equal(t, "stub", vt)

	env.ws.UnregisterView("stub")
	_, ok = env.ws.ViewTypeForExtension("latex")
	assert.False(t, ok)
}

func TestGetLeaf(t *testing.T) {
	env := newTestEnv(t)

	first := env.ws.GetLeaf(false)
	assert.Same(t, first, env.ws.GetLeaf(false))
	assert.Same(t, first, env.ws.ActiveLeaf())

	second := env.ws.GetLeaf(true)
	assert.NotSame(t, first, second)
	assert.Len(t, env.ws.Leaves(), 2)

	found, err := env.ws.LeafByID(second.ID())
	require.NoError(t, err)
	assert.Same(t, second, found)

	_, err = env.ws.LeafByID("nope")
	assert.ErrorIs(t, err, ErrUnknownLeaf)
}

func TestSetViewState_Lifecycle(t *testing.T) {
	env := newTestEnv(t, "a.tex", "b.tex")
	ctx := context.Background()
	leaf := env.ws.GetLeaf(true)

	require.NoError(t, leaf.SetViewState(ctx, ViewState{Type: "stub", File: "a.tex", Active: true}))
	require.Len(t, env.views, 1)
	assert.Equal(t, []string{"open", "load:a.tex"}, env.views[0].log())
	assert.Equal(t, "a.tex", env.ws.ActiveFile().Path)

	require.NoError(t, leaf.SetViewState(ctx, ViewState{Type: "stub", File: "b.tex"}))
	require.Len(t, env.views, 2)
	assert.Equal(t, []string{"open", "load:a.tex", "unload:a.tex", "close"}, env.views[0].log())
	assert.Equal(t, []string{"open", "load:b.tex"}, env.views[1].log())

	err := leaf.SetViewState(ctx, ViewState{Type: "unknown"})
	assert.ErrorIs(t, err, ErrUnknownViewType)

	err = leaf.SetViewState(ctx, ViewState{Type: "stub", File: "missing.tex"})
	assert.ErrorIs(t, err, vault.ErrNotFound)
	assert.Same(t, env.views[1], leaf.View())
}

func TestDetachLeavesOfType(t *testing.T) {
	env := newTestEnv(t, "a.tex")
	ctx := context.Background()

	empty := env.ws.GetLeaf(true)
	stub := env.ws.GetLeaf(true)
	require.NoError(t, stub.SetViewState(ctx, ViewState{Type: "stub", File: "a.tex", Active: true}))

	env.ws.DetachLeavesOfType("stub")

	assert.True(t, stub.Detached())
	assert.Equal(t, []*Leaf{empty}, env.ws.Leaves())
	assert.Same(t, empty, env.ws.ActiveLeaf())
	assert.Equal(t, []string{"open", "load:a.tex", "unload:a.tex", "close"}, env.views[0].log())

	err := stub.SetViewState(ctx, ViewState{Type: "stub"})
	assert.ErrorIs(t, err, ErrLeafDetached)
	assert.ErrorIs(t, env.ws.RevealLeaf(stub), ErrLeafDetached)
}

func TestOpenFile(t *testing.T) {
	env := newTestEnv(t, "a.tex", "notes.md")
	require.NoError(t, env.ws.RegisterExtensions([]string{"tex"}, "stub"))
	ctx := context.Background()

	leaf, err := env.ws.OpenFile(ctx, env.file(t, "a.tex"))
	require.NoError(t, err)
	assert.Equal(t, "stub", leaf.View().ViewType())
	assert.Same(t, leaf, env.ws.ActiveLeaf())

	_, err = env.ws.OpenFile(ctx, env.file(t, "notes.md"))
	assert.ErrorIs(t, err, ErrNoViewForFile)
}

func TestCommands(t *testing.T) {
	env := newTestEnv(t)
	var ran []string

	env.ws.AddCommand(Command{ID: "plain", Name: "Plain", Callback: func() { ran = append(ran, "plain") }})
	allowed := false
	env.ws.AddCommand(Command{ID: "checked", Name: "Checked", CheckCallback: func(checking bool) bool {
		if !allowed {
			return false
		}
		if !checking {
			ran = append(ran, "checked")
		}
		return true
	}})

	ok, err := env.ws.ExecuteCommand("plain")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = env.ws.ExecuteCommand("checked")
	require.NoError(t, err)
	assert.False(t, ok)

	allowed = true
	ok, err = env.ws.ExecuteCommand("checked")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"plain", "checked"}, ran)

	_, err = env.ws.ExecuteCommand("missing")
	assert.ErrorIs(t, err, ErrUnknownCommand)

	env.ws.AddCommand(Command{ID: "plain", Name: "Renamed"})
	assert.Len(t, env.ws.Commands(), 2)
	env.ws.RemoveCommand("plain")
	assert.Len(t, env.ws.Commands(), 1)
}

func TestRibbonAndNotices(t *testing.T) {
	env := newTestEnv(t)
	clicks := 0
	item := env.ws.AddRibbonIcon("sigma", "Open", func() { clicks++ })

	require.NoError(t, env.ws.ClickRibbon(item.ID))
	assert.Equal(t, 1, clicks)
	assert.True(t, errors.Is(env.ws.ClickRibbon("nope"), ErrUnknownRibbon))

	env.ws.RemoveRibbonIcon(item)
	assert.Empty(t, env.ws.RibbonItems())

	var got []string
	env.ws.AddNotifier(NotifierFunc(func(msg string) { got = append(got, msg) }))
	env.ws.Notice("hello")
	assert.Equal(t, []string{"hello"}, got)
}

func TestState(t *testing.T) {
	env := newTestEnv(t, "thesis.tex")
	ctx := context.Background()

	changes := 0
	env.ws.OnChange(func() { changes++ })

	env.ws.AddRibbonIcon("sigma", "Open", nil)
	env.ws.AddCommand(Command{ID: "cmd", Name: "Cmd", CheckCallback: func(bool) bool { return false }})
	leaf := env.ws.GetLeaf(true)
	require.NoError(t, leaf.SetViewState(ctx, ViewState{Type: "stub", File: "thesis.tex", Active: true}))
	assert.Positive(t, changes)

	state := env.ws.State()
	assert.Equal(t, "state", state.Type)
	assert.Equal(t, "thesis.tex", state.ActiveFile)
	require.Len(t, state.Leaves, 1)
	assert.Equal(t, leaf.ID(), state.Leaves[0].ID)
	assert.Equal(t, "thesis", state.Leaves[0].Title)
	assert.Equal(t, "stub", state.Leaves[0].ViewType)
	assert.Equal(t, "thesis.tex", state.Leaves[0].File)
	assert.True(t, state.Leaves[0].Active)
	require.Len(t, state.Ribbon, 1)
	require.Len(t, state.Commands, 1)
	assert.False(t, state.Commands[0].Available)

	before := changes
	env.views[0].container.CreateDiv("region").SetText("x")
	assert.Greater(t, changes, before)
}
