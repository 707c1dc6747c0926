package plugin

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go-latex-preview/internal/latex"
	"go-latex-preview/internal/preview"
	"go-latex-preview/internal/vault"
	"go-latex-preview/internal/workspace"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noticeRecorder struct {
	mu   sync.Mutex
	msgs []string
}

func (n *noticeRecorder) Notice(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

func (n *noticeRecorder) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}

type harness struct {
	vault   *vault.Vault
	ws      *workspace.Workspace
	plugin  *LatexPlugin
	notices *noticeRecorder
}

func newHarness(t *testing.T, files map[string]string) *harness {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
	}
	v, err := vault.New(root, nil)
	require.NoError(t, err)

	ws := workspace.New(workspace.Options{Files: v})
	notices := &noticeRecorder{}
	ws.AddNotifier(notices)

	conv := latex.ConverterFunc(func(_ context.Context, source string, _ latex.Options) (*latex.Artifact, error) {
		return &latex.Artifact{Fragment: "<p>" + source + "</p>"}, nil
	})
	p := New(ws, preview.Options{Source: v, Converter: conv, Debounce: 10 * time.Millisecond}, nil)
	require.NoError(t, p.OnLoad(context.Background()))
	t.Cleanup(p.OnUnload)

	return &harness{vault: v, ws: ws, plugin: p, notices: notices}
}

func (h *harness) activate(t *testing.T, path string) {
	t.Helper()
	f, err := h.vault.GetFile(path)
	require.NoError(t, err)
	h.ws.SetActiveFile(f)
}

func TestOnLoad_Registrations(t *testing.T) {
	h := newHarness(t, nil)

	for _, ext := range []string{"tex", "latex", "TEX"} {
		vt, ok := h.ws.ViewTypeForExtension(ext)
		assert.True(t, ok, ext)
		assert.Equal(t, preview.ViewType, vt)
	}
	_, ok := h.ws.ViewTypeForExtension("md")
	assert.False(t, ok)

	ribbon := h.ws.RibbonItems()
	require.Len(t, ribbon, 1)
	assert.Equal(t, RibbonIcon, ribbon[0].Icon)
	assert.Equal(t, RibbonTitle, ribbon[0].Title)

	cmds := h.ws.Commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, CommandID, cmds[0].ID)
	assert.Equal(t, CommandName, cmds[0].Name)
}

func TestRibbon_NoEligibleFile(t *testing.T) {
	h := newHarness(t, map[string]string{"notes.md": "# hi"})
	ribbonID := h.ws.RibbonItems()[0].ID

	t.Run("no active file", func(t *testing.T) {
		require.NoError(t, h.ws.ClickRibbon(ribbonID))
		assert.Equal(t, []string{NoFileNotice}, h.notices.all())
		assert.Empty(t, h.ws.LeavesOfType(preview.ViewType))
	})

	t.Run("unsupported extension", func(t *testing.T) {
		h.activate(t, "notes.md")
		require.NoError(t, h.ws.ClickRibbon(ribbonID))
		assert.Equal(t, []string{NoFileNotice, NoFileNotice}, h.notices.all())
		assert.Empty(t, h.ws.LeavesOfType(preview.ViewType))
	})
}

func TestRibbon_OpensExactlyOneLeaf(t *testing.T) {
	h := newHarness(t, map[string]string{"paper.tex": "hello"})
	h.activate(t, "paper.tex")
	ribbonID := h.ws.RibbonItems()[0].ID

	require.NoError(t, h.ws.ClickRibbon(ribbonID))
	require.NoError(t, h.ws.ClickRibbon(ribbonID))

	leaves := h.ws.LeavesOfType(preview.ViewType)
	require.Len(t, leaves, 1)
	assert.Equal(t, "paper.tex", leaves[0].View().File().Path)
	assert.Equal(t, leaves[0], h.ws.ActiveLeaf())
	assert.Empty(t, h.notices.all())

	body := leaves[0].View().Container().Children()[1]
	require.Eventually(t, func() bool { return body.HTML() == "<p>hello</p>" }, time.Second, 5*time.Millisecond)
}

func TestCommand_CheckCallback(t *testing.T) {
	h := newHarness(t, map[string]string{"paper.latex": "x", "notes.md": "y"})

	ok, err := h.ws.CommandAvailable(CommandID)
	require.NoError(t, err)
	assert.False(t, ok)

	ran, err := h.ws.ExecuteCommand(CommandID)
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Empty(t, h.ws.LeavesOfType(preview.ViewType))

	h.activate(t, "notes.md")
	ok, _ = h.ws.CommandAvailable(CommandID)
	assert.False(t, ok)

	h.activate(t, "paper.latex")
	ok, _ = h.ws.CommandAvailable(CommandID)
	assert.True(t, ok)

	ran, err = h.ws.ExecuteCommand(CommandID)
	require.NoError(t, err)
	assert.True(t, ran)
	require.Len(t, h.ws.LeavesOfType(preview.ViewType), 1)
}

func TestActivateView_SeparateLeavesPerFile(t *testing.T) {
	h := newHarness(t, map[string]string{"a.tex": "a", "b.tex": "b"})

	a, err := h.vault.GetFile("a.tex")
	require.NoError(t, err)
	b, err := h.vault.GetFile("b.tex")
	require.NoError(t, err)

	leafA, err := h.plugin.ActivateView(context.Background(), a)
	require.NoError(t, err)
	leafB, err := h.plugin.ActivateView(context.Background(), b)
	require.NoError(t, err)
	again, err := h.plugin.ActivateView(context.Background(), a)
	require.NoError(t, err)

	assert.NotEqual(t, leafA.ID(), leafB.ID())
	assert.Equal(t, leafA, again)
	assert.Equal(t, leafA, h.ws.ActiveLeaf())
	assert.Equal(t, "a.tex", h.ws.ActiveFile().Path)
}

func TestOnUnload_DetachesLeaves(t *testing.T) {
	h := newHarness(t, map[string]string{"paper.tex": "x"})
	h.activate(t, "paper.tex")
	require.NoError(t, h.plugin.OpenPreviewForActiveFile(context.Background()))
	require.Len(t, h.ws.LeavesOfType(preview.ViewType), 1)

	h.plugin.OnUnload()

	assert.Empty(t, h.ws.Leaves())
	assert.Empty(t, h.ws.Commands())
	assert.Empty(t, h.ws.RibbonItems())
	_, ok := h.ws.ViewTypeForExtension("tex")
	assert.False(t, ok)

	// Loading again works after a full unload.
	require.NoError(t, h.plugin.OnLoad(context.Background()))
	assert.Len(t, h.ws.Commands(), 1)
}

func TestSupported(t *testing.T) {
	assert.False(t, Supported(nil))
	assert.True(t, Supported(&vault.File{Extension: "tex"}))
	assert.True(t, Supported(&vault.File{Extension: "LATEX"}))
	assert.False(t, Supported(&vault.File{Extension: "md"}))
}
