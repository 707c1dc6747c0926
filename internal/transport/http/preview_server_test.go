package httpserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"go-latex-preview/internal/contracts"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDispatcher struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (d *recordingDispatcher) record(s string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, s)
	return d.err
}

func (d *recordingDispatcher) got() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func (d *recordingDispatcher) ExecuteCommand(id string) error { return d.record("command:" + id) }
func (d *recordingDispatcher) ClickRibbon(id string) error    { return d.record("ribbon:" + id) }
func (d *recordingDispatcher) SetActiveFile(p string) error   { return d.record("active:" + p) }
func (d *recordingDispatcher) OpenFile(p string) error        { return d.record("open:" + p) }
func (d *recordingDispatcher) CloseLeaf(id string) error      { return d.record("close:" + id) }
func (d *recordingDispatcher) RevealLeaf(id string) error     { return d.record("reveal:" + id) }

func startServer(t *testing.T, opts Options) *PreviewServer {
	t.Helper()
	s := NewPreviewServer("127.0.0.1:0", opts)
	require.NoError(t, s.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func dial(t *testing.T, s *PreviewServer) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL(), "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readState(t *testing.T, conn *websocket.Conn) contracts.StateMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg contracts.StateMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestPreviewServer_Routes(t *testing.T) {
	s := startServer(t, Options{Help: func() (string, error) { return "<h1>Help</h1>", nil }})

	code, body := get(t, s.URL()+"/")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "<title>LaTeX preview</title>")

	code, body = get(t, s.URL()+"/help")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "<h1>Help</h1>", body)

	code, body = get(t, s.URL()+"/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)

	code, _ = get(t, s.URL()+"/missing")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestPreviewServer_HelpFailure(t *testing.T) {
	s := startServer(t, Options{Help: func() (string, error) { return "", errors.New("bad") }})

	code, _ := get(t, s.URL()+"/help")
	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestPreviewServer_PublishesLatestState(t *testing.T) {
	s := startServer(t, Options{})

	s.Publish(contracts.StateMessage{ActiveFile: "a.tex"})
	conn := dial(t, s)

	first := readState(t, conn)
	assert.Equal(t, contracts.MessageTypeState, first.Type)
	assert.Equal(t, "a.tex", first.ActiveFile)

	s.Publish(contracts.StateMessage{ActiveFile: "b.tex"})
	second := readState(t, conn)
	assert.Equal(t, "b.tex", second.ActiveFile)
	assert.Greater(t, second.Rev, first.Rev)

	// Late joiners get the current state immediately.
	late := dial(t, s)
	assert.Equal(t, "b.tex", readState(t, late).ActiveFile)
}

func TestPreviewServer_Notice(t *testing.T) {
	s := startServer(t, Options{})
	conn := dial(t, s)

	// Wait until the connection is registered before sending the notice.
	s.Publish(contracts.StateMessage{})
	readState(t, conn)

	s.Notice("Open a .tex file before launching the preview.")
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg contracts.NoticeMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, contracts.MessageTypeNotice, msg.Type)
	assert.Equal(t, "Open a .tex file before launching the preview.", msg.Text)
}

func TestPreviewServer_Dispatch(t *testing.T) {
	d := &recordingDispatcher{}
	s := startServer(t, Options{Dispatcher: d})
	conn := dial(t, s)

	messages := []any{
		contracts.ExecuteCommandMessage{Type: contracts.MessageTypeExecuteCommand, ID: "open-latex-preview"},
		contracts.RibbonClickMessage{Type: contracts.MessageTypeRibbonClick, ID: "icon-1"},
		contracts.FileMessage{Type: contracts.MessageTypeSetActiveFile, Path: "a.tex"},
		contracts.FileMessage{Type: contracts.MessageTypeOpenFile, Path: "b.tex"},
		contracts.LeafMessage{Type: contracts.MessageTypeRevealLeaf, LeafID: "l1"},
		contracts.LeafMessage{Type: contracts.MessageTypeCloseLeaf, LeafID: "l1"},
		map[string]string{"type": "unknown"},
	}
	for _, m := range messages {
		require.NoError(t, conn.WriteJSON(m))
	}
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	want := []string{
		"command:open-latex-preview",
		"ribbon:icon-1",
		"active:a.tex",
		"open:b.tex",
		"reveal:l1",
		"close:l1",
	}
	require.Eventually(t, func() bool { return len(d.got()) == len(want) }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, want, d.got())
}

func TestPreviewServer_StartStop(t *testing.T) {
	s := NewPreviewServer("127.0.0.1:0", Options{})
	require.NoError(t, s.Start())
	require.NoError(t, s.Start())
	assert.NotEqual(t, "http://127.0.0.1:0", s.URL())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx))
}

func TestSameHostOrigin(t *testing.T) {
	r, _ := http.NewRequest(http.MethodGet, "http://127.0.0.1:7778/ws", nil)
	r.Host = "127.0.0.1:7778"
	assert.True(t, sameHostOrigin(r))

	r.Header.Set("Origin", "http://127.0.0.1:7778")
	assert.True(t, sameHostOrigin(r))

	r.Header.Set("Origin", "http://evil.example")
	assert.False(t, sameHostOrigin(r))
}
