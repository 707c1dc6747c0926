// Package httpserver handles all message traffic between the workspace and
// the browser panels.
package httpserver

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"go-latex-preview/internal/contracts"

	"github.com/gorilla/websocket"
)

//go:embed page.html
var pageShell string

// Dispatcher receives browser requests.
type Dispatcher interface {
	ExecuteCommand(id string) error
	ClickRibbon(id string) error
	SetActiveFile(path string) error
	OpenFile(path string) error
	CloseLeaf(id string) error
	RevealLeaf(id string) error
}

// Options configures a PreviewServer.
type Options struct {
	Dispatcher Dispatcher
	// Help renders the help fragment served at /help.
	Help   func() (string, error)
	Logger *slog.Logger
}

// PreviewServer coordinates HTTP serving and WebSocket updates.
type PreviewServer struct {
	addr   string
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	started  bool
	server   *http.Server
	listener net.Listener
	pending  *contracts.StateMessage

	wake       chan struct{}
	notices    chan contracts.NoticeMessage
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	stopLoop   chan struct{}
	loopDone   chan struct{}

	upgrader websocket.Upgrader
}

// NewPreviewServer creates an HTTP/WebSocket preview server bound to addr.
func NewPreviewServer(addr string, opts Options) *PreviewServer {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &PreviewServer{
		addr:   addr,
		opts:   opts,
		logger: opts.Logger,

		wake:       make(chan struct{}, 1),
		notices:    make(chan contracts.NoticeMessage, 32),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		stopLoop:   make(chan struct{}),
		loopDone:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: sameHostOrigin,
		},
	}
}

// URL returns the browser URL for the preview server.
func (m *PreviewServer) URL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener != nil {
		return "http://" + m.listener.Addr().String()
	}
	return "http://" + m.addr
}

// Handler returns the HTTP routes.
func (m *PreviewServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", m.handleIndex)
	mux.HandleFunc("/ws", m.handleWS)
	mux.HandleFunc("/help", m.handleHelp)
	mux.HandleFunc("/healthz", m.handleHealth)
	return mux
}

// Start binds the listener and starts serving. Calling it twice is a no-op.
func (m *PreviewServer) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}

	ln, err := net.Listen("tcp", m.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", m.addr, err)
	}
	m.listener = ln
	m.server = &http.Server{Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
	m.started = true

	go m.runLoop()
	go func() {
		if err := m.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("panel: server stopped", "error", err)
		}
	}()

	m.logger.Info("panel: serving", "url", "http://"+ln.Addr().String())
	return nil
}

// Publish replaces the state shown by every browser. Only the latest state
// is kept when browsers fall behind.
func (m *PreviewServer) Publish(state contracts.StateMessage) {
	state.Type = contracts.MessageTypeState

	m.mu.Lock()
	m.pending = &state
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Notice shows a transient notification in every browser.
func (m *PreviewServer) Notice(text string) {
	select {
	case m.notices <- contracts.NoticeMessage{Type: contracts.MessageTypeNotice, Text: text}:
	default:
		m.logger.Warn("panel: notice dropped", "text", text)
	}
}

// Stop gracefully shuts down the HTTP server and run loop.
func (m *PreviewServer) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.started || m.server == nil {
		m.mu.Unlock()
		return nil
	}
	server := m.server
	m.started = false
	m.server = nil
	m.mu.Unlock()

	err := server.Shutdown(ctx)
	close(m.stopLoop)
	<-m.loopDone
	return err
}

// handleIndex serves the HTML shell; content arrives over the WebSocket.
func (m *PreviewServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(pageShell))
}

func (m *PreviewServer) handleHelp(w http.ResponseWriter, r *http.Request) {
	if m.opts.Help == nil {
		http.NotFound(w, r)
		return
	}
	fragment, err := m.opts.Help()
	if err != nil {
		m.logger.Error("panel: help failed", "error", err)
		http.Error(w, "help unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(fragment))
}

func (m *PreviewServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// handleWS upgrades the connection and dispatches browser messages.
func (m *PreviewServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	select {
	case m.register <- conn:
	case <-m.stopLoop:
		_ = conn.Close()
		return
	}
	defer func() {
		select {
		case m.unregister <- conn:
		case <-m.stopLoop:
		}
	}()

	// Block here until the connection closes / errors out.
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		m.dispatch(msg)
	}
}

// dispatch decodes one browser message and forwards it to the Dispatcher.
func (m *PreviewServer) dispatch(raw []byte) {
	d := m.opts.Dispatcher
	if d == nil {
		return
	}

	var envelope contracts.IncomingMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		m.logger.Debug("panel: bad message", "error", err)
		return
	}

	var err error
	switch envelope.Type {
	case contracts.MessageTypeExecuteCommand:
		var msg contracts.ExecuteCommandMessage
		if err = json.Unmarshal(raw, &msg); err == nil {
			err = d.ExecuteCommand(msg.ID)
		}
	case contracts.MessageTypeRibbonClick:
		var msg contracts.RibbonClickMessage
		if err = json.Unmarshal(raw, &msg); err == nil {
			err = d.ClickRibbon(msg.ID)
		}
	case contracts.MessageTypeSetActiveFile:
		var msg contracts.FileMessage
		if err = json.Unmarshal(raw, &msg); err == nil {
			err = d.SetActiveFile(msg.Path)
		}
	case contracts.MessageTypeOpenFile:
		var msg contracts.FileMessage
		if err = json.Unmarshal(raw, &msg); err == nil {
			err = d.OpenFile(msg.Path)
		}
	case contracts.MessageTypeCloseLeaf:
		var msg contracts.LeafMessage
		if err = json.Unmarshal(raw, &msg); err == nil {
			err = d.CloseLeaf(msg.LeafID)
		}
	case contracts.MessageTypeRevealLeaf:
		var msg contracts.LeafMessage
		if err = json.Unmarshal(raw, &msg); err == nil {
			err = d.RevealLeaf(msg.LeafID)
		}
	default:
		m.logger.Debug("panel: unknown message", "type", envelope.Type)
		return
	}
	if err != nil {
		m.logger.Warn("panel: request failed", "type", envelope.Type, "error", err)
	}
}

// runLoop serializes state updates and websocket writes on a single goroutine.
func (m *PreviewServer) runLoop() {
	defer close(m.loopDone)

	conns := make(map[*websocket.Conn]struct{})
	var last *contracts.StateMessage
	var rev uint64

	broadcast := func(v any) {
		for c := range conns {
			if !writeJSON(c, v) {
				delete(conns, c)
			}
		}
	}

	for {
		select {
		case <-m.wake:
			m.mu.Lock()
			state := m.pending
			m.pending = nil
			m.mu.Unlock()
			if state == nil {
				continue
			}
			rev++
			state.Rev = rev
			last = state
			broadcast(last)

		case notice := <-m.notices:
			broadcast(notice)

		case c := <-m.register:
			conns[c] = struct{}{}
			if last != nil && !writeJSON(c, last) {
				delete(conns, c)
			}

		case c := <-m.unregister:
			if _, ok := conns[c]; ok {
				_ = c.Close()
				delete(conns, c)
			}

		case <-m.stopLoop:
			for c := range conns {
				_ = c.Close()
			}
			return
		}
	}
}

// writeJSON writes a JSON message and reports whether the connection is usable.
func writeJSON(conn *websocket.Conn, v any) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(v); err != nil {
		_ = conn.Close()
		return false
	}
	return true
}

// sameHostOrigin accepts requests without an Origin header and requests
// whose Origin host matches the Host header.
func sameHostOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return origin == "http://"+r.Host
}
