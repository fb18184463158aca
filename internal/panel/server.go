// Package panel serves the loopback HTTP API a UI front-end drives, and
// pushes connection and log updates to it over a WebSocket.
package panel

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/standardbeagle/comet/internal/control"
	"github.com/standardbeagle/comet/internal/executor"
)

// Push message types.
const (
	TypeConnectionUpdate = "connection-update"
	TypeLogUpdate        = "log-update"
)

// maxScriptBytes bounds request bodies carrying scripts.
const maxScriptBytes = 8 << 20

// Message is a WebSocket push.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ConnectionUpdate is the payload of a connection-update push.
type ConnectionUpdate struct {
	Event  executor.EventType `json:"event"`
	Status executor.Status    `json:"status"`
}

// Server is the panel HTTP server.
type Server struct {
	listen   string
	ctrl     *control.Controller
	hub      *executor.Hub
	logger   *zap.Logger
	upgrader websocket.Upgrader

	clients sync.Map // map[*client]struct{}

	mu     sync.Mutex
	server *http.Server
	addr   string
	// baseCtx outlives requests; background work started by a request
	// (the log tail) hangs off it.
	baseCtx context.Context
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// New creates a panel serving ctrl on listen. Connection events are read
// from the controller manager's hub.
func New(listen string, ctrl *control.Controller, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		listen: listen,
		ctrl:   ctrl,
		hub:    ctrl.Manager().Hub(),
		logger: logger.Named("panel"),
		upgrader: websocket.Upgrader{
			// Loopback only; the UI is served from its own origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		baseCtx: context.Background(),
	}
}

// Handler returns the panel's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /send", s.handleSend)
	mux.HandleFunc("POST /setting", s.handleSetting)
	mux.HandleFunc("POST /refresh", s.handleRefresh)
	mux.HandleFunc("POST /port/next", s.handleNextPort)
	mux.HandleFunc("POST /execute-once", s.handleExecuteOnce)
	mux.HandleFunc("POST /execute-last", s.handleExecuteLast)
	mux.HandleFunc("GET /history", s.handleHistory)
	mux.HandleFunc("DELETE /history", s.handleClearHistory)
	mux.HandleFunc("POST /logs/watch", s.handleWatchLogs)
	mux.HandleFunc("DELETE /logs/watch", s.handleStopLogs)
	return mux
}

// Serve listens on the configured address and serves until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.server = srv
	s.addr = ln.Addr().String()
	s.baseCtx = ctx
	s.mu.Unlock()

	go s.RelayEvents(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("panel listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.Stop()
		return nil
	}
}

// Addr returns the bound address once Serve is listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Stop shuts the HTTP server down, closes every WebSocket client and stops
// the log tail.
func (s *Server) Stop() {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}

	s.clients.Range(func(key, _ any) bool {
		if c, ok := key.(*client); ok {
			_ = c.conn.Close()
		}
		return true
	})

	s.ctrl.StopLogs()
}

// RelayEvents forwards connection events from the hub to WebSocket clients
// until ctx is done.
func (s *Server) RelayEvents(ctx context.Context) {
	events, cancel := s.hub.Subscribe(executor.DefaultSubscriberBuffer)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.Broadcast(TypeConnectionUpdate, ConnectionUpdate{Event: ev.Type, Status: ev.Status})
		}
	}
}

// Broadcast sends a message to all connected WebSocket clients.
func (s *Server) Broadcast(msgType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("cannot encode push payload", zap.String("type", msgType), zap.Error(err))
		return
	}
	msg, err := json.Marshal(Message{Type: msgType, Payload: data})
	if err != nil {
		return
	}

	s.clients.Range(func(key, _ any) bool {
		c, ok := key.(*client)
		if !ok {
			return true
		}
		if err := c.write(msg); err != nil {
			s.logger.Debug("dropping websocket client", zap.Error(err))
			s.clients.Delete(c)
			_ = c.conn.Close()
		}
		return true
	})
}

// Clients returns the number of connected WebSocket clients.
func (s *Server) Clients() int {
	n := 0
	s.clients.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	c := &client{conn: conn}
	s.clients.Store(c, struct{}{})
	defer s.clients.Delete(c)

	// Greet with the current state so the UI does not wait a full cycle.
	st := s.ctrl.Status()
	if data, err := json.Marshal(ConnectionUpdate{Event: eventFor(st), Status: st}); err == nil {
		if msg, err := json.Marshal(Message{Type: TypeConnectionUpdate, Payload: data}); err == nil {
			_ = c.write(msg)
		}
	}

	s.logger.Debug("websocket client connected")
	for {
		// Pushes only; reads just detect the close.
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket error", zap.Error(err))
			}
			break
		}
	}
	s.logger.Debug("websocket client disconnected")
}

func eventFor(st executor.Status) executor.EventType {
	if st.Connected {
		return executor.EventConnected
	}
	return executor.EventDisconnected
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.Clients(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	script, ok := readScript(w, r)
	if !ok {
		return
	}
	if err := s.ctrl.Send(r.Context(), script); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// SettingRequest is the body of POST /setting.
type SettingRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (s *Server) handleSetting(w http.ResponseWriter, r *http.Request) {
	var req SettingRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid setting: " + err.Error()})
		return
	}
	if err := s.ctrl.ChangeSetting(r.Context(), req.Key, req.Value); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Refresh(r.Context()))
}

func (s *Server) handleNextPort(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.NextPort())
}

func (s *Server) handleExecuteOnce(w http.ResponseWriter, r *http.Request) {
	script, ok := readScript(w, r)
	if !ok {
		return
	}
	res, err := s.ctrl.ExecuteOnce(r.Context(), script)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleExecuteLast(w http.ResponseWriter, r *http.Request) {
	res, err := s.ctrl.ExecuteLast(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, s.ctrl.History(limit))
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.ClearHistory(); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWatchLogs(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()

	err := s.ctrl.WatchLogs(ctx, func(line string) {
		s.Broadcast(TypeLogUpdate, line)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"watching": true})
}

func (s *Server) handleStopLogs(w http.ResponseWriter, r *http.Request) {
	s.ctrl.StopLogs()
	writeJSON(w, http.StatusOK, map[string]bool{"watching": false})
}

func readScript(w http.ResponseWriter, r *http.Request) (string, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxScriptBytes))
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, errorBody{Error: err.Error()})
		return "", false
	}
	return string(data), true
}
