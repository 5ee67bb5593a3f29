package in

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	hclog "github.com/hashicorp/go-hclog"

	apperrors "roomscan/internal/platform/errors"
)

const (
	sendBuffer  = 32
	sendTimeout = 2 * time.Second
)

// WSServer exposes the gateway over a websocket at /bridge. Each frame read
// is a Command and each frame written is a Result.
type WSServer struct {
	gateway        *Gateway
	logger         hclog.Logger
	allowedOrigins map[string]bool
	upgrader       websocket.Upgrader
}

func NewWSServer(gateway *Gateway, allowedOrigins []string, logger hclog.Logger) *WSServer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	s := &WSServer{gateway: gateway, logger: logger, allowedOrigins: make(map[string]bool)}
	for _, origin := range allowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			s.allowedOrigins[trimmed] = true
		}
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	return s
}

func (s *WSServer) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/bridge", s.handleWS)
}

func (s *WSServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	s.logger.Debug("bridge client connected", "remote", r.RemoteAddr)

	c := newWSConn(conn, s.logger)
	defer func() {
		c.close()
		if sessionID := c.ownedSession(); sessionID != "" {
			s.dismissOwned(r.Context(), sessionID)
		}
		s.logger.Debug("bridge client disconnected", "remote", r.RemoteAddr)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.send(Result{Status: StatusError, Message: ErrorPayload{Message: "malformed command"}})
			continue
		}
		if sessionID := s.gateway.Exec(r.Context(), cmd, c.deliver); sessionID != "" {
			c.own(sessionID)
		}
	}
}

// dismissOwned treats a dropped connection like the host losing the
// foreground, but only for the session this connection opened.
func (s *WSServer) dismissOwned(ctx context.Context, sessionID string) {
	err := s.gateway.usecase.BackgroundSession(context.WithoutCancel(ctx), sessionID)
	if err != nil && !errors.Is(err, apperrors.ErrNoActiveSession) {
		s.logger.Warn("dismiss on disconnect", "session", sessionID, "error", err)
	}
}

func (s *WSServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(s.allowedOrigins) > 0 {
		return s.allowedOrigins[origin]
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	if parsed.Host == r.Host {
		return true
	}
	host := parsed.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

type wsConn struct {
	conn    *websocket.Conn
	out     chan []byte
	done    chan struct{}
	timeout time.Duration
	// overflow runs when a frame cannot be queued within timeout.
	overflow func()
	logger   hclog.Logger

	sendMu sync.Mutex
	closed bool

	mu      sync.Mutex
	session string
}

func newWSConn(conn *websocket.Conn, logger hclog.Logger) *wsConn {
	c := &wsConn{
		conn:     conn,
		out:      make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		timeout:  sendTimeout,
		overflow: func() { _ = conn.Close() },
		logger:   logger,
	}
	go c.writePump()
	return c
}

func (c *wsConn) writePump() {
	defer close(c.done)
	defer c.conn.Close()
	for msg := range c.out {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// send queues result for the write pump, waiting up to timeout for room. A
// client that cannot keep up is disconnected rather than losing frames
// silently. send may be called from session goroutines after the reader has
// gone.
func (c *wsConn) send(result Result) bool {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("encode result", "callback", result.CallbackID, "error", err)
		return false
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		c.logger.Debug("result after disconnect discarded", "callback", result.CallbackID)
		return false
	}
	select {
	case c.out <- data:
		return true
	default:
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case c.out <- data:
		return true
	case <-c.done:
		c.logger.Debug("result after write failure discarded", "callback", result.CallbackID)
		return false
	case <-timer.C:
		c.logger.Warn("bridge client too slow, disconnecting", "callback", result.CallbackID)
		c.overflow()
		return false
	}
}

func (c *wsConn) deliver(result Result) {
	c.send(result)
}

func (c *wsConn) own(sessionID string) {
	c.mu.Lock()
	c.session = sessionID
	c.mu.Unlock()
}

func (c *wsConn) ownedSession() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *wsConn) close() {
	c.sendMu.Lock()
	if !c.closed {
		c.closed = true
		close(c.out)
	}
	c.sendMu.Unlock()
	<-c.done
}
