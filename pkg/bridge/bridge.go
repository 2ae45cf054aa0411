// Package bridge relays scan requests and events between cooperating web
// pages and the orchestrator over WebSocket. Only messages carrying the
// bridge source tag are accepted, and only origins on the allow-list may
// connect; everything else is dropped silently.
package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/osintkit/deepscan/pkg/bus"
)

// SourceTag marks every frame the bridge accepts or emits.
const SourceTag = "deepscan-bridge"

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// frame is the wire format in both directions. Inbound frames carry Action
// and Payload; outbound frames carry either a reply (RequestID echoed) or a
// broadcast Event.
type frame struct {
	Source    string          `json:"source"`
	RequestID string          `json:"requestId,omitempty"`
	Action    bus.Action      `json:"action,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Event     bus.EventKind   `json:"event,omitempty"`
	Data      any             `json:"data,omitempty"`
	Response  *bus.Response   `json:"response,omitempty"`
}

// Server is the bridge endpoint.
type Server struct {
	dispatcher *bus.Dispatcher
	hub        *bus.Hub
	logger     *slog.Logger
	origins    []string
	upgrader   websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]bool

	stopEvents func()
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAllowedOrigins sets the origin allow-list. Entries are URL patterns;
// "*" matches any run of characters (path.Match rules). An empty list
// admits localhost only.
func WithAllowedOrigins(patterns ...string) Option {
	return func(s *Server) { s.origins = append(s.origins, patterns...) }
}

// New creates a bridge relaying requests to dispatcher and broadcasting hub
// events to every connected page.
func New(dispatcher *bus.Dispatcher, hub *bus.Hub, opts ...Option) *Server {
	s := &Server{
		dispatcher: dispatcher,
		hub:        hub,
		logger:     slog.Default(),
		clients:    make(map[*client]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      func(r *http.Request) bool { return s.originAllowed(r.Header.Get("Origin")) },
	}

	events, cancel := hub.Subscribe(sendBuffer)
	s.stopEvents = cancel
	go s.forwardEvents(events)
	return s
}

// Close stops event forwarding and disconnects all clients.
func (s *Server) Close() {
	if s.stopEvents != nil {
		s.stopEvents()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		close(c.send)
		delete(s.clients, c)
	}
}

// ClientCount returns the number of connected pages.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Server) originAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	if len(s.origins) == 0 {
		return strings.HasPrefix(origin, "http://localhost") ||
			strings.HasPrefix(origin, "http://127.0.0.1")
	}
	for _, pattern := range s.origins {
		if ok, err := path.Match(pattern, origin); err == nil && ok {
			return true
		}
		if strings.HasSuffix(pattern, "*") && strings.HasPrefix(origin, strings.TrimSuffix(pattern, "*")) {
			return true
		}
	}
	return false
}

// ServeHTTP upgrades the connection and starts the relay pumps.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()
	s.logger.InfoContext(r.Context(), "bridge client connected", "remote", conn.RemoteAddr().String())

	// The request context dies as soon as ServeHTTP returns; the pumps and
	// the handlers they dispatch outlive it.
	go s.writePump(c)
	go s.readPump(context.WithoutCancel(r.Context()), c)

	s.sendFrame(c, frame{Source: SourceTag, Event: "connected", Data: map[string]any{
		"message": "Connected to deep-scan bridge",
	}})
}

func (s *Server) drop(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clients[c] {
		delete(s.clients, c)
		close(c.send)
	}
}

func (s *Server) sendFrame(c *client, f frame) {
	data, err := json.Marshal(f)
	if err != nil {
		s.logger.Warn("encoding bridge frame", "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
		// Slow consumer; delivery is best-effort.
	}
}

// forwardEvents pushes every orchestrator event to all connected pages,
// tagged with the bridge source.
func (s *Server) forwardEvents(events <-chan bus.Event) {
	for ev := range events {
		data, err := json.Marshal(frame{Source: SourceTag, Event: ev.Kind, Data: ev.Data})
		if err != nil {
			s.logger.Warn("encoding bridge event", "event", ev.Kind, "error", err)
			continue
		}
		s.mu.RLock()
		for c := range s.clients {
			select {
			case c.send <- data:
			default:
			}
		}
		s.mu.RUnlock()
	}
}

// readPump accepts source-tagged request frames, dispatches them, and posts
// the reply back with the original request id.
func (s *Server) readPump(ctx context.Context, c *client) {
	defer func() {
		s.drop(c)
		_ = c.conn.Close() //nolint:errcheck // already tearing down
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck // deadline errors surface on read
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("bridge read error", "error", err)
			}
			return
		}

		var f frame
		if err := json.Unmarshal(message, &f); err != nil || f.Source != SourceTag {
			continue
		}
		if f.Action == "" {
			continue
		}

		resp := s.dispatcher.Dispatch(ctx, bus.Request{Action: f.Action, Payload: f.Payload})
		s.sendFrame(c, frame{Source: SourceTag, RequestID: f.RequestID, Response: &resp})
	}
}

func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close() //nolint:errcheck // already tearing down
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // surfaces on write
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck // closing anyway
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // surfaces on write
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
