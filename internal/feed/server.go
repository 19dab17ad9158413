// internal/feed/server.go
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/fairlaunch/internal/events"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = (pongTimeout * 9) / 10
	sendBuffer   = 256
)

// SnapshotFunc builds the first message a new subscriber receives.
type SnapshotFunc func(ctx context.Context) (Message, error)

// Server broadcasts launchpad events to websocket subscribers. Subscribers
// that cannot keep up are disconnected.
type Server struct {
	logger   *zap.Logger
	snapshot SnapshotFunc
	upgrader websocket.Upgrader
	routes   map[string]http.Handler

	mu      sync.Mutex
	clients map[*subscriber]struct{}
	closed  bool
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.send) })
}

// NewServer creates a feed server. snapshot may be nil.
func NewServer(logger *zap.Logger, snapshot SnapshotFunc) *Server {
	return &Server{
		logger:   logger.Named("feed"),
		snapshot: snapshot,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		routes:  make(map[string]http.Handler),
		clients: make(map[*subscriber]struct{}),
	}
}

// Mount serves h at path next to the feed. It must be called before
// ListenAndServe.
func (s *Server) Mount(path string, h http.Handler) {
	s.routes[path] = h
}

// Attach subscribes the server to every launchpad event type.
func (s *Server) Attach(b *events.Bus) events.Subscription {
	return events.SubscribeAll(b, events.AllTypes, s)
}

// Handle implements events.Handler.
func (s *Server) Handle(_ context.Context, e events.Event) error {
	m, ok := FromEvent(e)
	if !ok {
		return nil
	}
	return s.Broadcast(m)
}

// Broadcast sends m to every subscriber.
func (s *Server) Broadcast(m Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			s.logger.Warn("Feed subscriber too slow, disconnecting",
				zap.String("remote", c.conn.RemoteAddr().String()))
			delete(s.clients, c)
			c.stop()
		}
	}
	return nil
}

// Subscribers returns the number of connected subscribers.
func (s *Server) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// ServeHTTP upgrades the request and streams messages until the peer
// disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}

	c := &subscriber{conn: conn, send: make(chan []byte, sendBuffer)}

	// Registered before the snapshot is read: events published meanwhile
	// queue in send and follow it. A client may see such an event both in
	// the snapshot and in the stream, never in neither.
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	var first []byte
	if s.snapshot != nil {
		m, err := s.snapshot(r.Context())
		if err == nil {
			first, err = json.Marshal(m)
		}
		if err != nil {
			s.logger.Error("Failed to build feed snapshot", zap.Error(err))
			s.remove(c)
			conn.Close()
			return
		}
	}

	s.logger.Info("Feed subscriber connected", zap.String("remote", conn.RemoteAddr().String()))

	go s.writeLoop(c, first)
	s.readLoop(c)
}

// readLoop discards client frames and detects disconnects.
func (s *Server) readLoop(c *subscriber) {
	defer func() {
		s.remove(c)
		c.conn.Close()
		s.logger.Info("Feed subscriber disconnected", zap.String("remote", c.conn.RemoteAddr().String()))
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeLoop writes first, if any, then every queued message.
func (s *Server) writeLoop(c *subscriber, first []byte) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	if first != nil {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, first); err != nil {
			return
		}
	}

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) remove(c *subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		c.stop()
	}
}

// Close disconnects every subscriber and rejects new ones.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for c := range s.clients {
		delete(s.clients, c)
		c.stop()
	}
}

// ListenAndServe serves the feed on addr at path until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, s)
	for p, h := range s.routes {
		mux.Handle(p, h)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Feed listening", zap.String("addr", addr), zap.String("path", path))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
