package overlay

import (
	"context"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// SocketSink pushes frames to browser overlays over WebSocket. It implements
// both [Sink] and [http.Handler]: mount it on the HTTP server and point an
// OBS browser source at a page that connects to it.
//
// Each frame is sent as one text message holding the full overlay content.
// Clients that connect mid-stream immediately receive the last frame, so a
// reloaded browser source does not sit blank until the next caption.
type SocketSink struct {
	mu        sync.Mutex
	conns     map[*websocket.Conn]context.CancelFunc
	lastFrame string
	hasFrame  bool
	closed    bool
}

// NewSocketSink returns a hub with no connected clients.
func NewSocketSink() *SocketSink {
	return &SocketSink{conns: make(map[*websocket.Conn]context.CancelFunc)}
}

// ServeHTTP implements http.Handler by upgrading the request and keeping the
// connection registered until the client goes away or the sink closes.
func (s *SocketSink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// OBS browser sources load from file:// and local pages, so origin
		// checks cannot be enforced here.
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		// Accept has already written the HTTP error response.
		return
	}

	ctx, cancel := context.WithCancel(r.Context())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		conn.Close(websocket.StatusGoingAway, "sink closed")
		return
	}
	s.conns[conn] = cancel
	last, has := s.lastFrame, s.hasFrame
	s.mu.Unlock()

	if has {
		if err := conn.Write(ctx, websocket.MessageText, []byte(last)); err != nil {
			s.drop(conn)
			return
		}
	}

	// Clients only listen. Reading here just waits for the peer to go away
	// or for Close to cancel the context.
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			break
		}
	}
	s.drop(conn)
}

// Write implements Sink by broadcasting frame to every connected client.
// A client that fails to take the frame is dropped instead of failing the
// render for everyone else.
func (s *SocketSink) Write(ctx context.Context, frame string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSinkClosed
	}
	s.lastFrame = frame
	s.hasFrame = true
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		if err := c.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
			s.drop(c)
		}
	}
	return nil
}

// ClientCount returns the number of connected overlay clients. Thread-safe.
func (s *SocketSink) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close implements Sink by disconnecting every client. Write returns
// [ErrSinkClosed] afterwards.
func (s *SocketSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()

	for conn, cancel := range conns {
		cancel()
		conn.Close(websocket.StatusGoingAway, "shutting down")
	}
	return nil
}

// drop removes a connection from the hub and closes it.
func (s *SocketSink) drop(conn *websocket.Conn) {
	s.mu.Lock()
	cancel, ok := s.conns[conn]
	if ok {
		delete(s.conns, conn)
	}
	s.mu.Unlock()

	if ok {
		cancel()
		conn.Close(websocket.StatusNormalClosure, "")
	}
}

// Compile-time interface assertions.
var (
	_ Sink         = (*SocketSink)(nil)
	_ http.Handler = (*SocketSink)(nil)
)
