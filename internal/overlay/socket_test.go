package overlay

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// dialSink connects a test client to the sink's HTTP handler.
func dialSink(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

// waitForClients polls until the sink reports n connected clients.
func waitForClients(t *testing.T, sink *SocketSink, n int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sink.ClientCount() == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d clients, have %d", n, sink.ClientCount())
}

// readFrame reads a single text message from the connection.
func readFrame(t *testing.T, conn *websocket.Conn) string {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if typ != websocket.MessageText {
		t.Fatalf("expected text message, got %v", typ)
	}
	return string(data)
}

// TestSocketSink_BroadcastsFrames checks connected clients receive writes.
func TestSocketSink_BroadcastsFrames(t *testing.T) {
	sink := NewSocketSink()
	srv := httptest.NewServer(sink)
	defer srv.Close()
	defer sink.Close()

	conn := dialSink(t, srv)
	waitForClients(t, sink, 1)

	if err := sink.Write(context.Background(), "live caption"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := readFrame(t, conn); got != "live caption" {
		t.Errorf("expected frame %q, got %q", "live caption", got)
	}
}

// TestSocketSink_LateJoinerGetsLastFrame checks a client connecting
// mid-stream is caught up immediately.
func TestSocketSink_LateJoinerGetsLastFrame(t *testing.T) {
	sink := NewSocketSink()
	srv := httptest.NewServer(sink)
	defer srv.Close()
	defer sink.Close()

	if err := sink.Write(context.Background(), "already on screen"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	conn := dialSink(t, srv)
	if got := readFrame(t, conn); got != "already on screen" {
		t.Errorf("expected catch-up frame %q, got %q", "already on screen", got)
	}
}

// TestSocketSink_MultipleClients checks fan-out to several clients.
func TestSocketSink_MultipleClients(t *testing.T) {
	sink := NewSocketSink()
	srv := httptest.NewServer(sink)
	defer srv.Close()
	defer sink.Close()

	first := dialSink(t, srv)
	second := dialSink(t, srv)
	waitForClients(t, sink, 2)

	if err := sink.Write(context.Background(), "to everyone"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, conn := range []*websocket.Conn{first, second} {
		if got := readFrame(t, conn); got != "to everyone" {
			t.Errorf("client %d: expected %q, got %q", i, "to everyone", got)
		}
	}
}

// TestSocketSink_WriteAfterClose checks the closed-sink error.
func TestSocketSink_WriteAfterClose(t *testing.T) {
	sink := NewSocketSink()
	srv := httptest.NewServer(sink)
	defer srv.Close()

	if err := sink.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := sink.Write(context.Background(), "too late"); !errors.Is(err, ErrSinkClosed) {
		t.Fatalf("expected ErrSinkClosed, got %v", err)
	}
	// Close is idempotent.
	if err := sink.Close(); err != nil {
		t.Fatalf("unexpected error on second close: %v", err)
	}
}

// TestSocketSink_DisconnectedClientIsDropped checks the hub forgets clients
// that went away.
func TestSocketSink_DisconnectedClientIsDropped(t *testing.T) {
	sink := NewSocketSink()
	srv := httptest.NewServer(sink)
	defer srv.Close()
	defer sink.Close()

	conn := dialSink(t, srv)
	waitForClients(t, sink, 1)

	conn.Close(websocket.StatusNormalClosure, "bye")
	waitForClients(t, sink, 0)
}
