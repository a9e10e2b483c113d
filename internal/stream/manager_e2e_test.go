package stream

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/the-crypto-trade/crypto-trade/internal/venue"
)

var upgrader = websocket.Upgrader{}

// wsServer upgrades every request and runs handle on the server side of the
// connection.
func wsServer(t *testing.T, handle func(conn *websocket.Conn)) venue.Endpoint {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}))
	t.Cleanup(srv.Close)
	return venue.Endpoint{BaseURL: "ws" + strings.TrimPrefix(srv.URL, "http"), Path: "/"}
}

func TestRunDeliversMessagesAndStops(t *testing.T) {
	t.Parallel()

	ep := wsServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"hello":"world"}`))
		// Hold the connection open until the client closes it.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	var mu sync.Mutex
	var connected bool
	var received []string

	var m *Manager
	m = New("test", Config{AutoReconnect: true}, Callbacks{
		OnConnected: func(ctx context.Context, conn *Conn) {
			mu.Lock()
			connected = true
			mu.Unlock()
		},
		OnMessage: func(conn *Conn, payload string) {
			mu.Lock()
			received = append(received, payload)
			mu.Unlock()
			m.Stop()
		},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background(), ep) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}

	mu.Lock()
	defer mu.Unlock()
	if !connected {
		t.Error("OnConnected did not fire")
	}
	if len(received) != 1 || received[0] != `{"hello":"world"}` {
		t.Errorf("received = %v", received)
	}
}

func TestRunIdleTimeoutClosesConnection(t *testing.T) {
	t.Parallel()

	ep := wsServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"tick":1}`))
		// Then go silent; the client's idle monitor should close on us.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	m := New("test", Config{
		AppHeartbeatTimeout: 100 * time.Millisecond,
		AutoReconnect:       false,
	}, Callbacks{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background(), ep) }()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Run should report the closed connection")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("idle timeout did not close the connection")
	}
}

func TestRunContextCancelStops(t *testing.T) {
	t.Parallel()

	ep := wsServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	m := New("test", Config{AutoReconnect: true}, Callbacks{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, ep) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	m.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
