package stream

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/the-crypto-trade/crypto-trade/internal/wire"
)

func testManager() *Manager {
	return New("test", Config{AutoReconnect: true}, Callbacks{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// The reconnect schedule is 1s, 2s, 4s, ... capped at 60s.
func TestNextReconnectDelaySchedule(t *testing.T) {
	t.Parallel()
	m := testManager()

	want := []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 32 * time.Second, 60 * time.Second, 60 * time.Second,
	}
	for i, w := range want {
		if got := m.nextReconnectDelay("wss://x/ws"); got != w {
			t.Errorf("attempt %d: delay = %v, want %v", i+1, got, w)
		}
	}
}

func TestReconnectDelayIsPerEndpoint(t *testing.T) {
	t.Parallel()
	m := testManager()

	m.nextReconnectDelay("wss://x/public")
	m.nextReconnectDelay("wss://x/public")
	if got := m.nextReconnectDelay("wss://x/private"); got != 1*time.Second {
		t.Errorf("fresh endpoint delay = %v, want 1s", got)
	}
}

func TestPendingRequestInbox(t *testing.T) {
	t.Parallel()
	m := testManager()

	req := &wire.StreamRequest{ID: "42", Payload: `{"op":"order"}`}
	m.mu.Lock()
	m.pending[req.ID] = req
	m.mu.Unlock()

	if got := m.TakePending("42"); got != req {
		t.Fatal("TakePending did not return the stored request")
	}
	if got := m.TakePending("42"); got != nil {
		t.Error("a pending request must be popped exactly once")
	}
	if got := m.TakePending(""); got != nil {
		t.Error("empty id must not match")
	}
}

func TestLoginGate(t *testing.T) {
	t.Parallel()
	m := testManager()

	if m.IsLoggedIn("wss://x/private") {
		t.Error("endpoint should not be logged in initially")
	}
	m.MarkLoggedIn("wss://x/private")
	if !m.IsLoggedIn("wss://x/private") {
		t.Error("endpoint should be logged in after MarkLoggedIn")
	}
}

func TestStopPreventsFurtherReconnects(t *testing.T) {
	t.Parallel()
	m := testManager()

	m.Stop()
	if !m.isStopped() {
		t.Error("manager should report stopped")
	}
}
