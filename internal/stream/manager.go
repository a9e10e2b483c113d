// Package stream maintains the client's bidirectional streaming connections.
//
// One logical connection exists per (base URL, path, query) endpoint triple.
// The manager owns the full lifecycle: dial, subscribe/login callbacks,
// protocol-level pings, application-level pings, idle-timeout detection, and
// reconnect with exponential backoff (1s doubling to 60s, cleared after the
// endpoint has stayed healthy for 60s). Outgoing frames that expect a
// correlated reply are kept in an inbox keyed by request id until the reply
// arrives.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/the-crypto-trade/crypto-trade/internal/metrics"
	"github.com/the-crypto-trade/crypto-trade/internal/venue"
	"github.com/the-crypto-trade/crypto-trade/internal/wire"
	"github.com/the-crypto-trade/crypto-trade/pkg/types"
)

const (
	// writeTimeout bounds every outgoing frame.
	writeTimeout = 10 * time.Second

	// Backoff schedule for reconnects.
	reconnectDelayInitial = 1 * time.Second
	reconnectDelayMax     = 60 * time.Second

	// quietHealthyPeriod is how long an endpoint must stay healthy before
	// its backoff delay is cleared.
	quietHealthyPeriod = 60 * time.Second
)

// idleTimeoutCause is the close message used when the idle monitor fires.
const idleTimeoutCause = "application level heartbeat timeout"

// Config tunes one manager. Zero durations disable the matching loop.
type Config struct {
	ProtocolHeartbeatPeriod time.Duration
	AppHeartbeatPeriod      time.Duration
	AppHeartbeatTimeout     time.Duration
	AutoReconnect           bool

	// AppPing builds the venue's application-level ping frame; nil when the
	// endpoint does not require one.
	AppPing func() (*wire.StreamRequest, error)
}

// Callbacks connect the manager to the session core.
type Callbacks struct {
	// OnConnected runs after the transport is up: send subscriptions or the
	// login frame here.
	OnConnected func(ctx context.Context, conn *Conn)
	// OnMessage receives every inbound text frame.
	OnMessage func(conn *Conn, payload string)
	// OnDisconnected runs after the connection is torn down.
	OnDisconnected func(conn *Conn)
}

// Conn is one live connection to an endpoint.
type Conn struct {
	endpoint venue.Endpoint
	url      string

	ws      *websocket.Conn
	writeMu sync.Mutex

	mu            sync.Mutex
	latestReceive *types.TimePoint
}

// Endpoint returns the endpoint triple this connection serves.
func (c *Conn) Endpoint() venue.Endpoint { return c.endpoint }

// URL returns the full endpoint URL, the key connections are tracked under.
func (c *Conn) URL() string { return c.url }

func (c *Conn) noteReceive() {
	now := types.TimePointNow()
	c.mu.Lock()
	c.latestReceive = &now
	c.mu.Unlock()
}

func (c *Conn) sinceLastReceive() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latestReceive == nil {
		return 0, false
	}
	return types.TimePointNow().Sub(*c.latestReceive), true
}

// WriteText sends one raw text frame.
func (c *Conn) WriteText(payload string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, []byte(payload))
}

// CloseWithCause forcibly closes the transport; the read loop unblocks with
// an error and the reconnect pipeline takes over.
func (c *Conn) CloseWithCause(cause string) {
	c.writeMu.Lock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, cause))
	c.writeMu.Unlock()
	c.ws.Close()
}

// Manager owns every streaming connection of one session.
type Manager struct {
	exchange  string
	cfg       Config
	callbacks Callbacks
	logger    *slog.Logger

	mu             sync.Mutex
	conns          map[string]*Conn
	reconnectDelay map[string]time.Duration
	loggedIn       map[string]bool
	pending        map[string]*wire.StreamRequest
	stopped        bool
}

// New creates a manager. Connections are opened with Run.
func New(exchange string, cfg Config, callbacks Callbacks, logger *slog.Logger) *Manager {
	return &Manager{
		exchange:       exchange,
		cfg:            cfg,
		callbacks:      callbacks,
		logger:         logger.With("component", "stream"),
		conns:          make(map[string]*Conn),
		reconnectDelay: make(map[string]time.Duration),
		loggedIn:       make(map[string]bool),
		pending:        make(map[string]*wire.StreamRequest),
	}
}

// Run connects to one endpoint and keeps it connected until ctx is cancelled
// or Stop is called. Intended to run as a session task, one per endpoint.
func (m *Manager) Run(ctx context.Context, ep venue.Endpoint) error {
	for {
		err := m.connectAndRead(ctx, ep)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if m.isStopped() || !m.cfg.AutoReconnect {
			return err
		}

		delay := m.nextReconnectDelay(ep.URL())
		metrics.StreamReconnects.WithLabelValues(m.exchange).Inc()
		m.logger.Warn("stream disconnected, reconnecting", "url", ep.URL(), "error", err, "delay", delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (m *Manager) connectAndRead(ctx context.Context, ep venue.Endpoint) error {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, ep.URL(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", ep.URL(), err)
	}

	conn := &Conn{endpoint: ep, url: ep.URL(), ws: ws}
	conn.noteReceive()

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		ws.Close()
		return errors.New("manager stopped")
	}
	m.conns[conn.url] = conn
	m.mu.Unlock()

	defer func() {
		ws.Close()
		m.mu.Lock()
		delete(m.conns, conn.url)
		delete(m.loggedIn, conn.url)
		m.mu.Unlock()
		if m.callbacks.OnDisconnected != nil {
			m.callbacks.OnDisconnected(conn)
		}
	}()

	m.logger.Info("stream connected", "url", conn.url)

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go m.protocolPingLoop(loopCtx, conn)
	go m.appPingLoop(loopCtx, conn)
	go m.idleTimeoutLoop(loopCtx, conn)

	if m.callbacks.OnConnected != nil {
		m.callbacks.OnConnected(ctx, conn)
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msgType, payload, err := ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if msgType != websocket.TextMessage {
			continue
		}
		conn.noteReceive()
		metrics.StreamFrames.WithLabelValues(m.exchange).Inc()
		if m.callbacks.OnMessage != nil {
			m.callbacks.OnMessage(conn, string(payload))
		}
	}
}

// protocolPingLoop sends transport-level ping control frames.
func (m *Manager) protocolPingLoop(ctx context.Context, conn *Conn) {
	if m.cfg.ProtocolHeartbeatPeriod <= 0 {
		return
	}
	ticker := time.NewTicker(m.cfg.ProtocolHeartbeatPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn.writeMu.Lock()
			conn.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.ws.WriteMessage(websocket.PingMessage, nil)
			conn.writeMu.Unlock()
			if err != nil {
				m.logger.Warn("protocol ping failed", "url", conn.url, "error", err)
				return
			}
		}
	}
}

// appPingLoop sends the venue's application-level ping frame.
func (m *Manager) appPingLoop(ctx context.Context, conn *Conn) {
	if m.cfg.AppHeartbeatPeriod <= 0 || m.cfg.AppPing == nil {
		return
	}
	ticker := time.NewTicker(m.cfg.AppHeartbeatPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ping, err := m.cfg.AppPing()
			if err != nil {
				m.logger.Error("build app ping", "error", err)
				continue
			}
			if err := m.SendRequest(conn, ping); err != nil {
				m.logger.Warn("app ping failed", "url", conn.url, "error", err)
				return
			}
		}
	}
}

// idleTimeoutLoop force-closes the connection when no frame has been
// received for the configured timeout.
func (m *Manager) idleTimeoutLoop(ctx context.Context, conn *Conn) {
	if m.cfg.AppHeartbeatTimeout <= 0 {
		return
	}
	ticker := time.NewTicker(m.cfg.AppHeartbeatTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if elapsed, ok := conn.sinceLastReceive(); ok && elapsed > m.cfg.AppHeartbeatTimeout {
				m.logger.Warn("idle timeout, closing connection", "url", conn.url, "elapsed", elapsed)
				conn.CloseWithCause(idleTimeoutCause)
				return
			}
		}
	}
}

// SendRequest writes one frame. Frames carrying an id are recorded in the
// inbox so the correlated reply can be matched back to them.
func (m *Manager) SendRequest(conn *Conn, req *wire.StreamRequest) error {
	if req == nil || req.Payload == "" {
		return nil
	}
	if req.ID != "" {
		m.mu.Lock()
		m.pending[req.ID] = req
		m.mu.Unlock()
	}
	return conn.WriteText(req.Payload)
}

// TakePending pops the outgoing request a reply correlates to, if any.
func (m *Manager) TakePending(id string) *wire.StreamRequest {
	if id == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	req := m.pending[id]
	delete(m.pending, id)
	return req
}

// Conn returns the live connection for an endpoint URL.
func (m *Manager) Conn(url string) (*Conn, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.conns[url]
	return conn, ok
}

// MarkLoggedIn records that an endpoint completed its login exchange. The
// order path checks this before attempting a stream-side order.
func (m *Manager) MarkLoggedIn(url string) {
	m.mu.Lock()
	m.loggedIn[url] = true
	m.mu.Unlock()
}

// IsLoggedIn reports whether an endpoint has completed login.
func (m *Manager) IsLoggedIn(url string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loggedIn[url]
}

// NoteHealthy schedules the endpoint's backoff delay to clear after the
// quiet-healthy period, so a long-lived connection starts its next backoff
// sequence from the initial delay again.
func (m *Manager) NoteHealthy(ctx context.Context, url string) {
	m.mu.Lock()
	conn := m.conns[url]
	m.mu.Unlock()
	go func() {
		select {
		case <-ctx.Done():
		case <-time.After(quietHealthyPeriod):
			m.mu.Lock()
			// Clear only if the same connection is still up: a reconnect in
			// between means the endpoint did not stay healthy.
			if current, ok := m.conns[url]; ok && current == conn {
				delete(m.reconnectDelay, url)
			}
			m.mu.Unlock()
		}
	}()
}

// nextReconnectDelay advances the endpoint's exponential backoff: 1s, 2s,
// 4s, ... capped at 60s.
func (m *Manager) nextReconnectDelay(url string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	delay, ok := m.reconnectDelay[url]
	if !ok || delay <= 0 {
		delay = reconnectDelayInitial
	} else {
		delay *= 2
		if delay > reconnectDelayMax {
			delay = reconnectDelayMax
		}
	}
	m.reconnectDelay[url] = delay
	return delay
}

// Stop flips the terminal flag and closes every connection. No further
// reconnects are issued.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopped = true
	conns := make([]*Conn, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	for _, c := range conns {
		c.CloseWithCause("session stop")
	}
}

func (m *Manager) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}
