package realtime

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"agentwatch/pkg/logger"
)

const (
	// DefaultReconnectDelay is the fixed pause between a loss and the next attempt.
	DefaultReconnectDelay = 3 * time.Second

	// Maximum frame size accepted from the backend.
	maxFrameSize = 1024 * 1024

	// Time allowed to write the close frame on Disconnect.
	closeWait = time.Second
)

// State is the connection slot's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed       // lost; a reconnect is pending
	StateDisconnected // stopped by Disconnect until the next Connect
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Option configures a ConnectionManager.
type Option func(*ConnectionManager)

// WithReconnectDelay overrides the fixed reconnect delay.
func WithReconnectDelay(d time.Duration) Option {
	return func(m *ConnectionManager) {
		if d > 0 {
			m.delay = d
		}
	}
}

// WithDialer replaces the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(m *ConnectionManager) {
		if d != nil {
			m.dialer = d
		}
	}
}

// WithHeader sets request headers sent with every handshake (e.g. Origin).
func WithHeader(h http.Header) Option {
	return func(m *ConnectionManager) { m.header = h }
}

// WithStateHook registers a callback invoked after every state change.
// It runs outside the manager's lock and may call State.
func WithStateHook(fn func(State)) Option {
	return func(m *ConnectionManager) { m.stateHook = fn }
}

// ConnectionManager owns the single push connection: it dials, reads frames,
// and after any loss schedules exactly one reconnect after a fixed delay,
// forever, until Disconnect is called.
type ConnectionManager struct {
	endpoint  string
	onFrame   func([]byte)
	delay     time.Duration
	dialer    *websocket.Dialer
	header    http.Header
	stateHook func(State)
	log       zerolog.Logger

	mu    sync.Mutex
	state State
	conn  *websocket.Conn
	timer *time.Timer
	// gen identifies the current attempt. Dial results, read loops and timers
	// from an older generation are discarded.
	gen uint64
}

// NewConnectionManager creates a manager in the Idle state. onFrame receives
// every data frame, in receipt order, on the connection's read goroutine.
func NewConnectionManager(endpoint string, onFrame func([]byte), opts ...Option) *ConnectionManager {
	m := &ConnectionManager{
		endpoint: endpoint,
		onFrame:  onFrame,
		delay:    DefaultReconnectDelay,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		log: logger.Component("realtime"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Endpoint returns the push endpoint URL.
func (m *ConnectionManager) Endpoint() string { return m.endpoint }

// State returns the current lifecycle state.
func (m *ConnectionManager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect starts a connection attempt and returns immediately. A pending
// reconnect timer is cancelled rather than left to fire. Calling Connect while
// an attempt is in progress or a connection is open is a caller error and is ignored.
func (m *ConnectionManager) Connect() {
	m.mu.Lock()
	if m.state == StateConnecting || m.state == StateOpen {
		state := m.state
		m.mu.Unlock()
		m.log.Warn().Str("state", state.String()).Msg("Connect called while connection is active, ignoring")
		return
	}
	m.connectLocked()
	m.mu.Unlock()

	m.notify(StateConnecting)
}

// connectLocked must be called with m.mu held.
func (m *ConnectionManager) connectLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.gen++
	m.state = StateConnecting
	go m.run(m.gen)
}

// Disconnect cancels a pending reconnect and closes the live connection. No
// automatic reconnection happens until Connect is called again. A dial already
// in flight cannot be cancelled; its connection is closed once established.
func (m *ConnectionManager) Disconnect() {
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.gen++
	conn := m.conn
	m.conn = nil
	m.state = StateDisconnected
	m.mu.Unlock()

	if conn != nil {
		closeConn(conn)
	}
	m.log.Info().Str("endpoint", m.endpoint).Msg("Push channel disconnected")
	m.notify(StateDisconnected)
}

// run dials and then reads until the connection is lost.
func (m *ConnectionManager) run(gen uint64) {
	conn, _, err := m.dialer.Dial(m.endpoint, m.header)
	if err != nil {
		m.log.Debug().Err(err).Str("endpoint", m.endpoint).Msg("Push channel dial failed")
		m.lost(gen, false)
		return
	}

	m.mu.Lock()
	if gen != m.gen {
		// Disconnect (or a newer attempt) superseded this dial.
		m.mu.Unlock()
		closeConn(conn)
		return
	}
	m.conn = conn
	m.state = StateOpen
	m.mu.Unlock()

	m.log.Info().Str("endpoint", m.endpoint).Msg("Push channel open")
	m.notify(StateOpen)

	conn.SetReadLimit(maxFrameSize)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				m.log.Debug().Err(err).Msg("Push channel read error")
			}
			m.lost(gen, true)
			return
		}
		if !m.current(gen) {
			return
		}
		m.onFrame(data)
	}
}

func (m *ConnectionManager) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.gen
}

// lost records the end of attempt gen and schedules the single reconnect.
// Errors and orderly closes take the same path.
func (m *ConnectionManager) lost(gen uint64, wasOpen bool) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.state = StateClosed
	m.timer = time.AfterFunc(m.delay, func() { m.reconnect(gen) })
	m.mu.Unlock()

	ev := m.log.Debug()
	if wasOpen {
		ev = m.log.Warn()
	}
	ev.Str("endpoint", m.endpoint).Dur("retry_in", m.delay).Msg("Push channel lost, reconnect scheduled")
	m.notify(StateClosed)
}

func (m *ConnectionManager) reconnect(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateClosed {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.connectLocked()
	m.mu.Unlock()

	m.notify(StateConnecting)
}

func (m *ConnectionManager) notify(s State) {
	if m.stateHook != nil {
		m.stateHook(s)
	}
}

func closeConn(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait))
	_ = conn.Close()
}
