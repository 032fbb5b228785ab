package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDelay = 50 * time.Millisecond

// backend is a minimal push server: each accepted connection is handed to the test.
type backend struct {
	*httptest.Server
	accepted  atomic.Int32
	reject    atomic.Int32 // number of upcoming handshakes to refuse
	connected chan *websocket.Conn
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{connected: make(chan *websocket.Conn, 16)}
	upgrader := websocket.Upgrader{}

	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.reject.Load() > 0 {
			b.reject.Add(-1)
			http.Error(w, "backend starting", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b.accepted.Add(1)
		b.connected <- conn
	}))
	t.Cleanup(b.Close)
	return b
}

func (b *backend) endpoint() string {
	return "ws" + strings.TrimPrefix(b.URL, "http") + "/ws"
}

func (b *backend) next(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-b.connected:
		t.Cleanup(func() { _ = conn.Close() })
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for client connection")
		return nil
	}
}

func send(t *testing.T, conn *websocket.Conn, frames ...string) {
	t.Helper()
	for _, f := range frames {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(f)))
	}
}

type frameLog struct {
	mu     sync.Mutex
	frames []string
}

func (l *frameLog) add(data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frames = append(l.frames, string(data))
}

func (l *frameLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.frames...)
}

func newManager(t *testing.T, b *backend, log *frameLog) *ConnectionManager {
	t.Helper()
	m := NewConnectionManager(b.endpoint(), log.add, WithReconnectDelay(testDelay))
	t.Cleanup(m.Disconnect)
	return m
}

func TestConnectionManagerReceivesFramesInOrder(t *testing.T) {
	b := newBackend(t)
	log := &frameLog{}
	m := newManager(t, b, log)
	assert.Equal(t, StateIdle, m.State())

	m.Connect()
	server := b.next(t)
	require.Eventually(t, func() bool { return m.State() == StateOpen }, time.Second, 5*time.Millisecond)

	send(t, server, "a", "b", "c")
	require.Eventually(t, func() bool { return len(log.get()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, log.get())
}

func TestConnectionManagerReconnectsAfterClose(t *testing.T) {
	b := newBackend(t)
	log := &frameLog{}
	m := newManager(t, b, log)

	m.Connect()
	first := b.next(t)

	// Orderly close and abrupt close both lead to a reconnect.
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	require.NoError(t, first.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))
	second := b.next(t)

	_ = second.Close()
	third := b.next(t)

	send(t, third, "after-reconnect")
	require.Eventually(t, func() bool { return len(log.get()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), b.accepted.Load())
}

func TestConnectionManagerRetriesFailedDials(t *testing.T) {
	b := newBackend(t)
	b.reject.Store(3)
	m := newManager(t, b, &frameLog{})

	start := time.Now()
	m.Connect()
	b.next(t)

	// Three refused handshakes, each followed by one fixed delay.
	assert.GreaterOrEqual(t, time.Since(start), 3*testDelay)
	require.Eventually(t, func() bool { return m.State() == StateOpen }, time.Second, 5*time.Millisecond)
}

func TestConnectionManagerReconnectDelayIsConstant(t *testing.T) {
	b := newBackend(t)
	m := newManager(t, b, &frameLog{})

	m.Connect()
	conn := b.next(t)
	for i := 0; i < 4; i++ {
		lostAt := time.Now()
		_ = conn.Close()
		conn = b.next(t)

		// No backoff growth: every attempt waits one delay, never much more.
		elapsed := time.Since(lostAt)
		assert.GreaterOrEqual(t, elapsed, testDelay, "attempt %d", i)
		assert.Less(t, elapsed, 20*testDelay, "attempt %d", i)
	}
}

func TestConnectionManagerDisconnectStopsReconnect(t *testing.T) {
	b := newBackend(t)
	m := newManager(t, b, &frameLog{})

	m.Connect()
	server := b.next(t)
	require.Eventually(t, func() bool { return m.State() == StateOpen }, time.Second, 5*time.Millisecond)

	m.Disconnect()
	assert.Equal(t, StateDisconnected, m.State())

	// The server sees the close; nobody dials again even well past the delay.
	_, _, err := server.ReadMessage()
	assert.Error(t, err)
	assert.Never(t, func() bool { return b.accepted.Load() > 1 }, 6*testDelay, 10*time.Millisecond)

	// A manual Connect resumes the loop, including reconnection on the next loss.
	m.Connect()
	resumed := b.next(t)
	_ = resumed.Close()
	b.next(t)
	assert.Equal(t, int32(3), b.accepted.Load())
}

func TestConnectionManagerDisconnectCancelsPendingTimer(t *testing.T) {
	b := newBackend(t)
	m := newManager(t, b, &frameLog{})

	m.Connect()
	server := b.next(t)
	_ = server.Close()
	require.Eventually(t, func() bool { return m.State() == StateClosed }, time.Second, time.Millisecond)

	m.Disconnect()
	assert.Never(t, func() bool { return b.accepted.Load() > 1 }, 6*testDelay, 10*time.Millisecond)
	assert.Equal(t, StateDisconnected, m.State())
}

func TestConnectionManagerConnectSupersedesTimer(t *testing.T) {
	b := newBackend(t)
	m := NewConnectionManager(b.endpoint(), func([]byte) {}, WithReconnectDelay(time.Hour))
	t.Cleanup(m.Disconnect)

	m.Connect()
	_ = b.next(t).Close()
	require.Eventually(t, func() bool { return m.State() == StateClosed }, time.Second, time.Millisecond)

	// The hour-long timer is replaced by an immediate attempt, not stacked beside it.
	m.Connect()
	b.next(t)
	require.Eventually(t, func() bool { return m.State() == StateOpen }, time.Second, time.Millisecond)
	assert.Equal(t, int32(2), b.accepted.Load())
}

func TestConnectionManagerIgnoresConnectWhileOpen(t *testing.T) {
	b := newBackend(t)
	m := newManager(t, b, &frameLog{})

	m.Connect()
	b.next(t)
	require.Eventually(t, func() bool { return m.State() == StateOpen }, time.Second, 5*time.Millisecond)

	m.Connect()
	m.Connect()
	assert.Never(t, func() bool { return b.accepted.Load() > 1 }, 4*testDelay, 10*time.Millisecond)
}

func TestConnectionManagerStateHook(t *testing.T) {
	b := newBackend(t)
	var mu sync.Mutex
	seen := map[State]bool{}
	m := NewConnectionManager(b.endpoint(), func([]byte) {},
		WithReconnectDelay(testDelay),
		WithStateHook(func(s State) {
			mu.Lock()
			seen[s] = true
			mu.Unlock()
		}))

	m.Connect()
	_ = b.next(t).Close()
	b.next(t)
	m.Disconnect()

	mu.Lock()
	defer mu.Unlock()
	for _, s := range []State{StateConnecting, StateOpen, StateClosed, StateDisconnected} {
		assert.True(t, seen[s], "state %s not observed", s)
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "unknown", State(99).String())
}
