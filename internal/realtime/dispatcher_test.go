package realtime

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envLog struct {
	mu   sync.Mutex
	envs []Envelope
}

func (l *envLog) handler() Handler {
	return func(env Envelope) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.envs = append(l.envs, env)
	}
}

func (l *envLog) types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.envs))
	for i, e := range l.envs {
		out[i] = e.Type
	}
	return out
}

func (l *envLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.envs)
}

func newTestDispatcher(t *testing.T, b *backend) *Dispatcher {
	t.Helper()
	d := NewDispatcher(b.endpoint(), WithReconnectDelay(testDelay))
	t.Cleanup(d.Disconnect)
	return d
}

func TestDispatcherRoutesByType(t *testing.T) {
	b := newBackend(t)
	d := newTestDispatcher(t, b)

	progress, completed, all := &envLog{}, &envLog{}, &envLog{}
	d.Subscribe("task_progress", progress.handler())
	d.Subscribe("task_completed", completed.handler())
	d.Subscribe(Wildcard, all.handler())

	d.Connect()
	server := b.next(t)
	send(t, server,
		`{"type":"task_progress","payload":{"progress_pct":10}}`,
		`{"type":"heartbeat"}`,
		`{"type":"task_completed","payload":{"summary":"done"}}`,
		`{"type":"task_progress","payload":{"progress_pct":50}}`,
		`{"payload":{"text":"untyped"}}`,
	)

	require.Eventually(t, func() bool { return all.len() == 5 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"task_progress", "task_progress"}, progress.types())
	assert.Equal(t, []string{"task_completed"}, completed.types())
	assert.Equal(t, []string{"task_progress", "heartbeat", "task_completed", "task_progress", "message"}, all.types())

	progress.mu.Lock()
	assert.Equal(t, float64(10), progress.envs[0].Payload["progress_pct"])
	assert.Equal(t, float64(50), progress.envs[1].Payload["progress_pct"])
	progress.mu.Unlock()
}

func TestDispatcherDropsMalformedFrames(t *testing.T) {
	b := newBackend(t)
	d := newTestDispatcher(t, b)

	all := &envLog{}
	d.Subscribe(Wildcard, all.handler())

	d.Connect()
	server := b.next(t)
	send(t, server,
		`{"type":"email_sent"}`,
		`{"type": broken`,
		`[]`,
		`{"type":"email_approved"}`,
	)

	require.Eventually(t, func() bool { return all.len() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"email_sent", "email_approved"}, all.types())
	assert.Equal(t, uint64(2), d.DroppedFrames())
	assert.Equal(t, StateOpen, d.State())
}

func TestDispatcherUnsubscribeStopsDelivery(t *testing.T) {
	b := newBackend(t)
	d := newTestDispatcher(t, b)

	first, second := &envLog{}, &envLog{}
	sub := d.Subscribe("deal_alert", first.handler())
	d.Subscribe("deal_alert", second.handler())

	d.Connect()
	server := b.next(t)
	send(t, server, `{"type":"deal_alert","payload":{"n":1}}`)
	require.Eventually(t, func() bool { return second.len() == 1 }, time.Second, 5*time.Millisecond)

	d.Unsubscribe(sub)
	send(t, server, `{"type":"deal_alert","payload":{"n":2}}`)
	require.Eventually(t, func() bool { return second.len() == 2 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, first.len(), "earlier deliveries stay, later ones stop")
}

func TestDispatcherSharesOneConnection(t *testing.T) {
	b := newBackend(t)
	d := newTestDispatcher(t, b)

	logs := make([]*envLog, 10)
	for i := range logs {
		logs[i] = &envLog{}
		d.Subscribe(Wildcard, logs[i].handler())
	}

	d.Connect()
	server := b.next(t)
	for i := 0; i < 20; i++ {
		send(t, server, fmt.Sprintf(`{"type":"agent_log","seq":%d}`, i))
	}

	for _, l := range logs {
		require.Eventually(t, func() bool { return l.len() == 20 }, time.Second, 5*time.Millisecond)
	}
	assert.Equal(t, int32(1), b.accepted.Load())
}

func TestDispatcherSurvivesReconnect(t *testing.T) {
	b := newBackend(t)
	d := newTestDispatcher(t, b)

	all := &envLog{}
	d.Subscribe(Wildcard, all.handler())

	d.Connect()
	first := b.next(t)
	send(t, first, `{"type":"task_created"}`)
	require.Eventually(t, func() bool { return all.len() == 1 }, time.Second, 5*time.Millisecond)
	_ = first.Close()

	second := b.next(t)
	send(t, second, `{"type":"task_plan_ready"}`)
	require.Eventually(t, func() bool { return all.len() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"task_created", "task_plan_ready"}, all.types())
}
