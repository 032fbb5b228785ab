package realtime

import (
	"sync/atomic"

	"github.com/rs/zerolog"

	"agentwatch/pkg/logger"
)

// Dispatcher composes the push connection and the subscription registry:
// every frame is decoded and routed to the matching subscribers.
//
// One Dispatcher is meant to be constructed per process and shared by every
// observer, so there is exactly one push connection regardless of how many
// observers exist. Construct it once, call Connect once, and call Disconnect
// once at shutdown.
type Dispatcher struct {
	conn     *ConnectionManager
	registry *Registry
	dropped  atomic.Uint64
	log      zerolog.Logger
}

// NewDispatcher creates a dispatcher for endpoint. It does not connect.
func NewDispatcher(endpoint string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: NewRegistry(),
		log:      logger.Component("dispatcher"),
	}
	d.conn = NewConnectionManager(endpoint, d.handleFrame, opts...)
	return d
}

// Connect opens the push channel; reconnection is automatic afterwards.
func (d *Dispatcher) Connect() { d.conn.Connect() }

// Disconnect closes the push channel and stops reconnecting.
func (d *Dispatcher) Disconnect() { d.conn.Disconnect() }

// Subscribe registers h for envelopes of type key, or all envelopes for Wildcard.
func (d *Dispatcher) Subscribe(key string, h Handler) Subscription {
	return d.registry.Subscribe(key, h)
}

// Unsubscribe removes a subscription; unknown subscriptions are ignored.
func (d *Dispatcher) Unsubscribe(sub Subscription) { d.registry.Unsubscribe(sub) }

// State reports the connection state.
func (d *Dispatcher) State() State { return d.conn.State() }

// Endpoint returns the push endpoint URL.
func (d *Dispatcher) Endpoint() string { return d.conn.Endpoint() }

// DroppedFrames counts frames discarded because they could not be decoded.
func (d *Dispatcher) DroppedFrames() uint64 { return d.dropped.Load() }

// handleFrame is the connection's frame callback. Malformed frames are dropped
// without retry: the stream is advisory and frames are never replayed.
func (d *Dispatcher) handleFrame(data []byte) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		d.dropped.Add(1)
		d.log.Debug().Err(err).Int("bytes", len(data)).Msg("Dropping undecodable frame")
		return
	}
	d.registry.Dispatch(env)
}
