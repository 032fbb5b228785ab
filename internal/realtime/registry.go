package realtime

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"agentwatch/pkg/logger"
)

// Wildcard is the subscription key that receives every envelope.
const Wildcard = "*"

// Handler observes envelopes. It runs synchronously on the dispatching goroutine.
type Handler func(Envelope)

// Subscription identifies one registered handler. Go funcs are not comparable,
// so the token returned by Subscribe is what Unsubscribe matches on.
type Subscription struct {
	Key string
	ID  string
}

type entry struct {
	id      string
	handler Handler
}

// Registry maps event types (or Wildcard) to ordered handler lists.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string][]entry
	log      zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string][]entry),
		log:      logger.Component("registry"),
	}
}

// Subscribe appends h to the handlers for key.
func (r *Registry) Subscribe(key string, h Handler) Subscription {
	sub := Subscription{Key: key, ID: uuid.NewString()}

	r.mu.Lock()
	r.handlers[key] = append(r.handlers[key], entry{id: sub.ID, handler: h})
	r.mu.Unlock()

	return sub
}

// Unsubscribe removes the handler registered under sub. Unknown keys and
// tokens are ignored.
func (r *Registry) Unsubscribe(sub Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.handlers[sub.Key]
	for i, e := range list {
		if e.id != sub.ID {
			continue
		}
		// Copy rather than splice in place: Dispatch may be iterating the old slice.
		next := make([]entry, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		if len(next) == 0 {
			delete(r.handlers, sub.Key)
		} else {
			r.handlers[sub.Key] = next
		}
		return
	}
}

// Count returns how many handlers are registered under key.
func (r *Registry) Count(key string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[key])
}

// Dispatch delivers env to the handlers for env.Type, then to the wildcard
// handlers, each in registration order. A panicking handler is logged and
// skipped.
func (r *Registry) Dispatch(env Envelope) {
	r.mu.RLock()
	typed := r.handlers[env.Type]
	var wild []entry
	if env.Type != Wildcard {
		wild = r.handlers[Wildcard]
	}
	r.mu.RUnlock()

	for _, e := range typed {
		r.invoke(e, env)
	}
	for _, e := range wild {
		r.invoke(e, env)
	}
}

func (r *Registry) invoke(e entry, env Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Warn().
				Interface("panic", rec).
				Str("type", env.Type).
				Str("subscription", e.id).
				Msg("Event handler panicked")
		}
	}()
	e.handler(env)
}
