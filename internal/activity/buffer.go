// Package activity turns the raw envelope stream into the dashboard's
// bounded, human-readable activity feed.
package activity

import (
	"sync"

	"agentwatch/internal/realtime"
)

// DefaultCapacity is the number of most recent envelopes a Buffer keeps.
const DefaultCapacity = 100

// Source is the subscription surface a Buffer attaches to. *realtime.Dispatcher
// implements it.
type Source interface {
	Subscribe(key string, h realtime.Handler) realtime.Subscription
	Unsubscribe(sub realtime.Subscription)
}

// Snapshot is an immutable view of a Buffer. Entries are most recent first.
// Live reports whether any envelope has arrived since the buffer was created;
// it says nothing about whether the connection is currently open.
type Snapshot struct {
	Entries []realtime.Envelope
	Live    bool
}

type watcher struct {
	id uint64
	fn func(Snapshot)
}

// Buffer keeps the most recent envelopes delivered through a wildcard
// subscription. Whoever creates a Buffer owns its subscription and must call
// Close on every exit path, typically with defer.
type Buffer struct {
	src      Source
	capacity int

	mu       sync.Mutex
	snap     Snapshot
	sub      *realtime.Subscription
	watchers []watcher
	nextID   uint64
}

// NewBuffer creates a detached buffer; capacity <= 0 selects DefaultCapacity.
func NewBuffer(src Source, capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{src: src, capacity: capacity}
}

// Attach subscribes the buffer to every envelope. Attaching twice is a no-op.
func (b *Buffer) Attach() *Buffer {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sub == nil {
		sub := b.src.Subscribe(realtime.Wildcard, b.push)
		b.sub = &sub
	}
	return b
}

// Close removes the buffer's subscription. Contents stay readable.
func (b *Buffer) Close() {
	b.mu.Lock()
	sub := b.sub
	b.sub = nil
	b.mu.Unlock()

	if sub != nil {
		b.src.Unsubscribe(*sub)
	}
}

// Capacity returns the maximum number of entries.
func (b *Buffer) Capacity() int { return b.capacity }

// Snapshot returns the current contents. The returned slice is never modified;
// later deliveries publish a new one.
func (b *Buffer) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snap
}

// Watch calls fn with every new snapshot until cancel is called.
func (b *Buffer) Watch(fn func(Snapshot)) (cancel func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.watchers = append(b.watchers, watcher{id: id, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, w := range b.watchers {
			if w.id == id {
				b.watchers = append(b.watchers[:i:i], b.watchers[i+1:]...)
				return
			}
		}
	}
}

// push prepends env, truncating the tail past capacity.
func (b *Buffer) push(env realtime.Envelope) {
	b.mu.Lock()
	old := b.snap.Entries
	n := len(old) + 1
	if n > b.capacity {
		n = b.capacity
	}
	entries := make([]realtime.Envelope, n)
	entries[0] = env
	copy(entries[1:], old)

	b.snap = Snapshot{Entries: entries, Live: true}
	snap := b.snap
	watchers := b.watchers
	b.mu.Unlock()

	for _, w := range watchers {
		w.fn(snap)
	}
}
