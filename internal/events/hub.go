package events

import "sync"

// defaultSubscriberBuffer is used when the hub is built with a
// non-positive buffer size.
const defaultSubscriberBuffer = 256

// Hub fans decoded envelopes out to any number of subscribers.
//
// Each subscriber owns a buffered channel filled in arrival order, so
// delivery within one subscriber preserves arrival order; no ordering is
// guaranteed across subscribers. Publishing never blocks: a subscriber
// that stops draining has envelopes dropped (and the drops logged) rather
// than stalling the stream's read loop.
//
// Thread Safety: safe for concurrent use.
type Hub struct {
	mu     sync.Mutex
	subs   map[int]chan Envelope
	next   int
	buffer int
	closed bool
	logger Logger
}

// NewHub creates a fan-out hub with the given per-subscriber buffer size.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Hub{
		subs:   make(map[int]chan Envelope),
		buffer: buffer,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the hub.
func (h *Hub) SetLogger(logger Logger) {
	h.logger = logger
}

// Subscribe registers a new subscriber and returns its delivery channel
// plus a cancel function. The channel is closed on cancel or hub close.
//
// Returns:
//   - <-chan Envelope: Delivery channel, filled in arrival order
//   - func(): Idempotent unsubscribe
func (h *Hub) Subscribe() (<-chan Envelope, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Envelope, h.buffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.next
	h.next++
	h.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// Publish delivers an envelope to every subscriber without blocking.
func (h *Hub) Publish(env Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.subs {
		select {
		case ch <- env:
		default:
			h.logger.Warn("dropping event for slow subscriber",
				"subscriber", id,
				"resource", env.ResourceID,
			)
		}
	}
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close closes every subscriber channel. Further Publish calls are
// no-ops and further Subscribe calls return a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
