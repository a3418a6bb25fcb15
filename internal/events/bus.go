package events

import (
	"sync"

	"github.com/betflow/betflow/internal/telemetry"
)

// Handler processes an event. Returning an error logs it but does not stop
// dispatch to later handlers.
type Handler func(Event) error

// ringSize is how many recent events the bus retains for diagnostics.
const ringSize = 1000

// Subscription identifies one registered handler so it can be removed.
type Subscription struct {
	topic Topic
	id    int
}

// Bus is a synchronous in-process topic bus.
// Handlers are invoked in registration order on the publisher's goroutine;
// within a topic each publisher's events are therefore seen in publication
// order. Delivery is at-most-once and a failing handler never affects the
// others.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[Topic][]entry

	ringMu sync.Mutex
	ring   [ringSize]Event
	ringN  int // total events ever published
}

type entry struct {
	id int
	fn Handler
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[Topic][]entry)}
}

// Subscribe registers a handler for a topic and returns a token for
// Unsubscribe. Registering the same function twice yields two deliveries;
// callers that need idempotence keep the token.
func (b *Bus) Subscribe(topic Topic, h Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.handlers[topic] = append(b.handlers[topic], entry{id: b.nextID, fn: h})
	return &Subscription{topic: topic, id: b.nextID}
}

// Unsubscribe removes a previously registered handler. Safe to call twice.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	hs := b.handlers[sub.topic]
	for i, e := range hs {
		if e.id == sub.id {
			b.handlers[sub.topic] = append(hs[:i:i], hs[i+1:]...)
			return
		}
	}
}

// Publish dispatches an event to every handler registered for its topic.
// A handler error (or panic) is isolated to that handler; the event still
// counts as delivered.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	hs := b.handlers[evt.Topic]
	b.mu.RUnlock()

	b.record(evt)
	telemetry.Metrics.EventsPublished.Inc()

	for _, e := range hs {
		b.dispatch(e.fn, evt)
	}
}

func (b *Bus) dispatch(h Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.Metrics.HandlerErrors.Inc()
			telemetry.Errorf("bus: handler panic on %s: %v", evt.Topic, r)
		}
	}()
	if err := h(evt); err != nil {
		telemetry.Metrics.HandlerErrors.Inc()
		telemetry.Warnf("bus: handler error on %s: %v", evt.Topic, err)
	}
}

func (b *Bus) record(evt Event) {
	b.ringMu.Lock()
	b.ring[b.ringN%ringSize] = evt
	b.ringN++
	b.ringMu.Unlock()
}

// Recent returns up to n of the most recently published events,
// newest first.
func (b *Bus) Recent(n int) []Event {
	b.ringMu.Lock()
	defer b.ringMu.Unlock()

	have := b.ringN
	if have > ringSize {
		have = ringSize
	}
	if n > have {
		n = have
	}
	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, b.ring[(b.ringN-1-i+ringSize)%ringSize])
	}
	return out
}
