// Package bus fans out state changes, detected events, and client pushes to
// any number of subscribers without blocking the publisher on a slow reader.
package bus

import (
	"errors"
	"sync"
	"sync/atomic"

	"agentwatch/internal/model"
)

// ErrNoSubscribers is returned by a Publish* call when nobody is currently
// subscribed on that channel.
var ErrNoSubscribers = errors.New("bus: no subscribers")

// MetricsSnapshot reports per-channel publish counters.
type MetricsSnapshot struct {
	StateSent     uint64
	StateErrors   uint64
	EventsSent    uint64
	EventsErrors  uint64
	ClientSent    uint64
	ClientErrors  uint64
}

// Bus fans out StateChange, DaemonEvent, and ClientUpdate values to
// subscribers. Each subscriber gets its own buffered channel; a publish
// that finds a subscriber's channel full drops that subscriber's oldest
// queued value rather than blocking the publisher or the other
// subscribers, matching the original's lagging-receiver broadcast
// semantics without requiring the subscriber to keep up.
type Bus struct {
	capacity int

	stateMu  sync.Mutex
	stateSub []chan model.StateChange

	eventMu  sync.Mutex
	eventSub []chan model.DaemonEvent

	clientMu  sync.Mutex
	clientSub []chan model.ClientUpdate

	stateSent    atomic.Uint64
	stateErrors  atomic.Uint64
	eventsSent   atomic.Uint64
	eventsErrors atomic.Uint64
	clientSent   atomic.Uint64
	clientErrors atomic.Uint64
}

// New builds a Bus. capacity is the per-subscriber channel buffer depth,
// clamped to at least 1.
func New(capacity int) *Bus {
	if capacity < 1 {
		capacity = 1
	}
	return &Bus{capacity: capacity}
}

// SubscribeState registers a new state-change subscriber. cancel removes it;
// callers must call cancel when done to avoid leaking the channel.
func (b *Bus) SubscribeState() (ch <-chan model.StateChange, cancel func()) {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	c := make(chan model.StateChange, b.capacity)
	b.stateSub = append(b.stateSub, c)
	return c, func() { b.removeState(c) }
}

func (b *Bus) removeState(target chan model.StateChange) {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	for i, c := range b.stateSub {
		if c == target {
			b.stateSub = append(b.stateSub[:i], b.stateSub[i+1:]...)
			close(c)
			return
		}
	}
}

// SubscribeEvents registers a new daemon-event subscriber.
func (b *Bus) SubscribeEvents() (ch <-chan model.DaemonEvent, cancel func()) {
	b.eventMu.Lock()
	defer b.eventMu.Unlock()
	c := make(chan model.DaemonEvent, b.capacity)
	b.eventSub = append(b.eventSub, c)
	return c, func() { b.removeEvent(c) }
}

func (b *Bus) removeEvent(target chan model.DaemonEvent) {
	b.eventMu.Lock()
	defer b.eventMu.Unlock()
	for i, c := range b.eventSub {
		if c == target {
			b.eventSub = append(b.eventSub[:i], b.eventSub[i+1:]...)
			close(c)
			return
		}
	}
}

// SubscribeClients registers a new client-update subscriber.
func (b *Bus) SubscribeClients() (ch <-chan model.ClientUpdate, cancel func()) {
	b.clientMu.Lock()
	defer b.clientMu.Unlock()
	c := make(chan model.ClientUpdate, b.capacity)
	b.clientSub = append(b.clientSub, c)
	return c, func() { b.removeClient(c) }
}

func (b *Bus) removeClient(target chan model.ClientUpdate) {
	b.clientMu.Lock()
	defer b.clientMu.Unlock()
	for i, c := range b.clientSub {
		if c == target {
			b.clientSub = append(b.clientSub[:i], b.clientSub[i+1:]...)
			close(c)
			return
		}
	}
}

// PublishState fans a state change out to every subscriber, returning the
// number of subscribers reached, or ErrNoSubscribers if there are none.
func (b *Bus) PublishState(change model.StateChange) (int, error) {
	b.stateMu.Lock()
	subs := append([]chan model.StateChange(nil), b.stateSub...)
	b.stateMu.Unlock()

	if len(subs) == 0 {
		b.stateErrors.Add(1)
		return 0, ErrNoSubscribers
	}
	for _, c := range subs {
		sendStateDropOldest(c, change)
	}
	b.stateSent.Add(1)
	return len(subs), nil
}

func sendStateDropOldest(c chan model.StateChange, v model.StateChange) {
	select {
	case c <- v:
		return
	default:
	}
	select {
	case <-c:
	default:
	}
	select {
	case c <- v:
	default:
	}
}

// PublishEvent fans a daemon event out to every subscriber.
func (b *Bus) PublishEvent(event model.DaemonEvent) (int, error) {
	b.eventMu.Lock()
	subs := append([]chan model.DaemonEvent(nil), b.eventSub...)
	b.eventMu.Unlock()

	if len(subs) == 0 {
		b.eventsErrors.Add(1)
		return 0, ErrNoSubscribers
	}
	for _, c := range subs {
		sendEventDropOldest(c, event)
	}
	b.eventsSent.Add(1)
	return len(subs), nil
}

func sendEventDropOldest(c chan model.DaemonEvent, v model.DaemonEvent) {
	select {
	case c <- v:
		return
	default:
	}
	select {
	case <-c:
	default:
	}
	select {
	case c <- v:
	default:
	}
}

// PublishClientUpdate fans a client update out to every subscriber.
func (b *Bus) PublishClientUpdate(update model.ClientUpdate) (int, error) {
	b.clientMu.Lock()
	subs := append([]chan model.ClientUpdate(nil), b.clientSub...)
	b.clientMu.Unlock()

	if len(subs) == 0 {
		b.clientErrors.Add(1)
		return 0, ErrNoSubscribers
	}
	for _, c := range subs {
		sendClientDropOldest(c, update)
	}
	b.clientSent.Add(1)
	return len(subs), nil
}

func sendClientDropOldest(c chan model.ClientUpdate, v model.ClientUpdate) {
	select {
	case c <- v:
		return
	default:
	}
	select {
	case <-c:
	default:
	}
	select {
	case c <- v:
	default:
	}
}

// Metrics returns the current publish counters.
func (b *Bus) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		StateSent:    b.stateSent.Load(),
		StateErrors:  b.stateErrors.Load(),
		EventsSent:   b.eventsSent.Load(),
		EventsErrors: b.eventsErrors.Load(),
		ClientSent:   b.clientSent.Load(),
		ClientErrors: b.clientErrors.Load(),
	}
}
