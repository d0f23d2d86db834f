// SPDX-License-Identifier: MPL-2.0

package manager

import (
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/akkumar/closure-util/internal/script"
)

// subscriberBuffer is the per-subscriber channel capacity. A subscriber that
// falls further behind loses its oldest undelivered events.
const subscriberBuffer = 64

const (
	// EventReady fires once when the initial resolution succeeded.
	EventReady EventKind = iota
	// EventError fires for every parse or resolution failure.
	EventError
	// EventUpdate fires after a successful incremental reparse or a removal.
	EventUpdate
	// EventPreWatch fires after the initial resolution and before watchers
	// are armed.
	EventPreWatch
	// EventClosed fires exactly once, when the manager is closed.
	EventClosed
)

type (
	// EventKind discriminates Event values.
	EventKind int

	// Event is one signal from the manager.
	Event struct {
		Kind EventKind
		// Err is set for EventError.
		Err error
		// Script is the new script for EventUpdate. A removal carries neither
		// Script nor Path.
		Script *script.Script
		// Path is the affected file for a reparse EventUpdate and for
		// file-level EventError.
		Path string
	}

	// Subscription is a stream of events for one consumer. C is closed when
	// the subscription is cancelled or the manager is closed.
	Subscription struct {
		ID uuid.UUID
		C  <-chan Event
	}

	bus struct {
		logger *log.Logger
		mu     sync.Mutex
		subs   map[uuid.UUID]chan Event
		closed bool
	}
)

// String returns the event name.
func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	case EventError:
		return "error"
	case EventUpdate:
		return "update"
	case EventPreWatch:
		return "beforewatch"
	case EventClosed:
		return "close"
	default:
		return "unknown"
	}
}

func newBus(logger *log.Logger) *bus {
	return &bus{logger: logger, subs: make(map[uuid.UUID]chan Event)}
}

func (b *bus) subscribe() *Subscription {
	ch := make(chan Event, subscriberBuffer)
	id := uuid.New()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
	} else {
		b.subs[id] = ch
	}
	return &Subscription{ID: id, C: ch}
}

func (b *bus) unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// publish delivers ev to every subscriber without blocking.
func (b *bus) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for id, ch := range b.subs {
		b.deliver(id, ch, ev)
	}
}

// close publishes ev as the final event and closes every subscriber.
func (b *bus) close(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		b.deliver(id, ch, ev)
		close(ch)
		delete(b.subs, id)
	}
}

func (b *bus) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *bus) deliver(id uuid.UUID, ch chan Event, ev Event) {
	select {
	case ch <- ev:
		return
	default:
	}
	// Full: drop the oldest event to make room.
	select {
	case old := <-ch:
		b.logger.Warn("subscriber lagging, event dropped", "subscriber", id, "dropped", old.Kind, "path", old.Path)
	default:
	}
	select {
	case ch <- ev:
	default:
	}
}
