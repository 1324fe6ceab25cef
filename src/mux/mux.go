package mux

import (
	"sync"

	"github.com/google/uuid"
	"github.com/monetiq/realtime/src/types"
	"github.com/rs/zerolog"
)

// Handler consumes an event. Handlers run synchronously in registration
// order; a panicking handler is isolated and does not stop delivery to
// the remaining handlers.
type Handler func(evt types.Event)

// Subscription identifies one registration and is the ticket for
// unsubscribing it.
type Subscription struct {
	name string
	id   string
}

type entry struct {
	id string
	fn Handler
}

// Mux fans events out to any number of independent subscribers per
// event name.
type Mux struct {
	mu     sync.RWMutex
	subs   map[string][]entry
	logger zerolog.Logger
}

// New creates an event multiplexer.
func New(logger zerolog.Logger) *Mux {
	return &Mux{
		subs:   make(map[string][]entry),
		logger: logger.With().Str("component", "mux").Logger(),
	}
}

// Subscribe registers a handler for an event name. Handlers for the same
// name are invoked in registration order.
func (m *Mux) Subscribe(name string, fn Handler) Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subs[name] = append(m.subs[name], entry{id: id, fn: fn})
	return Subscription{name: name, id: id}
}

// Unsubscribe removes exactly that registration. Safe to call more than
// once; calls after the first are no-ops.
func (m *Mux) Unsubscribe(sub Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list, ok := m.subs[sub.name]
	if !ok {
		return
	}
	for i, e := range list {
		if e.id == sub.id {
			m.subs[sub.name] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(m.subs[sub.name]) == 0 {
		delete(m.subs, sub.name)
	}
}

// Publish delivers an event to every subscriber registered for its name,
// synchronously and in registration order. A handler panic is recovered
// and logged; it never propagates to the publisher or to sibling
// subscribers.
func (m *Mux) Publish(evt types.Event) {
	m.mu.RLock()
	list := m.subs[evt.Name]
	// Copy so a handler may subscribe/unsubscribe without holding the lock.
	handlers := make([]entry, len(list))
	copy(handlers, list)
	m.mu.RUnlock()

	for _, e := range handlers {
		m.deliver(e, evt)
	}
}

func (m *Mux) deliver(e entry, evt types.Event) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().
				Str("event", evt.Name).
				Interface("panic", r).
				Msg("subscriber panicked")
		}
	}()
	e.fn(evt)
}

// SubscriberCount returns the number of subscribers for an event name.
func (m *Mux) SubscriberCount(name string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs[name])
}
