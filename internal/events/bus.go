// Package events provides a lightweight in-process event bus for broadcasting
// registry and command activity to observers (state publisher, health status).
package events

import (
	"sync"
	"time"
)

// EventType identifies the kind of event.
type EventType string

const (
	// Light events
	LightDiscovered   EventType = "light.discovered"
	LightStateChanged EventType = "light.state_changed"

	// Bus session events
	BusConnected    EventType = "bus.connected"
	BusDisconnected EventType = "bus.disconnected"
)

// Event is a single event emitted by a producer. Light events carry the
// serial, and state changes the attribute and the value that was applied.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Serial    string
	Attribute string
	Value     string
}

// NewEvent creates an Event stamped with the current time.
func NewEvent(t EventType) Event {
	return Event{Type: t, Timestamp: time.Now()}
}

// NewLightEvent creates an Event about a single light.
func NewLightEvent(t EventType, serial, attribute, value string) Event {
	e := NewEvent(t)
	e.Serial = serial
	e.Attribute = attribute
	e.Value = value
	return e
}

// SubscriberFunc is a callback invoked for each event.
// Implementations must not block; slow subscribers should buffer internally.
type SubscriberFunc func(Event)

// Bus is a simple synchronous fan-out event bus.
// Publishing blocks until all subscribers have been called, so subscribers
// should be fast.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]SubscriberFunc
	nextID      int
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[int]SubscriberFunc),
	}
}

// Subscribe registers a callback and returns an unsubscribe function.
func (b *Bus) Subscribe(fn SubscriberFunc) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
	}
}

// Publish sends an event to all current subscribers. A nil Bus is a no-op so
// components can be constructed without one.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	// Snapshot so callbacks run without the lock held.
	subs := make([]SubscriberFunc, 0, len(b.subscribers))
	for _, fn := range b.subscribers {
		subs = append(subs, fn)
	}
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(e)
	}
}
