package bridge

import (
	"sync"
	"time"

	"github.com/jmylchreest/keylight2mqtt/internal/events"
	"github.com/jmylchreest/keylight2mqtt/internal/mqtt"
	"github.com/jmylchreest/keylight2mqtt/internal/registry"
	"github.com/jmylchreest/keylight2mqtt/pkg/keylight"
)

// Status is a point-in-time view of the bridge for observers such as the
// health endpoint
type Status struct {
	BusState      string
	Devices       int
	LastDiscovery time.Time
	Commands      int
	Connects      int
}

// Healthy reports whether the bus session is connected
func (s Status) Healthy() bool {
	return s.BusState == mqtt.StateConnected.String()
}

// StatusTracker keeps a Status current from bus events and registry
// refreshes. It is safe for concurrent use: the runtime writes and HTTP
// handlers read.
type StatusTracker struct {
	mu     sync.RWMutex
	status Status
	lights []keylight.Light
}

// NewStatusTracker creates a tracker reporting a disconnected bridge
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{status: Status{BusState: mqtt.StateDisconnected.String()}}
}

// Snapshot returns a copy of the current status
func (t *StatusTracker) Snapshot() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Lights returns the registered lights as of the last refresh
func (t *StatusTracker) Lights() []keylight.Light {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]keylight.Light(nil), t.lights...)
}

// Observe updates the status from one event
func (t *StatusTracker) Observe(e events.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch e.Type {
	case events.BusConnected:
		t.status.BusState = mqtt.StateConnected.String()
		t.status.Connects++
	case events.BusDisconnected:
		t.status.BusState = mqtt.StateDisconnected.String()
	case events.LightStateChanged:
		t.status.Commands++
	}
}

func (t *StatusTracker) setBusState(state mqtt.State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.BusState = state.String()
}

func (t *StatusTracker) setRegistry(devices []*registry.Device, lastDiscovery time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.LastDiscovery = lastDiscovery
	if len(devices) == t.status.Devices {
		return
	}
	t.status.Devices = len(devices)
	t.lights = make([]keylight.Light, len(devices))
	for i, d := range devices {
		t.lights[i] = d.Light
	}
}
