// Package keylighttest provides in-memory stand-ins for the discovery and
// control transports, for use in tests.
package keylighttest

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/jmylchreest/keylight2mqtt/pkg/keylight"
)

// Call records one mutation sent to a Controller
type Call struct {
	Method string
	Value  int
}

// Controller is a fake keylight.Controller that keeps state in memory and
// records every mutation.
type Controller struct {
	mu       sync.Mutex
	state    keylight.State
	calls    []Call
	reads    int
	StateErr error
	SetErr   error
}

var _ keylight.Controller = (*Controller)(nil)

// NewController creates a fake controller reporting state
func NewController(state keylight.State) *Controller {
	return &Controller{state: state}
}

// State returns the current in-memory state
func (c *Controller) State(_ context.Context) (keylight.State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	if c.StateErr != nil {
		return keylight.State{}, c.StateErr
	}
	return c.state, nil
}

// SetPower records the call and updates the state
func (c *Controller) SetPower(_ context.Context, on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	method := "off"
	if on {
		method = "on"
	}
	c.calls = append(c.calls, Call{Method: method})
	if c.SetErr != nil {
		return c.SetErr
	}
	c.state.On = on
	return nil
}

// SetBrightness records the call and updates the state to the value a real
// light would report
func (c *Controller) SetBrightness(_ context.Context, brightness int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, Call{Method: "brightness", Value: brightness})
	if c.SetErr != nil {
		return c.SetErr
	}
	c.state.Brightness = keylight.ReportedBrightness(brightness)
	return nil
}

// SetTemperature records the call and updates the state to the value a real
// light would report
func (c *Controller) SetTemperature(_ context.Context, kelvin int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, Call{Method: "temperature", Value: kelvin})
	if c.SetErr != nil {
		return c.SetErr
	}
	c.state.Temperature = keylight.ReportedTemperature(kelvin)
	return nil
}

// Calls returns the mutations received so far
func (c *Controller) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// Reads returns how many times State was called
func (c *Controller) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

// Snapshot returns the current in-memory state without counting a read
func (c *Controller) Snapshot() keylight.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Discoverer is a fake keylight.Discoverer returning queued results, one per call.
// Once the queue is drained the last result is repeated.
type Discoverer struct {
	mu       sync.Mutex
	results  []Result
	calls    int
	timeouts []time.Duration
}

// Result is the outcome of one Discover call
type Result struct {
	Lights []keylight.Light
	Err    error
}

var _ keylight.Discoverer = (*Discoverer)(nil)

// NewDiscoverer creates a fake discoverer with the given queued results
func NewDiscoverer(results ...Result) *Discoverer {
	return &Discoverer{results: results}
}

// Discover returns the next queued result
func (d *Discoverer) Discover(ctx context.Context, timeout time.Duration) ([]keylight.Light, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	d.timeouts = append(d.timeouts, timeout)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(d.results) == 0 {
		return nil, nil
	}
	r := d.results[0]
	if len(d.results) > 1 {
		d.results = d.results[1:]
	}
	return r.Lights, r.Err
}

// Calls returns how many times Discover was invoked
func (d *Discoverer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// Timeouts returns the timeout passed to each Discover call
func (d *Discoverer) Timeouts() []time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]time.Duration(nil), d.timeouts...)
}

// Light builds a discovered light with the given serial and last IPv4 octet
func Light(serial string, octet byte) keylight.Light {
	return keylight.Light{
		ID:           fmt.Sprintf("Elgato Key Light %s", serial),
		Name:         "Key Light " + serial,
		IP:           net.IPv4(192, 168, 1, octet),
		Port:         9123,
		ProductName:  "Elgato Key Light",
		SerialNumber: serial,
	}
}
