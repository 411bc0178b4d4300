// Package registry keeps the set of known lights, refreshing it through
// periodic discovery. Lights are keyed by lower-cased serial number and are
// only ever added: a light that disappears stays registered until restart.
package registry

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jmylchreest/keylight2mqtt/internal/config"
	"github.com/jmylchreest/keylight2mqtt/internal/errors"
	"github.com/jmylchreest/keylight2mqtt/internal/events"
	"github.com/jmylchreest/keylight2mqtt/pkg/keylight"
)

// Device is a registered light together with the transport used to control it
type Device struct {
	keylight.Light
	Controller keylight.Controller
}

// ControllerFactory builds the control transport for a newly registered light
type ControllerFactory func(light keylight.Light) keylight.Controller

// Registry owns the known lights. It is not safe for concurrent use; the
// bridge runtime is its only caller.
type Registry struct {
	discoverer    keylight.Discoverer
	newController ControllerFactory
	devices       map[string]*Device
	lastDiscovery time.Time
	cacheDuration time.Duration
	timeout       time.Duration
	logger        *slog.Logger
	events        *events.Bus
}

// Option configures a Registry
type Option func(*Registry)

// WithCacheDuration sets how long discovered lights are served before rediscovery
func WithCacheDuration(d time.Duration) Option {
	return func(r *Registry) { r.cacheDuration = d }
}

// WithDiscoveryTimeout sets the bounded wait of a single discovery pass
func WithDiscoveryTimeout(d time.Duration) Option {
	return func(r *Registry) { r.timeout = d }
}

// WithEventBus announces newly registered lights on bus
func WithEventBus(bus *events.Bus) Option {
	return func(r *Registry) { r.events = bus }
}

// WithControllerFactory overrides how controllers are built for new lights
func WithControllerFactory(f ControllerFactory) Option {
	return func(r *Registry) { r.newController = f }
}

// New creates an empty registry backed by discoverer
func New(discoverer keylight.Discoverer, logger *slog.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		discoverer:    discoverer,
		devices:       make(map[string]*Device),
		cacheDuration: config.DefaultDiscoveryCacheDuration,
		timeout:       config.DefaultDiscoveryTimeout,
		logger:        logger,
	}
	r.newController = func(light keylight.Light) keylight.Controller {
		return keylight.NewKeyLightClient(light.IP.String(), light.Port, r.logger)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Refresh runs a discovery pass when the registry is empty or the cache has
// expired, and otherwise does nothing. A failing discovery transport moves the
// last-discovery mark back by the retry window and returns a fatal error.
func (r *Registry) Refresh(ctx context.Context, now time.Time) error {
	if len(r.devices) > 0 && now.Sub(r.lastDiscovery) <= r.cacheDuration {
		r.logger.Debug("registry: using cached lights, skipping discovery")
		return nil
	}

	r.logger.Debug("registry: starting to discover lights", "timeout", r.timeout)
	before := len(r.devices)

	found, err := r.discoverer.Discover(ctx, r.timeout)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		r.lastDiscovery = now.Add(-config.DiscoveryRetryWindow)
		return errors.LogErrorAndReturn(r.logger,
			errors.DiscoveryFailedf("light discovery: %w", err),
			"registry: critical error in light discovery")
	}
	r.lastDiscovery = now

	for _, light := range found {
		r.add(light)
	}

	if len(r.devices) != before {
		devices := r.Devices()
		r.logger.Info("registry: found Elgato lights", "count", len(devices), "serials", serials(devices))
		for _, d := range devices {
			r.logger.Info("registry: light", "serial", d.SerialNumber, "name", d.Name, "product", d.ProductName, "addr", d.Addr())
		}
	}
	return nil
}

// add registers light unless a light with the same serial is already known.
// Known lights keep their original handle even if the address changed.
func (r *Registry) add(light keylight.Light) {
	key := strings.ToLower(light.SerialNumber)
	if key == "" {
		r.logger.Debug("registry: ignoring light without serial", "id", light.ID)
		return
	}
	if _, exists := r.devices[key]; exists {
		return
	}
	r.devices[key] = &Device{
		Light:      light,
		Controller: r.newController(light),
	}
	r.events.Publish(events.NewLightEvent(events.LightDiscovered, light.SerialNumber, "", ""))
}

// Devices returns the registered lights ordered by serial
func (r *Registry) Devices() []*Device {
	keys := make([]string, 0, len(r.devices))
	for k := range r.devices {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	devices := make([]*Device, 0, len(keys))
	for _, k := range keys {
		devices = append(devices, r.devices[k])
	}
	return devices
}

// Lookup returns the light with the given serial, compared case-insensitively
func (r *Registry) Lookup(serial string) (*Device, bool) {
	d, ok := r.devices[strings.ToLower(serial)]
	return d, ok
}

// Len returns the number of registered lights
func (r *Registry) Len() int {
	return len(r.devices)
}

// LastDiscovery returns the time discovery last ran, moved back by the retry
// window after a failure
func (r *Registry) LastDiscovery() time.Time {
	return r.lastDiscovery
}

func serials(devices []*Device) []string {
	out := make([]string, len(devices))
	for i, d := range devices {
		out[i] = d.SerialNumber
	}
	return out
}
