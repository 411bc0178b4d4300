// Package bridge composes the registry, dispatcher and bus session into the
// runtime loop. Everything the loop touches is owned by the goroutine calling
// Run; observers only see the Status snapshot.
package bridge

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmylchreest/keylight2mqtt/internal/config"
	"github.com/jmylchreest/keylight2mqtt/internal/dispatch"
	"github.com/jmylchreest/keylight2mqtt/internal/errors"
	"github.com/jmylchreest/keylight2mqtt/internal/events"
	"github.com/jmylchreest/keylight2mqtt/internal/mqtt"
	"github.com/jmylchreest/keylight2mqtt/internal/registry"
	"github.com/jmylchreest/keylight2mqtt/pkg/keylight"
)

// Bridge runs the connect / refresh / tick loop
type Bridge struct {
	cfg        *config.Config
	logger     *slog.Logger
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	session    *mqtt.Session
	events     *events.Bus
	status     *StatusTracker
	now        func() time.Time
}

type options struct {
	discoverer        keylight.Discoverer
	controllerFactory registry.ControllerFactory
	clientFactory     mqtt.ClientFactory
	sessionOptions    []mqtt.Option
	now               func() time.Time
}

// Option configures a Bridge
type Option func(*options)

// WithDiscoverer replaces the mDNS discoverer
func WithDiscoverer(d keylight.Discoverer) Option {
	return func(o *options) { o.discoverer = d }
}

// WithControllerFactory replaces the HTTP control transport
func WithControllerFactory(f registry.ControllerFactory) Option {
	return func(o *options) { o.controllerFactory = f }
}

// WithClientFactory replaces the paho broker client
func WithClientFactory(f mqtt.ClientFactory) Option {
	return func(o *options) { o.clientFactory = f }
}

// WithSessionOptions passes extra options to the bus session
func WithSessionOptions(opts ...mqtt.Option) Option {
	return func(o *options) { o.sessionOptions = append(o.sessionOptions, opts...) }
}

// WithClock sets the time source used for discovery cache decisions
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New wires a bridge from cfg
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.discoverer == nil {
		o.discoverer = keylight.NewMDNSDiscoverer(logger, &http.Client{Timeout: cfg.DiscoveryTimeout()})
	}

	bus := events.NewBus()
	status := NewStatusTracker()
	bus.Subscribe(status.Observe)

	regOpts := []registry.Option{
		registry.WithCacheDuration(cfg.DiscoveryCacheDuration()),
		registry.WithDiscoveryTimeout(cfg.DiscoveryTimeout()),
		registry.WithEventBus(bus),
	}
	if o.controllerFactory != nil {
		regOpts = append(regOpts, registry.WithControllerFactory(o.controllerFactory))
	}
	reg := registry.New(o.discoverer, logger, regOpts...)

	sessOpts := []mqtt.Option{mqtt.WithEventBus(bus)}
	if o.clientFactory != nil {
		sessOpts = append(sessOpts, mqtt.WithClientFactory(o.clientFactory))
	}
	session := mqtt.NewSession(cfg.MQTT, logger, append(sessOpts, o.sessionOptions...)...)

	if cfg.MQTT.PublishState {
		bus.Subscribe(NewStatePublisher(session, session.Topics(), logger).Observe)
	}

	return &Bridge{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		dispatcher: dispatch.New(reg, logger,
			dispatch.WithEventBus(bus),
			dispatch.WithDropMalformed(cfg.Bridge.DropMalformed)),
		session: session,
		events:  bus,
		status:  status,
		now:     o.now,
	}
}

// Status returns the tracker observers may read from any goroutine
func (b *Bridge) Status() *StatusTracker {
	return b.status
}

// Events returns the bridge's event bus
func (b *Bridge) Events() *events.Bus {
	return b.events
}

// Run connects to the broker and services it until ctx is done or a fatal
// error occurs. The session is closed on every exit path. The returned error
// is ctx.Err() after cancellation and wraps errors.ErrFatal otherwise.
func (b *Bridge) Run(ctx context.Context) error {
	b.logger.Info("bridge: starting", "broker", b.cfg.MQTT.Server, "port", b.cfg.MQTT.Port, "base_topic", b.cfg.MQTT.BaseTopic)
	for {
		if err := b.session.Connect(ctx); err != nil {
			b.session.Close()
			b.status.setBusState(b.session.State())
			return b.exit(ctx, err)
		}

		err := b.serve(ctx)
		b.session.Close()
		b.status.setBusState(b.session.State())
		if err != nil {
			return b.exit(ctx, err)
		}
	}
}

// serve alternates registry refreshes with bus ticks
func (b *Bridge) serve(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.registry.Refresh(ctx, b.now()); err != nil {
			return err
		}
		b.status.setRegistry(b.registry.Devices(), b.registry.LastDiscovery())

		if err := b.session.Tick(ctx, b.dispatcher.Dispatch); err != nil {
			return err
		}
	}
}

func (b *Bridge) exit(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		b.logger.Info("bridge: shutting down", "reason", ctxErr)
		return ctxErr
	}
	if !errors.IsFatal(err) {
		err = errors.Fatalf("bridge: %w", err)
	}
	return errors.LogErrorAndReturn(b.logger, err, "bridge: critical error, exiting")
}
