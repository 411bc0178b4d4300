// Package dispatch turns inbound bus messages into light mutations. Every
// mutation is guarded by a fresh read of the light's state, so repeating a
// command that is already satisfied sends nothing to the device.
package dispatch

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/jmylchreest/keylight2mqtt/internal/errors"
	"github.com/jmylchreest/keylight2mqtt/internal/events"
	"github.com/jmylchreest/keylight2mqtt/internal/registry"
	"github.com/jmylchreest/keylight2mqtt/pkg/keylight"
)

// DeviceSource finds the light a command targets. Serials compare
// case-insensitively.
type DeviceSource interface {
	Lookup(serial string) (*registry.Device, bool)
}

// Dispatcher applies commands to registered lights
type Dispatcher struct {
	devices       DeviceSource
	logger        *slog.Logger
	events        *events.Bus
	dropMalformed bool
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithEventBus announces applied mutations on bus
func WithEventBus(bus *events.Bus) Option {
	return func(d *Dispatcher) { d.events = bus }
}

// WithDropMalformed makes unparseable numeric payloads a logged warning
// instead of an error returned to the caller
func WithDropMalformed(drop bool) Option {
	return func(d *Dispatcher) { d.dropMalformed = drop }
}

// New creates a dispatcher over devices
func New(devices DeviceSource, logger *slog.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{devices: devices, logger: logger}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch handles one inbound message. Topics without a serial/attribute
// pair, unknown attributes and unknown serials are ignored. Malformed numeric
// values and control transport failures are returned.
func (d *Dispatcher) Dispatch(ctx context.Context, topic string, payload []byte) error {
	d.logger.Debug("dispatch: message received", "topic", topic, "payload", string(payload))

	cmd, err := ParseCommand(topic, payload)
	if err != nil {
		d.logger.Warn("dispatch: ignoring message", "topic", topic, "error", err)
		return nil
	}
	if !cmd.Attribute.Known() {
		d.logger.Debug("dispatch: ignoring unknown attribute", "attribute", cmd.Attribute, "serial", cmd.Serial)
		return nil
	}

	d.logger.Info("dispatch: setting attribute", "attribute", cmd.Attribute, "serial", cmd.Serial, "value", cmd.Value)
	dev, ok := d.devices.Lookup(cmd.Serial)
	if !ok {
		d.logger.Debug("dispatch: no light with serial", "serial", cmd.Serial)
		return nil
	}
	if err := d.apply(ctx, dev, cmd); err != nil {
		if d.dropMalformed && errors.IsInvalidInput(err) {
			d.logger.Warn("dispatch: dropping malformed command", "topic", topic, "error", err)
			return nil
		}
		return err
	}
	return nil
}

func (d *Dispatcher) apply(ctx context.Context, dev *registry.Device, cmd Command) error {
	var want int
	if cmd.Attribute != AttributePower {
		v, err := cmd.IntValue()
		if err != nil {
			return err
		}
		want = v
	}

	state, err := dev.Controller.State(ctx)
	if err != nil {
		return errors.DeviceUnavailablef("failed to get state of light %s: %w", dev.SerialNumber, err)
	}

	switch cmd.Attribute {
	case AttributePower:
		on := cmd.Power()
		if state.On == on {
			d.logger.Debug("dispatch: power unchanged", "serial", dev.SerialNumber, "on", on)
			return nil
		}
		if err := dev.Controller.SetPower(ctx, on); err != nil {
			return errors.DeviceUnavailablef("failed to switch light %s: %w", dev.SerialNumber, err)
		}
		value := PowerOff
		if on {
			value = PowerOn
		}
		d.logger.Debug("dispatch: light switched", "serial", dev.SerialNumber, "power", value)
		d.publish(dev, cmd.Attribute, value)

	// Numeric values are compared with what the light will report once set,
	// which is clamped (brightness) or rounded through mireds (temperature).
	case AttributeBrightness:
		want = keylight.ReportedBrightness(want)
		if state.Brightness == want {
			d.logger.Debug("dispatch: brightness unchanged", "serial", dev.SerialNumber, "brightness", want)
			return nil
		}
		if err := dev.Controller.SetBrightness(ctx, want); err != nil {
			return errors.DeviceUnavailablef("failed to set brightness of light %s: %w", dev.SerialNumber, err)
		}
		d.logger.Debug("dispatch: brightness set", "serial", dev.SerialNumber, "brightness", want)
		d.publish(dev, cmd.Attribute, strconv.Itoa(want))

	case AttributeColor:
		want = keylight.ReportedTemperature(want)
		if state.Temperature == want {
			d.logger.Debug("dispatch: temperature unchanged", "serial", dev.SerialNumber, "temperature", want)
			return nil
		}
		if err := dev.Controller.SetTemperature(ctx, want); err != nil {
			return errors.DeviceUnavailablef("failed to set temperature of light %s: %w", dev.SerialNumber, err)
		}
		d.logger.Debug("dispatch: temperature set", "serial", dev.SerialNumber, "temperature", want)
		d.publish(dev, cmd.Attribute, strconv.Itoa(want))
	}
	return nil
}

func (d *Dispatcher) publish(dev *registry.Device, attr Attribute, value string) {
	d.events.Publish(events.NewLightEvent(events.LightStateChanged, dev.SerialNumber, string(attr), value))
}
