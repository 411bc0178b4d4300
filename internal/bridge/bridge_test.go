package bridge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/keylight2mqtt/internal/config"
	kerrors "github.com/jmylchreest/keylight2mqtt/internal/errors"
	"github.com/jmylchreest/keylight2mqtt/internal/mqtt"
	"github.com/jmylchreest/keylight2mqtt/pkg/keylight"
	"github.com/jmylchreest/keylight2mqtt/pkg/keylight/keylighttest"
)

type published struct {
	topic    string
	payload  string
	retained bool
}

// broker hands out fake clients and remembers the most recent one
type broker struct {
	mu          sync.Mutex
	failConnect int
	connects    int
	clients     []*client
}

type client struct {
	b            *broker
	onLost       func(error)
	mu           sync.Mutex
	handler      mqtt.MessageHandler
	published    []published
	disconnected bool
}

func (b *broker) newClient(_ config.MQTTConfig, onLost func(error)) mqtt.Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := &client{b: b, onLost: onLost}
	b.clients = append(b.clients, c)
	return c
}

func (b *broker) current() *client {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.clients) == 0 {
		return nil
	}
	return b.clients[len(b.clients)-1]
}

func (b *broker) connectCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connects
}

func (c *client) Connect() error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	c.b.connects++
	if c.b.failConnect > 0 {
		c.b.failConnect--
		return mqtt.ErrConnectionFailed
	}
	return nil
}

func (c *client) Subscribe(_ string, handler mqtt.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
	return nil
}

func (c *client) Publish(topic string, payload []byte, retained bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, published{topic, string(payload), retained})
	return nil
}

func (c *client) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func (c *client) subscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler != nil
}

func (c *client) isDisconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

func (c *client) publishedMessages() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.published...)
}

func (c *client) deliver(topic, payload string) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	h(topic, []byte(payload))
}

type harness struct {
	mu          sync.Mutex
	bridge      *Bridge
	broker      *broker
	controllers map[string]*keylighttest.Controller
	discoverer  *keylighttest.Discoverer
}

func testConfig() *config.Config {
	return &config.Config{
		MQTT: config.MQTTConfig{
			Server:    "localhost",
			Port:      1883,
			BaseTopic: "ElgatoKeyLights",
			ClientID:  "keylight2mqtt-test",
		},
		Discovery: config.DiscoveryConfig{Timeout: 2, CacheDuration: 600},
	}
}

func newHarness(t *testing.T, cfg *config.Config, discovery ...keylighttest.Result) *harness {
	t.Helper()
	h := &harness{
		broker:      &broker{},
		controllers: map[string]*keylighttest.Controller{},
		discoverer:  keylighttest.NewDiscoverer(discovery...),
	}
	h.bridge = New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithDiscoverer(h.discoverer),
		WithClientFactory(h.broker.newClient),
		WithControllerFactory(func(l keylight.Light) keylight.Controller {
			h.mu.Lock()
			defer h.mu.Unlock()
			c := keylighttest.NewController(keylight.State{Brightness: 10, Temperature: 4000})
			h.controllers[strings.ToLower(l.SerialNumber)] = c
			return c
		}),
		WithSessionOptions(mqtt.WithBackoff(time.Millisecond), mqtt.WithTickTimeout(5*time.Millisecond)),
	)
	return h
}

// start runs the bridge until the returned cancel is called; wait returns Run's result
func (h *harness) start(t *testing.T) (cancel func(), wait func() error) {
	t.Helper()
	ctx, cancelFn := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.bridge.Run(ctx) }()

	wait = func() error {
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("bridge did not stop")
			return nil
		}
	}
	t.Cleanup(func() {
		cancelFn()
	})
	return cancelFn, wait
}

func (h *harness) controller(serial string) *keylighttest.Controller {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.controllers[serial]
}

func (h *harness) waitSubscribed(t *testing.T) *client {
	t.Helper()
	require.Eventually(t, func() bool {
		c := h.broker.current()
		return c != nil && c.subscribed()
	}, 2*time.Second, time.Millisecond)
	return h.broker.current()
}

func xyz1() keylighttest.Result {
	return keylighttest.Result{Lights: []keylight.Light{keylighttest.Light("XYZ1", 11)}}
}

func TestRun_AppliesCommandsOnce(t *testing.T) {
	h := newHarness(t, testConfig(), xyz1())
	cancel, wait := h.start(t)

	c := h.waitSubscribed(t)
	c.deliver("ElgatoKeyLights/set/xyz1/power", "on")
	c.deliver("ElgatoKeyLights/set/xyz1/power", "on")
	c.deliver("ElgatoKeyLights/set/XYZ1/brightness", "75")

	require.Eventually(t, func() bool {
		ctrl := h.controller("xyz1")
		return ctrl != nil && len(ctrl.Calls()) == 2
	}, 2*time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, wait(), context.Canceled)
	assert.Equal(t, []keylighttest.Call{{Method: "on"}, {Method: "brightness", Value: 75}}, h.controller("xyz1").Calls())
	assert.True(t, c.isDisconnected())
	assert.Equal(t, 1, h.discoverer.Calls(), "discovery is cached between ticks")
}

func TestRun_StatusSnapshot(t *testing.T) {
	h := newHarness(t, testConfig(), xyz1())
	cancel, wait := h.start(t)

	c := h.waitSubscribed(t)
	c.deliver("ElgatoKeyLights/set/xyz1/power", "on")

	require.Eventually(t, func() bool {
		return h.bridge.Status().Snapshot().Commands == 1
	}, 2*time.Second, time.Millisecond)

	s := h.bridge.Status().Snapshot()
	assert.Equal(t, "connected", s.BusState)
	assert.True(t, s.Healthy())
	assert.Equal(t, 1, s.Devices)
	assert.Equal(t, 1, s.Connects)
	assert.False(t, s.LastDiscovery.IsZero())

	lights := h.bridge.Status().Lights()
	require.Len(t, lights, 1)
	assert.Equal(t, "XYZ1", lights[0].SerialNumber)

	cancel()
	require.ErrorIs(t, wait(), context.Canceled)
	assert.Equal(t, "disconnected", h.bridge.Status().Snapshot().BusState)
}

func TestRun_MalformedPayloadIsFatal(t *testing.T) {
	h := newHarness(t, testConfig(), xyz1())
	_, wait := h.start(t)

	c := h.waitSubscribed(t)
	c.deliver("ElgatoKeyLights/set/xyz1/brightness", "bright")

	err := wait()
	require.Error(t, err)
	assert.True(t, kerrors.IsFatal(err))
	assert.True(t, kerrors.IsInvalidInput(err))
	assert.True(t, c.isDisconnected(), "session is torn down on the fatal path")
	assert.Equal(t, "fatal_error", h.bridge.Status().Snapshot().BusState)
}

func TestRun_DropMalformed(t *testing.T) {
	cfg := testConfig()
	cfg.Bridge.DropMalformed = true
	h := newHarness(t, cfg, xyz1())
	cancel, wait := h.start(t)

	c := h.waitSubscribed(t)
	c.deliver("ElgatoKeyLights/set/xyz1/brightness", "bright")
	c.deliver("ElgatoKeyLights/set/xyz1/brightness", "30")

	require.Eventually(t, func() bool {
		ctrl := h.controller("xyz1")
		return ctrl != nil && len(ctrl.Calls()) == 1
	}, 2*time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, wait(), context.Canceled)
}

func TestRun_DiscoveryFailureIsFatal(t *testing.T) {
	cause := errors.New("multicast unavailable")
	h := newHarness(t, testConfig(), keylighttest.Result{Err: cause})
	_, wait := h.start(t)

	err := wait()
	require.Error(t, err)
	assert.True(t, kerrors.IsDiscoveryFailed(err))
	assert.True(t, kerrors.IsFatal(err))
	assert.ErrorIs(t, err, cause)
	assert.True(t, h.broker.current().isDisconnected())
}

func TestRun_ConnectionLostIsFatal(t *testing.T) {
	h := newHarness(t, testConfig(), xyz1())
	_, wait := h.start(t)

	c := h.waitSubscribed(t)
	c.onLost(io.EOF)

	err := wait()
	require.Error(t, err)
	assert.ErrorIs(t, err, mqtt.ErrConnectionLost)
	assert.True(t, kerrors.IsFatal(err))
}

func TestRun_RetriesConnection(t *testing.T) {
	h := newHarness(t, testConfig(), xyz1())
	h.broker.failConnect = 3
	cancel, wait := h.start(t)

	h.waitSubscribed(t)
	assert.Equal(t, 4, h.broker.connectCount())

	cancel()
	assert.ErrorIs(t, wait(), context.Canceled)
}

func TestRun_CancelWhileConnecting(t *testing.T) {
	h := newHarness(t, testConfig(), xyz1())
	h.broker.failConnect = 1 << 30
	cancel, wait := h.start(t)

	require.Eventually(t, func() bool { return h.broker.connectCount() > 2 }, 2*time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, wait(), context.Canceled)
	assert.Zero(t, h.discoverer.Calls(), "discovery only runs once connected")
}

func TestRun_PublishesState(t *testing.T) {
	cfg := testConfig()
	cfg.MQTT.PublishState = true
	h := newHarness(t, cfg, xyz1())
	cancel, wait := h.start(t)

	c := h.waitSubscribed(t)
	c.deliver("ElgatoKeyLights/set/xyz1/color", "5000")

	require.Eventually(t, func() bool { return len(c.publishedMessages()) == 1 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, published{"ElgatoKeyLights/state/XYZ1/color", "5000", true}, c.publishedMessages()[0])

	cancel()
	assert.ErrorIs(t, wait(), context.Canceled)
}

func TestRun_NoStatePublishingByDefault(t *testing.T) {
	h := newHarness(t, testConfig(), xyz1())
	cancel, wait := h.start(t)

	c := h.waitSubscribed(t)
	c.deliver("ElgatoKeyLights/set/xyz1/power", "on")
	require.Eventually(t, func() bool {
		return h.bridge.Status().Snapshot().Commands == 1
	}, 2*time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, wait(), context.Canceled)
	assert.Empty(t, c.publishedMessages())
}
