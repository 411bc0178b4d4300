package mqtt

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/keylight2mqtt/internal/config"
	kerrors "github.com/jmylchreest/keylight2mqtt/internal/errors"
	"github.com/jmylchreest/keylight2mqtt/internal/events"
)

type publishedMessage struct {
	topic    string
	payload  string
	retained bool
}

type fakeClient struct {
	mu           sync.Mutex
	connectErr   error
	subscribeErr error
	onLost       func(error)
	handler      MessageHandler
	subscribed   []string
	published    []publishedMessage
	disconnected bool
}

func (c *fakeClient) Connect() error { return c.connectErr }

func (c *fakeClient) Subscribe(topic string, handler MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribeErr != nil {
		return c.subscribeErr
	}
	c.subscribed = append(c.subscribed, topic)
	c.handler = handler
	return nil
}

func (c *fakeClient) Publish(topic string, payload []byte, retained bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, publishedMessage{topic, string(payload), retained})
	return nil
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func (c *fakeClient) deliver(topic, payload string) {
	c.handler(topic, []byte(payload))
}

// fakeFactory hands out one fakeClient per connection attempt, failing the
// attempts listed in connectErrs in order
type fakeFactory struct {
	mu            sync.Mutex
	connectErrs   []error
	subscribeErrs []error
	clients       []*fakeClient
}

func (f *fakeFactory) New(_ config.MQTTConfig, onLost func(error)) Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &fakeClient{onLost: onLost}
	if len(f.connectErrs) > 0 {
		c.connectErr = f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
	}
	if len(f.subscribeErrs) > 0 {
		c.subscribeErr = f.subscribeErrs[0]
		f.subscribeErrs = f.subscribeErrs[1:]
	}
	f.clients = append(f.clients, c)
	return c
}

func (f *fakeFactory) last() *fakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clients[len(f.clients)-1]
}

func testMQTTConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Server:    "broker.local",
		Port:      1883,
		BaseTopic: "ElgatoKeyLights",
		ClientID:  "keylight2mqtt-test",
	}
}

func newTestSession(f *fakeFactory, opts ...Option) *Session {
	opts = append([]Option{
		WithClientFactory(f.New),
		WithBackoff(time.Millisecond),
		WithTickTimeout(20 * time.Millisecond),
	}, opts...)
	return NewSession(testMQTTConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "fatal_error", StateFatalError.String())
	assert.Equal(t, "State(9)", State(9).String())
}

func TestTopics(t *testing.T) {
	topics := NewTopics("ElgatoKeyLights/")
	assert.Equal(t, "ElgatoKeyLights/set/#", topics.CommandWildcard())
	assert.Equal(t, "ElgatoKeyLights/state/ABC123/brightness", topics.State("ABC123", "brightness"))
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testMQTTConfig()
	cfg.Port = 1884
	cfg.User = "bridge"
	cfg.Password = "secret"

	opts := buildClientOptions(cfg)
	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "tcp://broker.local:1884", opts.Servers[0].String())
	assert.Equal(t, "keylight2mqtt-test", opts.ClientID)
	assert.Equal(t, "bridge", opts.Username)
	assert.Equal(t, "secret", opts.Password)
	assert.False(t, opts.AutoReconnect)
	assert.False(t, opts.ConnectRetry)
	assert.True(t, opts.CleanSession)

	anonymous := buildClientOptions(testMQTTConfig())
	assert.Empty(t, anonymous.Username)
}

func TestIsAuthError(t *testing.T) {
	assert.True(t, isAuthError(packets.ErrorRefusedBadUsernameOrPassword))
	assert.True(t, isAuthError(fmt.Errorf("%w : %w", packets.ErrorRefusedNotAuthorised, io.EOF)))
	assert.False(t, isAuthError(packets.ErrorRefusedServerUnavailable))
	assert.False(t, isAuthError(io.EOF))
}

func TestConnect_Subscribes(t *testing.T) {
	bus := events.NewBus()
	var got []events.EventType
	bus.Subscribe(func(e events.Event) { got = append(got, e.Type) })

	f := &fakeFactory{}
	s := newTestSession(f, WithEventBus(bus))
	assert.Equal(t, StateDisconnected, s.State())

	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, StateConnected, s.State())
	assert.Equal(t, []string{"ElgatoKeyLights/set/#"}, f.last().subscribed)
	assert.Equal(t, []events.EventType{events.BusConnected}, got)
}

func TestConnect_RetriesRefusedConnections(t *testing.T) {
	refused := fmt.Errorf("%w: connection refused", ErrConnectionFailed)
	f := &fakeFactory{connectErrs: []error{refused, refused, refused}}
	s := newTestSession(f)

	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, StateConnected, s.State())
	assert.Len(t, f.clients, 4, "a fresh client is built for every attempt")
}

func TestConnect_SubscribeFailureRetries(t *testing.T) {
	f := &fakeFactory{subscribeErrs: []error{ErrSubscribeFailed}}
	s := newTestSession(f)

	require.NoError(t, s.Connect(context.Background()))
	require.Len(t, f.clients, 2)
	assert.True(t, f.clients[0].disconnected)
	assert.Equal(t, []string{"ElgatoKeyLights/set/#"}, f.clients[1].subscribed)
}

func TestConnect_NotAuthorizedIsFatal(t *testing.T) {
	f := &fakeFactory{connectErrs: []error{fmt.Errorf("%w: %w", ErrNotAuthorized, packets.ErrorRefusedNotAuthorised)}}
	s := newTestSession(f)

	err := s.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, kerrors.IsFatal(err))
	assert.ErrorIs(t, err, ErrNotAuthorized)
	assert.Equal(t, StateFatalError, s.State())
	assert.Len(t, f.clients, 1)
}

func TestConnect_CancelStopsRetrying(t *testing.T) {
	errs := make([]error, 10000)
	for i := range errs {
		errs[i] = ErrConnectionFailed
	}
	f := &fakeFactory{connectErrs: errs}
	s := newTestSession(f)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.Connect(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateDisconnected, s.State())
}

func TestConnect_ResubscribesOnReconnect(t *testing.T) {
	f := &fakeFactory{}
	s := newTestSession(f)
	ctx := context.Background()

	require.NoError(t, s.Connect(ctx))
	s.Close()
	assert.Equal(t, StateDisconnected, s.State())
	require.NoError(t, s.Connect(ctx))

	require.Len(t, f.clients, 2)
	assert.True(t, f.clients[0].disconnected)
	assert.Equal(t, []string{"ElgatoKeyLights/set/#"}, f.clients[1].subscribed)
}

func TestTick_NoMessage(t *testing.T) {
	f := &fakeFactory{}
	s := newTestSession(f)
	require.NoError(t, s.Connect(context.Background()))

	called := false
	start := time.Now()
	err := s.Tick(context.Background(), func(context.Context, string, []byte) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.Equal(t, StateConnected, s.State())
}

func TestTick_OneMessagePerTick(t *testing.T) {
	f := &fakeFactory{}
	s := newTestSession(f)
	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))

	f.last().deliver("ElgatoKeyLights/set/ABC123/power", "on")
	f.last().deliver("ElgatoKeyLights/set/ABC123/brightness", "75")

	var topics, payloads []string
	handler := func(_ context.Context, topic string, payload []byte) error {
		topics = append(topics, topic)
		payloads = append(payloads, string(payload))
		return nil
	}

	require.NoError(t, s.Tick(ctx, handler))
	assert.Equal(t, []string{"ElgatoKeyLights/set/ABC123/power"}, topics)

	require.NoError(t, s.Tick(ctx, handler))
	assert.Equal(t, []string{"on", "75"}, payloads)
}

func TestTick_HandlerErrorIsFatal(t *testing.T) {
	f := &fakeFactory{}
	s := newTestSession(f)
	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))
	f.last().deliver("ElgatoKeyLights/set/ABC123/brightness", "bright")

	err := s.Tick(ctx, func(context.Context, string, []byte) error {
		return kerrors.InvalidInputf("not an integer")
	})
	require.Error(t, err)
	assert.True(t, kerrors.IsFatal(err))
	assert.True(t, kerrors.IsInvalidInput(err))
	assert.Equal(t, StateFatalError, s.State())

	s.Close()
	assert.True(t, f.last().disconnected, "fatal path must still disconnect")
	assert.Equal(t, StateFatalError, s.State())
}

func TestTick_HandlerPanicIsFatal(t *testing.T) {
	f := &fakeFactory{}
	s := newTestSession(f)
	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))
	f.last().deliver("ElgatoKeyLights/set/ABC123/power", "on")

	err := s.Tick(ctx, func(context.Context, string, []byte) error {
		panic("boom")
	})
	require.Error(t, err)
	assert.True(t, kerrors.IsFatal(err))
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, StateFatalError, s.State())
}

func TestTick_ConnectionLostIsFatal(t *testing.T) {
	f := &fakeFactory{}
	s := newTestSession(f)
	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))

	f.last().onLost(io.ErrUnexpectedEOF)

	err := s.Tick(ctx, func(context.Context, string, []byte) error { return nil })
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectionLost)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.True(t, kerrors.IsFatal(err))
	assert.Equal(t, StateFatalError, s.State())
}

func TestTick_NotConnected(t *testing.T) {
	s := newTestSession(&fakeFactory{})
	err := s.Tick(context.Background(), func(context.Context, string, []byte) error { return nil })
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestTick_CancelledHandlerIsNotFatal(t *testing.T) {
	f := &fakeFactory{}
	s := newTestSession(f)
	require.NoError(t, s.Connect(context.Background()))
	f.last().deliver("ElgatoKeyLights/set/ABC123/power", "on")

	ctx, cancel := context.WithCancel(context.Background())
	err := s.Tick(ctx, func(ctx context.Context, _ string, _ []byte) error {
		cancel()
		return fmt.Errorf("reading state: %w", ctx.Err())
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, kerrors.IsFatal(err))
	assert.Equal(t, StateConnected, s.State())
}

func TestPublish(t *testing.T) {
	f := &fakeFactory{}
	s := newTestSession(f)

	assert.ErrorIs(t, s.Publish("ElgatoKeyLights/state/ABC123/power", []byte("on"), true), ErrNotConnected)

	require.NoError(t, s.Connect(context.Background()))
	require.NoError(t, s.Publish("ElgatoKeyLights/state/ABC123/power", []byte("on"), true))
	assert.Equal(t, []publishedMessage{{"ElgatoKeyLights/state/ABC123/power", "on", true}}, f.last().published)
}

func TestClose_Idempotent(t *testing.T) {
	bus := events.NewBus()
	disconnects := 0
	bus.Subscribe(func(e events.Event) {
		if e.Type == events.BusDisconnected {
			disconnects++
		}
	})

	f := &fakeFactory{}
	s := newTestSession(f, WithEventBus(bus))
	require.NoError(t, s.Connect(context.Background()))

	s.Close()
	s.Close()
	assert.Equal(t, 1, disconnects)
	assert.Equal(t, StateDisconnected, s.State())
}

func TestClose_UnblocksPendingDelivery(t *testing.T) {
	f := &fakeFactory{}
	s := newTestSession(f)
	require.NoError(t, s.Connect(context.Background()))
	client := f.last()

	for i := 0; i < messageBuffer; i++ {
		client.deliver("ElgatoKeyLights/set/ABC123/brightness", "10")
	}

	delivered := make(chan struct{})
	go func() {
		client.deliver("ElgatoKeyLights/set/ABC123/brightness", "11")
		close(delivered)
	}()

	s.Close()
	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("delivery still blocked after Close")
	}
}
