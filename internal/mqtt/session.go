// Package mqtt owns the bridge's connection to the message broker. The
// session is driven from a single goroutine: inbound messages are queued by
// the client and handed to the caller one per Tick, so handlers never run
// concurrently with the rest of the bridge.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/keylight2mqtt/internal/config"
	kerrors "github.com/jmylchreest/keylight2mqtt/internal/errors"
	"github.com/jmylchreest/keylight2mqtt/internal/events"
)

// State is the connection state of a Session
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateFatalError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFatalError:
		return "fatal_error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Handler processes one inbound message. Dispatcher.Dispatch satisfies it.
type Handler func(ctx context.Context, topic string, payload []byte) error

type message struct {
	topic   string
	payload []byte
}

// Session manages one broker connection at a time
type Session struct {
	cfg         config.MQTTConfig
	topics      Topics
	newClient   ClientFactory
	backoff     time.Duration
	tickTimeout time.Duration
	logger      *slog.Logger
	events      *events.Bus

	mu    sync.RWMutex
	state State

	client   Client
	messages chan message
	lost     chan error
	done     chan struct{}
}

// Option configures a Session
type Option func(*Session)

// WithClientFactory overrides how broker clients are built
func WithClientFactory(f ClientFactory) Option {
	return func(s *Session) { s.newClient = f }
}

// WithBackoff sets the fixed delay between connection attempts
func WithBackoff(d time.Duration) Option {
	return func(s *Session) { s.backoff = d }
}

// WithTickTimeout sets how long Tick waits for a message
func WithTickTimeout(d time.Duration) Option {
	return func(s *Session) { s.tickTimeout = d }
}

// WithEventBus announces connects and disconnects on bus
func WithEventBus(bus *events.Bus) Option {
	return func(s *Session) { s.events = bus }
}

// NewSession creates a disconnected session for cfg
func NewSession(cfg config.MQTTConfig, logger *slog.Logger, opts ...Option) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		cfg:         cfg,
		topics:      NewTopics(cfg.BaseTopic),
		newClient:   NewPahoClient,
		backoff:     config.ReconnectBackoff,
		tickTimeout: config.TickTimeout,
		logger:      logger,
		state:       StateDisconnected,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current connection state. Safe for concurrent use.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	prev := s.state
	s.state = state
	s.mu.Unlock()
	if prev != state {
		s.logger.Debug("mqtt: session state changed", "from", prev, "to", state)
	}
}

// Topics returns the topic builders for this session's base topic
func (s *Session) Topics() Topics {
	return s.topics
}

// Connect connects to the broker and subscribes to the command topics,
// retrying refused or failed connections after a fixed backoff until it
// succeeds. It returns early only when ctx is done or the broker rejects the
// credentials, which is fatal.
func (s *Session) Connect(ctx context.Context) error {
	if s.client != nil {
		s.Close()
	}
	s.setState(StateConnecting)
	addr := brokerURL(s.cfg)
	for {
		err := s.connectOnce()
		if err == nil {
			s.setState(StateConnected)
			s.logger.Info("mqtt: connected", "broker", addr, "subscription", s.topics.CommandWildcard())
			s.events.Publish(events.NewEvent(events.BusConnected))
			return nil
		}
		if errors.Is(err, ErrNotAuthorized) {
			s.setState(StateFatalError)
			return kerrors.LogErrorAndReturn(s.logger, kerrors.Fatalf("connecting to %s: %w", addr, err),
				"mqtt: broker rejected credentials", "user", s.cfg.User)
		}

		s.logger.Warn("mqtt: connection failed, retrying", "broker", addr, "error", err, "backoff", s.backoff)
		select {
		case <-ctx.Done():
			s.setState(StateDisconnected)
			return ctx.Err()
		case <-time.After(s.backoff):
		}
	}
}

// connectOnce builds a fresh client and connects it. The subscription is
// issued on every connection rather than relying on broker session state.
func (s *Session) connectOnce() error {
	messages := make(chan message, messageBuffer)
	lost := make(chan error, 1)
	done := make(chan struct{})

	client := s.newClient(s.cfg, func(err error) {
		select {
		case lost <- err:
		default:
		}
	})
	if err := client.Connect(); err != nil {
		close(done)
		return err
	}

	err := client.Subscribe(s.topics.CommandWildcard(), func(topic string, payload []byte) {
		select {
		case messages <- message{topic: topic, payload: payload}:
		case <-done:
		}
	})
	if err != nil {
		close(done)
		client.Disconnect(defaultDisconnectQuiesce)
		return err
	}

	s.client = client
	s.messages = messages
	s.lost = lost
	s.done = done
	return nil
}

// Tick waits up to the tick timeout for one inbound message and passes it to
// handler. It returns nil when no message arrived. A lost connection, a
// handler error or a handler panic moves the session to StateFatalError and
// returns an error wrapping ErrFatal.
func (s *Session) Tick(ctx context.Context, handler Handler) error {
	if s.State() != StateConnected {
		return ErrNotConnected
	}

	timer := time.NewTimer(s.tickTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	case err := <-s.lost:
		s.setState(StateFatalError)
		return kerrors.Fatalf("%w: %w", ErrConnectionLost, err)
	case msg := <-s.messages:
		return s.handle(ctx, handler, msg)
	}
}

func (s *Session) handle(ctx context.Context, handler Handler, msg message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.setState(StateFatalError)
			err = kerrors.Fatalf("handler panic on %s: %v", msg.topic, r)
		}
	}()

	if err := handler(ctx, msg.topic, msg.payload); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return ctxErr
		}
		s.setState(StateFatalError)
		return kerrors.Fatalf("handling message on %s: %w", msg.topic, err)
	}
	return nil
}

// Publish sends payload to topic on the current connection
func (s *Session) Publish(topic string, payload []byte, retained bool) error {
	if s.client == nil || s.State() != StateConnected {
		return ErrNotConnected
	}
	return s.client.Publish(topic, payload, retained)
}

// Close disconnects the current client, if any. A session in
// StateFatalError stays there; any other session becomes disconnected.
func (s *Session) Close() {
	if s.client != nil {
		close(s.done)
		s.client.Disconnect(defaultDisconnectQuiesce)
		s.client = nil
		s.logger.Info("mqtt: disconnected", "broker", brokerURL(s.cfg))
		s.events.Publish(events.NewEvent(events.BusDisconnected))
	}
	if s.State() != StateFatalError {
		s.setState(StateDisconnected)
	}
}
