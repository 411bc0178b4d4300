package mqtt

import (
	"errors"
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"

	"github.com/jmylchreest/keylight2mqtt/internal/config"
)

// MessageHandler receives inbound messages on the client's network goroutine.
type MessageHandler func(topic string, payload []byte)

// Client is the part of a broker connection the session drives. A Client is
// used for a single connection and thrown away afterwards.
type Client interface {
	Connect() error
	Subscribe(topic string, handler MessageHandler) error
	Publish(topic string, payload []byte, retained bool) error
	Disconnect(quiesce uint)
}

// ClientFactory builds a fresh Client. onLost is called, from any goroutine,
// when an established connection drops.
type ClientFactory func(cfg config.MQTTConfig, onLost func(error)) Client

// pahoClient adapts paho.mqtt.golang to Client
type pahoClient struct {
	client pahomqtt.Client
}

// NewPahoClient is the ClientFactory used outside of tests
func NewPahoClient(cfg config.MQTTConfig, onLost func(error)) Client {
	opts := buildClientOptions(cfg)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		onLost(err)
	})
	return &pahoClient{client: pahomqtt.NewClient(opts)}
}

func (p *pahoClient) Connect() error {
	token := p.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		if isAuthError(err) {
			return fmt.Errorf("%w: %w", ErrNotAuthorized, err)
		}
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return nil
}

func (p *pahoClient) Subscribe(topic string, handler MessageHandler) error {
	token := p.client.Subscribe(topic, defaultQoS, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

func (p *pahoClient) Publish(topic string, payload []byte, retained bool) error {
	token := p.client.Publish(topic, defaultQoS, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

func (p *pahoClient) Disconnect(quiesce uint) {
	if p.client.IsConnected() {
		p.client.Disconnect(quiesce)
	}
}

// isAuthError reports whether the broker refused the connection because of
// the supplied credentials
func isAuthError(err error) bool {
	return errors.Is(err, packets.ErrorRefusedBadUsernameOrPassword) ||
		errors.Is(err, packets.ErrorRefusedNotAuthorised)
}
