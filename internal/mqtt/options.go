package mqtt

import (
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/jmylchreest/keylight2mqtt/internal/config"
)

// Connection constants.
const (
	// defaultConnectTimeout bounds a single connection attempt.
	defaultConnectTimeout = 5 * time.Second

	// defaultPublishTimeout is the maximum time to wait for subscribe and
	// publish acknowledgments.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// defaultQoS is used for the command subscription and state publishes.
	defaultQoS = 0

	// messageBuffer is how many inbound messages may queue between ticks.
	messageBuffer = 64
)

// brokerURL returns the tcp:// URL for the configured server and port
func brokerURL(cfg config.MQTTConfig) string {
	return fmt.Sprintf("tcp://%s:%d", cfg.Server, cfg.Port)
}

// buildClientOptions creates paho MQTT options from the bridge config.
//
// Reconnection is left to the bridge runtime, so paho's automatic reconnect
// and connect retry are both switched off.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(brokerURL(cfg))
	opts.SetClientID(cfg.ClientID)

	if cfg.User != "" {
		opts.SetUsername(cfg.User)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)
	opts.SetOrderMatters(true)

	return opts
}
