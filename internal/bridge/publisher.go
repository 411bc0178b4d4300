package bridge

import (
	"log/slog"

	"github.com/jmylchreest/keylight2mqtt/internal/events"
	"github.com/jmylchreest/keylight2mqtt/internal/mqtt"
)

// Publisher is the part of the session the state publisher needs
type Publisher interface {
	Publish(topic string, payload []byte, retained bool) error
}

// StatePublisher mirrors applied mutations to retained
// <base>/state/<serial>/<attribute> topics
type StatePublisher struct {
	publisher Publisher
	topics    mqtt.Topics
	logger    *slog.Logger
}

// NewStatePublisher creates a publisher writing below topics
func NewStatePublisher(publisher Publisher, topics mqtt.Topics, logger *slog.Logger) *StatePublisher {
	return &StatePublisher{publisher: publisher, topics: topics, logger: logger}
}

// Observe publishes state changes. Publish failures are logged; a broken
// connection surfaces on the next session tick.
func (p *StatePublisher) Observe(e events.Event) {
	if e.Type != events.LightStateChanged {
		return
	}
	topic := p.topics.State(e.Serial, e.Attribute)
	if err := p.publisher.Publish(topic, []byte(e.Value), true); err != nil {
		p.logger.Warn("bridge: failed to publish state", "topic", topic, "error", err)
		return
	}
	p.logger.Debug("bridge: published state", "topic", topic, "value", e.Value)
}
