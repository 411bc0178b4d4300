package dispatch

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/jmylchreest/keylight2mqtt/internal/errors"
)

// Attribute is the last segment of a command topic
type Attribute string

const (
	// AttributePower switches a light on ("on") or off (anything else)
	AttributePower Attribute = "power"

	// AttributeBrightness sets brightness from a decimal integer
	AttributeBrightness Attribute = "brightness"

	// AttributeColor sets the colour temperature in Kelvin from a decimal integer
	AttributeColor Attribute = "color"
)

// PowerOn is the only payload that switches a light on
const PowerOn = "on"

// PowerOff is the value reported for a light switched off
const PowerOff = "off"

// Known reports whether a is one of the attributes the bridge acts on
func (a Attribute) Known() bool {
	switch a {
	case AttributePower, AttributeBrightness, AttributeColor:
		return true
	default:
		return false
	}
}

// Command is one inbound request, derived from a message topic and payload
type Command struct {
	Serial    string
	Attribute Attribute
	Value     string
}

// ParseCommand splits topic into serial and attribute: the attribute is the
// last segment and the serial the one before it. The payload is kept as
// UTF-8 text exactly as received.
func ParseCommand(topic string, payload []byte) (Command, error) {
	segments := strings.Split(topic, "/")
	if len(segments) < 2 {
		return Command{}, errors.InvalidInputf("topic %q has no serial/attribute segments", topic)
	}
	if !utf8.Valid(payload) {
		return Command{}, errors.InvalidInputf("payload on %q is not valid UTF-8", topic)
	}
	return Command{
		Serial:    segments[len(segments)-2],
		Attribute: Attribute(segments[len(segments)-1]),
		Value:     string(payload),
	}, nil
}

// Power reports whether the value switches a light on. Only the exact
// payload "on" does; "on\n" or "ON" switch it off.
func (c Command) Power() bool {
	return c.Value == PowerOn
}

// IntValue parses the command value as a decimal integer, ignoring
// surrounding whitespace
func (c Command) IntValue() (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(c.Value))
	if err != nil {
		return 0, errors.InvalidInputf("%s value %q for light %s is not an integer: %w", c.Attribute, c.Value, c.Serial, err)
	}
	return v, nil
}
