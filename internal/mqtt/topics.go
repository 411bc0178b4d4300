package mqtt

import "strings"

// Topics builds the topics the bridge subscribes and publishes to, all
// below a configurable base topic.
type Topics struct {
	Base string
}

// NewTopics returns topic builders rooted at base. A trailing slash is ignored.
func NewTopics(base string) Topics {
	return Topics{Base: strings.TrimRight(base, "/")}
}

// CommandWildcard returns the subscription covering every command. Commands
// arrive on <base>/set/<serial>/<attribute>.
func (t Topics) CommandWildcard() string {
	return t.Base + "/set/#"
}

// State returns the retained state topic for one attribute of a light:
// <base>/state/<serial>/<attribute>
func (t Topics) State(serial, attribute string) string {
	return t.Base + "/state/" + serial + "/" + attribute
}
