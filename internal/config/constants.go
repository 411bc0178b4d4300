package config

import "time"

// Common constants
const (
	// AppName is used for the config directory, default client ID prefix and logs
	AppName = "keylight2mqtt"

	// ConfigDirName is the name of the config directory within XDG_CONFIG_HOME
	ConfigDirName = "keylight"

	// DaemonConfigFilename is the base filename for the bridge config
	DaemonConfigFilename = "keylight2mqtt.yaml"

	// EnvPrefix is the prefix for KEYLIGHT_* environment overrides
	EnvPrefix = "KEYLIGHT"
)

// MQTT defaults
const (
	// DefaultMQTTServer is the broker host used when none is configured
	DefaultMQTTServer = "localhost"

	// DefaultMQTTPort is the plain-TCP MQTT port
	DefaultMQTTPort = 1883

	// DefaultBaseTopic prefixes every subscribed and published topic
	DefaultBaseTopic = "ElgatoKeyLights"
)

// Default timeouts and intervals
const (
	// DefaultDiscoveryTimeout is how long a single mDNS browse waits for answers
	DefaultDiscoveryTimeout = 2 * time.Second

	// DefaultDiscoveryCacheDuration is how long discovered lights are served
	// from the registry before discovery runs again
	DefaultDiscoveryCacheDuration = 600 * time.Second

	// DiscoveryRetryWindow is how soon discovery may run again after a failed pass
	DiscoveryRetryWindow = 30 * time.Second

	// MinDiscoveryTimeout is the minimum allowed discovery browse duration
	MinDiscoveryTimeout = 1 * time.Second

	// ReconnectBackoff is the fixed delay between broker connection attempts
	ReconnectBackoff = 1 * time.Second

	// TickTimeout bounds a single bus event-loop tick
	TickTimeout = 1 * time.Second
)

// Light constraints
const (
	// MinBrightness is the lowest brightness the device accepts
	MinBrightness = 3

	// MaxBrightness is the maximum allowed brightness value
	MaxBrightness = 100

	// MinTemperature is the minimum allowed temperature value (in Kelvin)
	MinTemperature = 2900

	// MaxTemperature is the maximum allowed temperature value (in Kelvin)
	MaxTemperature = 7000
)

// DefaultHealthRequestsPerMinute is the per-IP rate limit of the status API
const DefaultHealthRequestsPerMinute = 60

// Logging constants
const (
	// LogLevelDebug represents debug log level
	LogLevelDebug = "debug"

	// LogLevelInfo represents info log level
	LogLevelInfo = "info"

	// LogLevelWarn represents warning log level
	LogLevelWarn = "warn"

	// LogLevelError represents error log level
	LogLevelError = "error"

	// LogFormatText represents text log format
	LogFormatText = "text"

	// LogFormatJSON represents JSON log format
	LogFormatJSON = "json"
)
