package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Config represents the bridge configuration
type Config struct {
	MQTT      MQTTConfig      `mapstructure:"mqtt" yaml:"mqtt"`
	Discovery DiscoveryConfig `mapstructure:"discovery" yaml:"discovery"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Bridge    BridgeConfig    `mapstructure:"bridge" yaml:"bridge"`
	Health    HealthConfig    `mapstructure:"health" yaml:"health"`

	// Debug forces the log level to debug, mirroring the DEBUG environment switch
	Debug bool `mapstructure:"debug" yaml:"debug"`
}

// MQTTConfig holds the broker connection settings
type MQTTConfig struct {
	Server       string `mapstructure:"server" yaml:"server"`
	Port         int    `mapstructure:"port" yaml:"port"`
	User         string `mapstructure:"user" yaml:"user"`
	Password     string `mapstructure:"password" yaml:"password"`
	BaseTopic    string `mapstructure:"base_topic" yaml:"base_topic"`
	ClientID     string `mapstructure:"client_id" yaml:"client_id"`
	PublishState bool   `mapstructure:"publish_state" yaml:"publish_state"`
}

// DiscoveryConfig represents the discovery configuration
type DiscoveryConfig struct {
	Timeout       int `mapstructure:"timeout" yaml:"timeout"`               // Browse duration in seconds
	CacheDuration int `mapstructure:"cache_duration" yaml:"cache_duration"` // Seconds before lights are rediscovered
}

// LoggingConfig represents the logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// BridgeConfig tunes command handling
type BridgeConfig struct {
	// DropMalformed logs and skips messages with unparseable numeric payloads
	// instead of treating them as fatal.
	DropMalformed bool `mapstructure:"drop_malformed" yaml:"drop_malformed"`
}

// HealthConfig configures the optional health endpoint
type HealthConfig struct {
	ListenAddress     string `mapstructure:"listen_address" yaml:"listen_address"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute" yaml:"requests_per_minute"` // Per client IP, 0 disables the limit
}

// envAliases maps config keys to the plain environment names used by
// existing deployments of the bridge.
var envAliases = map[string]string{
	"mqtt.server":        "MQTT_SERVER",
	"mqtt.port":          "MQTT_PORT",
	"mqtt.user":          "MQTT_USER",
	"mqtt.password":      "MQTT_PASSWORD",
	"mqtt.base_topic":    "MQTT_BASE_TOPIC",
	"mqtt.client_id":     "MQTT_CLIENT_ID",
	"mqtt.publish_state": "MQTT_PUBLISH_STATE",
}

// DebugEnv switches on debug logging when set to any non-empty value,
// "false" and "0" included. KEYLIGHT_DEBUG is parsed as a boolean instead.
const DebugEnv = "DEBUG"

// SetDefaults registers every default value on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("mqtt.server", DefaultMQTTServer)
	v.SetDefault("mqtt.port", DefaultMQTTPort)
	v.SetDefault("mqtt.user", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.base_topic", DefaultBaseTopic)
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.publish_state", false)
	v.SetDefault("discovery.timeout", int(DefaultDiscoveryTimeout.Seconds()))
	v.SetDefault("discovery.cache_duration", int(DefaultDiscoveryCacheDuration.Seconds()))
	v.SetDefault("logging.level", LogLevelInfo)
	v.SetDefault("logging.format", LogFormatText)
	v.SetDefault("bridge.drop_malformed", false)
	v.SetDefault("health.listen_address", "")
	v.SetDefault("health.requests_per_minute", DefaultHealthRequestsPerMinute)
	v.SetDefault("debug", false)
}

// Load loads configuration from defaults, an optional YAML file and the
// environment. A nil v creates a fresh viper instance; callers that bind
// command line flags pass their own so flags take precedence.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	v.SetConfigType("yaml")
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		slog.Info("Using config file from command line", "path", configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	} else {
		configPath := GetDaemonConfigPath()
		if _, err := os.Stat(configPath); err == nil {
			slog.Info("Using default config file", "path", configPath)
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", configPath, err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envAliases {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("error binding %s to %s: %w", key, env, err)
		}
	}

	cfg := &Config{
		MQTT: MQTTConfig{
			Server:       v.GetString("mqtt.server"),
			Port:         v.GetInt("mqtt.port"),
			User:         v.GetString("mqtt.user"),
			Password:     v.GetString("mqtt.password"),
			BaseTopic:    strings.TrimSuffix(v.GetString("mqtt.base_topic"), "/"),
			ClientID:     v.GetString("mqtt.client_id"),
			PublishState: v.GetBool("mqtt.publish_state"),
		},
		Discovery: DiscoveryConfig{
			Timeout:       v.GetInt("discovery.timeout"),
			CacheDuration: v.GetInt("discovery.cache_duration"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
		Bridge: BridgeConfig{
			DropMalformed: v.GetBool("bridge.drop_malformed"),
		},
		Health: HealthConfig{
			ListenAddress:     v.GetString("health.listen_address"),
			RequestsPerMinute: v.GetInt("health.requests_per_minute"),
		},
		Debug: v.GetBool("debug") || os.Getenv(DebugEnv) != "",
	}

	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = AppName + "-" + uuid.NewString()[:8]
	}
	if cfg.Debug {
		cfg.Logging.Level = LogLevelDebug
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that would otherwise fail much later at connect time
func (c *Config) Validate() error {
	var errs []error
	if c.MQTT.Server == "" {
		errs = append(errs, errors.New("mqtt.server must not be empty"))
	}
	if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
		errs = append(errs, fmt.Errorf("mqtt.port must be between 1 and 65535, got %d", c.MQTT.Port))
	}
	if c.MQTT.BaseTopic == "" {
		errs = append(errs, errors.New("mqtt.base_topic must not be empty"))
	} else if strings.ContainsAny(c.MQTT.BaseTopic, "+#") {
		errs = append(errs, fmt.Errorf("mqtt.base_topic must not contain wildcards, got %q", c.MQTT.BaseTopic))
	}
	if c.Discovery.CacheDuration < 0 {
		errs = append(errs, fmt.Errorf("discovery.cache_duration must not be negative, got %d", c.Discovery.CacheDuration))
	}
	return errors.Join(errs...)
}

// DiscoveryTimeout returns the browse duration, clamped to the minimum
func (c *Config) DiscoveryTimeout() time.Duration {
	return ValidateDiscoveryTimeout(c.Discovery.Timeout)
}

// DiscoveryCacheDuration returns how long discovered lights are served from cache
func (c *Config) DiscoveryCacheDuration() time.Duration {
	return time.Duration(c.Discovery.CacheDuration) * time.Second
}

// Redacted returns a copy safe to print, with the broker password masked
func (c *Config) Redacted() Config {
	out := *c
	if out.MQTT.Password != "" {
		out.MQTT.Password = "********"
	}
	return out
}
