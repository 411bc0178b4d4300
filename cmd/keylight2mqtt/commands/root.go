package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/keylight2mqtt/internal/config"
	kerrors "github.com/jmylchreest/keylight2mqtt/internal/errors"
	"github.com/jmylchreest/keylight2mqtt/internal/utils"
)

// BuildInfo is set at link time and reported by the version command and API
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// flagBindings maps persistent flags to the config keys they override
var flagBindings = map[string]string{
	"mqtt-server":   "mqtt.server",
	"mqtt-port":     "mqtt.port",
	"base-topic":    "mqtt.base_topic",
	"debug":         "debug",
	"log-level":     "logging.level",
	"log-format":    "logging.format",
	"health-listen": "health.listen_address",
}

// NewRootCommand creates the root command. Run without a subcommand it
// starts the bridge.
func NewRootCommand(version, commit, buildDate string) *cobra.Command {
	return newRootCommand(BuildInfo{Version: version, Commit: commit, BuildDate: buildDate}, defaultDiscoverer)
}

func newRootCommand(info BuildInfo, newDiscoverer discovererFactory) *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:           config.AppName,
		Short:         "Bridge Elgato Key Lights to an MQTT broker",
		Long:          "Discovers Elgato Key Lights on the local network and applies commands published to <base-topic>/set/<serial>/<power|brightness|color>.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBridge(cmd, v, info)
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "Path to config file")
	flags.String("mqtt-server", config.DefaultMQTTServer, "MQTT broker host")
	flags.Int("mqtt-port", config.DefaultMQTTPort, "MQTT broker port")
	flags.String("base-topic", config.DefaultBaseTopic, "Base topic for command and state topics")
	flags.Bool("debug", false, "Enable debug logging")
	flags.String("log-level", config.LogLevelInfo, "Log level (debug, info, warn, error)")
	flags.String("log-format", config.LogFormatText, "Log format (text, json)")
	flags.String("health-listen", "", "Listen address for the status API, e.g. :9124 (disabled when empty)")

	for name, key := range flagBindings {
		// Lookup cannot fail for flags registered above.
		_ = v.BindPFlag(key, flags.Lookup(name))
	}

	cmd.AddCommand(
		newDiscoverCommand(v, newDiscoverer),
		newConfigCommand(v),
		newStatusCommand(v),
		newVersionCommand(info),
	)
	return cmd
}

// loadConfig reads the configuration honouring the --config flag
func loadConfig(cmd *cobra.Command, v *viper.Viper) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// ExitCode maps the result of the root command to a process exit status,
// logging errors that have not been logged yet. Shutdown by signal is a
// clean exit.
func ExitCode(err error) int {
	if err == nil || errors.Is(err, context.Canceled) {
		return 0
	}
	if !kerrors.IsFatal(err) {
		utils.SetupErrorLogger().Error("keylight2mqtt failed", "error", err)
	}
	return 1
}
