package commands

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/keylight2mqtt/internal/config"
	"github.com/jmylchreest/keylight2mqtt/internal/errors"
	"github.com/jmylchreest/keylight2mqtt/internal/utils"
	"github.com/jmylchreest/keylight2mqtt/pkg/keylight"
)

// discovererFactory builds the discoverer used by the discover command
type discovererFactory func(logger *slog.Logger, timeout time.Duration) keylight.Discoverer

func defaultDiscoverer(logger *slog.Logger, timeout time.Duration) keylight.Discoverer {
	return keylight.NewMDNSDiscoverer(logger, &http.Client{Timeout: timeout})
}

// newDiscoverCommand creates the discover command, which runs one mDNS
// browse and lists the lights the bridge would control
func newDiscoverCommand(v *viper.Viper, newDiscoverer discovererFactory) *cobra.Command {
	var parseable bool
	var timeoutSeconds int

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Discover Key Lights on the local network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			logger := utils.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

			timeout := cfg.DiscoveryTimeout()
			if cmd.Flags().Changed("timeout") {
				timeout = config.ValidateDiscoveryTimeout(timeoutSeconds)
			}

			lights, err := newDiscoverer(logger, timeout).Discover(cmd.Context(), timeout)
			if err != nil {
				return errors.DiscoveryFailedf("discovering lights: %w", err)
			}
			sortLights(lights)

			out := cmd.OutOrStdout()
			if parseable {
				for _, l := range lights {
					fmt.Fprintln(out, LightParseable(l))
				}
				return nil
			}
			if len(lights) == 0 {
				fmt.Fprintln(out, "No lights found.")
				return nil
			}
			return pterm.DefaultTable.
				WithHasHeader().
				WithWriter(out).
				WithData(LightsTableData(lights)).
				Render()
		},
	}

	cmd.Flags().BoolVarP(&parseable, "parseable", "p", false, "Output in parseable key=value format")
	cmd.Flags().IntVarP(&timeoutSeconds, "timeout", "t", int(config.DefaultDiscoveryTimeout.Seconds()), "Browse duration in seconds")
	return cmd
}
