package commands

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/keylight2mqtt/internal/config"
	"github.com/jmylchreest/keylight2mqtt/internal/utils"
	"github.com/jmylchreest/keylight2mqtt/pkg/client"
)

// errDegraded is returned by the status command when the bridge reports it
// is not connected to the broker
var errDegraded = errors.New("bridge is degraded")

// newStatusCommand creates the status command, which queries the status API
// of a running bridge
func newStatusCommand(v *viper.Viper) *cobra.Command {
	var baseURL string
	var parseable bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the health and lights of a running bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if baseURL == "" {
				cfg, err := loadConfig(cmd, v)
				if err != nil {
					return err
				}
				if cfg.Health.ListenAddress == "" {
					return errors.New("status API is not enabled; set health.listen_address or pass --url")
				}
				baseURL = client.BaseURLFromListen(cfg.Health.ListenAddress)
			}

			c := client.New(utils.SetupLogger(config.LogLevelWarn, config.LogFormatText), baseURL)
			health, err := c.Health(cmd.Context())
			if err != nil {
				return fmt.Errorf("querying %s: %w", baseURL, err)
			}
			lights, err := c.Lights(cmd.Context())
			if err != nil {
				return fmt.Errorf("querying %s: %w", baseURL, err)
			}

			out := cmd.OutOrStdout()
			if parseable {
				fmt.Fprintln(out, HealthParseable(health))
			} else {
				if err := pterm.DefaultTable.WithWriter(out).WithData(HealthTableData(health)).Render(); err != nil {
					return err
				}
				fmt.Fprintln(out)
			}

			serials := make([]string, 0, len(lights))
			for serial := range lights {
				serials = append(serials, serial)
			}
			sort.Strings(serials)
			if parseable {
				for _, serial := range serials {
					l := lights[serial]
					fmt.Fprintf(out, "serialnumber=%q name=%q ip=%q port=%d\n", l.SerialNumber, l.Name, l.IP, l.Port)
				}
			} else if len(serials) > 0 {
				data := pterm.TableData{{pterm.Bold.Sprint("Serial"), pterm.Bold.Sprint("Name"), pterm.Bold.Sprint("Address")}}
				for _, serial := range serials {
					l := lights[serial]
					data = append(data, []string{l.SerialNumber, l.Name, net.JoinHostPort(l.IP, strconv.Itoa(l.Port))})
				}
				if err := pterm.DefaultTable.WithHasHeader().WithWriter(out).WithData(data).Render(); err != nil {
					return err
				}
			}

			if !health.OK() {
				return errDegraded
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "url", "", "Status API base URL (default: derived from health.listen_address)")
	cmd.Flags().BoolVarP(&parseable, "parseable", "p", false, "Output in parseable key=value format")
	return cmd
}

// HealthTableData returns the health summary as a two column table
func HealthTableData(h client.Health) pterm.TableData {
	lastDiscovery := "never"
	if h.LastDiscovery != nil {
		lastDiscovery = h.LastDiscovery.Format(time.RFC1123Z)
	}
	return pterm.TableData{
		{pterm.Bold.Sprint("Status"), pterm.Bold.Sprint(h.Status)},
		{"Broker", h.BusState},
		{"Lights", strconv.Itoa(h.Devices)},
		{"Last Discovery", lastDiscovery},
		{"Commands", strconv.Itoa(h.Commands)},
		{"Connects", strconv.Itoa(h.Connects)},
	}
}

// HealthParseable returns the parseable key=value string for the health summary
func HealthParseable(h client.Health) string {
	lastDiscovery := int64(0)
	if h.LastDiscovery != nil {
		lastDiscovery = h.LastDiscovery.Unix()
	}
	return fmt.Sprintf("status=%q bus_state=%q devices=%d last_discovery=%d commands=%d connects=%d",
		h.Status, h.BusState, h.Devices, lastDiscovery, h.Commands, h.Connects)
}
