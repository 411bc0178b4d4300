package keylight

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	serviceName = "_elg._tcp"
	domain      = "local."
)

// validProductNames contains the Elgato products that speak the Key Light API
var validProductNames = []string{
	"Elgato Key Light",
	"Elgato Key Light Air",
	"Elgato Key Light Mini",
	"Elgato Ring Light",
}

func isValidProductName(name string) bool {
	return slices.Contains(validProductNames, name)
}

// MDNSDiscoverer browses for Elgato lights over mDNS and confirms each
// responder by reading its accessory info.
type MDNSDiscoverer struct {
	logger     *slog.Logger
	httpClient *http.Client
}

var _ Discoverer = (*MDNSDiscoverer)(nil)

// NewMDNSDiscoverer creates a discoverer. A nil httpClient uses the client default.
func NewMDNSDiscoverer(logger *slog.Logger, httpClient *http.Client) *MDNSDiscoverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &MDNSDiscoverer{logger: logger, httpClient: httpClient}
}

// Discover runs one mDNS browse lasting timeout and returns the validated lights.
// Errors are only returned when the browse itself cannot run; finding nothing
// is not an error.
func (d *MDNSDiscoverer) Discover(ctx context.Context, timeout time.Duration) ([]Light, error) {
	resolver, err := zeroconf.NewResolver()
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	browseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 10)
	if err := resolver.Browse(browseCtx, serviceName, domain, entries); err != nil {
		return nil, fmt.Errorf("failed to start discovery: %w", err)
	}

	var lights []Light
	seen := make(map[string]bool)
	for {
		select {
		case <-browseCtx.Done():
			// The browse window closing is the normal exit; only a cancelled
			// parent is reported.
			if err := ctx.Err(); err != nil {
				return lights, err
			}
			return lights, nil
		case entry, ok := <-entries:
			if !ok {
				return lights, nil
			}
			if entry == nil || seen[entry.Instance] {
				continue
			}
			seen[entry.Instance] = true
			light, valid := validateLight(ctx, entry, d.logger, d.httpClient)
			if !valid {
				continue
			}
			d.logger.Debug("Validated Elgato light", "name", light.Name, "serial", light.SerialNumber, "addr", light.Addr())
			lights = append(lights, light)
		}
	}
}

// validateLight checks if the mDNS entry is an Elgato light by querying /elgato/accessory-info
func validateLight(ctx context.Context, entry *zeroconf.ServiceEntry, logger *slog.Logger, httpClient *http.Client) (Light, bool) {
	if entry == nil || len(entry.AddrIPv4) == 0 || entry.Port == 0 {
		if entry != nil {
			logger.Debug("Skipping invalid service entry", "name", entry.Instance, "addr", entry.AddrIPv4, "port", entry.Port)
		}
		return Light{}, false
	}

	ip := entry.AddrIPv4[0]
	client := NewKeyLightClient(ip.String(), entry.Port, logger, httpClient)
	info, err := client.GetAccessoryInfo(ctx)
	if err != nil {
		logger.Debug("Failed to get accessory info", "ip", ip, "port", entry.Port, "error", err)
		return Light{}, false
	}
	if !isValidProductName(info.ProductName) {
		logger.Debug("Discovered device is not an Elgato light", "productName", info.ProductName, "name", entry.Instance, "addr", ip)
		return Light{}, false
	}
	if info.SerialNumber == "" {
		logger.Debug("Discovered light has no serial number", "name", entry.Instance, "addr", ip)
		return Light{}, false
	}

	name := info.DisplayName
	if name == "" {
		name = UnescapeRFC6763Label(entry.Instance)
	}
	return Light{
		ID:                UnescapeRFC6763Label(entry.Instance),
		Name:              name,
		IP:                ip,
		Port:              entry.Port,
		ProductName:       info.ProductName,
		HardwareBoardType: info.HardwareBoardType,
		FirmwareVersion:   info.FirmwareVersion,
		FirmwareBuild:     info.FirmwareBuildNumber,
		SerialNumber:      info.SerialNumber,
	}, true
}
