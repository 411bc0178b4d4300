package keylight

import (
	"context"
	"net"
	"strconv"
	"time"
)

// Light represents a Key Light device as found by discovery
type Light struct {
	ID                string // mDNS instance name
	Name              string
	IP                net.IP
	Port              int
	ProductName       string
	HardwareBoardType int
	FirmwareVersion   string
	FirmwareBuild     int
	SerialNumber      string
}

// Addr returns the host:port of the light's HTTP API
func (l Light) Addr() string {
	return net.JoinHostPort(l.IP.String(), strconv.Itoa(l.Port))
}

// State is a snapshot of a light's output. Temperature is in Kelvin.
type State struct {
	On          bool
	Brightness  int
	Temperature int
}

// Controller reads and writes the live state of a single light
type Controller interface {
	State(ctx context.Context) (State, error)
	SetPower(ctx context.Context, on bool) error
	SetBrightness(ctx context.Context, brightness int) error
	SetTemperature(ctx context.Context, kelvin int) error
}

// Discoverer finds lights on the local network, waiting at most timeout
type Discoverer interface {
	Discover(ctx context.Context, timeout time.Duration) ([]Light, error)
}
