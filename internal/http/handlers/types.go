// Package handlers provides typed Huma request/response structs and handler
// implementations for the keylight2mqtt status API.
package handlers

import (
	"github.com/jmylchreest/keylight2mqtt/internal/bridge"
	"github.com/jmylchreest/keylight2mqtt/pkg/keylight"
)

// StatusSource is what the handlers read. *bridge.StatusTracker satisfies it.
type StatusSource interface {
	Snapshot() bridge.Status
	Lights() []keylight.Light
}

// LightResponse is the API representation of a registered light.
type LightResponse struct {
	ID                string `json:"id" doc:"mDNS instance name of the light"`
	Name              string `json:"name" doc:"Display name of the light"`
	IP                string `json:"ip" doc:"IP address of the light"`
	Port              int    `json:"port" doc:"Port number of the light"`
	ProductName       string `json:"productname" doc:"Product name"`
	HardwareBoardType int    `json:"hardwareboardtype" doc:"Hardware board type identifier"`
	FirmwareVersion   string `json:"firmwareversion" doc:"Firmware version string"`
	FirmwareBuild     int    `json:"firmwarebuild" doc:"Firmware build number"`
	SerialNumber      string `json:"serialnumber" doc:"Serial number, used in command topics"`
}

// LightFromKeylight converts a keylight.Light to a LightResponse.
func LightFromKeylight(l keylight.Light) LightResponse {
	ip := ""
	if l.IP != nil {
		ip = l.IP.String()
	}
	return LightResponse{
		ID:                l.ID,
		Name:              l.Name,
		IP:                ip,
		Port:              l.Port,
		ProductName:       l.ProductName,
		HardwareBoardType: l.HardwareBoardType,
		FirmwareVersion:   l.FirmwareVersion,
		FirmwareBuild:     l.FirmwareBuild,
		SerialNumber:      l.SerialNumber,
	}
}

// LightsMapFromKeylight keys lights by serial number.
func LightsMapFromKeylight(lights []keylight.Light) map[string]LightResponse {
	result := make(map[string]LightResponse, len(lights))
	for _, l := range lights {
		result[l.SerialNumber] = LightFromKeylight(l)
	}
	return result
}
