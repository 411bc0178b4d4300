// Package routes provides shared route registration for the keylight2mqtt
// status API. The server and the OpenAPI generator use the same definitions.
package routes

import (
	"github.com/danielgtaylor/huma/v2"
)

// NewHumaConfig creates the shared Huma configuration for the API.
func NewHumaConfig(version, baseURL string) huma.Config {
	cfg := huma.DefaultConfig("keylight2mqtt API", version)
	cfg.Info.Description = "Read-only status API for the keylight2mqtt Elgato Key Light to MQTT bridge."

	// Disable $schema field in responses
	cfg.CreateHooks = nil

	if baseURL != "" {
		cfg.Servers = []*huma.Server{
			{URL: baseURL, Description: "API Server"},
		}
	}

	cfg.Tags = []*huma.Tag{
		{Name: "Health", Description: "Bridge and broker session health"},
		{Name: "Lights", Description: "Lights registered through discovery"},
		{Name: "Version", Description: "Build information"},
	}

	return cfg
}
