package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// --- List Lights ---

// ListLightsInput is the input for listing all lights.
type ListLightsInput struct{}

// ListLightsOutput is the output for listing all lights, keyed by serial.
type ListLightsOutput struct {
	Body map[string]LightResponse
}

// --- Get Light ---

// GetLightInput is the input for getting a single light.
type GetLightInput struct {
	Serial string `path:"serial" doc:"Light serial number, case-insensitive"`
}

// GetLightOutput is the output for getting a single light.
type GetLightOutput struct {
	Body LightResponse
}

// LightHandler serves the registered lights. It reads the status snapshot,
// never the devices, so it does not send any traffic to the lights.
type LightHandler struct {
	Status StatusSource
}

// ListLights returns all registered lights.
func (h *LightHandler) ListLights(_ context.Context, _ *ListLightsInput) (*ListLightsOutput, error) {
	return &ListLightsOutput{
		Body: LightsMapFromKeylight(h.Status.Lights()),
	}, nil
}

// GetLight returns a single light by serial.
func (h *LightHandler) GetLight(_ context.Context, input *GetLightInput) (*GetLightOutput, error) {
	for _, l := range h.Status.Lights() {
		if strings.EqualFold(l.SerialNumber, input.Serial) {
			return &GetLightOutput{Body: LightFromKeylight(l)}, nil
		}
	}
	return nil, huma.Error404NotFound(fmt.Sprintf("Light not found: %s", input.Serial))
}
