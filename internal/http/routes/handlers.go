package routes

import (
	"context"

	"github.com/jmylchreest/keylight2mqtt/internal/http/handlers"
)

// Handlers aggregates the handler functions for route registration.
// The server passes real implementations; the OpenAPI generator passes stubs.
type Handlers struct {
	HealthCheck  func(context.Context, *handlers.HealthInput) (*handlers.HealthOutput, error)
	VersionCheck func(context.Context, *handlers.VersionInput) (*handlers.VersionOutput, error)
	ListLights   func(context.Context, *handlers.ListLightsInput) (*handlers.ListLightsOutput, error)
	GetLight     func(context.Context, *handlers.GetLightInput) (*handlers.GetLightOutput, error)
}

// NewHandlers builds the real handlers over a status source.
func NewHandlers(status handlers.StatusSource, version *handlers.VersionHandler) *Handlers {
	health := &handlers.HealthHandler{Status: status}
	lights := &handlers.LightHandler{Status: status}
	return &Handlers{
		HealthCheck:  health.HealthCheck,
		VersionCheck: version.VersionCheck,
		ListLights:   lights.ListLights,
		GetLight:     lights.GetLight,
	}
}

// StubHandlers returns handlers that are never called. Huma only needs their
// signatures to describe the API.
func StubHandlers() *Handlers {
	return &Handlers{
		HealthCheck: func(context.Context, *handlers.HealthInput) (*handlers.HealthOutput, error) {
			return nil, nil
		},
		VersionCheck: func(context.Context, *handlers.VersionInput) (*handlers.VersionOutput, error) {
			return nil, nil
		},
		ListLights: func(context.Context, *handlers.ListLightsInput) (*handlers.ListLightsOutput, error) {
			return nil, nil
		},
		GetLight: func(context.Context, *handlers.GetLightInput) (*handlers.GetLightOutput, error) {
			return nil, nil
		},
	}
}
