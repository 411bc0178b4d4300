package routes

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/keylight2mqtt/internal/http/mw"
)

// Register registers all API routes with the given Huma API instance.
func Register(api huma.API, h *Handlers) {
	// --- Health ---
	mw.PublicGet(api, "/api/v1/health", h.HealthCheck,
		mw.WithTags("Health"),
		mw.WithSummary("Health check"),
		mw.WithDescription("Returns bridge health. Responds 503 while the broker session is not connected."),
		mw.WithOperationID("healthCheck"))

	mw.HiddenGet(api, "/healthz", h.HealthCheck)

	// --- Version ---
	mw.PublicGet(api, "/api/v1/version", h.VersionCheck,
		mw.WithTags("Version"),
		mw.WithSummary("Bridge version"),
		mw.WithDescription("Returns the running bridge's version, commit, and build date."),
		mw.WithOperationID("getVersion"))

	// --- Lights ---
	mw.PublicGet(api, "/api/v1/lights", h.ListLights,
		mw.WithTags("Lights"),
		mw.WithSummary("List registered lights"),
		mw.WithDescription("Returns the lights known to the bridge as a map keyed by serial number."),
		mw.WithOperationID("listLights"))

	mw.PublicGet(api, "/api/v1/lights/{serial}", h.GetLight,
		mw.WithTags("Lights"),
		mw.WithSummary("Get a registered light"),
		mw.WithOperationID("getLight"))
}
