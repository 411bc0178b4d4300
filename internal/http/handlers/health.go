package handlers

import (
	"context"
	"net/http"
	"time"
)

// --- Health Check ---

// HealthInput is the input for health check endpoints.
type HealthInput struct{}

// HealthOutput is the output for health check endpoints. The status code is
// 503 while the broker session is not connected.
type HealthOutput struct {
	Status int
	Body   struct {
		Status        string     `json:"status" doc:"ok when connected to the broker, degraded otherwise"`
		BusState      string     `json:"bus_state" doc:"Broker session state"`
		Devices       int        `json:"devices" doc:"Number of registered lights"`
		LastDiscovery *time.Time `json:"last_discovery,omitempty" doc:"Time of the last discovery pass"`
		Commands      int        `json:"commands" doc:"Number of light mutations applied"`
		Connects      int        `json:"connects" doc:"Number of successful broker connections"`
	}
}

// HealthHandler reports bridge health from a status snapshot.
type HealthHandler struct {
	Status StatusSource
}

// HealthCheck returns the bridge health status.
func (h *HealthHandler) HealthCheck(_ context.Context, _ *HealthInput) (*HealthOutput, error) {
	s := h.Status.Snapshot()

	out := &HealthOutput{Status: http.StatusOK}
	out.Body.Status = "ok"
	if !s.Healthy() {
		out.Status = http.StatusServiceUnavailable
		out.Body.Status = "degraded"
	}
	out.Body.BusState = s.BusState
	out.Body.Devices = s.Devices
	out.Body.Commands = s.Commands
	out.Body.Connects = s.Connects
	if !s.LastDiscovery.IsZero() {
		last := s.LastDiscovery
		out.Body.LastDiscovery = &last
	}
	return out, nil
}

// --- Version ---

// VersionInput is the input for the version endpoint.
type VersionInput struct{}

// VersionOutput is the output for the version endpoint.
type VersionOutput struct {
	Body struct {
		Version string `json:"version" doc:"Release version"`
		Commit  string `json:"commit" doc:"Git commit"`
		Date    string `json:"date" doc:"Build date"`
	}
}

// VersionHandler reports build information set at link time.
type VersionHandler struct {
	Version string
	Commit  string
	Date    string
}

// VersionCheck returns the running bridge's version.
func (h *VersionHandler) VersionCheck(_ context.Context, _ *VersionInput) (*VersionOutput, error) {
	out := &VersionOutput{}
	out.Body.Version = h.Version
	out.Body.Commit = h.Commit
	out.Body.Date = h.Date
	return out, nil
}
