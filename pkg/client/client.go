// Package client talks to the status API of a running keylight2mqtt bridge.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds a single request to the status API
const DefaultTimeout = 10 * time.Second

// Health is the body of the health endpoint
type Health struct {
	Status        string     `json:"status"`
	BusState      string     `json:"bus_state"`
	Devices       int        `json:"devices"`
	LastDiscovery *time.Time `json:"last_discovery,omitempty"`
	Commands      int        `json:"commands"`
	Connects      int        `json:"connects"`
}

// OK reports whether the bridge considers itself healthy
func (h Health) OK() bool {
	return h.Status == "ok"
}

// Version is the body of the version endpoint
type Version struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Light is a registered light as reported by the bridge
type Light struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	IP                string `json:"ip"`
	Port              int    `json:"port"`
	ProductName       string `json:"productname"`
	HardwareBoardType int    `json:"hardwareboardtype"`
	FirmwareVersion   string `json:"firmwareversion"`
	FirmwareBuild     int    `json:"firmwarebuild"`
	SerialNumber      string `json:"serialnumber"`
}

// StatusError is returned for unexpected HTTP status codes
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.Code, e.Body)
}

// Client is an HTTP client for the status API
type Client struct {
	logger  *slog.Logger
	baseURL string
	client  *http.Client
}

// New creates a client for the API at baseURL, e.g. http://localhost:9124
func New(logger *slog.Logger, baseURL string) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		logger:  logger,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: DefaultTimeout},
	}
}

// BaseURLFromListen turns a listen address such as ":9124" or
// "0.0.0.0:9124" into a URL reachable from the same host
func BaseURLFromListen(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "http://" + listen
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// get performs a GET and decodes the JSON body into resp when the status
// code is one of accept
func (c *Client) get(ctx context.Context, path string, resp any, accept ...int) error {
	u := c.baseURL + path
	c.logger.Debug("HTTP request", "method", http.MethodGet, "url", u)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	httpResp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if !accepted(httpResp.StatusCode, accept) {
		c.logger.Debug("HTTP error response", "status", httpResp.StatusCode, "body", string(body))
		return &StatusError{Code: httpResp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.Unmarshal(body, resp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func accepted(code int, accept []int) bool {
	if len(accept) == 0 {
		return code == http.StatusOK
	}
	for _, a := range accept {
		if code == a {
			return true
		}
	}
	return false
}

// Health returns the bridge health. A degraded bridge answers 503 with a
// normal body, which is returned without error.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	err := c.get(ctx, "/api/v1/health", &h, http.StatusOK, http.StatusServiceUnavailable)
	return h, err
}

// Version returns the running bridge's build information
func (c *Client) Version(ctx context.Context) (Version, error) {
	var v Version
	err := c.get(ctx, "/api/v1/version", &v)
	return v, err
}

// Lights returns the registered lights keyed by serial number
func (c *Client) Lights(ctx context.Context) (map[string]Light, error) {
	lights := map[string]Light{}
	if err := c.get(ctx, "/api/v1/lights", &lights); err != nil {
		return nil, err
	}
	return lights, nil
}

// Light returns one registered light by serial number
func (c *Client) Light(ctx context.Context, serial string) (Light, error) {
	var l Light
	err := c.get(ctx, "/api/v1/lights/"+url.PathEscape(serial), &l)
	return l, err
}
