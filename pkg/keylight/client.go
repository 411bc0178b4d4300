package keylight

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"
)

// LightEntry is one light inside a device's /lights document. Temperature is in mireds.
type LightEntry struct {
	On          int `json:"on"`
	Brightness  int `json:"brightness"`
	Temperature int `json:"temperature"`
}

// LightState represents the raw state document of a Key Light
type LightState struct {
	NumberOfLights int          `json:"numberOfLights"`
	Lights         []LightEntry `json:"lights"`
}

// lightUpdate carries only the fields being changed; the firmware leaves
// omitted fields untouched.
type lightUpdate struct {
	On          *int `json:"on,omitempty"`
	Brightness  *int `json:"brightness,omitempty"`
	Temperature *int `json:"temperature,omitempty"`
}

type stateUpdate struct {
	NumberOfLights int           `json:"numberOfLights"`
	Lights         []lightUpdate `json:"lights"`
}

// AccessoryInfo represents the device information
type AccessoryInfo struct {
	ProductName         string   `json:"productName"`
	HardwareBoardType   int      `json:"hardwareBoardType"`
	FirmwareBuildNumber int      `json:"firmwareBuildNumber"`
	FirmwareVersion     string   `json:"firmwareVersion"`
	SerialNumber        string   `json:"serialNumber"`
	DisplayName         string   `json:"displayName"`
	Features            []string `json:"features"`
}

// KeyLightClient handles HTTP communication with a Key Light device.
// It is the Controller used for every discovered light.
type KeyLightClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ Controller = (*KeyLightClient)(nil)

// NewKeyLightClient creates a new client for a Key Light device
func NewKeyLightClient(ip string, port int, logger *slog.Logger, httpClient ...*http.Client) *KeyLightClient {
	if logger == nil {
		logger = slog.Default()
	}
	var hc *http.Client
	if len(httpClient) > 0 && httpClient[0] != nil {
		hc = httpClient[0]
	} else {
		hc = &http.Client{Timeout: 5 * time.Second}
	}
	return &KeyLightClient{
		baseURL:    fmt.Sprintf("http://%s/elgato", net.JoinHostPort(ip, strconv.Itoa(port))),
		httpClient: hc,
		logger:     logger,
	}
}

// GetAccessoryInfo retrieves basic device information
func (c *KeyLightClient) GetAccessoryInfo(ctx context.Context) (*AccessoryInfo, error) {
	var info AccessoryInfo
	if err := c.getJSON(ctx, "/accessory-info", &info); err != nil {
		return nil, fmt.Errorf("failed to get accessory info: %w", err)
	}
	return &info, nil
}

// GetLightState retrieves the raw state document of the light
func (c *KeyLightClient) GetLightState(ctx context.Context) (*LightState, error) {
	var state LightState
	if err := c.getJSON(ctx, "/lights", &state); err != nil {
		return nil, fmt.Errorf("failed to get light state: %w", err)
	}
	if len(state.Lights) == 0 {
		return nil, fmt.Errorf("failed to get light state: device reported no lights")
	}
	return &state, nil
}

// State returns the current output of the light, temperature in Kelvin
func (c *KeyLightClient) State(ctx context.Context) (State, error) {
	raw, err := c.GetLightState(ctx)
	if err != nil {
		return State{}, err
	}
	l := raw.Lights[0]
	return State{
		On:          l.On == 1,
		Brightness:  l.Brightness,
		Temperature: ConvertDeviceToTemperature(l.Temperature),
	}, nil
}

// SetPower switches the light on or off
func (c *KeyLightClient) SetPower(ctx context.Context, on bool) error {
	v := boolToInt(on)
	return c.update(ctx, lightUpdate{On: &v})
}

// SetBrightness sets the brightness, clamped to the range the firmware accepts
func (c *KeyLightClient) SetBrightness(ctx context.Context, brightness int) error {
	v := clampBrightness(brightness)
	return c.update(ctx, lightUpdate{Brightness: &v})
}

// SetTemperature sets the colour temperature given in Kelvin
func (c *KeyLightClient) SetTemperature(ctx context.Context, kelvin int) error {
	v := convertTemperatureToDevice(kelvin)
	return c.update(ctx, lightUpdate{Temperature: &v})
}

func (c *KeyLightClient) getJSON(ctx context.Context, path string, out any) error {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("light: request failed", "url", url, "error", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("light: response", "url", url, "body", out)
	return nil
}

func (c *KeyLightClient) update(ctx context.Context, u lightUpdate) error {
	payload := stateUpdate{NumberOfLights: 1, Lights: []lightUpdate{u}}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + "/lights"
	c.logger.Debug("light: setting state", "url", url, "payload", string(jsonData))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to set light state: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body))
	}
	return nil
}
