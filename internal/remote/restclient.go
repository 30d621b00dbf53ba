// Package remote implements the cloud-facing half of the gateway: an
// event-driven coordinator whose single Run goroutine serializes every
// exchange, and a thin REST client underneath it.
package remote

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shurfire/rfgateway/internal/b64j"
)

// Credentials identifies the hub to the cloud service: a 16-hex-char hub
// id used as the Basic-auth username, and a 64-hex-char hub key used as
// the password.
type Credentials struct {
	HubID  string
	HubKey string
}

// Client is a thin wrapper over net/http, built once and reused for every
// verb against the cloud API — the same shape as sol/manager.go's
// clearBMCSessions helper (one *http.Client with an explicit transport and
// timeout, rather than http.DefaultClient).
type Client struct {
	baseURL string
	creds   Credentials
	http    *http.Client
}

// NewClient returns a Client pointed at baseURL (e.g.
// "https://cloud.example.com"), authenticating every request with creds.
func NewClient(baseURL string, creds Credentials) *Client {
	return &Client{
		baseURL: baseURL,
		creds:   creds,
		http: &http.Client{
			Transport: &http.Transport{TLSClientConfig: &tls.Config{}},
			Timeout:   30 * time.Second,
		},
	}
}

func (c *Client) basicAuthHeader() string {
	raw := fmt.Sprintf("%s:%s", c.creds.HubID, c.creds.HubKey)
	return "Basic " + b64j.EncodeToString([]byte(raw))
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, Status, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, StatusCannotParseResponse, fmt.Errorf("remote: marshal request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, StatusLocalResource, fmt.Errorf("remote: build request: %w", err)
	}
	req.Header.Set("Authorization", c.basicAuthHeader())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		var certErr *tls.CertificateVerificationError
		var recordErr tls.RecordHeaderError
		if errors.As(err, &certErr) || errors.As(err, &recordErr) {
			return nil, StatusCannotConnectTLS, fmt.Errorf("remote: tls connect: %w", err)
		}
		return nil, StatusCannotConnect, fmt.Errorf("remote: connect: %w", err)
	}
	return resp, StatusOK, nil
}

// FirmwareManifest mirrors the JSON shape returned by the firmware-check
// endpoint.
type FirmwareManifest struct {
	Revision    string `json:"revision"`
	FwURL       string `json:"fwUrl"`
	FwMD5       string `json:"fwMd5"`
	RFRevision  string `json:"rfRevision"`
	RFURL       string `json:"rfUrl"`
	RFMD5       string `json:"rfMd5"`
	ReleaseDate string `json:"releaseDate"`
	NextUpdate  int    `json:"nextUpdate"`
}

// GetFirmwareManifest fetches the advertised manifest for hostRev/hwVer.
func (c *Client) GetFirmwareManifest(ctx context.Context, hostRev, hwVer string) (FirmwareManifest, Status, error) {
	var manifest FirmwareManifest
	q := url.Values{"revision": {hostRev}, "hardware": {hwVer}}
	resp, status, err := c.do(ctx, http.MethodGet, "/api/v2/firmware", q, nil)
	if err != nil {
		return manifest, status, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return manifest, StatusNoResponse, fmt.Errorf("remote: firmware check status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&manifest); err != nil {
		return manifest, StatusCannotParseResponse, fmt.Errorf("remote: decode firmware manifest: %w", err)
	}
	return manifest, StatusOK, nil
}

// TimeInstance mirrors the cloud time-server response.
type TimeInstance struct {
	UTC        time.Time `json:"utc"`
	DSTOffset  int       `json:"dstOffset"`
	RawOffset  int       `json:"rawOffset"`
	SunriseUTC time.Time `json:"sunriseUtc"`
	SunsetUTC  time.Time `json:"sunsetUtc"`
}

// GetTime fetches the cloud time instance for tz, optionally disambiguated
// by lat/lon (pass hasLatLon=false to omit them).
func (c *Client) GetTime(ctx context.Context, tz string, lat, lon float64, hasLatLon bool) (TimeInstance, Status, error) {
	var t TimeInstance
	q := url.Values{"tz": {tz}}
	if hasLatLon {
		q.Set("lat", fmt.Sprintf("%f", lat))
		q.Set("lon", fmt.Sprintf("%f", lon))
	}
	resp, status, err := c.do(ctx, http.MethodGet, "/api/v2/times", q, nil)
	if err != nil {
		return t, status, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return t, StatusNoResponse, fmt.Errorf("remote: time check status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return t, StatusCannotParseResponse, fmt.Errorf("remote: decode time instance: %w", err)
	}
	return t, StatusOK, nil
}

// Hub action kinds, carried over from the original firmware's
// ACTION_TYPE_* enum (RMT_RemoteServers.h) as the kebab-case strings the
// Go cloud API uses for HubAction.Name.
const (
	ActionActivateScene      = "activate-scene"
	ActionActivateMultiScene = "activate-multi-scene"
	ActionEnableSchedules    = "enable-schedules"
	ActionDisableSchedules   = "disable-schedules"
	ActionClearNest          = "clear-nest"
)

// HubAction is one pending action from the cloud's action queue.
type HubAction struct {
	ID            string `json:"id"`
	Name          string `json:"action"`
	SceneID       int    `json:"sceneId,omitempty"`
	MultiSceneIDs []int  `json:"multiSceneIds,omitempty"`
}

// HubActionsResponse wraps the pending actions plus the next-update delay.
type HubActionsResponse struct {
	Actions        []HubAction `json:"actions"`
	NextUpdateMins int         `json:"nextUpdateMinutes"`
}

// GetHubActions fetches pending remote actions.
func (c *Client) GetHubActions(ctx context.Context) (HubActionsResponse, Status, error) {
	var out HubActionsResponse
	resp, status, err := c.do(ctx, http.MethodGet, "/api/v2/hubActions", nil, nil)
	if err != nil {
		return out, status, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return out, StatusNoResponse, errUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return out, StatusNoResponse, fmt.Errorf("remote: hub actions status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, StatusCannotParseResponse, fmt.Errorf("remote: decode hub actions: %w", err)
	}
	return out, StatusOK, nil
}

// errUnauthorized is checked with errors.Is by the coordinator to trigger
// registration invalidation.
var errUnauthorized = fmt.Errorf("remote: unauthorized")

// PutActionStatus reports the outcome of one executed action.
func (c *Client) PutActionStatus(ctx context.Context, actionID string, status string, messageID string) (Status, error) {
	body := map[string]any{"action": map[string]any{"status": status, "messageId": messageID}}
	resp, st, err := c.do(ctx, http.MethodPut, "/api/v2/actions/"+actionID, nil, body)
	if err != nil {
		return st, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return StatusNoResponse, fmt.Errorf("remote: action status put returned %d", resp.StatusCode)
	}
	return StatusOK, nil
}

// Registration is the persisted hub-registration document.
type Registration struct {
	HubID        string    `json:"hubId"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// PostRegistration registers the hub with the cloud.
func (c *Client) PostRegistration(ctx context.Context, reg Registration) (Status, error) {
	resp, st, err := c.do(ctx, http.MethodPost, "/api/v2/hubRegistration/", nil, reg)
	if err != nil {
		return st, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return StatusNoResponse, fmt.Errorf("remote: registration returned %d", resp.StatusCode)
	}
	return StatusOK, nil
}

// DeleteRegistration unregisters the hub.
func (c *Client) DeleteRegistration(ctx context.Context, hubID string) (Status, error) {
	resp, st, err := c.do(ctx, http.MethodDelete, "/api/v2/hubRegistration/"+hubID, nil, nil)
	if err != nil {
		return st, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return StatusNoResponse, fmt.Errorf("remote: unregister returned %d", resp.StatusCode)
	}
	return StatusOK, nil
}

// PostHubData streams a sync payload up to the cloud.
func (c *Client) PostHubData(ctx context.Context, payload []byte) (Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v2/hubData/", bytes.NewReader(payload))
	if err != nil {
		return StatusLocalResource, fmt.Errorf("remote: build hub-data request: %w", err)
	}
	req.Header.Set("Authorization", c.basicAuthHeader())
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return StatusCannotConnect, fmt.Errorf("remote: hub-data connect: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return StatusNoResponse, fmt.Errorf("remote: hub-data returned %d", resp.StatusCode)
	}
	return StatusOK, nil
}

// PostLowBatteryNotification reports how many shades are currently low on
// battery.
func (c *Client) PostLowBatteryNotification(ctx context.Context, count int) (Status, error) {
	q := url.Values{"count": {fmt.Sprintf("%d", count)}}
	resp, st, err := c.do(ctx, http.MethodPost, "/api/v2/lowBatteryNotifications", q, nil)
	if err != nil {
		return st, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return StatusNoResponse, fmt.Errorf("remote: low-battery notification returned %d", resp.StatusCode)
	}
	return StatusOK, nil
}
