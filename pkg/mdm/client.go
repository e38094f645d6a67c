package mdm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/benmeehan/mdm-poller/internal/models"
)

// maxBodySize caps how much of a vendor response is read.
const maxBodySize = 1 << 20

// Client talks to the SimpleMDM REST API. It implements both LocationFetcher and
// UpdateRequester.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a Client whose requests are bounded by timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// GetDeviceLocation fetches the device resource and extracts its last-known fix.
// It returns ErrNoFix when either coordinate is missing.
func (c *Client) GetDeviceLocation(ctx context.Context, deviceID string) (*models.DeviceLocation, error) {
	resp, err := c.do(ctx, http.MethodGet, c.deviceURL(deviceID))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch device %s: %w", deviceID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		drain(resp.Body)
		return nil, &StatusError{Method: http.MethodGet, URL: resp.Request.URL.String(), StatusCode: resp.StatusCode}
	}

	var payload deviceResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode device %s: %w", deviceID, err)
	}

	return c.toLocation(deviceID, payload.Data.Attributes)
}

// RequestLocationUpdate asks the vendor to have the device capture a fresh location.
// Only 202 Accepted counts as success; any other status yields a *StatusError.
func (c *Client) RequestLocationUpdate(ctx context.Context, deviceID string) error {
	resp, err := c.do(ctx, http.MethodPost, c.deviceURL(deviceID)+"/lost_mode/update_location")
	if err != nil {
		return fmt.Errorf("failed to request location update for device %s: %w", deviceID, err)
	}
	defer resp.Body.Close()
	drain(resp.Body)

	if resp.StatusCode != http.StatusAccepted {
		return &StatusError{Method: http.MethodPost, URL: resp.Request.URL.String(), StatusCode: resp.StatusCode}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.apiKey, "")
	req.Header.Set("Accept", "application/json")

	return c.httpClient.Do(req)
}

func (c *Client) deviceURL(deviceID string) string {
	return c.baseURL + "/devices/" + url.PathEscape(deviceID)
}

func (c *Client) toLocation(deviceID string, attrs deviceAttributes) (*models.DeviceLocation, error) {
	name := deviceID
	if attrs.Name != nil && *attrs.Name != "" {
		name = *attrs.Name
	}

	if !attrs.LocationLatitude.Valid || !attrs.LocationLongitude.Valid {
		return nil, fmt.Errorf("device %s (%s): %w", deviceID, name, ErrNoFix)
	}

	location := &models.DeviceLocation{
		DeviceID:   deviceID,
		DeviceName: name,
		Latitude:   attrs.LocationLatitude.Decimal,
		Longitude:  attrs.LocationLongitude.Decimal,
	}

	if attrs.LocationAccuracy.Valid {
		if accuracy := int(attrs.LocationAccuracy.Decimal.Round(0).IntPart()); accuracy > 0 {
			location.Accuracy = &accuracy
		}
	}

	if attrs.LocationUpdatedAt != nil && *attrs.LocationUpdatedAt != "" {
		updatedAt, err := time.Parse(time.RFC3339Nano, *attrs.LocationUpdatedAt)
		if err != nil {
			c.logger.Warn().
				Err(err).
				Str("device_id", deviceID).
				Str("location_updated_at", *attrs.LocationUpdatedAt).
				Msg("Ignoring unparseable vendor timestamp")
		} else {
			updatedAt = updatedAt.UTC()
			location.LocationUpdatedAt = &updatedAt
		}
	}

	return location, nil
}

func drain(body io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxBodySize))
}
