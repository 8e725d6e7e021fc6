// Package geocode talks to the Google Geocoding API.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"ambulance-dispatch-backend/config"
	"ambulance-dispatch-backend/internal/apperr"
)

// UnknownLocation is returned by ReverseGeocode when no address can be found.
const UnknownLocation = "Unknown Location"

// Geocoder converts between addresses and coordinates.
type Geocoder interface {
	// Geocode returns apperr.ErrNotFound when the address has no match.
	Geocode(ctx context.Context, address string) (lat, lng float64, err error)
	// ReverseGeocode never fails; it falls back to UnknownLocation.
	ReverseGeocode(ctx context.Context, lat, lng float64) string
}

type apiResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// errRetryable marks a failure worth another attempt.
var errRetryable = errors.New("retryable")

// Client is the HTTP implementation of Geocoder.
type Client struct {
	baseURL string
	apiKey  string
	retries int
	delay   time.Duration
	client  *http.Client
	log     logrus.FieldLogger
}

func NewClient(cfg *config.GeocoderConfig, log logrus.FieldLogger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		retries: cfg.Retries,
		delay:   cfg.RetryDelay,
		client:  &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		log:     log,
	}
}

func (c *Client) Geocode(ctx context.Context, address string) (float64, float64, error) {
	resp, err := c.lookup(ctx, url.Values{"address": {address}})
	if err != nil {
		return 0, 0, err
	}
	if len(resp.Results) == 0 {
		return 0, 0, apperr.ErrNotFound
	}
	loc := resp.Results[0].Geometry.Location
	return loc.Lat, loc.Lng, nil
}

func (c *Client) ReverseGeocode(ctx context.Context, lat, lng float64) string {
	latlng := strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lng, 'f', -1, 64)
	resp, err := c.lookup(ctx, url.Values{"latlng": {latlng}})
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			c.log.WithError(err).WithField("latlng", latlng).Warn("reverse geocoding failed")
		}
		return UnknownLocation
	}
	if len(resp.Results) == 0 || resp.Results[0].FormattedAddress == "" {
		return UnknownLocation
	}
	return resp.Results[0].FormattedAddress
}

// lookup retries timeouts and server errors up to c.retries times.
func (c *Client) lookup(ctx context.Context, params url.Values) (*apiResponse, error) {
	attempts := c.retries
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := c.fetch(ctx, params)
		if err == nil {
			return resp, nil
		}
		if !errors.Is(err, errRetryable) {
			return nil, err
		}
		lastErr = err
		c.log.WithError(err).WithField("attempt", attempt).Warn("geocoding timed out, retrying")

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", apperr.ErrResolverUnavailable, ctx.Err())
		case <-time.After(c.delay):
		}
	}
	return nil, fmt.Errorf("%w: geocoding failed after %d attempts: %w", apperr.ErrResolverUnavailable, attempts, lastErr)
}

func (c *Client) fetch(ctx context.Context, params url.Values) (*apiResponse, error) {
	params.Set("key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, fmt.Errorf("%w: %w", errRetryable, err)
		}
		return nil, fmt.Errorf("%w: http request failed: %w", apperr.ErrResolverUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: received status code %d", errRetryable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: received status code %d", apperr.ErrResolverUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	var out apiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal geocoding response: %w", apperr.ErrResolverUnavailable, err)
	}

	switch out.Status {
	case "OK":
		return &out, nil
	case "ZERO_RESULTS":
		return nil, apperr.ErrNotFound
	case "UNKNOWN_ERROR":
		return nil, fmt.Errorf("%w: provider status %s", errRetryable, out.Status)
	}
	return nil, fmt.Errorf("%w: provider status %s: %s", apperr.ErrResolverUnavailable, out.Status, out.ErrorMessage)
}
