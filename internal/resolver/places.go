package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"ambulance-dispatch-backend/config"
)

// NearbyRequest asks for one page of places. When PageToken is set the other
// fields are ignored by the provider.
type NearbyRequest struct {
	Lat       float64
	Lng       float64
	RadiusM   int
	Category  string
	PageToken string
}

// Place is a single search hit.
type Place struct {
	Name    string  `json:"name"`
	Address string  `json:"vicinity"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

// PlacesPage is one page of results.
type PlacesPage struct {
	Places        []Place
	NextPageToken string
}

// PlacesClient is the places search capability.
type PlacesClient interface {
	Nearby(ctx context.Context, req NearbyRequest) (*PlacesPage, error)
}

// placesResponse models the Nearby Search response body.
type placesResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		Name     string `json:"name"`
		Vicinity string `json:"vicinity"`
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
	NextPageToken string `json:"next_page_token"`
}

// GooglePlaces calls the Places Nearby Search endpoint.
type GooglePlaces struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewGooglePlaces(cfg *config.ResolverConfig) *GooglePlaces {
	return &GooglePlaces{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
	}
}

// Nearby fetches a single page.
func (g *GooglePlaces) Nearby(ctx context.Context, r NearbyRequest) (*PlacesPage, error) {
	params := url.Values{"key": {g.apiKey}}
	if r.PageToken != "" {
		params.Set("pagetoken", r.PageToken)
	} else {
		params.Set("location", strconv.FormatFloat(r.Lat, 'f', -1, 64)+","+strconv.FormatFloat(r.Lng, 'f', -1, 64))
		params.Set("radius", strconv.Itoa(r.RadiusM))
		params.Set("type", r.Category)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var out placesResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal places response: %w", err)
	}

	switch out.Status {
	case "OK", "ZERO_RESULTS":
	default:
		return nil, fmt.Errorf("places API returned status %s: %s", out.Status, out.ErrorMessage)
	}

	page := &PlacesPage{NextPageToken: out.NextPageToken}
	for _, r := range out.Results {
		address := r.Vicinity
		if address == "" {
			address = "N/A"
		}
		page.Places = append(page.Places, Place{
			Name:    r.Name,
			Address: address,
			Lat:     r.Geometry.Location.Lat,
			Lng:     r.Geometry.Location.Lng,
		})
	}
	return page, nil
}
