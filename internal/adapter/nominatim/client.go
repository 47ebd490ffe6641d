// Package nominatim implements domain.Geocoder against the OSM Nominatim
// search API, with a caching and rate-limiting decorator suitable for the
// public instance's one-request-per-second policy.
package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/greyledger/sitrep/internal/domain"
)

// Client implements domain.Geocoder using the Nominatim search API.
type Client struct {
	userAgent  string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a Nominatim geocoding client. The user agent is required
// by the public instance's usage policy and must identify this deployment.
func NewClient(userAgent string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: "https://nominatim.openstreetmap.org",
		logger:  logger,
	}
}

// Geocode resolves a free-text place name to coordinates. A place Nominatim
// does not know yields a zero result and no error.
func (c *Client) Geocode(ctx context.Context, place string) (domain.GeocodeResult, error) {
	params := url.Values{
		"q":      {place},
		"format": {"jsonv2"},
		"limit":  {"1"},
	}
	fullURL := c.baseURL + "/search?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.GeocodeResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.GeocodeResult{}, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return domain.GeocodeResult{}, fmt.Errorf("nominatim API error: status %d: %s", resp.StatusCode, body)
	}

	var places []searchResult
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return domain.GeocodeResult{}, fmt.Errorf("decode response: %w", err)
	}

	if len(places) == 0 {
		return domain.GeocodeResult{}, nil
	}

	p := places[0]
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return domain.GeocodeResult{}, fmt.Errorf("parse latitude %q: %w", p.Lat, err)
	}
	lon, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return domain.GeocodeResult{}, fmt.Errorf("parse longitude %q: %w", p.Lon, err)
	}

	return domain.GeocodeResult{
		Lat:         lat,
		Lon:         lon,
		DisplayName: p.DisplayName,
		Relevance:   relevance(p.Importance),
	}, nil
}

// relevance maps Nominatim's open-ended importance score onto [0,1].
func relevance(importance float64) float64 {
	if importance <= 0 {
		return 0.5
	}
	if importance > 1 {
		return 1
	}
	return importance
}

// Nominatim API response types. Coordinates arrive as strings.

type searchResult struct {
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	DisplayName string  `json:"display_name"`
	Importance  float64 `json:"importance"`
}
