// Package geocode resolves city names to coordinates with the Open-Meteo
// geocoding API.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"stays-service/models"
)

// ErrCityNotFound is returned when the API has no match for the name.
var ErrCityNotFound = errors.New("city not found")

const httpTimeout = 15 * time.Second

// Client calls the geocoding search endpoint
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a geocoding client for baseURL, e.g.
// https://geocoding-api.open-meteo.com/v1/search
func NewClient(baseURL string) *Client {
	return &Client{baseURL: baseURL, client: &http.Client{Timeout: httpTimeout}}
}

type searchResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Country   string  `json:"country"`
	} `json:"results"`
}

// ResolveCity returns the coordinates of the best match for name
func (c *Client) ResolveCity(ctx context.Context, name string) (models.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Location{}, ErrCityNotFound
	}

	params := url.Values{}
	params.Set("name", name)
	params.Set("count", "1")
	params.Set("language", "en")
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return models.Location{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return models.Location{}, fmt.Errorf("http GET: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Location{}, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return models.Location{}, fmt.Errorf("geocoding returned %d: %s", resp.StatusCode, string(body))
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return models.Location{}, fmt.Errorf("json unmarshal: %w", err)
	}
	if len(sr.Results) == 0 {
		return models.Location{}, fmt.Errorf("%w: %q", ErrCityNotFound, name)
	}
	r := sr.Results[0]
	return models.Location{Lat: r.Latitude, Lon: r.Longitude}, nil
}
