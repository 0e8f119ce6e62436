// Package weather fetches Open-Meteo forecasts and maps them to snapshots.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"stays-service/models"
)

const httpTimeout = 15 * time.Second

// Forecast is the subset of the Open-Meteo forecast response we read.
type Forecast struct {
	CurrentWeather struct {
		Time        string  `json:"time"`
		Temperature float64 `json:"temperature"`
		Windspeed   float64 `json:"windspeed"`
		WeatherCode int     `json:"weathercode"`
		IsDay       int     `json:"is_day"`
	} `json:"current_weather"`
	Hourly struct {
		Time          []string  `json:"time"`
		Temperature   []float64 `json:"temperature_2m"`
		Humidity      []float64 `json:"relative_humidity_2m"`
		Precipitation []float64 `json:"precipitation"`
		WeatherCode   []int     `json:"weathercode"`
		Windspeed     []float64 `json:"windspeed_10m"`
	} `json:"hourly"`
	Daily struct {
		Time          []string  `json:"time"`
		MaxTemp       []float64 `json:"temperature_2m_max"`
		MinTemp       []float64 `json:"temperature_2m_min"`
		Sunrise       []string  `json:"sunrise"`
		Sunset        []string  `json:"sunset"`
		Precipitation []float64 `json:"precipitation_sum"`
	} `json:"daily"`
	Alerts []map[string]any `json:"alerts"`
}

// Client calls the Open-Meteo forecast endpoint
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a forecast client for baseURL, e.g.
// https://api.open-meteo.com/v1/forecast
func NewClient(baseURL string) *Client {
	return &Client{baseURL: baseURL, client: &http.Client{Timeout: httpTimeout}}
}

// Forecast fetches current, hourly and daily data for loc
func (c *Client) Forecast(ctx context.Context, loc models.Location) (*Forecast, error) {
	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(loc.Lat, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(loc.Lon, 'f', -1, 64))
	params.Set("timezone", "auto")
	params.Set("current_weather", "true")
	params.Set("hourly", "temperature_2m,relative_humidity_2m,precipitation,weathercode,windspeed_10m")
	params.Set("daily", "temperature_2m_max,temperature_2m_min,sunrise,sunset,precipitation_sum")
	params.Set("alerts", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http GET: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("forecast returned %d: %s", resp.StatusCode, string(body))
	}

	var f Forecast
	if err := json.Unmarshal(body, &f); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}
	return &f, nil
}
