package models

import "time"

// CurrentConditions is the "current_weather" block of a forecast.
type CurrentConditions struct {
	Temperature float64 `json:"temperature"`
	Windspeed   float64 `json:"windspeed"`
	WeatherCode int     `json:"weatherCode"`
	IsDay       string  `json:"is_day"`
}

// HourlyPoint is one hour of the short-range forecast.
type HourlyPoint struct {
	Time          string  `json:"time"`
	Temperature   float64 `json:"temperature"`
	Humidity      float64 `json:"humidity"`
	Precipitation float64 `json:"precipitation"`
	Windspeed     float64 `json:"windspeed"`
	WeatherCode   int     `json:"weatherCode"`
}

// DailyPoint carries sunrise/sunset and extremes for one day.
type DailyPoint struct {
	Date          string  `json:"date"`
	Sunrise       string  `json:"sunrise"`
	Sunset        string  `json:"sunset"`
	MaxTemp       float64 `json:"max_temp"`
	MinTemp       float64 `json:"min_temp"`
	Precipitation float64 `json:"precipitation"`
}

// WeatherSnapshot is the persisted per-city weather view. One per city,
// replaced wholesale on refresh.
type WeatherSnapshot struct {
	City              string            `json:"city"`
	Coordinates       Location          `json:"coordinates"`
	CurrentTime       string            `json:"current_time"`
	CurrentConditions CurrentConditions `json:"current_conditions"`
	ThreeHourForecast []HourlyPoint     `json:"three_hour_forecast"`
	NextThreeDays     []DailyPoint      `json:"next_three_days_sunrise_sunset"`
	Alerts            []map[string]any  `json:"alerts,omitempty"`
	LastUpdated       time.Time         `json:"lastUpdated"`
}
