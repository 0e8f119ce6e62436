package weather

import (
	"errors"
	"strings"
	"time"

	"stays-service/models"
)

var (
	ErrCurrentHourMissing = errors.New("current time not found in hourly data")
	ErrCurrentDayMissing  = errors.New("current date not found in daily data")
)

const (
	hourlyPoints = 4
	dailyPoints  = 3
)

// Map builds a snapshot: the hourly point for the current hour and the
// next three, then today and up to two following days.
func Map(city string, loc models.Location, f *Forecast, now time.Time) (*models.WeatherSnapshot, error) {
	cur := f.CurrentWeather
	if len(cur.Time) < len("2006-01-02T15") {
		return nil, ErrCurrentHourMissing
	}

	hourPrefix := cur.Time[:len("2006-01-02T15")]
	start := -1
	for i, t := range f.Hourly.Time {
		if strings.HasPrefix(t, hourPrefix) {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, ErrCurrentHourMissing
	}

	day := cur.Time[:len("2006-01-02")]
	dayStart := -1
	for i, d := range f.Daily.Time {
		if d == day {
			dayStart = i
			break
		}
	}
	if dayStart < 0 {
		return nil, ErrCurrentDayMissing
	}

	isDay := "Night"
	if cur.IsDay == 1 {
		isDay = "Day"
	}

	snap := &models.WeatherSnapshot{
		City:        city,
		Coordinates: loc,
		CurrentTime: cur.Time,
		CurrentConditions: models.CurrentConditions{
			Temperature: cur.Temperature,
			Windspeed:   cur.Windspeed,
			WeatherCode: cur.WeatherCode,
			IsDay:       isDay,
		},
		LastUpdated: now,
	}

	h := f.Hourly
	for i := start; i < len(h.Time) && i < start+hourlyPoints; i++ {
		snap.ThreeHourForecast = append(snap.ThreeHourForecast, models.HourlyPoint{
			Time:          h.Time[i],
			Temperature:   floatAt(h.Temperature, i),
			Humidity:      floatAt(h.Humidity, i),
			Precipitation: floatAt(h.Precipitation, i),
			Windspeed:     floatAt(h.Windspeed, i),
			WeatherCode:   intAt(h.WeatherCode, i),
		})
	}

	d := f.Daily
	for i := dayStart; i < len(d.Time) && i < dayStart+dailyPoints; i++ {
		snap.NextThreeDays = append(snap.NextThreeDays, models.DailyPoint{
			Date:          d.Time[i],
			Sunrise:       stringAt(d.Sunrise, i),
			Sunset:        stringAt(d.Sunset, i),
			MaxTemp:       floatAt(d.MaxTemp, i),
			MinTemp:       floatAt(d.MinTemp, i),
			Precipitation: floatAt(d.Precipitation, i),
		})
	}

	if len(f.Alerts) > 0 {
		snap.Alerts = f.Alerts
	}
	return snap, nil
}

func floatAt(s []float64, i int) float64 {
	if i < len(s) {
		return s[i]
	}
	return 0
}

func intAt(s []int, i int) int {
	if i < len(s) {
		return s[i]
	}
	return 0
}

func stringAt(s []string, i int) string {
	if i < len(s) {
		return s[i]
	}
	return ""
}
