package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stays-service/geocode"
	"stays-service/models"
	"stays-service/storage"
	"stays-service/utils"
	"stays-service/weather"
)

// UpstreamError is a forecast failure with no snapshot to fall back on.
type UpstreamError struct {
	City string
	Err  error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("weather upstream failed for %q: %v", e.City, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// ForecastClient fetches a raw forecast for a point.
type ForecastClient interface {
	Forecast(ctx context.Context, loc models.Location) (*weather.Forecast, error)
}

// WeatherResponse is what WeatherService.Resolve returns.
type WeatherResponse struct {
	Source string                  `json:"source"`
	Data   *models.WeatherSnapshot `json:"data"`
}

// WeatherService serves per-city snapshots with the same cache policy as listings
type WeatherService struct {
	store    storage.WeatherStore
	geocode  GeocodeFunc
	forecast ForecastClient
	runner   *TaskRunner
	guard    RefreshGuard
	ttl      time.Duration
	timeout  time.Duration
	logger   *utils.Logger
	now      func() time.Time
}

// NewWeatherService creates a WeatherService. guard may be nil.
func NewWeatherService(store storage.WeatherStore, geo GeocodeFunc, forecast ForecastClient, runner *TaskRunner, guard RefreshGuard, ttl, timeout time.Duration, logger *utils.Logger) *WeatherService {
	return &WeatherService{
		store:    store,
		geocode:  geo,
		forecast: forecast,
		runner:   runner,
		guard:    guard,
		ttl:      ttl,
		timeout:  timeout,
		logger:   logger,
		now:      time.Now,
	}
}

// Resolve returns the snapshot for city, fetching it when none is stored.
func (s *WeatherService) Resolve(ctx context.Context, city string) (WeatherResponse, error) {
	key := storage.CityKey(city)
	if key == "" {
		return WeatherResponse{}, ErrMissingCity
	}

	snap, err := s.store.Get(ctx, key)
	if err != nil && !errors.Is(err, storage.ErrSnapshotNotFound) {
		s.logger.Warn("Weather store read for %q failed, fetching: %v", key, err)
	}
	if snap != nil {
		switch Evaluate([]time.Time{snap.LastUpdated}, s.now(), s.ttl) {
		case Fresh:
			return WeatherResponse{Source: SourceCache, Data: snap}, nil
		case StaleBackgroundRefresh:
			s.refreshInBackground(key)
			return WeatherResponse{Source: SourceCache, Data: snap}, nil
		}
	}

	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	fresh, err := s.Refresh(fetchCtx, key)
	if err != nil {
		return WeatherResponse{}, err
	}
	return WeatherResponse{Source: SourceAPI, Data: fresh}, nil
}

// Refresh geocodes city, fetches and maps a forecast and replaces the stored snapshot.
func (s *WeatherService) Refresh(ctx context.Context, city string) (*models.WeatherSnapshot, error) {
	key := storage.CityKey(city)
	loc, err := s.geocode(ctx, key)
	if err != nil {
		if errors.Is(err, geocode.ErrCityNotFound) {
			return nil, err
		}
		return nil, &UpstreamError{City: key, Err: fmt.Errorf("geocode: %w", err)}
	}

	f, err := s.forecast.Forecast(ctx, loc)
	if err != nil {
		return nil, &UpstreamError{City: key, Err: err}
	}
	snap, err := weather.Map(key, loc, f, s.now().UTC())
	if err != nil {
		return nil, &UpstreamError{City: key, Err: err}
	}

	if err := s.store.Put(ctx, snap); err != nil {
		s.logger.Warn("Could not store weather for %q: %v", key, err)
	}
	return snap, nil
}

func (s *WeatherService) refreshInBackground(city string) {
	key := "weather:" + strings.ToLower(city)
	if s.guard != nil {
		ok, err := s.guard.Acquire(context.Background(), key)
		if err == nil && !ok {
			s.logger.Debug("Weather refresh for %q already in flight", city)
			return
		}
		if err == nil {
			s.runner.Go("refresh "+key, func(ctx context.Context) error {
				defer func() { _ = s.guard.Release(context.Background(), key) }()
				_, err := s.Refresh(ctx, city)
				return err
			})
			return
		}
		s.logger.Warn("Refresh guard unavailable for %s: %v", key, err)
	}
	s.runner.Go("refresh "+key, func(ctx context.Context) error {
		_, err := s.Refresh(ctx, city)
		return err
	})
}
