package services_test

import (
	"testing"
	"time"

	"stays-service/models"
	"stays-service/services"
)

func TestEvaluate(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ttl := 6 * time.Hour

	tests := []struct {
		name  string
		times []time.Time
		want  services.Verdict
	}{
		{"empty", nil, services.MustFetchNow},
		{"just updated", []time.Time{now}, services.Fresh},
		{"one ms inside ttl", []time.Time{now.Add(-ttl + time.Millisecond)}, services.Fresh},
		{"exactly ttl is stale", []time.Time{now.Add(-ttl)}, services.StaleBackgroundRefresh},
		{"one ms past ttl", []time.Time{now.Add(-ttl - time.Millisecond)}, services.StaleBackgroundRefresh},
		{"future timestamp", []time.Time{now.Add(time.Hour)}, services.Fresh},
		{"newest record decides", []time.Time{now.Add(-10 * time.Hour), now.Add(-time.Hour), now.Add(-8 * time.Hour)}, services.Fresh},
		{"all stale", []time.Time{now.Add(-10 * time.Hour), now.Add(-7 * time.Hour)}, services.StaleBackgroundRefresh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := services.Evaluate(tt.times, now, ttl); got != tt.want {
				t.Errorf("Evaluate() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestEvaluate_AnyPositiveTTLIsFreshAtNow(t *testing.T) {
	now := time.Now()
	for _, ttl := range []time.Duration{time.Nanosecond, time.Second, time.Hour} {
		if got := services.Evaluate([]time.Time{now}, now, ttl); got != services.Fresh {
			t.Errorf("ttl=%v: %s", ttl, got)
		}
	}
}

func TestEvaluateListings(t *testing.T) {
	now := time.Now()
	listings := []*models.Listing{
		{LastUpdated: now.Add(-2 * time.Hour)},
		{LastUpdated: now.Add(-30 * time.Minute)},
	}
	if got := services.EvaluateListings(listings, now, time.Hour); got != services.Fresh {
		t.Errorf("got %s, want fresh", got)
	}
	if got := services.EvaluateListings(nil, now, time.Hour); got != services.MustFetchNow {
		t.Errorf("got %s, want must_fetch", got)
	}
}
