package services

import (
	"time"

	"stays-service/models"
)

// Verdict is the serving decision for a query's stored records.
type Verdict int

const (
	MustFetchNow Verdict = iota
	Fresh
	StaleBackgroundRefresh
)

func (v Verdict) String() string {
	switch v {
	case Fresh:
		return "fresh"
	case StaleBackgroundRefresh:
		return "stale"
	default:
		return "must_fetch"
	}
}

// Evaluate judges freshness by the most recent timestamp only. A record is
// fresh while its age is strictly below ttl; at exactly ttl it is stale.
// Timestamps in the future count as fresh.
func Evaluate(lastUpdated []time.Time, now time.Time, ttl time.Duration) Verdict {
	if len(lastUpdated) == 0 {
		return MustFetchNow
	}
	newest := lastUpdated[0]
	for _, t := range lastUpdated[1:] {
		if t.After(newest) {
			newest = t
		}
	}
	if now.Sub(newest) < ttl {
		return Fresh
	}
	return StaleBackgroundRefresh
}

// EvaluateListings is Evaluate over listings' lastUpdated.
func EvaluateListings(listings []*models.Listing, now time.Time, ttl time.Duration) Verdict {
	stamps := make([]time.Time, 0, len(listings))
	for _, l := range listings {
		stamps = append(stamps, l.LastUpdated)
	}
	return Evaluate(stamps, now, ttl)
}
