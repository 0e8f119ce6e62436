package storage

import (
	"context"
	"errors"
	"time"

	"stays-service/models"
)

// ErrSnapshotNotFound is returned by WeatherStore.Get when no snapshot is stored for a city.
var ErrSnapshotNotFound = errors.New("weather snapshot not found")

// ListingQuery scopes a read or delete: one source partition, and a city
// matched case-insensitively as a substring of address or city.
type ListingQuery struct {
	City   string
	Source models.SourceKind
}

// UpsertResult is what a store reports for one batch. Failures are
// per-record; Err is set when the batch as a whole could not complete.
type UpsertResult struct {
	Inserted int
	Modified int
	Failed   []models.MergeFailure
	Err      error
}

// ListingStore defines the interface for persisting canonical listings
type ListingStore interface {
	// FindListings returns unexpired listings in scope, most recently updated first.
	FindListings(ctx context.Context, q ListingQuery) ([]*models.Listing, error)
	// UpsertListings applies every listing independently, matched on (source, identityKey).
	UpsertListings(ctx context.Context, listings []*models.Listing, now time.Time) UpsertResult
	// DeleteListings removes every listing in scope and returns the count.
	DeleteListings(ctx context.Context, q ListingQuery) (int, error)
	Close() error
}

// WeatherStore holds one snapshot per lowercase city name
type WeatherStore interface {
	Get(ctx context.Context, city string) (*models.WeatherSnapshot, error)
	Put(ctx context.Context, snap *models.WeatherSnapshot) error
	Close() error
}

// Purger is implemented by stores whose expiry is not handled by the database itself.
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}
