package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SourceKind identifies the acquisition source a raw item came from.
// It is also the storage partition for listings.
type SourceKind string

const (
	SourceAirbnb     SourceKind = "airbnb"
	SourceGoogleMaps SourceKind = "googlemaps"
	SourceBooking    SourceKind = "booking"
	SourceGeneric    SourceKind = "generic"
)

// ParseSourceKind converts a raw query value to a SourceKind.
func ParseSourceKind(s string) (SourceKind, error) {
	k := SourceKind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case SourceAirbnb, SourceGoogleMaps, SourceBooking, SourceGeneric:
		return k, nil
	}
	return "", fmt.Errorf("unknown source %q", s)
}

// ListingType mirrors the stays "type" enum.
type ListingType string

const (
	TypeHotel  ListingType = "hotel"
	TypeAirbnb ListingType = "airbnb"
)

// PriceNotAvailable is stored when no price could be extracted.
const PriceNotAvailable = "N/A"

// RawItem is one unprocessed record as returned by a scraper.
// Field names and value types vary per source.
type RawItem map[string]any

// Location is a point in WGS84 degrees.
type Location struct {
	Lat float64 `json:"lat" bson:"lat"`
	Lon float64 `json:"lon" bson:"lon"`
}

// Listing is the canonical, persisted lodging record.
type Listing struct {
	IdentityKey string      `json:"identityKey" bson:"identityKey"`
	Source      SourceKind  `json:"source" bson:"source"`
	Name        string      `json:"name" bson:"name"`
	Description string      `json:"description" bson:"description"`
	Type        ListingType `json:"type" bson:"type"`
	Address     string      `json:"address" bson:"address"`
	City        string      `json:"city" bson:"city"`
	Location    Location    `json:"location" bson:"location"`
	Rating      *float64    `json:"rating" bson:"rating,omitempty"`
	Price       string      `json:"price" bson:"price"`
	Amenities   []string    `json:"amenities" bson:"amenities,omitempty"`
	Images      []string    `json:"images" bson:"images,omitempty"`
	SourceURL   string      `json:"sourceUrl,omitempty" bson:"sourceUrl,omitempty"`
	CreatedAt   time.Time   `json:"createdAt" bson:"createdAt"`
	LastUpdated time.Time   `json:"lastUpdated" bson:"lastUpdated"`
}

// BuildIdentityKey returns the dedup key: the source URL when known,
// otherwise name plus coordinates.
func BuildIdentityKey(sourceURL, name string, loc Location) string {
	if u := strings.TrimSpace(sourceURL); u != "" {
		return u
	}
	return name + "|" +
		strconv.FormatFloat(loc.Lat, 'f', -1, 64) + "|" +
		strconv.FormatFloat(loc.Lon, 'f', -1, 64)
}

// SkipReason explains why a raw item was not turned into a Listing.
type SkipReason string

const (
	SkipMissingName     SkipReason = "missing_name"
	SkipMissingLocation SkipReason = "missing_location"
	SkipBuildError      SkipReason = "exception_building_doc"
	SkipDuplicate       SkipReason = "duplicate_in_batch"
)

// Skipped records a dropped raw item.
type Skipped struct {
	Reason SkipReason `json:"reason"`
	Error  string     `json:"error,omitempty"`
	Item   RawItem    `json:"item,omitempty"`
}

// MergeFailure is a single record the store refused during a batch.
type MergeFailure struct {
	IdentityKey string `json:"identityKey"`
	Error       string `json:"error"`
}

// MergeSummary reports the outcome of one merge batch.
type MergeSummary struct {
	Processed int            `json:"processed"`
	Upserted  int            `json:"upserted"`
	Modified  int            `json:"modified"`
	Skipped   []Skipped      `json:"skipped"`
	Failed    []MergeFailure `json:"failed,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Written is the number of records the store accepted.
func (s MergeSummary) Written() int {
	return s.Upserted + s.Modified
}
