package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"stays-service/models"
)

// MemoryListingStore keeps listings in process memory. Expired records are
// hidden from reads and swept lazily on writes.
type MemoryListingStore struct {
	mu        sync.Mutex
	retention time.Duration
	now       func() time.Time
	byKey     map[string]*models.Listing // source + "\x00" + identityKey
}

// NewMemoryListingStore creates an empty store with the given retention window
func NewMemoryListingStore(retention time.Duration) *MemoryListingStore {
	return &MemoryListingStore{
		retention: retention,
		now:       time.Now,
		byKey:     make(map[string]*models.Listing),
	}
}

func partitionKey(source models.SourceKind, identityKey string) string {
	return string(source) + "\x00" + identityKey
}

// FindListings returns copies so callers cannot mutate stored state
func (s *MemoryListingStore) FindListings(ctx context.Context, q ListingQuery) ([]*models.Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.retention)
	var out []*models.Listing
	for _, l := range s.byKey {
		if !l.LastUpdated.After(cutoff) || !inScope(l, q) {
			continue
		}
		out = append(out, cloneListing(l))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LastUpdated.Equal(out[j].LastUpdated) {
			return out[i].IdentityKey < out[j].IdentityKey
		}
		return out[i].LastUpdated.After(out[j].LastUpdated)
	})
	return out, nil
}

// UpsertListings merges each listing under the store mutex
func (s *MemoryListingStore) UpsertListings(ctx context.Context, listings []*models.Listing, now time.Time) UpsertResult {
	var res UpsertResult
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()
	for _, in := range listings {
		key := partitionKey(in.Source, in.IdentityKey)
		existing, ok := s.byKey[key]
		if !ok {
			l := cloneListing(in)
			l.Amenities = unionStrings(nil, in.Amenities)
			l.Images = unionStrings(nil, in.Images)
			l.CreatedAt = now
			l.LastUpdated = now
			s.byKey[key] = l
			res.Inserted++
			continue
		}
		existing.Name = in.Name
		existing.Description = in.Description
		existing.Type = in.Type
		existing.Address = in.Address
		existing.City = in.City
		existing.Location = in.Location
		existing.Price = in.Price
		existing.SourceURL = in.SourceURL
		if in.Rating != nil {
			r := *in.Rating
			existing.Rating = &r
		}
		existing.Amenities = unionStrings(existing.Amenities, in.Amenities)
		existing.Images = unionStrings(existing.Images, in.Images)
		existing.LastUpdated = now
		res.Modified++
	}
	return res
}

// DeleteListings removes every listing in scope
func (s *MemoryListingStore) DeleteListings(ctx context.Context, q ListingQuery) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, l := range s.byKey {
		if inScope(l, q) {
			delete(s.byKey, k)
			n++
		}
	}
	return n, nil
}

// PurgeExpired drops records older than the retention window
func (s *MemoryListingStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.purgeLocked(now), nil
}

func (s *MemoryListingStore) sweepLocked() {
	s.purgeLocked(s.now())
}

func (s *MemoryListingStore) purgeLocked(now time.Time) int {
	cutoff := now.Add(-s.retention)
	n := 0
	for k, l := range s.byKey {
		if !l.LastUpdated.After(cutoff) {
			delete(s.byKey, k)
			n++
		}
	}
	return n
}

// Count returns the number of stored listings, expired or not
func (s *MemoryListingStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byKey)
}

func (s *MemoryListingStore) Close() error { return nil }

func inScope(l *models.Listing, q ListingQuery) bool {
	if q.Source != "" && l.Source != q.Source {
		return false
	}
	city := strings.ToLower(strings.TrimSpace(q.City))
	if city == "" {
		return true
	}
	return strings.Contains(strings.ToLower(l.Address), city) ||
		strings.Contains(strings.ToLower(l.City), city)
}

func cloneListing(l *models.Listing) *models.Listing {
	cp := *l
	if l.Rating != nil {
		r := *l.Rating
		cp.Rating = &r
	}
	cp.Amenities = append([]string(nil), l.Amenities...)
	cp.Images = append([]string(nil), l.Images...)
	return &cp
}

// unionStrings appends the values of add not already in base, keeping order.
func unionStrings(base, add []string) []string {
	seen := make(map[string]struct{}, len(base)+len(add))
	out := make([]string, 0, len(base)+len(add))
	for _, v := range base {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	for _, v := range add {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// MemoryWeatherStore keeps one snapshot per city, hidden once older than retention.
type MemoryWeatherStore struct {
	mu        sync.RWMutex
	retention time.Duration
	now       func() time.Time
	snaps     map[string]*models.WeatherSnapshot
}

// NewMemoryWeatherStore creates an empty weather store
func NewMemoryWeatherStore(retention time.Duration) *MemoryWeatherStore {
	return &MemoryWeatherStore{
		retention: retention,
		now:       time.Now,
		snaps:     make(map[string]*models.WeatherSnapshot),
	}
}

func (s *MemoryWeatherStore) Get(ctx context.Context, city string) (*models.WeatherSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[CityKey(city)]
	if !ok || !snap.LastUpdated.After(s.now().Add(-s.retention)) {
		return nil, ErrSnapshotNotFound
	}
	cp := *snap
	return &cp, nil
}

// Put replaces the city's snapshot wholesale
func (s *MemoryWeatherStore) Put(ctx context.Context, snap *models.WeatherSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *snap
	cp.City = CityKey(snap.City)
	s.snaps[cp.City] = &cp
	return nil
}

func (s *MemoryWeatherStore) Close() error { return nil }

// CityKey normalizes a city name for keyed lookups
func CityKey(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}
