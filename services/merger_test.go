package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"stays-service/models"
	"stays-service/services"
	"stays-service/storage"
)

// countingStore records upsert calls and can inject a batch error.
type countingStore struct {
	*storage.MemoryListingStore
	upserts  int
	batchErr error
}

func (s *countingStore) UpsertListings(ctx context.Context, ls []*models.Listing, now time.Time) storage.UpsertResult {
	s.upserts++
	if s.batchErr != nil {
		return storage.UpsertResult{Err: s.batchErr}
	}
	return s.MemoryListingStore.UpsertListings(ctx, ls, now)
}

func newMerger(store storage.ListingStore) *services.Merger {
	logger := quietLogger()
	return services.NewMerger(store, services.NewNormalizer(logger, nil), logger)
}

func stay(key string, rating *float64, images ...string) *models.Listing {
	return &models.Listing{
		IdentityKey: key,
		Source:      models.SourceAirbnb,
		Name:        "Stay",
		Type:        models.TypeAirbnb,
		Address:     "Dehradun",
		City:        "Dehradun",
		Location:    models.Location{Lat: 30.3, Lon: 78.0},
		Rating:      rating,
		Price:       "INR 1000",
		Images:      images,
	}
}

func scope() storage.ListingQuery {
	return storage.ListingQuery{City: "Dehradun", Source: models.SourceAirbnb}
}

func TestMerge_Idempotent(t *testing.T) {
	store := storage.NewMemoryListingStore(time.Hour)
	m := newMerger(store)

	first := m.Merge(context.Background(), []*models.Listing{stay("k", nil)})
	if first.Upserted != 1 || first.Modified != 0 || first.Processed != 1 {
		t.Fatalf("first merge = %+v", first)
	}
	second := m.Merge(context.Background(), []*models.Listing{stay("k", nil)})
	if second.Upserted != 0 || second.Modified != 1 {
		t.Fatalf("second merge = %+v", second)
	}
	if store.Count() != 1 {
		t.Errorf("stored %d records, want 1", store.Count())
	}
}

func TestMerge_SetUnionAndRatingPreservation(t *testing.T) {
	store := storage.NewMemoryListingStore(time.Hour)
	m := newMerger(store)
	ctx := context.Background()

	m.Merge(ctx, []*models.Listing{stay("k", ptr(4.5), "a")})
	m.Merge(ctx, []*models.Listing{stay("k", nil, "a", "b")})

	got, _ := store.FindListings(ctx, scope())
	if len(got) != 1 {
		t.Fatalf("got %d listings", len(got))
	}
	if got[0].Rating == nil || *got[0].Rating != 4.5 {
		t.Errorf("rating = %v, want 4.5", got[0].Rating)
	}
	if len(got[0].Images) != 2 || got[0].Images[0] != "a" || got[0].Images[1] != "b" {
		t.Errorf("images = %v, want [a b]", got[0].Images)
	}

	m.Merge(ctx, []*models.Listing{stay("k", ptr(3.9))})
	got, _ = store.FindListings(ctx, scope())
	if *got[0].Rating != 3.9 {
		t.Errorf("non-nil rating should overwrite, got %v", *got[0].Rating)
	}
}

func TestMerge_EmptyBatchIsNoop(t *testing.T) {
	store := &countingStore{MemoryListingStore: storage.NewMemoryListingStore(time.Hour)}
	summary := newMerger(store).Merge(context.Background(), nil)
	if summary.Processed != 0 || summary.Written() != 0 || summary.Error != "" {
		t.Errorf("summary = %+v", summary)
	}
	if store.upserts != 0 {
		t.Errorf("store called %d times", store.upserts)
	}
}

func TestMerge_BatchErrorIsReportedNotReturned(t *testing.T) {
	store := &countingStore{MemoryListingStore: storage.NewMemoryListingStore(time.Hour), batchErr: errors.New("connection reset")}
	summary := newMerger(store).Merge(context.Background(), []*models.Listing{stay("k", nil)})
	if summary.Error != "connection reset" || summary.Processed != 1 || summary.Written() != 0 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestMergeRaw_MissingLocationSkipped(t *testing.T) {
	store := storage.NewMemoryListingStore(time.Hour)
	m := newMerger(store)
	ctx := context.Background()

	items := []models.RawItem{
		{"title": "Somewhere", "link": "u1"},
		{"title": "Placed", "link": "u2", "location": map[string]any{"lat": 1.5, "lon": 2.5}},
	}
	summary, err := m.MergeRaw(ctx, models.SourceBooking, items, services.NormalizeContext{City: "Atlantis"})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Upserted != 1 || len(summary.Skipped) != 1 || summary.Skipped[0].Reason != models.SkipMissingLocation {
		t.Fatalf("summary = %+v", summary)
	}
	if store.Count() != 1 {
		t.Errorf("store count = %d, want 1", store.Count())
	}
}

func TestMergeRaw_UnknownKindFailsBeforeWrites(t *testing.T) {
	store := &countingStore{MemoryListingStore: storage.NewMemoryListingStore(time.Hour)}
	_, err := newMerger(store).MergeRaw(context.Background(), "tripadvisor",
		[]models.RawItem{{"title": "X", "latitude": 1.0, "longitude": 1.0}}, services.NormalizeContext{})
	if !errors.Is(err, services.ErrUnknownSource) {
		t.Fatalf("err = %v", err)
	}
	if store.upserts != 0 {
		t.Errorf("store called %d times", store.upserts)
	}
}
