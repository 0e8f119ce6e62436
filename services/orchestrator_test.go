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

func TestResolve_DehradunFetchThenCache(t *testing.T) {
	h := newHarness(newFakeGateway(models.SourceAirbnb, dehradunItems()...), nil)
	ctx := context.Background()

	first, err := h.orch.Resolve(ctx, "Dehradun", models.SourceAirbnb)
	if err != nil {
		t.Fatal(err)
	}
	if first.Source != services.SourceScrapper || !first.Replaced {
		t.Fatalf("first response source=%s replaced=%v", first.Source, first.Replaced)
	}
	if len(first.Data) != 3 || first.SaveSummary == nil || first.SaveSummary.Upserted != 3 {
		t.Fatalf("first response data=%d summary=%+v", len(first.Data), first.SaveSummary)
	}

	second, err := h.orch.Resolve(ctx, "dehradun", models.SourceAirbnb)
	if err != nil {
		t.Fatal(err)
	}
	if second.Source != services.SourceCache || second.Replaced {
		t.Fatalf("second response source=%s replaced=%v", second.Source, second.Replaced)
	}
	if len(second.Data) != len(first.Data) {
		t.Errorf("cache returned %d listings, fetch returned %d", len(second.Data), len(first.Data))
	}
	if h.gateway.Calls() != 1 {
		t.Errorf("gateway called %d times, want 1", h.gateway.Calls())
	}
}

func TestResolve_InputErrorsDoNoIO(t *testing.T) {
	h := newHarness(newFakeGateway(models.SourceAirbnb, dehradunItems()...), nil)

	if _, err := h.orch.Resolve(context.Background(), "   ", models.SourceAirbnb); !errors.Is(err, services.ErrMissingCity) {
		t.Errorf("blank city err = %v", err)
	}
	if _, err := h.orch.Resolve(context.Background(), "Dehradun", models.SourceBooking); !errors.Is(err, services.ErrUnknownSource) {
		t.Errorf("unsupported source err = %v", err)
	}
	if h.gateway.Calls() != 0 {
		t.Errorf("gateway called %d times", h.gateway.Calls())
	}
}

func TestResolve_ZeroResultIsNotFound(t *testing.T) {
	h := newHarness(newFakeGateway(models.SourceAirbnb), nil)

	resp, err := h.orch.Resolve(context.Background(), "Dehradun", models.SourceAirbnb)
	if !errors.Is(err, services.ErrNoListings) {
		t.Fatalf("err = %v, want ErrNoListings", err)
	}
	var acqErr *services.AcquisitionError
	if errors.As(err, &acqErr) {
		t.Error("zero results must not be reported as acquisition failure")
	}
	if resp.Data == nil || len(resp.Data) != 0 {
		t.Errorf("data = %#v, want empty", resp.Data)
	}
}

func TestResolve_AcquisitionFailure(t *testing.T) {
	gw := newFakeGateway(models.SourceAirbnb)
	gw.err = errors.New("navigation timeout")
	h := newHarness(gw, nil)

	_, err := h.orch.Resolve(context.Background(), "Dehradun", models.SourceAirbnb)
	var acqErr *services.AcquisitionError
	if !errors.As(err, &acqErr) {
		t.Fatalf("err = %v, want AcquisitionError", err)
	}
	if acqErr.Kind != models.SourceAirbnb || acqErr.City != "Dehradun" {
		t.Errorf("acqErr = %+v", acqErr)
	}
}

func TestResolve_SyncFetchSurvivesCallerCancel(t *testing.T) {
	gw := newFakeGateway(models.SourceAirbnb, dehradunItems()...)
	gw.release = make(chan struct{})
	gw.started = make(chan struct{}, 1)
	h := newHarness(gw, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := h.orch.Resolve(ctx, "Dehradun", models.SourceAirbnb)
		done <- err
	}()
	<-gw.started
	cancel()
	close(gw.release)

	if err := <-done; err != nil {
		t.Fatalf("Resolve err = %v", err)
	}
	if h.store.Count() != 3 {
		t.Errorf("stored %d listings, want 3", h.store.Count())
	}
}

func TestResolve_AllItemsSkipped(t *testing.T) {
	gw := newFakeGateway(models.SourceAirbnb, models.RawItem{"title": "Nowhere"})
	h := newHarness(gw, nil)

	resp, err := h.orch.Resolve(context.Background(), "Atlantis", models.SourceAirbnb)
	if !errors.Is(err, services.ErrNoListings) {
		t.Fatalf("err = %v", err)
	}
	if resp.SaveSummary == nil || len(resp.SaveSummary.Skipped) != 1 ||
		resp.SaveSummary.Skipped[0].Reason != models.SkipMissingLocation {
		t.Errorf("summary = %+v", resp.SaveSummary)
	}
	if h.store.Count() != 0 {
		t.Errorf("store count = %d", h.store.Count())
	}
}

type failingStore struct {
	*storage.MemoryListingStore
}

func (failingStore) UpsertListings(context.Context, []*models.Listing, time.Time) storage.UpsertResult {
	return storage.UpsertResult{Err: errors.New("write concern timeout")}
}

func TestResolve_MergeWroteNothingIsInternalError(t *testing.T) {
	logger := quietLogger()
	store := failingStore{storage.NewMemoryListingStore(time.Hour)}
	merger := services.NewMerger(store, services.NewNormalizer(logger, nil), logger)
	orch := services.NewOrchestrator(store, newFakeGateway(models.SourceAirbnb, dehradunItems()...), merger,
		services.NewTaskRunner(time.Second, logger),
		services.OrchestratorConfig{TTL: time.Hour, FetchTimeout: time.Second}, logger)

	_, err := orch.Resolve(context.Background(), "Dehradun", models.SourceAirbnb)
	var mergeErr *services.MergeError
	if !errors.As(err, &mergeErr) {
		t.Fatalf("err = %v, want MergeError", err)
	}
	if mergeErr.Summary.Error != "write concern timeout" {
		t.Errorf("summary = %+v", mergeErr.Summary)
	}
}

// seedStale stores listings last updated 7h ago, past the 6h ttl.
func seedStale(t *testing.T, h *harness, keys ...string) {
	t.Helper()
	var ls []*models.Listing
	for _, k := range keys {
		l := stay(k, nil)
		ls = append(ls, l)
	}
	res := h.store.UpsertListings(context.Background(), ls, time.Now().Add(-7*time.Hour))
	if res.Inserted != len(keys) {
		t.Fatalf("seed inserted %d", res.Inserted)
	}
}

func TestResolve_StaleServesCacheAndRefreshesInBackground(t *testing.T) {
	h := newHarness(newFakeGateway(models.SourceAirbnb, dehradunItems()...), nil)
	seedStale(t, h, "old-listing")

	resp, err := h.orch.Resolve(context.Background(), "Dehradun", models.SourceAirbnb)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Source != services.SourceCache || resp.Replaced || len(resp.Data) != 1 {
		t.Fatalf("resp = source %s replaced %v data %d", resp.Source, resp.Replaced, len(resp.Data))
	}

	if err := h.runner.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if h.gateway.Calls() != 1 {
		t.Errorf("gateway calls = %d", h.gateway.Calls())
	}
	// Background refresh merges without deleting.
	if h.store.Count() != 4 {
		t.Errorf("store count = %d, want 4", h.store.Count())
	}

	next, _ := h.orch.Resolve(context.Background(), "Dehradun", models.SourceAirbnb)
	if next.Source != services.SourceCache || len(next.Data) != 4 {
		t.Errorf("next resp = source %s data %d", next.Source, len(next.Data))
	}
}

func TestResolve_BackgroundFailureIsSwallowed(t *testing.T) {
	gw := newFakeGateway(models.SourceAirbnb)
	gw.err = errors.New("blocked by captcha")
	h := newHarness(gw, nil)
	seedStale(t, h, "old-listing")

	var taskErr error
	h.runner.OnDone = func(_, _ string, err error) { taskErr = err }

	resp, err := h.orch.Resolve(context.Background(), "Dehradun", models.SourceAirbnb)
	if err != nil {
		t.Fatalf("caller saw background error: %v", err)
	}
	if resp.Source != services.SourceCache {
		t.Errorf("source = %s", resp.Source)
	}
	_ = h.runner.Wait(context.Background())

	var acqErr *services.AcquisitionError
	if !errors.As(taskErr, &acqErr) {
		t.Errorf("task error = %v, want AcquisitionError observed by runner", taskErr)
	}
	if h.store.Count() != 1 {
		t.Errorf("store count = %d", h.store.Count())
	}
}

func TestResolve_CoalescesConcurrentBackgroundRefresh(t *testing.T) {
	gw := newFakeGateway(models.SourceAirbnb, dehradunItems()...)
	gw.release = make(chan struct{})
	gw.started = make(chan struct{}, 4)
	guard := services.NewMemoryGuard()
	h := newHarness(gw, guard)
	seedStale(t, h, "old-listing")

	for i := 0; i < 3; i++ {
		if _, err := h.orch.Resolve(context.Background(), "Dehradun", models.SourceAirbnb); err != nil {
			t.Fatal(err)
		}
	}
	<-gw.started
	close(gw.release)
	_ = h.runner.Wait(context.Background())

	if gw.Calls() != 1 {
		t.Errorf("gateway calls = %d, want 1", gw.Calls())
	}
	if ok, _ := guard.Acquire(context.Background(), "airbnb:dehradun"); !ok {
		t.Error("guard not released after refresh finished")
	}
}

func TestResolve_WithoutGuardEachStaleReadRefreshes(t *testing.T) {
	h := newHarness(newFakeGateway(models.SourceAirbnb), nil)
	seedStale(t, h, "old-listing")

	for i := 0; i < 2; i++ {
		if _, err := h.orch.Resolve(context.Background(), "Dehradun", models.SourceAirbnb); err != nil {
			t.Fatal(err)
		}
	}
	_ = h.runner.Wait(context.Background())
	if h.gateway.Calls() != 2 {
		t.Errorf("gateway calls = %d, want 2", h.gateway.Calls())
	}
}

func TestRefresh_ZeroItemsIsEmptySuccess(t *testing.T) {
	h := newHarness(newFakeGateway(models.SourceAirbnb), nil)
	summary, err := h.orch.Refresh(context.Background(), "Dehradun", models.SourceAirbnb)
	if err != nil || summary.Processed != 0 {
		t.Errorf("Refresh = %+v, %v", summary, err)
	}
}

func TestRefreshKey(t *testing.T) {
	if got := services.RefreshKey(models.SourceAirbnb, " Dehradun "); got != "airbnb:dehradun" {
		t.Errorf("RefreshKey = %q", got)
	}
}
