package services_test

import (
	"context"
	"io"
	"sync"
	"time"

	"stays-service/models"
	"stays-service/services"
	"stays-service/storage"
	"stays-service/utils"
)

func quietLogger() *utils.Logger {
	return utils.NewLoggerWithOutput(io.Discard, io.Discard)
}

func ptr(f float64) *float64 { return &f }

// fakeGateway serves canned items per kind and counts fetches.
type fakeGateway struct {
	mu      sync.Mutex
	items   map[models.SourceKind][]models.RawItem
	err     error
	calls   int
	release chan struct{} // when set, Fetch blocks until closed
	started chan struct{} // receives once per Fetch when set
}

func newFakeGateway(kind models.SourceKind, items ...models.RawItem) *fakeGateway {
	return &fakeGateway{items: map[models.SourceKind][]models.RawItem{kind: items}}
}

func (g *fakeGateway) Supports(kind models.SourceKind) bool {
	_, ok := g.items[kind]
	return ok
}

func (g *fakeGateway) Fetch(ctx context.Context, city string, kind models.SourceKind) ([]models.RawItem, error) {
	g.mu.Lock()
	g.calls++
	err := g.err
	items := g.items[kind]
	release, started := g.release, g.started
	g.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (g *fakeGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func dehradunItems() []models.RawItem {
	return []models.RawItem{
		{"title": "Cottage in Rajpur", "link": "https://www.airbnb.co.in/rooms/1", "price": "₹2,499 night", "rating": "4.8", "images": []any{"a.jpg"}},
		{"title": "Doon Valley Villa", "link": "https://www.airbnb.co.in/rooms/2", "price": "₹7,100", "rating": "4,6"},
		{"name": "Hilltop Studio", "location": map[string]any{"lat": 30.35, "lon": 78.06}, "price": 1800.0},
	}
}

type harness struct {
	store   *storage.MemoryListingStore
	gateway *fakeGateway
	runner  *services.TaskRunner
	orch    *services.Orchestrator
}

func newHarness(gw *fakeGateway, guard services.RefreshGuard) *harness {
	logger := quietLogger()
	store := storage.NewMemoryListingStore(24 * time.Hour)
	runner := services.NewTaskRunner(5*time.Second, logger)
	merger := services.NewMerger(store, services.NewNormalizer(logger, nil), logger)
	orch := services.NewOrchestrator(store, gw, merger, runner, services.OrchestratorConfig{
		TTL:             6 * time.Hour,
		FetchTimeout:    5 * time.Second,
		DefaultCurrency: "INR",
		Guard:           guard,
	}, logger)
	return &harness{store: store, gateway: gw, runner: runner, orch: orch}
}
