package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stays-service/models"
	"stays-service/storage"
	"stays-service/utils"
)

// Response source values.
const (
	SourceCache    = "cache"
	SourceScrapper = "scrapper"
	SourceAPI      = "api"
)

var (
	// ErrMissingCity is an input error: the query has no city.
	ErrMissingCity = errors.New("city query param required")
	// ErrNoListings means acquisition succeeded but nothing could be served.
	ErrNoListings = errors.New("no listings found")
)

// AcquisitionError wraps a failed or timed-out fetch.
type AcquisitionError struct {
	Kind models.SourceKind
	City string
	Err  error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquisition from %s for %q failed: %v", e.Kind, e.City, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// MergeError is returned when a synchronous merge wrote nothing and the
// store reported a batch error.
type MergeError struct {
	Summary models.MergeSummary
}

func (e *MergeError) Error() string {
	return "merge failed: " + e.Summary.Error
}

// Acquirer is the acquisition gateway as seen by the orchestrator.
type Acquirer interface {
	Supports(kind models.SourceKind) bool
	Fetch(ctx context.Context, city string, kind models.SourceKind) ([]models.RawItem, error)
}

// RawSink receives acquired items before normalization.
type RawSink interface {
	WriteRawItems(kind models.SourceKind, city string, items []models.RawItem) error
}

// StayResponse is what Resolve hands back to the caller. Data is set on
// errors too, carrying whatever was already stored.
type StayResponse struct {
	Source      string               `json:"source"`
	Data        []*models.Listing    `json:"data"`
	Replaced    bool                 `json:"replaced"`
	SaveSummary *models.MergeSummary `json:"saveSummary,omitempty"`
}

// OrchestratorConfig holds the tunables of an Orchestrator.
type OrchestratorConfig struct {
	TTL             time.Duration
	FetchTimeout    time.Duration
	DefaultCurrency string
	Geocode         GeocodeFunc
	// Guard coalesces background refreshes per source and city. Nil disables coalescing.
	Guard RefreshGuard
	Sink  RawSink
}

// Orchestrator decides per query whether to serve stored listings, fetch
// synchronously, or serve and refresh in the background.
type Orchestrator struct {
	store   storage.ListingStore
	gateway Acquirer
	merger  *Merger
	runner  *TaskRunner
	cfg     OrchestratorConfig
	logger  *utils.Logger
	now     func() time.Time
}

// NewOrchestrator wires the refresh pipeline
func NewOrchestrator(store storage.ListingStore, gateway Acquirer, merger *Merger, runner *TaskRunner, cfg OrchestratorConfig, logger *utils.Logger) *Orchestrator {
	return &Orchestrator{
		store:   store,
		gateway: gateway,
		merger:  merger,
		runner:  runner,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Resolve answers a lodging query for city from source kind.
func (o *Orchestrator) Resolve(ctx context.Context, city string, kind models.SourceKind) (StayResponse, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return StayResponse{}, ErrMissingCity
	}
	if !KnownSource(kind) || !o.gateway.Supports(kind) {
		return StayResponse{}, fmt.Errorf("%w: %q", ErrUnknownSource, kind)
	}

	q := storage.ListingQuery{City: city, Source: kind}
	existing, err := o.store.FindListings(ctx, q)
	if err != nil {
		return StayResponse{}, fmt.Errorf("read %s listings for %q: %w", kind, city, err)
	}

	verdict := EvaluateListings(existing, o.now(), o.cfg.TTL)
	o.logger.Debug("Resolve %s %q: %d stored, verdict=%s", kind, city, len(existing), verdict)

	switch verdict {
	case Fresh:
		return cached(existing), nil
	case StaleBackgroundRefresh:
		o.refreshInBackground(city, kind)
		return cached(existing), nil
	default:
		return o.fetchNow(ctx, q, existing)
	}
}

func cached(existing []*models.Listing) StayResponse {
	return StayResponse{Source: SourceCache, Data: existing, Replaced: false}
}

// fetchNow acquires synchronously. The fetch is detached from ctx
// cancellation so an abandoned request still completes the cycle.
func (o *Orchestrator) fetchNow(ctx context.Context, q storage.ListingQuery, existing []*models.Listing) (StayResponse, error) {
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.FetchTimeout)
	defer cancel()

	fallback := cached(existing)
	if fallback.Data == nil {
		fallback.Data = []*models.Listing{}
	}

	items, err := o.gateway.Fetch(fetchCtx, q.City, q.Source)
	if err != nil {
		o.logger.Warn("Acquisition failed for %s %q: %v", q.Source, q.City, err)
		return fallback, &AcquisitionError{Kind: q.Source, City: q.City, Err: err}
	}
	if len(items) == 0 {
		o.logger.Info("Acquisition for %s %q returned no items", q.Source, q.City)
		return fallback, ErrNoListings
	}
	o.sinkRaw(q.Source, q.City, items)

	deleted, err := o.store.DeleteListings(fetchCtx, q)
	if err != nil {
		o.logger.Warn("Could not clear previous %s listings for %q: %v", q.Source, q.City, err)
	} else if deleted > 0 {
		o.logger.Info("Replacing %d previous %s listings for %q", deleted, q.Source, q.City)
	}

	summary, err := o.merger.MergeRaw(fetchCtx, q.Source, items, o.normalizeContext(q.City))
	if err != nil {
		return fallback, err
	}
	if summary.Written() == 0 && summary.Error != "" {
		return fallback, &MergeError{Summary: summary}
	}

	fresh, err := o.store.FindListings(fetchCtx, q)
	if err != nil {
		return fallback, fmt.Errorf("re-read %s listings for %q: %w", q.Source, q.City, err)
	}
	if len(fresh) == 0 {
		resp := fallback
		resp.SaveSummary = &summary
		return resp, ErrNoListings
	}
	return StayResponse{Source: SourceScrapper, Data: fresh, Replaced: true, SaveSummary: &summary}, nil
}

// Refresh runs one fetch-normalize-merge cycle without clearing the scope.
// Zero fetched items is a successful empty refresh.
func (o *Orchestrator) Refresh(ctx context.Context, city string, kind models.SourceKind) (models.MergeSummary, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return models.MergeSummary{}, ErrMissingCity
	}
	items, err := o.gateway.Fetch(ctx, city, kind)
	if err != nil {
		return models.MergeSummary{}, &AcquisitionError{Kind: kind, City: city, Err: err}
	}
	if len(items) == 0 {
		o.logger.Info("Refresh %s %q: source returned no items", kind, city)
		return models.MergeSummary{Skipped: []models.Skipped{}}, nil
	}
	o.sinkRaw(kind, city, items)

	summary, err := o.merger.MergeRaw(ctx, kind, items, o.normalizeContext(city))
	if err != nil {
		return summary, err
	}
	if summary.Written() == 0 && summary.Error != "" {
		return summary, &MergeError{Summary: summary}
	}
	return summary, nil
}

// refreshInBackground hands a Refresh to the task runner. With a guard,
// a key already in flight is not refreshed again.
func (o *Orchestrator) refreshInBackground(city string, kind models.SourceKind) {
	key := RefreshKey(kind, city)
	guarded := false
	if o.cfg.Guard != nil {
		ok, err := o.cfg.Guard.Acquire(context.Background(), key)
		switch {
		case err != nil:
			o.logger.Warn("Refresh guard unavailable for %s: %v", key, err)
		case !ok:
			o.logger.Debug("Background refresh for %s already in flight", key)
			return
		default:
			guarded = true
		}
	}

	id := o.runner.Go("refresh "+key, func(ctx context.Context) error {
		if guarded {
			defer func() {
				if err := o.cfg.Guard.Release(context.Background(), key); err != nil {
					o.logger.Warn("Release refresh guard %s: %v", key, err)
				}
			}()
		}
		_, err := o.Refresh(ctx, city, kind)
		return err
	})
	o.logger.Info("Stale %s listings for %q, background refresh %s started", kind, city, id)
}

func (o *Orchestrator) normalizeContext(city string) NormalizeContext {
	return NormalizeContext{
		City:            city,
		DefaultCurrency: o.cfg.DefaultCurrency,
		Geocode:         o.cfg.Geocode,
	}
}

func (o *Orchestrator) sinkRaw(kind models.SourceKind, city string, items []models.RawItem) {
	if o.cfg.Sink == nil {
		return
	}
	if err := o.cfg.Sink.WriteRawItems(kind, city, items); err != nil {
		o.logger.Error("Failed to write raw items: %v", err)
	}
}

// RefreshKey identifies one (source, city) refresh scope.
func RefreshKey(kind models.SourceKind, city string) string {
	return string(kind) + ":" + strings.ToLower(strings.TrimSpace(city))
}
