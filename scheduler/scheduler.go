// Package scheduler wires up the cron jobs that periodically refresh the
// configured cities and purge expired records.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"stays-service/models"
	"stays-service/storage"
	"stays-service/utils"

	"github.com/robfig/cron/v3"
)

// ListingRefresher runs one acquisition cycle for a city and source.
type ListingRefresher interface {
	Refresh(ctx context.Context, city string, kind models.SourceKind) (models.MergeSummary, error)
}

// WeatherRefresher replaces the stored forecast of a city.
type WeatherRefresher interface {
	Refresh(ctx context.Context, city string) (*models.WeatherSnapshot, error)
}

// Options selects what the scheduler runs. Zero-valued parts are skipped.
type Options struct {
	Cities      []string
	Kinds       []models.SourceKind
	Listings    ListingRefresher
	Weather     WeatherRefresher
	RefreshSpec string // cron spec, e.g. "@every 6h"

	Purgers   []storage.Purger
	PurgeSpec string
}

// Scheduler wraps robfig/cron and manages the refresh loop.
type Scheduler struct {
	cron   *cron.Cron
	opts   Options
	logger *utils.Logger
	now    func() time.Time
}

// New creates a Scheduler. Overlapping runs of the same job are skipped.
func New(opts Options, logger *utils.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		opts:   opts,
		logger: logger.Named("scheduler"),
		now:    time.Now,
	}
}

// Start registers the jobs and starts the cron loop. A refresh cycle also
// runs immediately so configured cities are warm without waiting a tick.
func (s *Scheduler) Start(ctx context.Context) error {
	refresh := len(s.opts.Cities) > 0 && (s.opts.Listings != nil || s.opts.Weather != nil)
	if refresh {
		if _, err := s.cron.AddFunc(s.opts.RefreshSpec, func() { s.RunRefresh(ctx) }); err != nil {
			return fmt.Errorf("cron.AddFunc(%q): %w", s.opts.RefreshSpec, err)
		}
	}
	if len(s.opts.Purgers) > 0 {
		if _, err := s.cron.AddFunc(s.opts.PurgeSpec, func() { s.RunPurge(ctx) }); err != nil {
			return fmt.Errorf("cron.AddFunc(%q): %w", s.opts.PurgeSpec, err)
		}
	}

	s.cron.Start()
	s.logger.Info("Cron started (refresh=%q for %d cities, purge=%q)", s.opts.RefreshSpec, len(s.opts.Cities), s.opts.PurgeSpec)

	if refresh {
		go s.RunRefresh(ctx)
	}
	return nil
}

// Stop halts the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Cron stopped")
}

// RunRefresh refreshes every configured city from every source, then its weather.
// Failures are logged and do not stop the cycle.
func (s *Scheduler) RunRefresh(ctx context.Context) {
	s.logger.Info("Refresh cycle started")
	for _, city := range s.opts.Cities {
		if ctx.Err() != nil {
			s.logger.Warn("Refresh cycle cancelled: %v", ctx.Err())
			return
		}
		if s.opts.Listings != nil {
			for _, kind := range s.opts.Kinds {
				summary, err := s.opts.Listings.Refresh(ctx, city, kind)
				if err != nil {
					s.logger.Warn("Refresh %s %q failed: %v", kind, city, err)
					continue
				}
				s.logger.Info("Refreshed %s %q: %d upserted, %d modified, %d skipped",
					kind, city, summary.Upserted, summary.Modified, len(summary.Skipped))
			}
		}
		if s.opts.Weather != nil {
			if _, err := s.opts.Weather.Refresh(ctx, city); err != nil {
				s.logger.Warn("Weather refresh %q failed: %v", city, err)
			}
		}
	}
	s.logger.Info("Refresh cycle complete")
}

// RunPurge removes records past their retention window from each purger.
func (s *Scheduler) RunPurge(ctx context.Context) {
	now := s.now()
	for _, p := range s.opts.Purgers {
		n, err := p.PurgeExpired(ctx, now)
		if err != nil {
			s.logger.Warn("Purge failed: %v", err)
			continue
		}
		if n > 0 {
			s.logger.Info("Purged %d expired records", n)
		}
	}
}
