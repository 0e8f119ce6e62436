package services

import (
	"context"
	"fmt"
	"time"

	"stays-service/models"
	"stays-service/storage"
	"stays-service/utils"
)

// Merger applies normalized batches to the listing store
type Merger struct {
	store      storage.ListingStore
	normalizer *Normalizer
	logger     *utils.Logger
	now        func() time.Time
}

// NewMerger creates a Merger over store
func NewMerger(store storage.ListingStore, normalizer *Normalizer, logger *utils.Logger) *Merger {
	return &Merger{store: store, normalizer: normalizer, logger: logger, now: time.Now}
}

// Merge upserts listings as one unordered batch. Store errors are reported
// in the summary, never returned.
func (m *Merger) Merge(ctx context.Context, listings []*models.Listing) models.MergeSummary {
	summary := models.MergeSummary{Skipped: []models.Skipped{}}
	if len(listings) == 0 {
		return summary
	}

	res := m.store.UpsertListings(ctx, listings, m.now().UTC())
	summary.Processed = len(listings)
	summary.Upserted = res.Inserted
	summary.Modified = res.Modified
	summary.Failed = res.Failed
	if res.Err != nil {
		summary.Error = res.Err.Error()
		m.logger.Error("Merge batch error after %d/%d writes: %v", summary.Written(), len(listings), res.Err)
	}
	if len(res.Failed) > 0 {
		m.logger.Warn("Merge: %d of %d listings failed", len(res.Failed), len(listings))
	}
	m.logger.Info("Merge: processed=%d upserted=%d modified=%d failed=%d",
		summary.Processed, summary.Upserted, summary.Modified, len(summary.Failed))
	return summary
}

// MergeRaw normalizes then merges. An unknown kind fails before any write.
func (m *Merger) MergeRaw(ctx context.Context, kind models.SourceKind, items []models.RawItem, nctx NormalizeContext) (models.MergeSummary, error) {
	batch, err := m.normalizer.NormalizeBatch(ctx, kind, items, nctx)
	if err != nil {
		return models.MergeSummary{}, fmt.Errorf("normalize %s batch: %w", kind, err)
	}
	summary := m.Merge(ctx, batch.Listings)
	summary.Skipped = append(summary.Skipped, batch.Skipped...)
	for _, s := range batch.Skipped {
		m.logger.Debug("Skipped %s item: %s %s", kind, s.Reason, s.Error)
	}
	return summary, nil
}
