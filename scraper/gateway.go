// Package scraper holds the acquisition gateway and its per-site sources.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"stays-service/models"
	"stays-service/utils"
)

// ErrUnknownSource is returned by Fetch for a kind with no registered source.
var ErrUnknownSource = errors.New("no scraper registered for source")

// Source fetches raw listings for a city from one site.
// An empty result with a nil error means the site had nothing.
type Source interface {
	Kind() models.SourceKind
	Fetch(ctx context.Context, city string) ([]models.RawItem, error)
}

// Gateway dispatches fetches to registered sources with a bounded timeout
// and retry.
type Gateway struct {
	sources    map[models.SourceKind]Source
	timeout    time.Duration
	maxRetries int
	retryBase  time.Duration
	logger     *utils.Logger
}

// NewGateway creates a Gateway over sources; a later source for the same kind wins.
func NewGateway(timeout time.Duration, maxRetries int, retryBase time.Duration, logger *utils.Logger, sources ...Source) *Gateway {
	g := &Gateway{
		sources:    make(map[models.SourceKind]Source, len(sources)),
		timeout:    timeout,
		maxRetries: maxRetries,
		retryBase:  retryBase,
		logger:     logger,
	}
	for _, s := range sources {
		g.sources[s.Kind()] = s
	}
	return g
}

// Supports reports whether a source is registered for kind
func (g *Gateway) Supports(kind models.SourceKind) bool {
	_, ok := g.sources[kind]
	return ok
}

// Kinds lists registered source kinds in sorted order
func (g *Gateway) Kinds() []models.SourceKind {
	out := make([]models.SourceKind, 0, len(g.sources))
	for k := range g.sources {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Fetch runs the kind's source for city. The whole call, retries included,
// is bounded by the gateway timeout.
func (g *Gateway) Fetch(ctx context.Context, city string, kind models.SourceKind) ([]models.RawItem, error) {
	src, ok := g.sources[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, kind)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	g.logger.Info("Fetching %s listings for %q...", kind, city)

	var items []models.RawItem
	err := utils.RetryWithBackoff(ctx, g.maxRetries, g.retryBase, func(ctx context.Context) error {
		got, err := src.Fetch(ctx, city)
		if err != nil {
			return err
		}
		items = got
		return nil
	}, g.logger)
	if err != nil {
		return nil, fmt.Errorf("fetch %s for %q: %w", kind, city, err)
	}

	g.logger.Info("Fetched %d raw %s items for %q in %v", len(items), kind, city, time.Since(start).Round(time.Millisecond))
	if items == nil {
		items = []models.RawItem{}
	}
	return items, nil
}
