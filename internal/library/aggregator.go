// Package library assembles a user's saved tracks from the paginated Spotify API and
// derives top artist and album statistics from them, caching each result per session.
package library

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/melophiliacs/internal/metrics"
	"github.com/desertthunder/melophiliacs/internal/models"
	"github.com/desertthunder/melophiliacs/internal/services"
	"github.com/desertthunder/melophiliacs/internal/session"
	"github.com/desertthunder/melophiliacs/internal/shared"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultPageSize    = 50
	DefaultMaxItems    = 3000
	DefaultConcurrency = 8
	DefaultTopN        = 50
	DefaultTTL         = time.Hour
)

// Aggregator fetches and caches saved items and the statistics derived from them.
type Aggregator struct {
	client  services.Library
	cache   *Cache
	cfg     shared.LibraryConfig
	logger  *log.Logger
	metrics *metrics.Metrics
	flight  singleflight.Group
}

// NewAggregator creates an Aggregator. Zero values in cfg fall back to the package defaults.
func NewAggregator(client services.Library, cache *Cache, cfg shared.LibraryConfig, logger *log.Logger, m *metrics.Metrics) *Aggregator {
	if cfg.PageSize <= 0 || cfg.PageSize > services.MaxPageSize {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = DefaultMaxItems
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.SavedItemsTTL <= 0 {
		cfg.SavedItemsTTL = DefaultTTL
	}
	if cfg.StatsTTL <= 0 {
		cfg.StatsTTL = DefaultTTL
	}
	if cfg.TopArtists <= 0 {
		cfg.TopArtists = DefaultTopN
	}
	if cfg.TopAlbums <= 0 {
		cfg.TopAlbums = DefaultTopN
	}
	if logger == nil {
		logger = log.Default()
	}

	return &Aggregator{
		client:  client,
		cache:   cache,
		cfg:     cfg,
		logger:  logger.With("component", "library"),
		metrics: m,
	}
}

// Cache returns the cache the aggregator reads and writes.
func (a *Aggregator) Cache() *Cache {
	return a.cache
}

// SavedItems returns the session's saved items, at most MaxItems of them in library order.
//
// Cached items are returned without contacting Spotify. On a miss every page is fetched before
// anything is cached, and a failed page fails the whole call. Concurrent misses for the same
// session share one fetch, which runs to completion even if the caller that started it is cancelled.
func (a *Aggregator) SavedItems(ctx context.Context, sess *session.Session) ([]models.SavedItem, error) {
	if items, found, err := a.cache.SavedItems(ctx, sess.Token); err != nil {
		return nil, err
	} else if found {
		return items, nil
	}

	v, err, joined := a.flight.Do(SlotKey(SlotSavedItems, sess.Token), func() (any, error) {
		// callers that joined must not fail because the first one went away
		ctx := context.WithoutCancel(ctx)
		items, err := a.fetchAll(ctx, sess.AccessToken)
		if err != nil {
			return nil, err
		}
		if err := a.cache.write(ctx, SlotSavedItems, sess.Token, items, a.cfg.SavedItemsTTL); err != nil {
			return nil, err
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	if joined {
		a.logger.Debug("joined in-flight saved items fetch", "session", session.Mask(sess.Token))
	}
	return v.([]models.SavedItem), nil
}

// fetchAll reads the first page to learn the total, then fetches the remaining offsets concurrently.
func (a *Aggregator) fetchAll(ctx context.Context, accessToken string) ([]models.SavedItem, error) {
	start := time.Now()
	size := a.cfg.PageSize

	first, err := a.client.SavedTracks(ctx, accessToken, size, 0)
	if err != nil {
		return nil, err
	}

	target := min(first.Total, a.cfg.MaxItems)
	if len(first.Items) >= target {
		a.metrics.PagesFetched(1)
		return truncate(first.Items, target), nil
	}

	var offsets []int
	for offset := len(first.Items); offset < target; offset += size {
		offsets = append(offsets, offset)
	}

	pages := make([][]models.SavedItem, len(offsets))
	var g errgroup.Group
	g.SetLimit(a.cfg.Concurrency)
	for i, offset := range offsets {
		g.Go(func() error {
			page, err := a.client.SavedTracks(ctx, accessToken, size, offset)
			if err != nil {
				return fmt.Errorf("saved tracks at offset %d: %w", offset, err)
			}
			pages[i] = page.Items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		a.logger.Error("saved items fetch failed", "total", first.Total, "pages", len(offsets)+1, "error", err)
		return nil, err
	}

	items := make([]models.SavedItem, 0, target)
	items = append(items, first.Items...)
	for _, page := range pages {
		items = append(items, page...)
	}
	items = truncate(items, target)

	a.metrics.PagesFetched(len(offsets) + 1)
	a.logger.Info("fetched saved items", "count", len(items), "total", first.Total, "pages", len(offsets)+1, "duration", time.Since(start))
	return items, nil
}

func truncate(items []models.SavedItem, n int) []models.SavedItem {
	if n < 0 {
		n = 0
	}
	if len(items) > n {
		items = items[:n]
	}
	if items == nil {
		items = []models.SavedItem{}
	}
	return items
}
