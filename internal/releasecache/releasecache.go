// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

// Package releasecache keeps each artist's release list, keyed by the
// normalized artist name, with a refresh interval.
//
// Lookups are served from an in-process LRU, then from BadgerDB. A miss or
// a stale entry triggers one upstream fetch per artist (concurrent callers
// share it). When that fetch fails and a stale entry exists, the stale
// entry is returned and the failure is logged rather than surfaced.
package releasecache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/cruisecontrol/internal/cache"
	"github.com/tomtom215/cruisecontrol/internal/kvstore"
	"github.com/tomtom215/cruisecontrol/internal/logging"
	"github.com/tomtom215/cruisecontrol/internal/metrics"
	"github.com/tomtom215/cruisecontrol/internal/models"
)

const keyPrefix = "release:"

// Fetcher looks up an artist's releases at the metadata source.
type Fetcher interface {
	ArtistReleases(ctx context.Context, artist string) ([]models.ReleaseCandidate, error)
}

// Result is the outcome of a GetOrRefresh call.
type Result struct {
	Entry *models.ReleaseCacheEntry
	// Stale is set when a refresh failed and the previous entry was served.
	Stale bool
	// Fetched is set when the entry came from the metadata source on this call.
	Fetched bool
}

// MissError is returned when an artist has no cached entry and the fetch
// failed. Err keeps the fetch failure for classification.
type MissError struct {
	Artist string
	Err    error
}

func (e *MissError) Error() string {
	return fmt.Sprintf("release cache miss for %q: %v", e.Artist, e.Err)
}

func (e *MissError) Unwrap() error {
	return e.Err
}

// RefreshReport summarizes ScheduledRefresh.
type RefreshReport struct {
	Artists   int           `json:"artists"`
	Refreshed int           `json:"refreshed"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration_ns"`
}

// Config tunes the cache.
type Config struct {
	MaxAge      time.Duration
	Concurrency int
	// HotEntries bounds the in-process LRU. Default 2048.
	HotEntries int
}

// Cache is the release cache. Safe for concurrent use.
type Cache struct {
	store   *kvstore.Store
	fetcher Fetcher
	hot     *cache.LRU[*models.ReleaseCacheEntry]
	group   singleflight.Group

	maxAge      time.Duration
	concurrency int
	now         func() time.Time

	// generation increments on ForceRefreshAll so in-flight fetches
	// started before the drop do not repopulate the cache.
	generation atomic.Int64
}

// New creates a cache backed by store that refreshes through fetcher.
func New(store *kvstore.Store, fetcher Fetcher, cfg Config) *Cache {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 7 * 24 * time.Hour
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.HotEntries <= 0 {
		cfg.HotEntries = 2048
	}
	return &Cache{
		store:       store,
		fetcher:     fetcher,
		hot:         cache.NewLRU[*models.ReleaseCacheEntry](cfg.HotEntries, cfg.MaxAge),
		maxAge:      cfg.MaxAge,
		concurrency: cfg.Concurrency,
		now:         time.Now,
	}
}

// Key returns the cache key for artist.
func Key(artist string) string {
	return models.NormalizeName(artist)
}

// GetOrRefresh returns the artist's releases, fetching when the entry is
// missing or older than the refresh interval.
func (c *Cache) GetOrRefresh(ctx context.Context, artist string) (Result, error) {
	key := Key(artist)
	if key == "" {
		return Result{}, fmt.Errorf("release cache: empty artist name")
	}

	cached, err := c.load(key)
	if err != nil {
		logging.Warn().Err(err).Str("artist", artist).Msg("Release cache read failed, fetching")
	}
	if cached != nil && !cached.Stale(c.now(), c.maxAge) {
		metrics.ReleaseCacheLookups.WithLabelValues("hit").Inc()
		return Result{Entry: cached}, nil
	}

	fresh, err := c.refresh(ctx, key, artist)
	if err == nil {
		metrics.ReleaseCacheLookups.WithLabelValues("miss").Inc()
		return Result{Entry: fresh, Fetched: true}, nil
	}

	if cached != nil {
		metrics.ReleaseCacheLookups.WithLabelValues("stale").Inc()
		logging.Warn().
			Err(err).
			Str("artist", artist).
			Time("fetched_at", cached.FetchedAt).
			Dur("age", c.now().Sub(cached.FetchedAt)).
			Msg("Release refresh failed, serving stale entry")
		return Result{Entry: cached, Stale: true}, nil
	}

	metrics.ReleaseCacheLookups.WithLabelValues("error").Inc()
	return Result{}, &MissError{Artist: artist, Err: err}
}

// Peek returns the cached entry without fetching, or nil.
func (c *Cache) Peek(artist string) *models.ReleaseCacheEntry {
	entry, err := c.load(Key(artist))
	if err != nil {
		return nil
	}
	return entry
}

func (c *Cache) load(key string) (*models.ReleaseCacheEntry, error) {
	if entry, ok := c.hot.Get(key); ok {
		return entry, nil
	}
	var entry models.ReleaseCacheEntry
	if err := c.store.GetJSON(keyPrefix+key, &entry); err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	c.hot.Add(key, &entry)
	return &entry, nil
}

// refresh fetches artist from the source, sharing the call across
// concurrent callers for the same key.
func (c *Cache) refresh(ctx context.Context, key, artist string) (*models.ReleaseCacheEntry, error) {
	gen := c.generation.Load()
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		releases, err := c.fetcher.ArtistReleases(ctx, artist)
		if err != nil {
			return nil, fmt.Errorf("fetch releases for %q: %w", artist, err)
		}
		entry := &models.ReleaseCacheEntry{
			Artist:    artist,
			Releases:  releases,
			FetchedAt: c.now(),
		}
		if c.generation.Load() != gen {
			return entry, nil
		}
		if err := c.store.SetJSON(keyPrefix+key, entry, 0); err != nil {
			logging.Warn().Err(err).Str("artist", artist).Msg("Failed to persist release cache entry")
		}
		c.hot.Add(key, entry)
		return entry, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.ReleaseCacheEntry), nil
}

// ForceRefreshAll drops every entry so the next access is a cold fetch.
func (c *Cache) ForceRefreshAll() error {
	c.generation.Add(1)
	c.hot.Clear()
	if err := c.store.DropPrefix(keyPrefix); err != nil {
		return err
	}
	metrics.ReleaseCacheEntries.Set(0)
	logging.Info().Msg("Release cache cleared")
	return nil
}

// Artists returns the keys of every tracked artist.
func (c *Cache) Artists() ([]string, error) {
	return c.store.Keys(keyPrefix)
}

// ScheduledRefresh re-fetches every tracked artist with bounded concurrency.
// Per-artist failures keep the old entry and are counted, not returned.
func (c *Cache) ScheduledRefresh(ctx context.Context) (RefreshReport, error) {
	start := c.now()
	keys, err := c.Artists()
	if err != nil {
		return RefreshReport{}, err
	}

	var refreshed, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for _, key := range keys {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			artist := key
			if entry, _ := c.load(key); entry != nil && entry.Artist != "" {
				artist = entry.Artist
			}
			if _, err := c.refresh(gctx, key, artist); err != nil {
				failed.Add(1)
				logging.Debug().Err(err).Str("artist", artist).Msg("Scheduled refresh failed for artist")
				return nil
			}
			refreshed.Add(1)
			return nil
		})
	}
	err = g.Wait()

	report := RefreshReport{
		Artists:   len(keys),
		Refreshed: int(refreshed.Load()),
		Failed:    int(failed.Load()),
		Duration:  c.now().Sub(start),
	}
	metrics.ReleaseCacheRefreshDuration.Observe(report.Duration.Seconds())
	metrics.ReleaseCacheEntries.Set(float64(len(keys)))

	logging.Info().
		Int("artists", report.Artists).
		Int("refreshed", report.Refreshed).
		Int("failed", report.Failed).
		Dur("duration", report.Duration).
		Msg("Release cache refresh completed")
	return report, err
}
