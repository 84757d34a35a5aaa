// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

/*
Package artwork resolves artist, album and track images.

Resolve never blocks on the network: a cached URL is returned immediately;
on a miss the lookup is queued for the background worker and the caller is
told the result is pending. Clients re-ask with Poller, which backs off
500ms, 1s, 2s, 4s and then gives up with ErrArtworkPending.

Results, including "no artwork", are cached in Badger under "artwork:" keys
for the configured TTL. Lookup errors are not cached.
*/
package artwork

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/cruisecontrol/internal/kvstore"
	"github.com/tomtom215/cruisecontrol/internal/logging"
	"github.com/tomtom215/cruisecontrol/internal/metrics"
	"github.com/tomtom215/cruisecontrol/internal/models"
)

const keyPrefix = "artwork:"

// Entity types.
const (
	TypeArtist = "artist"
	TypeAlbum  = "album"
	TypeTrack  = "track"
)

// ErrInvalidRequest is returned for an unknown type or a missing name.
var ErrInvalidRequest = errors.New("invalid artwork request")

// Lookup fetches an image URL from the artwork source. "" means none exists.
type Lookup interface {
	Artwork(ctx context.Context, entity, name, artist string) (string, error)
}

// Request identifies the entity to resolve.
type Request struct {
	Type   string `json:"type" validate:"required,oneof=artist album track"`
	Name   string `json:"name" validate:"required,max=512"`
	Artist string `json:"artist,omitempty" validate:"max=512"`
}

// Key returns the cache key for the request.
func (r Request) Key() string {
	if r.Type == TypeArtist {
		return keyPrefix + r.Type + ":" + models.NormalizeName(r.Name)
	}
	return keyPrefix + r.Type + ":" + models.NormalizeName(r.Artist) + "|" + models.NormalizeName(r.Name)
}

// Result is the answer to a resolve.
type Result struct {
	ImageURL string `json:"image_url"`
	Pending  bool   `json:"pending"`
}

type cachedArt struct {
	URL       string    `json:"url"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Resolver serves cached artwork and fetches misses in the background.
type Resolver struct {
	store  *kvstore.Store
	lookup Lookup
	ttl    time.Duration
	logger zerolog.Logger

	queue    chan Request
	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewResolver creates a resolver. queueSize bounds the pending lookups;
// requests beyond it stay pending and are retried by the client.
func NewResolver(store *kvstore.Store, lookup Lookup, ttl time.Duration, queueSize int) *Resolver {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Resolver{
		store:    store,
		lookup:   lookup,
		ttl:      ttl,
		logger:   logging.WithComponent("artwork"),
		queue:    make(chan Request, queueSize),
		inflight: make(map[string]struct{}),
	}
}

func normalizeRequest(req Request) (Request, error) {
	req.Type = strings.ToLower(strings.TrimSpace(req.Type))
	req.Name = strings.TrimSpace(req.Name)
	req.Artist = strings.TrimSpace(req.Artist)
	switch req.Type {
	case TypeArtist, TypeAlbum, TypeTrack:
	default:
		return req, fmt.Errorf("%w: unknown type %q", ErrInvalidRequest, req.Type)
	}
	if req.Name == "" {
		return req, fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}
	return req, nil
}

// Resolve returns the cached URL, or Pending after queueing a fetch.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Result, error) {
	req, err := normalizeRequest(req)
	if err != nil {
		return Result{}, err
	}
	key := req.Key()

	var cached cachedArt
	err = r.store.GetJSON(key, &cached)
	switch {
	case err == nil:
		if cached.URL == "" {
			metrics.ArtworkResolves.WithLabelValues("miss").Inc()
		} else {
			metrics.ArtworkResolves.WithLabelValues("hit").Inc()
		}
		return Result{ImageURL: cached.URL}, nil
	case !errors.Is(err, kvstore.ErrNotFound):
		return Result{}, fmt.Errorf("read artwork cache: %w", err)
	}

	metrics.ArtworkResolves.WithLabelValues("pending").Inc()
	r.enqueue(key, req)
	return Result{Pending: true}, nil
}

// enqueue schedules a fetch unless one is already in flight for key.
func (r *Resolver) enqueue(key string, req Request) {
	r.mu.Lock()
	if _, ok := r.inflight[key]; ok {
		r.mu.Unlock()
		return
	}
	r.inflight[key] = struct{}{}
	r.mu.Unlock()

	select {
	case r.queue <- req:
	default:
		r.done(key)
		r.logger.Debug().Str("key", key).Msg("Artwork queue full, request left pending")
	}
}

func (r *Resolver) done(key string) {
	r.mu.Lock()
	delete(r.inflight, key)
	r.mu.Unlock()
}

// fetch performs one lookup and caches the outcome.
func (r *Resolver) fetch(ctx context.Context, req Request) {
	key := req.Key()
	defer r.done(key)

	url, err := r.lookup.Artwork(ctx, req.Type, req.Name, req.Artist)
	if err != nil {
		r.logger.Debug().Err(err).Str("type", req.Type).Str("name", req.Name).Msg("Artwork lookup failed")
		return
	}
	if err := r.store.SetJSON(key, cachedArt{URL: url, FetchedAt: time.Now().UTC()}, r.ttl); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("Failed to cache artwork")
	}
}

// Serve runs the background fetch worker. It implements suture.Service.
func (r *Resolver) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-r.queue:
			r.fetch(ctx, req)
		}
	}
}

// String names the service in supervisor logs.
func (r *Resolver) String() string {
	return "artwork-resolver"
}
