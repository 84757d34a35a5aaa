// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

// Package itunes resolves artwork URLs through the iTunes Search API.
// Calls are limited to the configured rate (1 req/s by default).
package itunes

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tomtom215/cruisecontrol/internal/config"
	"github.com/tomtom215/cruisecontrol/internal/models"
	"github.com/tomtom215/cruisecontrol/internal/providers"
)

// Entity types accepted by Artwork.
const (
	EntityArtist = "artist"
	EntityAlbum  = "album"
	EntityTrack  = "track"
)

// Client talks to itunes.apple.com.
type Client struct {
	http    *providers.Client
	country string
}

// New creates an iTunes client from configuration.
func New(cfg config.ITunesConfig) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		http: providers.NewClient(providers.Options{
			Name:              "itunes",
			BaseURL:           cfg.BaseURL,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: rps,
			Header:            http.Header{"User-Agent": []string{"CruiseControl/1.0 (music discovery)"}},
		}),
		country: cfg.Country,
	}
}

// Breaker exposes the client circuit breaker.
func (c *Client) Breaker() *providers.Breaker {
	return c.http.Breaker()
}

type searchResponse struct {
	ResultCount int `json:"resultCount"`
	Results     []struct {
		WrapperType   string `json:"wrapperType"`
		ArtistID      int64  `json:"artistId"`
		ArtistName    string `json:"artistName"`
		ArtworkURL100 string `json:"artworkUrl100"`
	} `json:"results"`
}

func (c *Client) get(ctx context.Context, path string, q url.Values) (*searchResponse, error) {
	if c.country != "" {
		q.Set("country", c.country)
	}
	var resp searchResponse
	if _, err := c.http.Do(ctx, providers.Request{Path: path, Query: q}, &resp); err != nil {
		return nil, fmt.Errorf("itunes %s: %w", path, err)
	}
	return &resp, nil
}

// extractArt returns the first artwork URL upscaled to 600px, or "".
func extractArt(resp *searchResponse) string {
	for _, r := range resp.Results {
		if r.ArtworkURL100 != "" {
			return strings.Replace(r.ArtworkURL100, "100x100bb", "600x600bb", 1)
		}
	}
	return ""
}

// Artwork returns an image URL for the entity, or "" when iTunes has none.
// artist is required for album and track lookups.
func (c *Client) Artwork(ctx context.Context, entity, name, artist string) (string, error) {
	switch entity {
	case EntityArtist:
		return c.artistArtwork(ctx, name)
	case EntityAlbum:
		resp, err := c.get(ctx, "/search", url.Values{
			"term": {strings.TrimSpace(artist + " " + name)}, "entity": {"album"}, "media": {"music"}, "limit": {"3"},
		})
		if err != nil {
			return "", err
		}
		return extractArt(resp), nil
	case EntityTrack:
		resp, err := c.get(ctx, "/search", url.Values{
			"term": {strings.TrimSpace(artist + " " + name)}, "entity": {"song"}, "media": {"music"}, "limit": {"3"},
		})
		if err != nil {
			return "", err
		}
		return extractArt(resp), nil
	default:
		return "", fmt.Errorf("itunes: unknown entity type %q", entity)
	}
}

// artistArtwork resolves the artist id, then uses the cover of one of the
// artist's albums. iTunes has no artist portraits.
func (c *Client) artistArtwork(ctx context.Context, name string) (string, error) {
	resp, err := c.get(ctx, "/search", url.Values{
		"term": {name}, "entity": {"musicArtist"}, "media": {"music"}, "limit": {"5"},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Results) == 0 {
		return "", nil
	}

	id := resp.Results[0].ArtistID
	want := models.NormalizeName(name)
	for _, r := range resp.Results {
		if models.NormalizeName(r.ArtistName) == want {
			id = r.ArtistID
			break
		}
	}
	if id == 0 {
		return "", nil
	}

	albums, err := c.get(ctx, "/lookup", url.Values{
		"id": {strconv.FormatInt(id, 10)}, "entity": {"album"}, "limit": {"5"},
	})
	if err != nil {
		return "", err
	}
	return extractArt(albums), nil
}
