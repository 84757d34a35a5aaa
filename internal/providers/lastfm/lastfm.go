// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

// Package lastfm is the scrobble-history provider client.
//
// Only the read-only, API-key authenticated methods are used:
// user.getTopArtists and artist.getSimilar. The API key is never logged.
package lastfm

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/cruisecontrol/internal/config"
	"github.com/tomtom215/cruisecontrol/internal/logging"
	"github.com/tomtom215/cruisecontrol/internal/models"
	"github.com/tomtom215/cruisecontrol/internal/providers"
)

// Client talks to the Last.fm 2.0 API.
type Client struct {
	http     *providers.Client
	apiKey   string
	username string
	topLimit int
}

// APIError is an error payload returned by Last.fm ({"error":6,"message":"..."}).
type APIError struct {
	Code    int    `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lastfm: api error %d: %s", e.Code, e.Message)
}

// New creates a Last.fm client from configuration.
func New(cfg config.LastFMConfig) *Client {
	limit := cfg.TopArtistLimit
	if limit <= 0 {
		limit = 200
	}
	return &Client{
		http: providers.NewClient(providers.Options{
			Name:              "lastfm",
			BaseURL:           cfg.BaseURL,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
		}),
		apiKey:   cfg.APIKey,
		username: cfg.Username,
		topLimit: limit,
	}
}

// Breaker exposes the client circuit breaker.
func (c *Client) Breaker() *providers.Breaker {
	return c.http.Breaker()
}

// flexNumber decodes Last.fm numerics, which arrive as JSON strings.
type flexNumber float64

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("lastfm: parse number %q: %w", s, err)
	}
	*n = flexNumber(f)
	return nil
}

type topArtistsResponse struct {
	TopArtists struct {
		Artist []struct {
			Name      string     `json:"name"`
			PlayCount flexNumber `json:"playcount"`
		} `json:"artist"`
	} `json:"topartists"`
}

type similarResponse struct {
	SimilarArtists struct {
		Artist []struct {
			Name  string     `json:"name"`
			Match flexNumber `json:"match"`
		} `json:"artist"`
	} `json:"similarartists"`
}

// call performs one API method. Last.fm reports many errors as 200 with an
// error body, so the raw payload is checked before decoding into result.
func (c *Client) call(ctx context.Context, method string, params url.Values, result any) error {
	q := url.Values{}
	for k, vs := range params {
		q[k] = vs
	}
	q.Set("method", method)
	q.Set("api_key", c.apiKey)
	q.Set("format", "json")

	var raw json.RawMessage
	if _, err := c.http.Do(ctx, providers.Request{Path: "/", Query: q}, &raw); err != nil {
		return fmt.Errorf("lastfm %s: %w", method, err)
	}

	var apiErr APIError
	if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Code != 0 {
		return &apiErr
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("lastfm %s: decode: %w", method, err)
	}
	return nil
}

// TopArtists returns the user's artists and play counts for period, highest first.
func (c *Client) TopArtists(ctx context.Context, period models.SeedPeriod) ([]models.ArtistPlayCount, error) {
	if !period.Valid() {
		period = models.Period6Month
	}
	var resp topArtistsResponse
	err := c.call(ctx, "user.getTopArtists", url.Values{
		"user":   {c.username},
		"period": {string(period)},
		"limit":  {strconv.Itoa(c.topLimit)},
	}, &resp)
	if err != nil {
		return nil, err
	}

	out := make([]models.ArtistPlayCount, 0, len(resp.TopArtists.Artist))
	for _, a := range resp.TopArtists.Artist {
		if a.Name == "" {
			continue
		}
		out = append(out, models.ArtistPlayCount{Name: a.Name, PlayCount: int(a.PlayCount)})
	}
	logging.Debug().Int("artists", len(out)).Str("period", string(period)).Msg("Last.fm top artists fetched")
	return out, nil
}

// SimilarArtists returns up to limit artists similar to artist, best match first.
func (c *Client) SimilarArtists(ctx context.Context, artist string, limit int) ([]models.SimilarArtist, error) {
	if limit <= 0 {
		limit = 50
	}
	var resp similarResponse
	err := c.call(ctx, "artist.getSimilar", url.Values{
		"artist":      {artist},
		"limit":       {strconv.Itoa(limit)},
		"autocorrect": {"1"},
	}, &resp)
	if err != nil {
		return nil, err
	}

	out := make([]models.SimilarArtist, 0, len(resp.SimilarArtists.Artist))
	for _, a := range resp.SimilarArtists.Artist {
		if a.Name == "" {
			continue
		}
		out = append(out, models.SimilarArtist{Name: a.Name, Match: float64(a.Match)})
	}
	return out, nil
}
