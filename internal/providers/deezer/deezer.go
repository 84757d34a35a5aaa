// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

// Package deezer is the release metadata source. It resolves an artist name
// to a Deezer artist id and lists that artist's albums, EPs and singles.
// No authentication is required.
package deezer

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/tomtom215/cruisecontrol/internal/config"
	"github.com/tomtom215/cruisecontrol/internal/logging"
	"github.com/tomtom215/cruisecontrol/internal/models"
	"github.com/tomtom215/cruisecontrol/internal/providers"
)

const pageSize = 50

// Client talks to api.deezer.com.
type Client struct {
	http       *providers.Client
	albumLimit int
}

// APIError is the error object Deezer returns with HTTP 200.
type APIError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("deezer: %s (%d): %s", e.Type, e.Code, e.Message)
}

// Unavailable is false for errors about the request itself (bad
// parameters, no data) and true for quota, auth and busy errors.
func (e *APIError) Unavailable() bool {
	switch e.Code {
	case 500, 501, 600, 800:
		return false
	}
	return true
}

// New creates a Deezer client from configuration.
func New(cfg config.DeezerConfig) *Client {
	limit := cfg.AlbumLimit
	if limit <= 0 {
		limit = 100
	}
	return &Client{
		http: providers.NewClient(providers.Options{
			Name:              "deezer",
			BaseURL:           cfg.BaseURL,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
		}),
		albumLimit: limit,
	}
}

// Breaker exposes the client circuit breaker.
func (c *Client) Breaker() *providers.Breaker {
	return c.http.Breaker()
}

type artistSearchResponse struct {
	Data []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"data"`
	Error *APIError `json:"error,omitempty"`
}

type albumsResponse struct {
	Data []struct {
		ID          int64  `json:"id"`
		Title       string `json:"title"`
		ReleaseDate string `json:"release_date"`
		RecordType  string `json:"record_type"`
		Link        string `json:"link"`
	} `json:"data"`
	Next  string    `json:"next"`
	Error *APIError `json:"error,omitempty"`
}

// SearchArtist returns the Deezer id best matching name: an exact match
// after normalization wins, otherwise the first hit. ok is false when
// nothing matched.
func (c *Client) SearchArtist(ctx context.Context, name string) (id int64, canonical string, ok bool, err error) {
	var resp artistSearchResponse
	_, err = c.http.Do(ctx, providers.Request{
		Path:  "/search/artist",
		Query: url.Values{"q": {name}, "limit": {"5"}},
	}, &resp)
	if err != nil {
		return 0, "", false, fmt.Errorf("deezer search %q: %w", name, err)
	}
	if resp.Error != nil {
		return 0, "", false, resp.Error
	}
	if len(resp.Data) == 0 {
		return 0, "", false, nil
	}
	want := models.NormalizeName(name)
	for _, a := range resp.Data {
		if models.NormalizeName(a.Name) == want {
			return a.ID, a.Name, true, nil
		}
	}
	return resp.Data[0].ID, resp.Data[0].Name, true, nil
}

// ArtistReleases lists the releases of artist. An unknown artist yields an
// empty slice. Releases without a parseable date are dropped; future-dated
// releases are kept and left to the caller.
func (c *Client) ArtistReleases(ctx context.Context, artist string) ([]models.ReleaseCandidate, error) {
	id, canonical, ok, err := c.SearchArtist(ctx, artist)
	if err != nil {
		return nil, err
	}
	if !ok {
		logging.Debug().Str("artist", artist).Msg("Deezer artist not found")
		return []models.ReleaseCandidate{}, nil
	}
	if canonical == "" {
		canonical = artist
	}

	releases := make([]models.ReleaseCandidate, 0, 16)
	for index := 0; index < c.albumLimit; index += pageSize {
		var resp albumsResponse
		_, err := c.http.Do(ctx, providers.Request{
			Path:  fmt.Sprintf("/artist/%d/albums", id),
			Query: url.Values{"limit": {strconv.Itoa(pageSize)}, "index": {strconv.Itoa(index)}},
		}, &resp)
		if err != nil {
			return nil, fmt.Errorf("deezer albums %q: %w", artist, err)
		}
		if resp.Error != nil {
			return nil, resp.Error
		}

		for _, a := range resp.Data {
			released, err := time.Parse("2006-01-02", a.ReleaseDate)
			if err != nil {
				continue
			}
			releases = append(releases, models.ReleaseCandidate{
				Artist:      canonical,
				Title:       a.Title,
				Kind:        models.ParseReleaseKind(a.RecordType),
				ReleaseDate: released,
				ExternalID:  strconv.FormatInt(a.ID, 10),
				Source:      "deezer",
			})
			if len(releases) >= c.albumLimit {
				return releases, nil
			}
		}
		if resp.Next == "" || len(resp.Data) == 0 {
			break
		}
	}
	return releases, nil
}
