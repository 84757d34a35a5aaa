// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

/*
Package plex is the library ownership oracle and playlist publishing target.

Library methods:
  - FindAlbum(): search the music section for an (artist, album) pair
  - AlbumTracks(): list the tracks of a library album
  - HasAlbum(): ownership check used by queue reconciliation

Playlist methods:
  - PublishPlaylist(): create a playlist, or replace the items of an
    existing playlist with the same title
  - ServerInfo(): machine identifier and friendly name (GET /)

All requests carry the X-Plex-Token header. The token is never logged.
*/
package plex

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/tomtom215/cruisecontrol/internal/config"
	"github.com/tomtom215/cruisecontrol/internal/logging"
	"github.com/tomtom215/cruisecontrol/internal/models"
	"github.com/tomtom215/cruisecontrol/internal/providers"
)

// Plex metadata type for albums in /library/sections/{id}/search.
const searchTypeAlbum = "9"

// ErrNoTracks is returned when publishing an empty playlist.
var ErrNoTracks = errors.New("plex: playlist has no tracks")

// Client talks to a Plex Media Server.
type Client struct {
	http      *providers.Client
	sectionID string
}

// New creates a Plex client from configuration.
func New(cfg config.PlexConfig) *Client {
	return &Client{
		http: providers.NewClient(providers.Options{
			Name:    "plex",
			BaseURL: cfg.URL,
			Timeout: cfg.Timeout,
			Header:  http.Header{"X-Plex-Token": []string{cfg.Token}},
		}),
		sectionID: cfg.MusicSectionID,
	}
}

// Breaker exposes the client circuit breaker.
func (c *Client) Breaker() *providers.Breaker {
	return c.http.Breaker()
}

// mediaContainer is the envelope around every Plex JSON response.
type mediaContainer struct {
	MediaContainer struct {
		Size              int        `json:"size"`
		MachineIdentifier string     `json:"machineIdentifier"`
		FriendlyName      string     `json:"friendlyName"`
		Version           string     `json:"version"`
		Metadata          []metadata `json:"Metadata"`
	} `json:"MediaContainer"`
}

type metadata struct {
	RatingKey   string `json:"ratingKey"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	ParentTitle string `json:"parentTitle,omitempty"`
	Index       int    `json:"index,omitempty"`
	Year        int    `json:"year,omitempty"`
}

// ServerInfo describes the connected server.
type ServerInfo struct {
	MachineIdentifier string `json:"machine_identifier"`
	FriendlyName      string `json:"friendly_name"`
	Version           string `json:"version"`
}

// ServerInfo fetches the server root, which carries the machine identifier.
func (c *Client) ServerInfo(ctx context.Context) (ServerInfo, error) {
	var resp mediaContainer
	if _, err := c.http.Do(ctx, providers.Request{Path: "/"}, &resp); err != nil {
		return ServerInfo{}, fmt.Errorf("plex server info: %w", err)
	}
	if resp.MediaContainer.MachineIdentifier == "" {
		return ServerInfo{}, errors.New("plex server info: missing machineIdentifier")
	}
	return ServerInfo{
		MachineIdentifier: resp.MediaContainer.MachineIdentifier,
		FriendlyName:      resp.MediaContainer.FriendlyName,
		Version:           resp.MediaContainer.Version,
	}, nil
}

// Ping verifies connectivity and credentials.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ServerInfo(ctx)
	return err
}

// titleKey normalizes an album title and drops a trailing edition marker,
// so "Daydreamer (Deluxe Edition)" matches "Daydreamer".
func titleKey(title string) string {
	t := strings.TrimSpace(title)
	for _, pair := range [][2]string{{"(", ")"}, {"[", "]"}} {
		if strings.HasSuffix(t, pair[1]) {
			if i := strings.LastIndex(t, pair[0]); i > 0 {
				t = strings.TrimSpace(t[:i])
			}
		}
	}
	return models.NormalizeName(t)
}

// FindAlbum searches the music section for album by artist. found is false
// when the library has no matching album.
func (c *Client) FindAlbum(ctx context.Context, artist, album string) (models.LibraryAlbum, bool, error) {
	var resp mediaContainer
	_, err := c.http.Do(ctx, providers.Request{
		Path:  fmt.Sprintf("/library/sections/%s/search", url.PathEscape(c.sectionID)),
		Query: url.Values{"type": {searchTypeAlbum}, "title": {album}},
	}, &resp)
	if err != nil {
		return models.LibraryAlbum{}, false, fmt.Errorf("plex search %q: %w", album, err)
	}

	wantArtist := models.NormalizeName(artist)
	wantTitle := titleKey(album)
	for _, m := range resp.MediaContainer.Metadata {
		if models.NormalizeName(m.ParentTitle) != wantArtist {
			continue
		}
		if titleKey(m.Title) != wantTitle {
			continue
		}
		return models.LibraryAlbum{
			RatingKey: m.RatingKey,
			Artist:    m.ParentTitle,
			Title:     m.Title,
			Year:      m.Year,
		}, true, nil
	}
	return models.LibraryAlbum{}, false, nil
}

// HasAlbum reports whether the library holds album by artist.
func (c *Client) HasAlbum(ctx context.Context, artist, album string) (bool, error) {
	_, found, err := c.FindAlbum(ctx, artist, album)
	return found, err
}

// AlbumTracks lists the tracks of a library album in disc order.
func (c *Client) AlbumTracks(ctx context.Context, albumKey string) ([]models.LibraryTrack, error) {
	var resp mediaContainer
	_, err := c.http.Do(ctx, providers.Request{
		Path: fmt.Sprintf("/library/metadata/%s/children", url.PathEscape(albumKey)),
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("plex album tracks %s: %w", albumKey, err)
	}
	tracks := make([]models.LibraryTrack, 0, len(resp.MediaContainer.Metadata))
	for _, m := range resp.MediaContainer.Metadata {
		if m.Type != "" && m.Type != "track" {
			continue
		}
		tracks = append(tracks, models.LibraryTrack{RatingKey: m.RatingKey, Title: m.Title, Index: m.Index})
	}
	return tracks, nil
}

// findPlaylist returns the rating key of the playlist titled name, or "".
func (c *Client) findPlaylist(ctx context.Context, name string) (string, error) {
	var resp mediaContainer
	if _, err := c.http.Do(ctx, providers.Request{Path: "/playlists"}, &resp); err != nil {
		return "", fmt.Errorf("plex list playlists: %w", err)
	}
	for _, m := range resp.MediaContainer.Metadata {
		if m.Title == name {
			return m.RatingKey, nil
		}
	}
	return "", nil
}

func itemsURI(machineID string, ratingKeys []string) string {
	return fmt.Sprintf("server://%s/com.plexapp.plugins.library/library/metadata/%s", machineID, strings.Join(ratingKeys, ","))
}

// PublishPlaylist creates the audio playlist name holding ratingKeys, or
// replaces the items of an existing playlist with that title. It returns
// the playlist rating key.
func (c *Client) PublishPlaylist(ctx context.Context, name string, ratingKeys []string) (string, error) {
	if len(ratingKeys) == 0 {
		return "", ErrNoTracks
	}

	info, err := c.ServerInfo(ctx)
	if err != nil {
		return "", err
	}
	uri := itemsURI(info.MachineIdentifier, ratingKeys)

	existing, err := c.findPlaylist(ctx, name)
	if err != nil {
		return "", err
	}

	if existing != "" {
		itemsPath := fmt.Sprintf("/playlists/%s/items", url.PathEscape(existing))
		if _, err := c.http.Do(ctx, providers.Request{Method: http.MethodDelete, Path: itemsPath}, nil); err != nil {
			return "", fmt.Errorf("plex clear playlist %s: %w", existing, err)
		}
		if _, err := c.http.Do(ctx, providers.Request{
			Method: http.MethodPut,
			Path:   itemsPath,
			Query:  url.Values{"uri": {uri}},
		}, nil); err != nil {
			return "", fmt.Errorf("plex fill playlist %s: %w", existing, err)
		}
		logging.Info().Str("playlist", name).Str("key", existing).Int("tracks", len(ratingKeys)).Msg("Updated Plex playlist")
		return existing, nil
	}

	var resp mediaContainer
	_, err = c.http.Do(ctx, providers.Request{
		Method: http.MethodPost,
		Path:   "/playlists",
		Query: url.Values{
			"title": {name},
			"type":  {"audio"},
			"smart": {"0"},
			"uri":   {uri},
		},
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("plex create playlist %q: %w", name, err)
	}
	if len(resp.MediaContainer.Metadata) == 0 {
		return "", fmt.Errorf("plex create playlist %q: empty response", name)
	}
	key := resp.MediaContainer.Metadata[0].RatingKey
	logging.Info().Str("playlist", name).Str("key", key).Int("tracks", len(ratingKeys)).Msg("Created Plex playlist")
	return key, nil
}
