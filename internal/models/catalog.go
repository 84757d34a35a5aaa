// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package models

import (
	"strings"
	"time"
	"unicode"
)

// ArtistPlayCount is one artist bucket from the scrobble history provider.
type ArtistPlayCount struct {
	Name      string `json:"name"`
	PlayCount int    `json:"playcount"`
}

// SimilarArtist is a similarity edge returned by the history provider.
// Match is in [0,1], 1 being identical taste.
type SimilarArtist struct {
	Name  string  `json:"name"`
	Match float64 `json:"match"`
}

// ReleaseKind is the release type reported by the metadata source.
type ReleaseKind string

const (
	KindAlbum       ReleaseKind = "album"
	KindEP          ReleaseKind = "ep"
	KindSingle      ReleaseKind = "single"
	KindCompilation ReleaseKind = "compilation"
)

// ParseReleaseKind maps source-specific record types onto ReleaseKind.
func ParseReleaseKind(s string) ReleaseKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ep":
		return KindEP
	case "single":
		return KindSingle
	case "compile", "compilation":
		return KindCompilation
	default:
		return KindAlbum
	}
}

// ReleaseCandidate is one release considered by a run.
type ReleaseCandidate struct {
	Artist      string      `json:"artist"`
	Title       string      `json:"title"`
	Kind        ReleaseKind `json:"kind"`
	ReleaseDate time.Time   `json:"release_date"`
	ExternalID  string      `json:"external_id,omitempty"`
	Source      string      `json:"source,omitempty"`
	// ArtistOrder is the index of the artist in first-discovery order.
	ArtistOrder int `json:"-"`
}

// Key returns the normalized (artist, title) identity used for de-duplication.
func (c ReleaseCandidate) Key() string {
	return NormalizeName(c.Artist) + "\x00" + NormalizeName(c.Title)
}

// ReleaseDateString formats the release date as YYYY-MM-DD, or "" when unknown.
func (c ReleaseCandidate) ReleaseDateString() string {
	if c.ReleaseDate.IsZero() {
		return ""
	}
	return c.ReleaseDate.Format("2006-01-02")
}

// ReleaseCacheEntry is the cached release list for one artist.
type ReleaseCacheEntry struct {
	Artist    string             `json:"artist"`
	Releases  []ReleaseCandidate `json:"releases"`
	FetchedAt time.Time          `json:"fetched_at"`
}

// Stale reports whether the entry is older than maxAge at now.
func (e *ReleaseCacheEntry) Stale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(e.FetchedAt) >= maxAge
}

// NormalizeName lowercases s, drops punctuation and collapses whitespace,
// so "Ballyhoo!" and "ballyhoo" compare equal. A name made only of
// punctuation, such as "!!!", keeps its lowercased characters.
func NormalizeName(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			space = true
		}
	}
	if b.Len() == 0 {
		return strings.Join(strings.Fields(strings.ToLower(s)), " ")
	}
	return b.String()
}

// LibraryAlbum is an album found in the personal library.
type LibraryAlbum struct {
	RatingKey string `json:"rating_key"`
	Artist    string `json:"artist"`
	Title     string `json:"title"`
	Year      int    `json:"year,omitempty"`
}

// LibraryTrack is one track of a library album.
type LibraryTrack struct {
	RatingKey string `json:"rating_key"`
	Title     string `json:"title"`
	Index     int    `json:"index,omitempty"`
}
