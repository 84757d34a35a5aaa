// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package models

import "time"

// HistoryStatus is the per-release outcome of a run.
type HistoryStatus string

const (
	HistoryOwned   HistoryStatus = "owned"
	HistoryQueued  HistoryStatus = "queued"
	HistorySkipped HistoryStatus = "skipped"
)

// History reasons.
const (
	ReasonAlreadyQueued = "already_queued"
	ReasonPlaylistMode  = "playlist_mode"
	ReasonCycleCap      = "cycle_cap"
	ReasonUnreleased    = "unreleased"
	ReasonLookupFailed  = "lookup_failed"
)

// HistoryEntry is one line of the history ledger.
type HistoryEntry struct {
	Artist string        `json:"artist"`
	Album  string        `json:"album"`
	Status HistoryStatus `json:"status"`
	Reason string        `json:"reason,omitempty"`
	Date   time.Time     `json:"date"`
}

// Key returns the normalized (artist, album) identity of the entry.
func (h HistoryEntry) Key() string {
	return NormalizeName(h.Artist) + "\x00" + NormalizeName(h.Album)
}

// Ledger is the complete history of one completed run.
type Ledger struct {
	RunID       string         `json:"run_id"`
	Engine      Engine         `json:"engine"`
	RunMode     RunMode        `json:"run_mode"`
	CompletedAt time.Time      `json:"completed_at"`
	Summary     Summary        `json:"summary"`
	Entries     []HistoryEntry `json:"entries"`
}

// PlaylistTrack is one line of a generated playlist. Unowned releases appear
// as album-level placeholders without a RatingKey.
type PlaylistTrack struct {
	Position    int    `json:"position"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Album       string `json:"album"`
	RatingKey   string `json:"rating_key,omitempty"`
	Owned       bool   `json:"owned"`
	ReleaseDate string `json:"release_date,omitempty"`
}

// Playlist is a generated playlist and its tracks.
type Playlist struct {
	Name        string          `json:"name"`
	Engine      Engine          `json:"engine"`
	RunID       string          `json:"run_id"`
	CreatedAt   time.Time       `json:"created_at"`
	PublishedID string          `json:"published_id,omitempty"`
	Tracks      []PlaylistTrack `json:"tracks"`
}
