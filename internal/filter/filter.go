// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

// Package filter implements the ignore rules applied to seed artists and
// release candidates.
//
// Two lists drive the filter, both comma-delimited and case-insensitive:
//
//   - ignore_keywords: a release is dropped when any keyword occurs as a
//     substring of its title or its artist name ("live" drops "Live at Leeds").
//   - ignore_artists: an artist is dropped when its name equals an entry
//     exactly after normalization (case and punctuation are ignored, so
//     "Ballyhoo!" matches "ballyhoo"). Substrings never match.
//
// A Filter is immutable and safe for concurrent use by pipeline workers.
package filter

import (
	"strings"

	"github.com/tomtom215/cruisecontrol/internal/models"
)

// Filter is the compiled form of a RunConfig's ignore lists.
type Filter struct {
	keywords *keywordMatcher
	artists  map[string]struct{}
}

// New compiles the comma-delimited keyword and artist lists.
func New(ignoreKeywords, ignoreArtists string) *Filter {
	f := &Filter{
		keywords: newKeywordMatcher(SplitList(ignoreKeywords)),
		artists:  make(map[string]struct{}),
	}
	for _, a := range SplitList(ignoreArtists) {
		if n := models.NormalizeName(a); n != "" {
			f.artists[n] = struct{}{}
		}
	}
	return f
}

// FromRunConfig compiles the ignore lists of cfg.
func FromRunConfig(cfg models.RunConfig) *Filter {
	return New(cfg.IgnoreKeywords, cfg.IgnoreArtists)
}

// SplitList splits a comma-delimited list, trimming blanks.
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// IgnoreArtist reports whether name exactly matches an ignored artist.
func (f *Filter) IgnoreArtist(name string) bool {
	if f == nil || len(f.artists) == 0 {
		return false
	}
	_, ok := f.artists[models.NormalizeName(name)]
	return ok
}

// MatchKeyword returns the first ignore keyword occurring in text.
func (f *Filter) MatchKeyword(text string) (string, bool) {
	if f == nil {
		return "", false
	}
	return f.keywords.first(text)
}

// IgnoreRelease reports whether a candidate must be dropped, and why.
// The artist rule is checked before the keyword rule.
func (f *Filter) IgnoreRelease(c models.ReleaseCandidate) (string, bool) {
	if f.IgnoreArtist(c.Artist) {
		return "artist", true
	}
	if kw, ok := f.MatchKeyword(c.Title); ok {
		return "keyword:" + kw, true
	}
	if kw, ok := f.MatchKeyword(c.Artist); ok {
		return "keyword:" + kw, true
	}
	return "", false
}

// Apply returns the candidates that survive the filter, preserving order.
func (f *Filter) Apply(candidates []models.ReleaseCandidate) []models.ReleaseCandidate {
	out := make([]models.ReleaseCandidate, 0, len(candidates))
	for _, c := range candidates {
		if _, drop := f.IgnoreRelease(c); !drop {
			out = append(out, c)
		}
	}
	return out
}

// Empty reports whether the filter has no rules.
func (f *Filter) Empty() bool {
	return f == nil || (f.keywords.size() == 0 && len(f.artists) == 0)
}
