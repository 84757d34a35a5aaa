// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package filter

import (
	"sync"
	"testing"

	"github.com/tomtom215/cruisecontrol/internal/models"
)

func TestKeywordMatcher_OverlappingPatterns(t *testing.T) {
	t.Parallel()

	m := newKeywordMatcher([]string{"he", "she", "his", "hers"})
	kw, ok := m.first("ushers")
	if !ok {
		t.Fatal("expected a match in 'ushers'")
	}
	if kw != "she" && kw != "he" {
		t.Errorf("first match = %q, want she or he", kw)
	}
	if _, ok := m.first("xyz"); ok {
		t.Error("unexpected match in 'xyz'")
	}
}

func TestKeywordMatcher_FailureLinks(t *testing.T) {
	t.Parallel()

	m := newKeywordMatcher([]string{"remaster", "aster"})
	if kw, ok := m.first("Disaster Area"); !ok || kw != "aster" {
		t.Errorf("first(Disaster Area) = %q, %v; want aster", kw, ok)
	}
}

func TestSplitList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"   ", 0},
		{"live", 1},
		{"live, remix ,,demo, ", 3},
	}
	for _, tt := range tests {
		if got := SplitList(tt.in); len(got) != tt.want {
			t.Errorf("SplitList(%q) = %v, want %d items", tt.in, got, tt.want)
		}
	}
}

func TestFilter_IgnoreRelease(t *testing.T) {
	t.Parallel()

	f := New("live, Remaster", "Ballyhoo!, The Band")

	tests := []struct {
		name   string
		artist string
		title  string
		drop   bool
		reason string
	}{
		{"keyword in title any case", "Someone", "LIVE at the Roxy", true, "keyword:live"},
		{"keyword substring", "Someone", "Oliver's Army (Remastered)", true, "keyword:live"},
		{"keyword in artist", "Remaster Crew", "Fresh", true, "keyword:remaster"},
		{"artist exact any case", "ballyhoo", "Fresh", true, "artist"},
		{"artist punctuation", "BALLYHOO!", "Fresh", true, "artist"},
		{"artist substring does not match", "The Bandits", "Fresh", false, ""},
		{"clean", "Big Thief", "Dragon New Mountain", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, drop := f.IgnoreRelease(models.ReleaseCandidate{Artist: tt.artist, Title: tt.title})
			if drop != tt.drop {
				t.Fatalf("drop = %v, want %v", drop, tt.drop)
			}
			if reason != tt.reason {
				t.Errorf("reason = %q, want %q", reason, tt.reason)
			}
		})
	}
}

func TestFilter_ApplyPreservesOrder(t *testing.T) {
	t.Parallel()

	f := New("demo", "")
	in := []models.ReleaseCandidate{
		{Artist: "A", Title: "One"},
		{Artist: "B", Title: "Demo Tape"},
		{Artist: "C", Title: "Three"},
	}
	out := f.Apply(in)
	if len(out) != 2 || out[0].Artist != "A" || out[1].Artist != "C" {
		t.Errorf("Apply = %+v", out)
	}
}

func TestFilter_EmptyAndNil(t *testing.T) {
	t.Parallel()

	if !New("", " , ").Empty() {
		t.Error("blank lists should produce an empty filter")
	}
	var f *Filter
	if f.IgnoreArtist("x") {
		t.Error("nil filter should ignore nothing")
	}
	if _, ok := f.MatchKeyword("live"); ok {
		t.Error("nil filter should match nothing")
	}
}

func TestFilter_ConcurrentUse(t *testing.T) {
	t.Parallel()

	f := New("live,remix,demo", "ballyhoo")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if _, drop := f.IgnoreRelease(models.ReleaseCandidate{Artist: "X", Title: "Remix EP"}); !drop {
					t.Error("expected drop")
					return
				}
			}
		}()
	}
	wg.Wait()
}
