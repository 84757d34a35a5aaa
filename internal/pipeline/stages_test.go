// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/cruisecontrol/internal/filter"
	"github.com/tomtom215/cruisecontrol/internal/models"
	"github.com/tomtom215/cruisecontrol/internal/providers"
	"github.com/tomtom215/cruisecontrol/internal/releasecache"
)

func testEnv(engine models.Engine, cfg models.RunConfig) stageEnv {
	return stageEnv{
		cfg:          cfg,
		engine:       engine,
		filter:       filter.FromRunConfig(cfg),
		concurrency:  2,
		historyCycle: 7 * 24 * time.Hour,
		now:          testNow,
		logger:       zerolog.Nop(),
	}
}

func TestStageName(t *testing.T) {
	tests := []struct {
		mode models.RunMode
		n    int
		want string
	}{
		{models.RunModeFetch, 1, "Poll History"},
		{models.RunModeFetch, 5, "Queue Tracks"},
		{models.RunModeFetch, 6, "Create & Publish"},
		{models.RunModeBuild, 4, "Check Library & Build Playlist"},
		{models.RunModeBuild, 5, ""},
		{models.RunModeFetch, 0, ""},
	}
	for _, tt := range tests {
		if got := StageName(tt.mode, tt.n); got != tt.want {
			t.Errorf("StageName(%s, %d) = %q, want %q", tt.mode, tt.n, got, tt.want)
		}
	}
}

func TestResolveArtists_Releases(t *testing.T) {
	cfg := testRunConfig()
	cfg.IgnoreArtists = "Muse"
	env := testEnv(models.EngineReleases, cfg)

	got, err := resolveArtists(context.Background(), env, &fakeHistory{}, []string{"Radiohead", "radiohead!", "Muse", "Björk", "  "})
	if err != nil {
		t.Fatalf("resolveArtists: %v", err)
	}
	want := []string{"Radiohead", "Björk"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestResolveArtists_PunctuationOnlyNames(t *testing.T) {
	cfg := testRunConfig()
	cfg.IgnoreArtists = "?"
	env := testEnv(models.EngineReleases, cfg)

	got, err := resolveArtists(context.Background(), env, &fakeHistory{}, []string{"!!!", " !!! ", "?", "Ballyhoo!"})
	if err != nil {
		t.Fatalf("resolveArtists: %v", err)
	}
	want := []string{"!!!", "Ballyhoo!"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestResolveArtists_DiscoveryExpansion(t *testing.T) {
	cfg := testRunConfig()
	cfg.Closeness = 5 // match >= 0.5, at most 25 per seed
	cfg.IgnoreArtists = "Ignored"
	env := testEnv(models.EngineDiscovery, cfg)

	hp := &fakeHistory{similar: map[string][]models.SimilarArtist{
		"Seed A": {
			{Name: "Close X", Match: 0.9},
			{Name: "Seed B", Match: 0.8},
			{Name: "Far Y", Match: 0.4},
			{Name: "Ignored", Match: 0.7},
		},
		"Seed B": {
			{Name: "close x", Match: 0.6},
			{Name: "Close Z", Match: 0.5},
		},
	}}

	got, err := resolveArtists(context.Background(), env, hp, []string{"Seed A", "Seed B"})
	if err != nil {
		t.Fatalf("resolveArtists: %v", err)
	}
	want := []string{"Close X", "Close Z"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

type failingSimilar struct{ fakeHistory }

func (f *failingSimilar) SimilarArtists(ctx context.Context, artist string, limit int) ([]models.SimilarArtist, error) {
	return nil, errors.New("rate limited")
}

func TestResolveArtists_DiscoveryDependencyError(t *testing.T) {
	env := testEnv(models.EngineDiscovery, testRunConfig())
	_, err := resolveArtists(context.Background(), env, &failingSimilar{}, []string{"Seed A"})
	if !errors.Is(err, ErrDependencyUnavailable) {
		t.Fatalf("err = %v, want ErrDependencyUnavailable", err)
	}
	var derr *DependencyError
	if !errors.As(err, &derr) || derr.Stage != 2 {
		t.Errorf("dependency error = %+v", derr)
	}
}

func TestFindReleases_OrderAndDedupe(t *testing.T) {
	env := testEnv(models.EngineReleases, testRunConfig())
	src := &fakeReleases{releases: map[string][]models.ReleaseCandidate{
		"First": {
			{Title: "Older", ReleaseDate: daysAgo(30)},
			{Title: "Newer", ReleaseDate: daysAgo(3)},
			{Title: "newer!", ReleaseDate: daysAgo(4)},
			{Title: "Undated"},
		},
		"Second": {
			{Artist: "Second", Title: "Latest", ReleaseDate: daysAgo(1)},
		},
	}}

	got, _, err := findReleases(context.Background(), env, src, []string{"First", "Second"}, nil)
	if err != nil {
		t.Fatalf("findReleases: %v", err)
	}
	var titles []string
	for _, c := range got {
		titles = append(titles, c.Title)
	}
	want := []string{"Newer", "Older", "Latest"}
	if !reflect.DeepEqual(titles, want) {
		t.Errorf("titles = %v, want %v", titles, want)
	}
	if got[0].Artist != "First" || got[2].ArtistOrder != 1 {
		t.Errorf("artist fill/order wrong: %+v", got)
	}
}

func TestFindReleases_CandidateErrorAbsorbed(t *testing.T) {
	env := testEnv(models.EngineReleases, testRunConfig())
	src := &fakeReleases{
		releases: map[string][]models.ReleaseCandidate{"Good": {{Title: "Fine", ReleaseDate: daysAgo(2)}}},
		fail:     map[string]error{"Bad": errors.New("not found")},
	}

	got, _, err := findReleases(context.Background(), env, src, []string{"Good", "Bad"}, nil)
	if err != nil {
		t.Fatalf("findReleases: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d candidates, want 1", len(got))
	}

	_, _, err = findReleases(context.Background(), env, src, []string{"Bad", "Good"}, nil)
	if !errors.Is(err, ErrDependencyUnavailable) {
		t.Errorf("first-call failure err = %v", err)
	}
}

func TestFindReleases_FirstCallClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantAbort bool
	}{
		{"not found", &providers.StatusError{Provider: "deezer", Code: http.StatusNotFound, Body: "no data"}, false},
		{"cold cache miss", &releasecache.MissError{Artist: "Bad", Err: &providers.StatusError{Provider: "deezer", Code: http.StatusBadRequest}}, false},
		{"server error", &providers.StatusError{Provider: "deezer", Code: http.StatusServiceUnavailable}, true},
		{"breaker open", fmt.Errorf("deezer albums: %w", providers.ErrUnavailable), true},
		{"deadline", &releasecache.MissError{Artist: "Bad", Err: context.DeadlineExceeded}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testEnv(models.EngineReleases, testRunConfig())
			src := &fakeReleases{
				releases: map[string][]models.ReleaseCandidate{"Good": {{Title: "Fine", ReleaseDate: daysAgo(2)}}},
				fail:     map[string]error{"Bad": tt.err},
			}

			got, _, err := findReleases(context.Background(), env, src, []string{"Bad", "Good"}, nil)
			if tt.wantAbort {
				var derr *DependencyError
				if !errors.As(err, &derr) || derr.Stage != stageFindReleases {
					t.Fatalf("err = %v, want stage 3 DependencyError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("findReleases: %v", err)
			}
			if len(got) != 1 || got[0].Title != "Fine" || got[0].ArtistOrder != 1 {
				t.Errorf("candidates = %+v, want only Fine from the second artist", got)
			}
		})
	}
}

func TestCheckLibrary_FirstCallClassification(t *testing.T) {
	candidates := []models.ReleaseCandidate{
		{Artist: "A", Title: "Rejected", ReleaseDate: daysAgo(3)},
		{Artist: "A", Title: "Held", ReleaseDate: daysAgo(4)},
	}
	env := testEnv(models.EngineReleases, testRunConfig())

	lib := &fakeLibrary{
		owned: map[string]bool{"held": true},
		fail:  map[string]error{"Rejected": &providers.StatusError{Provider: "plex", Code: http.StatusNotFound}},
	}
	checks, history, err := checkLibrary(context.Background(), env, lib, candidates)
	if err != nil {
		t.Fatalf("checkLibrary: %v", err)
	}
	if checks[0].err == nil || !checks[1].owned {
		t.Errorf("checks = %+v", checks)
	}
	got := entriesByAlbum(history)
	if e := got["Rejected"]; e.Status != models.HistorySkipped || e.Reason != models.ReasonLookupFailed {
		t.Errorf("Rejected = %+v, want skipped/lookup_failed", e)
	}
	if e := got["Held"]; e.Status != models.HistoryOwned {
		t.Errorf("Held = %+v, want owned", e)
	}

	lib.fail = map[string]error{"Rejected": &providers.StatusError{Provider: "plex", Code: http.StatusBadGateway}}
	_, _, err = checkLibrary(context.Background(), env, lib, candidates)
	var derr *DependencyError
	if !errors.As(err, &derr) || derr.Stage != stageCheckLibrary || derr.Dependency != "library" {
		t.Errorf("err = %v, want library DependencyError", err)
	}
}

func TestPriorEntries(t *testing.T) {
	env := testEnv(models.EngineReleases, testRunConfig())
	ledger := &models.Ledger{
		CompletedAt: testNow.Add(-48 * time.Hour),
		Entries: []models.HistoryEntry{
			{Artist: "A", Album: "Owned", Status: models.HistoryOwned, Date: testNow.Add(-48 * time.Hour)},
			{Artist: "A", Album: "Queued", Status: models.HistoryQueued},
			{Artist: "A", Album: "Carried", Status: models.HistoryQueued, Date: testNow.Add(-8 * 24 * time.Hour)},
			{Artist: "A", Album: "Skipped", Status: models.HistorySkipped, Reason: models.ReasonCycleCap, Date: testNow},
		},
	}
	entries := priorEntries(env, ledger)
	if len(entries) != 2 {
		t.Errorf("entries = %d, want 2", len(entries))
	}
	if _, ok := entries[ledger.Entries[2].Key()]; ok {
		t.Error("entry older than the cycle must not suppress")
	}

	ledger.CompletedAt = testNow.Add(-8 * 24 * time.Hour)
	if entries := priorEntries(env, ledger); len(entries) != 1 {
		t.Errorf("entries = %d, want only the dated Owned entry", len(entries))
	}
}

func TestBuildPlaylist_Truncates(t *testing.T) {
	cfg := testRunConfig()
	cfg.MaxPlaylistTracks = 3
	env := testEnv(models.EngineReleases, cfg)

	owned := []libraryCheck{{
		candidate: models.ReleaseCandidate{Artist: "A", Title: "Owned", ReleaseDate: daysAgo(1)},
		album:     models.LibraryAlbum{RatingKey: "10"},
		owned:     true,
	}}
	unowned := []models.ReleaseCandidate{
		{Artist: "A", Title: "Missing 1"},
		{Artist: "A", Title: "Missing 2"},
	}

	tracks := buildPlaylist(context.Background(), env, &fakeLibrary{}, owned, unowned)
	if len(tracks) != 3 {
		t.Fatalf("tracks = %d, want 3", len(tracks))
	}
	if tracks[0].RatingKey != "10-1" || tracks[1].RatingKey != "10-2" || tracks[2].Title != "Missing 1" {
		t.Errorf("tracks = %+v", tracks)
	}
	for i, tr := range tracks {
		if tr.Position != i+1 {
			t.Errorf("track %d position = %d", i, tr.Position)
		}
	}
	if keys := ownedRatingKeys(tracks); len(keys) != 2 {
		t.Errorf("owned keys = %v", keys)
	}
}

func TestErrors(t *testing.T) {
	cerr := &CandidateError{Artist: "A", Title: "T", Err: context.DeadlineExceeded}
	if !errors.Is(cerr, context.DeadlineExceeded) {
		t.Error("CandidateError does not unwrap")
	}
	derr := &DependencyError{Dependency: "library", Stage: 4, Err: cerr}
	if !errors.Is(derr, ErrDependencyUnavailable) || !errors.Is(derr, context.DeadlineExceeded) {
		t.Error("DependencyError matching")
	}
}
