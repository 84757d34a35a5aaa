// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/cruisecontrol/internal/database"
	"github.com/tomtom215/cruisecontrol/internal/filter"
	"github.com/tomtom215/cruisecontrol/internal/metrics"
	"github.com/tomtom215/cruisecontrol/internal/models"
	"github.com/tomtom215/cruisecontrol/internal/providers"
	"github.com/tomtom215/cruisecontrol/internal/releasecache"
)

// Stage numbers. Build mode reports stageCheckLibrary as its last stage and
// runs the playlist step under it.
const (
	stagePollHistory   = 1
	stageResolve       = 2
	stageFindReleases  = 3
	stageCheckLibrary  = 4
	stageQueueTracks   = 5
	stageCreatePublish = 6
)

var fetchStageNames = []string{
	"Poll History",
	"Resolve Artists",
	"Find New Releases",
	"Check Library",
	"Queue Tracks",
	"Create & Publish",
}

var buildStageNames = []string{
	"Poll History",
	"Resolve Artists",
	"Find New Releases",
	"Check Library & Build Playlist",
}

// StageName returns the reported name of stage n for mode.
func StageName(mode models.RunMode, n int) string {
	names := buildStageNames
	if mode == models.RunModeFetch {
		names = fetchStageNames
	}
	if n < 1 || n > len(names) {
		return ""
	}
	return names[n-1]
}

// stageEnv carries the read-only inputs shared by every stage of one run.
type stageEnv struct {
	cfg          models.RunConfig
	engine       models.Engine
	filter       *filter.Filter
	concurrency  int
	historyCycle time.Duration
	now          time.Time
	logger       zerolog.Logger
}

// pollHistory keeps the top artists with at least min_scrobbles plays.
func pollHistory(ctx context.Context, env stageEnv, hp HistoryProvider) ([]string, error) {
	top, err := hp.TopArtists(ctx, env.cfg.SeedPeriod)
	if err != nil {
		return nil, &DependencyError{Dependency: "history provider", Stage: stagePollHistory, Err: err}
	}
	seeds := make([]string, 0, len(top))
	for _, a := range top {
		if strings.TrimSpace(a.Name) == "" || a.PlayCount < env.cfg.MinScrobbles {
			continue
		}
		seeds = append(seeds, a.Name)
	}
	return seeds, nil
}

// resolveArtists dedupes seeds (first occurrence wins) and removes ignored
// artists. The discovery engine replaces the seeds with their similar
// artists above the closeness threshold.
func resolveArtists(ctx context.Context, env stageEnv, hp HistoryProvider, seeds []string) ([]string, error) {
	seeds = dedupeArtists(seeds, nil)
	if env.engine != models.EngineDiscovery {
		return dropIgnored(env, seeds), nil
	}

	expand := dropIgnored(env, seeds)
	if len(expand) == 0 {
		return nil, nil
	}

	limit := 5 * env.cfg.Closeness
	minMatch := float64(10-env.cfg.Closeness) / 10

	similar := make([][]models.SimilarArtist, len(expand))
	skip := func(i int, err error) {
		cerr := &CandidateError{Artist: expand[i], Err: err}
		env.logger.Warn().Err(cerr).Msg("Similar artist lookup failed, skipping seed")
		metrics.RunLookupFailures.WithLabelValues(string(env.engine), "similar").Inc()
	}

	next := 0
	for next < len(expand) {
		i := next
		next++
		list, err := hp.SimilarArtists(ctx, expand[i], limit)
		if err == nil {
			similar[i] = list
			break
		}
		if providers.Unavailable(err) {
			return nil, &DependencyError{Dependency: "history provider", Stage: stageResolve, Err: err}
		}
		skip(i, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(env.concurrency)
	for i := next; i < len(expand); i++ {
		g.Go(func() error {
			list, err := hp.SimilarArtists(gctx, expand[i], limit)
			if err != nil {
				skip(i, err)
				return nil
			}
			similar[i] = list
			return nil
		})
	}
	_ = g.Wait()

	exclude := make(map[string]struct{}, len(seeds))
	for _, s := range seeds {
		exclude[models.NormalizeName(s)] = struct{}{}
	}

	var names []string
	for _, list := range similar {
		taken := 0
		for _, s := range list {
			if taken >= limit {
				break
			}
			if s.Match < minMatch {
				continue
			}
			names = append(names, s.Name)
			taken++
		}
	}
	return dropIgnored(env, dedupeArtists(names, exclude)), nil
}

func dedupeArtists(names []string, exclude map[string]struct{}) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		key := models.NormalizeName(n)
		if key == "" {
			continue
		}
		if _, ok := exclude[key]; ok {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, strings.TrimSpace(n))
	}
	return out
}

func dropIgnored(env stageEnv, names []string) []string {
	out := names[:0:0]
	for _, n := range names {
		if env.filter.IgnoreArtist(n) {
			env.logger.Debug().Str("artist", n).Msg("Artist ignored")
			continue
		}
		out = append(out, n)
	}
	return out
}

// findReleases collects each artist's recent releases, filters them and
// orders them by discovery order, then release date descending. It also
// returns the prior ledger entries that suppressed a release, to be carried
// into the next ledger unchanged.
func findReleases(ctx context.Context, env stageEnv, src ReleaseSource, artists []string, prior *models.Ledger) ([]models.ReleaseCandidate, []models.HistoryEntry, error) {
	if len(artists) == 0 {
		return nil, nil, nil
	}

	slots := make([][]models.ReleaseCandidate, len(artists))
	skip := func(i int, err error) {
		cerr := &CandidateError{Artist: artists[i], Err: err}
		env.logger.Warn().Err(cerr).Msg("Release lookup failed, skipping artist")
		metrics.RunLookupFailures.WithLabelValues(string(env.engine), "releases").Inc()
	}

	// Artists are tried in order until the source answers once. Only an
	// unavailable source aborts; a rejected artist is skipped.
	next := 0
	for next < len(artists) {
		i := next
		next++
		res, err := src.GetOrRefresh(ctx, artists[i])
		if err == nil {
			slots[i] = entryReleases(res)
			break
		}
		if providers.Unavailable(err) {
			return nil, nil, &DependencyError{Dependency: "release source", Stage: stageFindReleases, Err: err}
		}
		skip(i, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(env.concurrency)
	for i := next; i < len(artists); i++ {
		g.Go(func() error {
			res, err := src.GetOrRefresh(gctx, artists[i])
			if err != nil {
				skip(i, err)
				return nil
			}
			slots[i] = entryReleases(res)
			return nil
		})
	}
	_ = g.Wait()

	cutoff := startOfDay(env.now).AddDate(0, 0, -env.cfg.LookbackDays)
	recent := priorEntries(env, prior)
	var carried []models.HistoryEntry
	carriedKeys := make(map[string]struct{})

	var out []models.ReleaseCandidate
	for i, releases := range slots {
		for _, r := range releases {
			c := r
			c.ArtistOrder = i
			if strings.TrimSpace(c.Artist) == "" {
				c.Artist = artists[i]
			}
			if strings.TrimSpace(c.Title) == "" {
				continue
			}
			if reason, drop := env.filter.IgnoreRelease(c); drop {
				env.logger.Debug().Str("artist", c.Artist).Str("title", c.Title).Str("reason", reason).Msg("Release ignored")
				continue
			}
			if c.ReleaseDate.IsZero() || c.ReleaseDate.Before(cutoff) {
				continue
			}
			if e, ok := recent[c.Key()]; ok {
				if _, dup := carriedKeys[c.Key()]; !dup {
					carriedKeys[c.Key()] = struct{}{}
					carried = append(carried, e)
				}
				continue
			}
			out = append(out, c)
		}
	}

	sort.SliceStable(out, func(a, b int) bool {
		if out[a].ArtistOrder != out[b].ArtistOrder {
			return out[a].ArtistOrder < out[b].ArtistOrder
		}
		return out[a].ReleaseDate.After(out[b].ReleaseDate)
	})

	seen := make(map[string]struct{}, len(out))
	deduped := out[:0]
	for _, c := range out {
		if _, ok := seen[c.Key()]; ok {
			continue
		}
		seen[c.Key()] = struct{}{}
		deduped = append(deduped, c)
	}
	return deduped, carried, nil
}

func entryReleases(res releasecache.Result) []models.ReleaseCandidate {
	if res.Entry == nil {
		return nil
	}
	return res.Entry.Releases
}

// priorEntries returns the owned/queued entries of the prior ledger whose
// own date is within the current history cycle, keyed by release. Entries
// carried forward keep their first date, so suppression ends one cycle after
// the release was first owned or queued.
func priorEntries(env stageEnv, prior *models.Ledger) map[string]models.HistoryEntry {
	entries := make(map[string]models.HistoryEntry)
	if prior == nil {
		return entries
	}
	for _, e := range prior.Entries {
		if e.Status != models.HistoryOwned && e.Status != models.HistoryQueued {
			continue
		}
		date := e.Date
		if date.IsZero() {
			date = prior.CompletedAt
		}
		if env.now.Sub(date) >= env.historyCycle {
			continue
		}
		entries[e.Key()] = e
	}
	return entries
}

// libraryCheck is the ownership verdict for one candidate.
type libraryCheck struct {
	candidate models.ReleaseCandidate
	album     models.LibraryAlbum
	owned     bool
	err       error
}

// checkLibrary asks the oracle about every candidate. Candidates are tried
// in order until the library answers once; an unavailable library aborts the
// stage there. Every other failure is recorded as lookup_failed.
func checkLibrary(ctx context.Context, env stageEnv, lib LibraryOracle, candidates []models.ReleaseCandidate) ([]libraryCheck, []models.HistoryEntry, error) {
	if len(candidates) == 0 {
		return nil, nil, nil
	}

	checks := make([]libraryCheck, len(candidates))
	lookup := func(ctx context.Context, i int) error {
		c := candidates[i]
		album, owned, err := lib.FindAlbum(ctx, c.Artist, c.Title)
		checks[i] = libraryCheck{candidate: c, album: album, owned: owned}
		if err != nil {
			checks[i].err = &CandidateError{Artist: c.Artist, Title: c.Title, Err: err}
			env.logger.Warn().Err(checks[i].err).Msg("Library lookup failed")
			metrics.RunLookupFailures.WithLabelValues(string(env.engine), "library").Inc()
		}
		return err
	}

	next := 0
	for next < len(candidates) {
		i := next
		next++
		err := lookup(ctx, i)
		if err == nil {
			break
		}
		if providers.Unavailable(err) {
			return nil, nil, &DependencyError{Dependency: "library", Stage: stageCheckLibrary, Err: err}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(env.concurrency)
	for i := next; i < len(candidates); i++ {
		g.Go(func() error {
			_ = lookup(gctx, i)
			return nil
		})
	}
	_ = g.Wait()

	var history []models.HistoryEntry
	for _, chk := range checks {
		switch {
		case chk.err != nil:
			history = append(history, historyEntry(env, chk.candidate, models.HistorySkipped, models.ReasonLookupFailed))
		case chk.owned:
			history = append(history, historyEntry(env, chk.candidate, models.HistoryOwned, ""))
		}
	}
	return checks, history, nil
}

// queueTracks decides the acquisition outcome of every unowned candidate in
// discovery order. Dry runs make the same decisions without writing.
func queueTracks(ctx context.Context, env stageEnv, store Store, unowned []models.ReleaseCandidate, playlistName string) ([]models.HistoryEntry, int, error) {
	today := startOfDay(env.now)
	history := make([]models.HistoryEntry, 0, len(unowned))
	queued := 0

	for _, c := range unowned {
		if startOfDay(c.ReleaseDate).After(today) {
			history = append(history, historyEntry(env, c, models.HistorySkipped, models.ReasonUnreleased))
			continue
		}

		existing, err := store.FindQueueItem(ctx, c.Artist, c.Title, c.Kind)
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			return nil, 0, fmt.Errorf("look up queue item %q by %q: %w", c.Title, c.Artist, err)
		}
		if existing != nil && existing.Status.Active() {
			history = append(history, historyEntry(env, c, models.HistoryQueued, models.ReasonAlreadyQueued))
			continue
		}

		if queued >= env.cfg.MaxPerCycle {
			history = append(history, historyEntry(env, c, models.HistorySkipped, models.ReasonCycleCap))
			continue
		}

		if !env.cfg.DryRun {
			res, err := store.Enqueue(ctx, models.EnqueueRequest{
				Artist:       c.Artist,
				Album:        c.Title,
				Kind:         c.Kind,
				ReleaseDate:  c.ReleaseDateString(),
				RequestedBy:  models.RequestedByRun,
				PlaylistName: playlistName,
			})
			if err != nil {
				return nil, 0, fmt.Errorf("enqueue %q by %q: %w", c.Title, c.Artist, err)
			}
			if res.Outcome == models.EnqueueAlreadyQueued {
				history = append(history, historyEntry(env, c, models.HistoryQueued, models.ReasonAlreadyQueued))
				continue
			}
		}
		queued++
		history = append(history, historyEntry(env, c, models.HistoryQueued, ""))
	}
	return history, queued, nil
}

// buildPlaylist lists the owned releases expanded to their tracks followed
// by album placeholders for the unowned ones, truncated to max_playlist_tracks.
func buildPlaylist(ctx context.Context, env stageEnv, lib LibraryOracle, owned []libraryCheck, unowned []models.ReleaseCandidate) []models.PlaylistTrack {
	expanded := make([][]models.PlaylistTrack, len(owned))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(env.concurrency)
	for i := range owned {
		g.Go(func() error {
			chk := owned[i]
			album := albumLine(chk.candidate, true)
			album.RatingKey = chk.album.RatingKey

			tracks, err := lib.AlbumTracks(gctx, chk.album.RatingKey)
			if err != nil || len(tracks) == 0 {
				if err != nil {
					env.logger.Warn().Err(err).Str("artist", chk.candidate.Artist).Str("album", chk.candidate.Title).Msg("Track listing failed, adding album")
				}
				expanded[i] = []models.PlaylistTrack{album}
				return nil
			}
			lines := make([]models.PlaylistTrack, 0, len(tracks))
			for _, t := range tracks {
				line := album
				line.Title = t.Title
				line.RatingKey = t.RatingKey
				lines = append(lines, line)
			}
			expanded[i] = lines
			return nil
		})
	}
	_ = g.Wait()

	limit := env.cfg.MaxPlaylistTracks
	tracks := make([]models.PlaylistTrack, 0, limit)
	add := func(t models.PlaylistTrack) bool {
		if len(tracks) >= limit {
			return false
		}
		t.Position = len(tracks) + 1
		tracks = append(tracks, t)
		return true
	}

	for _, lines := range expanded {
		for _, t := range lines {
			if !add(t) {
				return tracks
			}
		}
	}
	for _, c := range unowned {
		if !add(albumLine(c, false)) {
			break
		}
	}
	return tracks
}

func albumLine(c models.ReleaseCandidate, owned bool) models.PlaylistTrack {
	return models.PlaylistTrack{
		Title:       c.Title,
		Artist:      c.Artist,
		Album:       c.Title,
		Owned:       owned,
		ReleaseDate: c.ReleaseDateString(),
	}
}

// ownedRatingKeys returns the rating keys of the owned playlist lines.
func ownedRatingKeys(tracks []models.PlaylistTrack) []string {
	keys := make([]string, 0, len(tracks))
	for _, t := range tracks {
		if t.Owned && t.RatingKey != "" {
			keys = append(keys, t.RatingKey)
		}
	}
	return keys
}

func historyEntry(env stageEnv, c models.ReleaseCandidate, status models.HistoryStatus, reason string) models.HistoryEntry {
	return models.HistoryEntry{
		Artist: c.Artist,
		Album:  c.Title,
		Status: status,
		Reason: reason,
		Date:   env.now,
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
