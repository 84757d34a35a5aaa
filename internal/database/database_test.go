// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package database

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/cruisecontrol/internal/config"
	"github.com/tomtom215/cruisecontrol/internal/models"
)

// testDBSemaphore limits concurrent DuckDB instances across parallel tests.
var testDBSemaphore = make(chan struct{}, 2)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() { <-testDBSemaphore })

	db, err := New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "256MB", Threads: 1})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("close: %v", err)
		}
	})
	return db
}

func checkNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNew_SchemaVersion(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	checkNoError(t, db.Ping(ctx))
	version, err := db.GetCurrentSchemaVersion(ctx)
	checkNoError(t, err)
	if version != len(migrations) {
		t.Errorf("schema version = %d, want %d", version, len(migrations))
	}

	// Re-running migrations is a no-op.
	checkNoError(t, db.runVersionedMigrations())
}

func TestEnqueue_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	req := models.EnqueueRequest{Artist: "Ballyhoo!", Album: "Daydreams", Kind: models.KindAlbum, RequestedBy: models.RequestedByRun}
	first, err := db.Enqueue(ctx, req)
	checkNoError(t, err)
	if first.Outcome != models.EnqueueCreated || first.Item.Status != models.QueuePending {
		t.Fatalf("first enqueue = %+v", first)
	}

	// Same identity modulo case and punctuation.
	second, err := db.Enqueue(ctx, models.EnqueueRequest{Artist: "ballyhoo", Album: "DAYDREAMS"})
	checkNoError(t, err)
	if second.Outcome != models.EnqueueAlreadyQueued {
		t.Errorf("second outcome = %s, want already_queued", second.Outcome)
	}
	if second.Item.ID != first.Item.ID || second.Item.Artist != "Ballyhoo!" {
		t.Errorf("already_queued must return the untouched row, got %+v", second.Item)
	}

	stats, err := db.QueueStats(ctx)
	checkNoError(t, err)
	if stats.Total != 1 || stats.Pending != 1 {
		t.Errorf("stats = %+v, want one pending row", stats)
	}
}

func TestEnqueue_KindIsPartOfIdentity(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.Enqueue(ctx, models.EnqueueRequest{Artist: "A", Album: "X", Kind: models.KindAlbum})
	checkNoError(t, err)
	res, err := db.Enqueue(ctx, models.EnqueueRequest{Artist: "A", Album: "X", Kind: models.KindSingle})
	checkNoError(t, err)
	if res.Outcome != models.EnqueueCreated {
		t.Errorf("different kind should create a new row, got %s", res.Outcome)
	}
}

func TestEnqueue_RequeuesSettledRow(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	res, err := db.Enqueue(ctx, models.EnqueueRequest{Artist: "A", Album: "X"})
	checkNoError(t, err)

	ok, err := db.AdvanceStatus(ctx, res.Item.ID, []models.QueueStatus{models.QueuePending}, models.QueueFailed, QueueUpdate{Detail: "timeout"})
	checkNoError(t, err)
	if !ok {
		t.Fatal("advance pending -> failed should succeed")
	}

	again, err := db.Enqueue(ctx, models.EnqueueRequest{Artist: "A", Album: "X", PlaylistName: "New Music_2026-03-02"})
	checkNoError(t, err)
	if again.Outcome != models.EnqueueRequeued {
		t.Fatalf("outcome = %s, want requeued", again.Outcome)
	}
	if again.Item.ID != res.Item.ID || again.Item.Status != models.QueuePending || again.Item.Detail != "" {
		t.Errorf("requeued item = %+v", again.Item)
	}
	if again.Item.PlaylistName != "New Music_2026-03-02" {
		t.Errorf("PlaylistName = %q", again.Item.PlaylistName)
	}
}

func TestEnqueue_Concurrent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := db.Enqueue(ctx, models.EnqueueRequest{Artist: "A", Album: "X"})
			if err != nil {
				t.Errorf("enqueue: %v", err)
				return
			}
			if res.Outcome == models.EnqueueCreated {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Errorf("created = %d, want exactly 1", created)
	}
}

func TestAdvanceStatus_Conditional(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	res, err := db.Enqueue(ctx, models.EnqueueRequest{Artist: "A", Album: "X"})
	checkNoError(t, err)
	id := res.Item.ID

	ok, err := db.AdvanceStatus(ctx, id, []models.QueueStatus{models.QueuePending}, models.QueueSubmitted, QueueUpdate{BackendRef: "job-1"})
	checkNoError(t, err)
	if !ok {
		t.Fatal("pending -> submitted should apply")
	}

	// Stale expectation: row is no longer pending.
	ok, err = db.AdvanceStatus(ctx, id, []models.QueueStatus{models.QueuePending}, models.QueueFailed, QueueUpdate{})
	checkNoError(t, err)
	if ok {
		t.Error("conditional update must not apply when status moved")
	}

	item, err := db.GetQueueItem(ctx, id)
	checkNoError(t, err)
	if item.Status != models.QueueSubmitted || item.BackendRef != "job-1" || item.SubmittedAt == nil {
		t.Errorf("item = %+v", item)
	}

	if _, err := db.AdvanceStatus(ctx, id, []models.QueueStatus{models.QueueSubmitted}, "bogus", QueueUpdate{}); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestListQueue_FilterAndActive(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for _, album := range []string{"One", "Two", "Three"} {
		_, err := db.Enqueue(ctx, models.EnqueueRequest{Artist: "A", Album: album})
		checkNoError(t, err)
	}
	two, err := db.FindQueueItem(ctx, "a", "two", "")
	checkNoError(t, err)
	_, err = db.SetQueueStatus(ctx, two.ID, models.QueueFound, "in library")
	checkNoError(t, err)

	found, err := db.ListQueue(ctx, QueueFilter{Status: models.QueueFound})
	checkNoError(t, err)
	if len(found) != 1 || found[0].Album != "Two" || found[0].Detail != "in library" {
		t.Errorf("found = %+v", found)
	}

	active, err := db.ListActive(ctx)
	checkNoError(t, err)
	if len(active) != 2 || active[0].Album != "One" {
		t.Errorf("active = %+v", active)
	}

	limited, err := db.ListQueue(ctx, QueueFilter{Limit: 1})
	checkNoError(t, err)
	if len(limited) != 1 {
		t.Errorf("limit 1 returned %d rows", len(limited))
	}

	if _, err := db.ListQueue(ctx, QueueFilter{Status: "bogus"}); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestDeleteQueueItem(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	res, err := db.Enqueue(ctx, models.EnqueueRequest{Artist: "A", Album: "X"})
	checkNoError(t, err)
	checkNoError(t, db.DeleteQueueItem(ctx, res.Item.ID))

	if err := db.DeleteQueueItem(ctx, res.Item.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
	if _, err := db.FindQueueItem(ctx, "A", "X", models.KindAlbum); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindQueueItem after delete: expected ErrNotFound, got %v", err)
	}
}

func TestReplaceLedger(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.LatestLedger(ctx, models.EngineReleases); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty store: expected ErrNotFound, got %v", err)
	}

	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	first := &models.Ledger{
		RunID: "run-1", Engine: models.EngineReleases, RunMode: models.RunModeFetch, CompletedAt: now,
		Summary: models.Summary{ArtistsChecked: 1, NewReleases: 2, Owned: 1, Queued: 1},
		Entries: []models.HistoryEntry{
			{Artist: "A", Album: "X", Status: models.HistoryQueued, Date: now},
			{Artist: "A", Album: "Y", Status: models.HistoryOwned, Date: now},
		},
	}
	checkNoError(t, db.ReplaceLedger(ctx, first))

	second := &models.Ledger{
		RunID: "run-2", Engine: models.EngineReleases, RunMode: models.RunModeBuild, CompletedAt: now.Add(time.Hour),
		Entries: []models.HistoryEntry{
			{Artist: "B", Album: "Z", Status: models.HistorySkipped, Reason: models.ReasonPlaylistMode, Date: now},
		},
	}
	checkNoError(t, db.ReplaceLedger(ctx, second))

	// Other engines are untouched.
	other := &models.Ledger{RunID: "run-3", Engine: models.EngineDiscovery, RunMode: models.RunModeBuild, CompletedAt: now}
	checkNoError(t, db.ReplaceLedger(ctx, other))

	got, err := db.LatestLedger(ctx, models.EngineReleases)
	checkNoError(t, err)
	if got.RunID != "run-2" || len(got.Entries) != 1 {
		t.Fatalf("ledger = %+v", got)
	}
	if e := got.Entries[0]; e.Artist != "B" || e.Reason != models.ReasonPlaylistMode || e.Status != models.HistorySkipped {
		t.Errorf("entry = %+v", e)
	}

	disc, err := db.LatestLedger(ctx, models.EngineDiscovery)
	checkNoError(t, err)
	if disc.RunID != "run-3" || len(disc.Entries) != 0 {
		t.Errorf("discovery ledger = %+v", disc)
	}
}

func TestPlaylists(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	p := &models.Playlist{
		Name: "New Music_2026-03-02", Engine: models.EngineReleases, RunID: "run-1",
		CreatedAt: time.Now(),
		Tracks: []models.PlaylistTrack{
			{Position: 1, Title: "Song", Artist: "A", Album: "Y", RatingKey: "123", Owned: true},
			{Position: 2, Title: "X", Artist: "A", Album: "X", Owned: false, ReleaseDate: "2026-02-20"},
		},
	}
	id, err := db.SavePlaylist(ctx, p)
	checkNoError(t, err)
	checkNoError(t, db.SetPlaylistPublished(ctx, id, "9001"))

	gotID, got, err := db.LatestPlaylist(ctx, models.EngineReleases)
	checkNoError(t, err)
	if gotID != id || got.PublishedID != "9001" || len(got.Tracks) != 2 {
		t.Fatalf("playlist = %d %+v", gotID, got)
	}
	if got.Tracks[0].RatingKey != "123" || got.Tracks[1].Owned || got.Tracks[1].ReleaseDate != "2026-02-20" {
		t.Errorf("tracks = %+v", got.Tracks)
	}

	if _, _, err := db.LatestPlaylist(ctx, models.EngineDiscovery); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSettings(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.GetSetting(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	checkNoError(t, db.SetSetting(ctx, "schedule.enabled", "true"))
	checkNoError(t, db.SetSetting(ctx, "schedule.enabled", "false"))
	v, err := db.GetSetting(ctx, "schedule.enabled")
	checkNoError(t, err)
	if v != "false" {
		t.Errorf("value = %q, want false", v)
	}

	rc := models.RunConfig{RunMode: models.RunModeFetch, MaxPerCycle: 5, PlaylistPrefix: "NM"}
	checkNoError(t, db.SetJSONSetting(ctx, "runconfig.releases", rc))
	var back models.RunConfig
	checkNoError(t, db.GetJSONSetting(ctx, "runconfig.releases", &back))
	if back != rc {
		t.Errorf("round trip = %+v, want %+v", back, rc)
	}
}

func TestRecordRun(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	start := time.Now().Add(-time.Minute)
	st := models.RunStatus{
		Engine: models.EngineReleases, State: models.RunStateError, RunID: "r1",
		RunMode: models.RunModeFetch, StartedAt: &start, Error: "history provider unavailable",
	}
	checkNoError(t, db.RecordRun(ctx, st, time.Now()))

	st.State = models.RunStateRunning
	st.RunID = "r2"
	if err := db.RecordRun(ctx, st, time.Now()); err == nil {
		t.Error("non-terminal status should be rejected")
	}

	runs, err := db.RecentRuns(ctx, models.EngineReleases, 5)
	checkNoError(t, err)
	if len(runs) != 1 || runs[0].Error != "history provider unavailable" || runs[0].State != models.RunStateError {
		t.Errorf("runs = %+v", runs)
	}
}
