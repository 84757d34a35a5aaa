// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package releasecache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/cruisecontrol/internal/kvstore"
	"github.com/tomtom215/cruisecontrol/internal/models"
)

type fakeFetcher struct {
	mu       sync.Mutex
	calls    map[string]int
	releases map[string][]models.ReleaseCandidate
	fail     atomic.Bool
	delay    time.Duration
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{calls: map[string]int{}, releases: map[string][]models.ReleaseCandidate{}}
}

func (f *fakeFetcher) ArtistReleases(_ context.Context, artist string) ([]models.ReleaseCandidate, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[artist]++
	if f.fail.Load() {
		return nil, errors.New("metadata source unavailable")
	}
	return f.releases[artist], nil
}

func (f *fakeFetcher) count(artist string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[artist]
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCache(t *testing.T, f Fetcher) (*Cache, *testClock) {
	t.Helper()
	store, err := kvstore.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	clock := &testClock{now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
	c := New(store, f, Config{MaxAge: 7 * 24 * time.Hour, Concurrency: 2})
	c.now = clock.Now
	return c, clock
}

func release(artist, title string) models.ReleaseCandidate {
	return models.ReleaseCandidate{Artist: artist, Title: title, Kind: models.KindAlbum}
}

func TestGetOrRefresh_CachesWithinInterval(t *testing.T) {
	f := newFakeFetcher()
	f.releases["Big Thief"] = []models.ReleaseCandidate{release("Big Thief", "Double Infinity")}
	c, clock := newTestCache(t, f)
	ctx := context.Background()

	res, err := c.GetOrRefresh(ctx, "Big Thief")
	if err != nil {
		t.Fatalf("GetOrRefresh: %v", err)
	}
	if !res.Fetched || len(res.Entry.Releases) != 1 {
		t.Fatalf("first lookup = %+v", res)
	}

	clock.Advance(6 * 24 * time.Hour)
	res, err = c.GetOrRefresh(ctx, "big thief")
	if err != nil {
		t.Fatalf("GetOrRefresh: %v", err)
	}
	if res.Fetched || f.count("Big Thief") != 1 {
		t.Errorf("lookup within interval must be served from cache (calls=%d)", f.count("Big Thief"))
	}

	clock.Advance(24 * time.Hour)
	res, err = c.GetOrRefresh(ctx, "Big Thief")
	if err != nil {
		t.Fatalf("GetOrRefresh: %v", err)
	}
	if !res.Fetched || f.count("Big Thief") != 2 {
		t.Errorf("lookup at the interval must refetch (calls=%d)", f.count("Big Thief"))
	}
}

func TestGetOrRefresh_ServesStaleOnFailure(t *testing.T) {
	f := newFakeFetcher()
	f.releases["A"] = []models.ReleaseCandidate{release("A", "X")}
	c, clock := newTestCache(t, f)
	ctx := context.Background()

	if _, err := c.GetOrRefresh(ctx, "A"); err != nil {
		t.Fatalf("warm: %v", err)
	}

	clock.Advance(8 * 24 * time.Hour)
	f.fail.Store(true)

	res, err := c.GetOrRefresh(ctx, "A")
	if err != nil {
		t.Fatalf("stale entry should be served, got error %v", err)
	}
	if !res.Stale || len(res.Entry.Releases) != 1 || res.Entry.Releases[0].Title != "X" {
		t.Errorf("result = %+v", res)
	}
}

func TestGetOrRefresh_ColdFailureReturnsError(t *testing.T) {
	f := newFakeFetcher()
	f.fail.Store(true)
	c, _ := newTestCache(t, f)

	_, err := c.GetOrRefresh(context.Background(), "Nobody")
	var miss *MissError
	if !errors.As(err, &miss) || miss.Artist != "Nobody" {
		t.Fatalf("err = %v, want MissError for Nobody", err)
	}
	if miss.Err == nil || miss.Unwrap() == nil {
		t.Error("MissError must keep the fetch failure")
	}
	if _, err := c.GetOrRefresh(context.Background(), "  "); err == nil {
		t.Error("empty artist must be rejected")
	}
}

func TestGetOrRefresh_SharesConcurrentFetches(t *testing.T) {
	f := newFakeFetcher()
	f.delay = 50 * time.Millisecond
	f.releases["A"] = []models.ReleaseCandidate{release("A", "X")}
	c, _ := newTestCache(t, f)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.GetOrRefresh(context.Background(), "A"); err != nil {
				t.Errorf("GetOrRefresh: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := f.count("A"); n != 1 {
		t.Errorf("fetch calls = %d, want 1", n)
	}
}

func TestForceRefreshAll(t *testing.T) {
	f := newFakeFetcher()
	c, _ := newTestCache(t, f)
	ctx := context.Background()

	for _, a := range []string{"A", "B"} {
		if _, err := c.GetOrRefresh(ctx, a); err != nil {
			t.Fatalf("warm %s: %v", a, err)
		}
	}
	if err := c.ForceRefreshAll(); err != nil {
		t.Fatalf("ForceRefreshAll: %v", err)
	}
	artists, err := c.Artists()
	if err != nil {
		t.Fatalf("Artists: %v", err)
	}
	if len(artists) != 0 {
		t.Errorf("artists after clear = %v", artists)
	}
	if c.Peek("A") != nil {
		t.Error("Peek after clear should return nil")
	}

	if _, err := c.GetOrRefresh(ctx, "A"); err != nil {
		t.Fatalf("GetOrRefresh: %v", err)
	}
	if f.count("A") != 2 {
		t.Errorf("access after clear must be a cold fetch (calls=%d)", f.count("A"))
	}
}

func TestScheduledRefresh(t *testing.T) {
	f := newFakeFetcher()
	c, clock := newTestCache(t, f)
	ctx := context.Background()

	for _, a := range []string{"A", "B", "C"} {
		if _, err := c.GetOrRefresh(ctx, a); err != nil {
			t.Fatalf("warm %s: %v", a, err)
		}
	}
	clock.Advance(time.Hour)
	f.releases["B"] = []models.ReleaseCandidate{release("B", "New")}

	report, err := c.ScheduledRefresh(ctx)
	if err != nil {
		t.Fatalf("ScheduledRefresh: %v", err)
	}
	if report.Artists != 3 || report.Refreshed != 3 || report.Failed != 0 {
		t.Errorf("report = %+v", report)
	}

	// The refreshed entry is now served without another fetch.
	res, err := c.GetOrRefresh(ctx, "B")
	if err != nil {
		t.Fatalf("GetOrRefresh: %v", err)
	}
	if res.Fetched || len(res.Entry.Releases) != 1 {
		t.Errorf("B after refresh = %+v", res)
	}
	if f.count("B") != 2 {
		t.Errorf("B fetch calls = %d, want 2", f.count("B"))
	}

	f.fail.Store(true)
	report, err = c.ScheduledRefresh(ctx)
	if err != nil {
		t.Fatalf("ScheduledRefresh with failures: %v", err)
	}
	if report.Failed != 3 {
		t.Errorf("failed = %d, want 3", report.Failed)
	}
	if c.Peek("B") == nil {
		t.Error("failed refresh must keep the old entry")
	}
}
