// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package audit

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/cruisecontrol/internal/logging"
	"github.com/tomtom215/cruisecontrol/internal/testinfra"
)

func newTestStore(t *testing.T) *DuckDBStore {
	t.Helper()
	db := testinfra.NewTestDB(t)
	store := NewDuckDBStore(db.Conn())
	if err := store.CreateTable(context.Background()); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	return store
}

func TestDuckDBStore_SaveQueryDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	events := []Event{
		{ID: "a", Timestamp: base, Type: TypeAuthSuccess, Outcome: OutcomeSuccess, Actor: "admin", Description: "login"},
		{ID: "b", Timestamp: base.Add(time.Hour), Type: TypeQueueOverridden, Outcome: OutcomeSuccess, Actor: "admin",
			Target: "queue:7", Description: "status set to skipped", Metadata: []byte(`{"status":"skipped"}`)},
		{ID: "c", Timestamp: base.Add(2 * time.Hour), Type: TypeAuthFailure, Outcome: OutcomeFailure, Actor: "mallory",
			SourceIP: "192.0.2.9", Description: "bad password"},
	}
	for i := range events {
		if err := store.Save(ctx, &events[i]); err != nil {
			t.Fatalf("Save %s: %v", events[i].ID, err)
		}
	}

	all, err := store.Query(ctx, QueryFilter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(all) != 3 || all[0].ID != "c" || all[2].ID != "a" {
		t.Fatalf("order = %v", ids(all))
	}
	if all[0].SourceIP != "192.0.2.9" || all[0].Outcome != OutcomeFailure {
		t.Errorf("event c = %+v", all[0])
	}

	overrides, err := store.Query(ctx, QueryFilter{Type: TypeQueueOverridden})
	if err != nil {
		t.Fatal(err)
	}
	if len(overrides) != 1 || overrides[0].Target != "queue:7" || string(overrides[0].Metadata) != `{"status":"skipped"}` {
		t.Errorf("overrides = %+v", overrides)
	}

	since := base.Add(30 * time.Minute)
	recent, err := store.Query(ctx, QueryFilter{Since: &since, Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || recent[0].ID != "c" {
		t.Errorf("recent = %v", ids(recent))
	}

	n, err := store.Delete(ctx, base.Add(90*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("deleted = %d, want 2", n)
	}
}

func ids(events []Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func TestLogger_ServeWritesAndFlushes(t *testing.T) {
	store := newTestStore(t)
	l := NewLogger(store, Config{BufferSize: 8})

	ctx := logging.ContextWithRequestID(context.Background(), "req-1")
	l.Log(ctx, Event{Type: TypeCacheCleared, Outcome: OutcomeSuccess, Actor: "admin", Description: "release cache cleared"})

	serveCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Serve(serveCtx) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := l.Query(context.Background(), QueryFilter{})
		if err != nil {
			t.Fatal(err)
		}
		if len(got) == 1 {
			if got[0].ID == "" || got[0].RequestID != "req-1" || got[0].Timestamp.IsZero() {
				t.Errorf("event = %+v", got[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("event never written")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop")
	}

	// Events queued after shutdown stay buffered until the next Serve.
	l.Log(context.Background(), Event{Type: TypeRunStarted, Outcome: OutcomeSuccess, Actor: "admin", Description: "run"})
	if len(l.events) != 1 {
		t.Errorf("buffered = %d, want 1", len(l.events))
	}
	if l.String() != "audit-logger" {
		t.Errorf("String() = %q", l.String())
	}
}

func TestLogger_DropsWhenFull(t *testing.T) {
	l := NewLogger(nil, Config{BufferSize: 1})
	l.Log(context.Background(), Event{Type: TypeRunStarted, Actor: "admin"})
	l.Log(context.Background(), Event{Type: TypeRunStarted, Actor: "admin"})
	if len(l.events) != 1 {
		t.Errorf("buffered = %d, want 1", len(l.events))
	}
}

func TestLogger_CleanupEnforcesRetention(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	old := Event{ID: "old", Timestamp: now.Add(-100 * 24 * time.Hour), Type: TypeAuthSuccess, Outcome: OutcomeSuccess, Actor: "admin", Description: "x"}
	fresh := Event{ID: "fresh", Timestamp: now.Add(-time.Hour), Type: TypeAuthSuccess, Outcome: OutcomeSuccess, Actor: "admin", Description: "y"}
	for _, e := range []*Event{&old, &fresh} {
		if err := store.Save(context.Background(), e); err != nil {
			t.Fatal(err)
		}
	}

	l := NewLogger(store, Config{})
	l.now = func() time.Time { return now }
	l.cleanup(context.Background())

	got, err := store.Query(context.Background(), QueryFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "fresh" {
		t.Errorf("remaining = %v", ids(got))
	}
}
