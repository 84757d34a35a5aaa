// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package acquisition

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/cruisecontrol/internal/config"
	"github.com/tomtom215/cruisecontrol/internal/models"
	"github.com/tomtom215/cruisecontrol/internal/providers/soulsync"
	"github.com/tomtom215/cruisecontrol/internal/testinfra"
)

// TestReconcile_SoulSyncBareStatuses runs the reconciler against the real
// SoulSync client with a server that answers 409 and 404 without bodies.
func TestReconcile_SoulSyncBareStatuses(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/download", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), `"album_name":"Known"`) {
			w.WriteHeader(http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"77"}`))
	})
	mux.HandleFunc("GET /api/download/{ref}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	backend := soulsync.New(config.SoulSyncConfig{Enabled: true, URL: srv.URL, APIKey: "k", Timeout: 5 * time.Second})
	db := testinfra.NewTestDB(t)
	r := NewReconciler(db, backend, nil, Config{TimeoutDays: 30})

	known := enqueue(t, db, "Tycho", "Known")
	fresh := enqueue(t, db, "Ballyhoo!", "Daydreamer")

	report, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if report.Submitted != 2 || report.Errors != 0 {
		t.Fatalf("first pass = %+v, want 2 submitted and no errors", report)
	}
	got := statusOf(t, db, known.ID)
	if got.Status != models.QueueSubmitted || got.Detail != "already queued at backend" {
		t.Errorf("409 item = %+v", got)
	}
	if got := statusOf(t, db, fresh.ID); got.Status != models.QueueSubmitted || got.BackendRef != "77" {
		t.Errorf("created item = %+v", got)
	}

	report, err = r.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if report.Skipped != 1 || report.Errors != 0 {
		t.Errorf("second pass = %+v, want the missing job skipped", report)
	}
	if got := statusOf(t, db, fresh.ID); got.Status != models.QueueSkipped {
		t.Errorf("missing job status = %s, want skipped", got.Status)
	}
	if state := backend.Breaker().State(); state != "closed" {
		t.Errorf("breaker = %s, want closed", state)
	}
}
