// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

// Package testinfra provides shared test fixtures.
//
// Storage fixtures run fully embedded, so no Docker or network is needed:
//
//	db := testinfra.NewTestDB(t)   // in-memory DuckDB, schema migrated
//	kv := testinfra.NewTestKV(t)   // in-memory Badger
//
// CaptureServer is an httptest server that records every request, used to
// stand in for Plex, SoulSync and the other collaborators:
//
//	srv := testinfra.NewCaptureServer(t)
//	srv.Handle("/api/download", func(w http.ResponseWriter, r *http.Request) { ... })
//	client := soulsync.New(config.SoulSyncConfig{URL: srv.URL()})
//
// Fixtures register their own cleanup with t.Cleanup.
package testinfra
