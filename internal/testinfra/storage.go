// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package testinfra

import (
	"testing"

	"github.com/tomtom215/cruisecontrol/internal/config"
	"github.com/tomtom215/cruisecontrol/internal/database"
	"github.com/tomtom215/cruisecontrol/internal/kvstore"
)

// dbSemaphore limits concurrent DuckDB instances across parallel tests.
var dbSemaphore = make(chan struct{}, 2)

// NewTestDB opens a migrated in-memory DuckDB database.
func NewTestDB(t *testing.T) *database.DB {
	t.Helper()

	dbSemaphore <- struct{}{}
	t.Cleanup(func() { <-dbSemaphore })

	db, err := database.New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "256MB", Threads: 1})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("close test database: %v", err)
		}
	})
	return db
}

// NewTestKV opens an in-memory Badger store.
func NewTestKV(t *testing.T) *kvstore.Store {
	t.Helper()

	kv, err := kvstore.OpenInMemory()
	if err != nil {
		t.Fatalf("Failed to open in-memory kvstore: %v", err)
	}
	t.Cleanup(func() {
		if err := kv.Close(); err != nil {
			t.Logf("close test kvstore: %v", err)
		}
	})
	return kv
}
