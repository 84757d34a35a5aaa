// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

/*
schema.go - Database Schema Management

Tables:
  - acquisition_queue: one row per (artist, album, kind) requested for download,
    keyed on normalized names so "Ballyhoo!" and "ballyhoo" share a row
  - history_ledgers: header row per engine for the last completed run
  - history_entries: per-release outcomes of that run
  - playlists / playlist_tracks: generated playlists, newest per engine served
  - settings: string key/value pairs (runtime config overrides, scheduler state)

Timestamps are stored as UTC TIMESTAMP values.

Columns that are updated in place (status, detail, published_id) are never
indexed; DuckDB rewrites updates of indexed columns as delete+insert, which
trips unique constraints inside a transaction.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	return nil
}

var tableCreationQueries = []string{
	`CREATE SEQUENCE IF NOT EXISTS acquisition_queue_seq START 1`,
	`CREATE TABLE IF NOT EXISTS acquisition_queue (
		id BIGINT PRIMARY KEY DEFAULT nextval('acquisition_queue_seq'),
		artist TEXT NOT NULL,
		album TEXT NOT NULL,
		kind TEXT NOT NULL,
		artist_key TEXT NOT NULL,
		album_key TEXT NOT NULL,
		status TEXT NOT NULL,
		release_date TEXT,
		requested_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		submitted_at TIMESTAMP,
		backend_ref TEXT,
		detail TEXT,
		requested_by TEXT NOT NULL,
		playlist_name TEXT,
		UNIQUE (artist_key, album_key, kind)
	)`,

	`CREATE TABLE IF NOT EXISTS history_ledgers (
		run_id TEXT PRIMARY KEY,
		engine TEXT NOT NULL,
		run_mode TEXT NOT NULL,
		completed_at TIMESTAMP NOT NULL,
		artists_checked INTEGER NOT NULL,
		new_releases INTEGER NOT NULL,
		owned INTEGER NOT NULL,
		queued INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS history_entries (
		run_id TEXT NOT NULL,
		engine TEXT NOT NULL,
		position INTEGER NOT NULL,
		artist TEXT NOT NULL,
		album TEXT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT,
		entry_date TIMESTAMP NOT NULL
	)`,

	`CREATE SEQUENCE IF NOT EXISTS playlists_seq START 1`,
	`CREATE TABLE IF NOT EXISTS playlists (
		id BIGINT PRIMARY KEY DEFAULT nextval('playlists_seq'),
		name TEXT NOT NULL,
		engine TEXT NOT NULL,
		run_id TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		published_id TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS playlist_tracks (
		playlist_id BIGINT NOT NULL,
		position INTEGER NOT NULL,
		title TEXT NOT NULL,
		artist TEXT NOT NULL,
		album TEXT NOT NULL,
		rating_key TEXT,
		owned BOOLEAN NOT NULL,
		release_date TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
}

// createIndexes creates the lookup indexes. Only immutable columns are indexed.
func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_history_entries_engine ON history_entries(engine)`,
		`CREATE INDEX IF NOT EXISTS idx_history_ledgers_engine ON history_ledgers(engine)`,
		`CREATE INDEX IF NOT EXISTS idx_playlists_engine ON playlists(engine, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_playlist_tracks_playlist ON playlist_tracks(playlist_id)`,
	}
	for _, q := range indexes {
		if _, err := db.conn.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to create index: %s: %w", q, err)
		}
	}
	return nil
}
