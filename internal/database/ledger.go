// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tomtom215/cruisecontrol/internal/models"
)

// ReplaceLedger atomically swaps the engine's history ledger for l.
// Readers observe either the previous ledger or l, never a mix.
func (db *DB) ReplaceLedger(ctx context.Context, l *models.Ledger) error {
	if l == nil || l.RunID == "" || !l.Engine.Valid() {
		return fmt.Errorf("replace ledger: run id and engine are required")
	}

	db.ledgerMu.Lock()
	defer db.ledgerMu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err = replaceLedgerTx(ctx, tx, l); err != nil {
		rollback(tx, err)
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ledger: %w", err)
	}
	return nil
}

func replaceLedgerTx(ctx context.Context, tx *sql.Tx, l *models.Ledger) error {
	engine := string(l.Engine)

	if _, err := tx.ExecContext(ctx, `DELETE FROM history_entries WHERE engine = ?`, engine); err != nil {
		return fmt.Errorf("failed to clear history entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM history_ledgers WHERE engine = ?`, engine); err != nil {
		return fmt.Errorf("failed to clear history ledger: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO history_ledgers (
		run_id, engine, run_mode, completed_at, artists_checked, new_releases, owned, queued
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.RunID, engine, string(l.RunMode), l.CompletedAt.UTC(),
		l.Summary.ArtistsChecked, l.Summary.NewReleases, l.Summary.Owned, l.Summary.Queued); err != nil {
		return fmt.Errorf("failed to insert history ledger: %w", err)
	}

	if len(l.Entries) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO history_entries (
		run_id, engine, position, artist, album, status, reason, entry_date
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare history insert: %w", err)
	}
	defer closeWithLog(stmt, "history insert statement")

	for i, e := range l.Entries {
		if _, err := stmt.ExecContext(ctx, l.RunID, engine, i, e.Artist, e.Album,
			string(e.Status), nullString(e.Reason), e.Date.UTC()); err != nil {
			return fmt.Errorf("failed to insert history entry %d: %w", i, err)
		}
	}
	return nil
}

// LatestLedger returns the engine's current ledger, or ErrNotFound.
func (db *DB) LatestLedger(ctx context.Context, engine models.Engine) (*models.Ledger, error) {
	l := &models.Ledger{Engine: engine}
	var runMode string
	err := db.conn.QueryRowContext(ctx, `SELECT run_id, run_mode, completed_at,
		artists_checked, new_releases, owned, queued
		FROM history_ledgers WHERE engine = ? ORDER BY completed_at DESC LIMIT 1`, string(engine)).
		Scan(&l.RunID, &runMode, &l.CompletedAt,
			&l.Summary.ArtistsChecked, &l.Summary.NewReleases, &l.Summary.Owned, &l.Summary.Queued)
	if err != nil {
		return nil, wrapNotFound(err, string(engine)+" history ledger")
	}
	l.RunMode = models.RunMode(runMode)

	rows, err := db.conn.QueryContext(ctx, `SELECT artist, album, status, reason, entry_date
		FROM history_entries WHERE run_id = ? ORDER BY position`, l.RunID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history entries: %w", err)
	}
	defer rows.Close()

	l.Entries = make([]models.HistoryEntry, 0)
	for rows.Next() {
		var (
			e      models.HistoryEntry
			status string
			reason sql.NullString
		)
		if err := rows.Scan(&e.Artist, &e.Album, &status, &reason, &e.Date); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		e.Status = models.HistoryStatus(status)
		e.Reason = reason.String
		l.Entries = append(l.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history entries: %w", err)
	}
	return l, nil
}

// RecordRun stores the terminal status of a run.
func (db *DB) RecordRun(ctx context.Context, st models.RunStatus, finishedAt time.Time) error {
	if st.RunID == "" || !st.State.Terminal() {
		return fmt.Errorf("record run: terminal status with run id required")
	}
	startedAt := finishedAt
	if st.StartedAt != nil {
		startedAt = *st.StartedAt
	}
	_, err := db.conn.ExecContext(ctx, `INSERT INTO run_log (
		run_id, engine, run_mode, dry_run, state, started_at, finished_at, error,
		artists_checked, new_releases, owned, queued, playlist_name
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.RunID, string(st.Engine), string(st.RunMode), st.DryRun, string(st.State),
		startedAt.UTC(), finishedAt.UTC(), nullString(st.Error),
		st.Summary.ArtistsChecked, st.Summary.NewReleases, st.Summary.Owned, st.Summary.Queued,
		nullString(st.PlaylistName))
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", st.RunID, err)
	}
	return nil
}

// RecentRuns returns up to limit terminal run records for engine, newest first.
func (db *DB) RecentRuns(ctx context.Context, engine models.Engine, limit int) ([]models.RunStatus, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.QueryContext(ctx, `SELECT run_id, run_mode, dry_run, state, started_at,
		finished_at, error, artists_checked, new_releases, owned, queued, playlist_name
		FROM run_log WHERE engine = ? ORDER BY finished_at DESC LIMIT ?`, string(engine), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query run log: %w", err)
	}
	defer rows.Close()

	runs := make([]models.RunStatus, 0)
	for rows.Next() {
		var (
			st                  models.RunStatus
			runMode, state      string
			startedAt, finished time.Time
			errMsg, playlist    sql.NullString
		)
		if err := rows.Scan(&st.RunID, &runMode, &st.DryRun, &state, &startedAt, &finished, &errMsg,
			&st.Summary.ArtistsChecked, &st.Summary.NewReleases, &st.Summary.Owned, &st.Summary.Queued,
			&playlist); err != nil {
			return nil, fmt.Errorf("failed to scan run log: %w", err)
		}
		st.Engine = engine
		st.RunMode = models.RunMode(runMode)
		st.State = models.RunState(state)
		st.StartedAt = &startedAt
		st.LastRun = &finished
		st.Error = errMsg.String
		st.PlaylistName = playlist.String
		runs = append(runs, st)
	}
	return runs, rows.Err()
}
