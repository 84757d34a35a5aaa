// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

/*
queue.go - Acquisition Queue Store

Write discipline:
  - Enqueue only ever creates a pending row, or moves a settled row
    (found/failed/skipped) back to pending. An active row (pending/submitted)
    is returned untouched as already_queued.
  - AdvanceStatus is a conditional UPDATE guarded by the expected current
    statuses, so a reconcile pass never overwrites a row that moved under it.
  - SetQueueStatus is the unconditional operator override used by the API.

Enqueue decisions are serialized by queueMu and run inside a transaction.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/cruisecontrol/internal/models"
)

const queueColumns = `id, artist, album, kind, status, release_date, requested_at, updated_at,
	submitted_at, backend_ref, detail, requested_by, playlist_name`

// QueueFilter narrows ListQueue.
type QueueFilter struct {
	Status models.QueueStatus
	Limit  int
	Offset int
}

// QueueUpdate carries optional fields written alongside a status change.
type QueueUpdate struct {
	BackendRef string
	Detail     string
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQueueItem(row rowScanner) (*models.QueueItem, error) {
	var (
		item         models.QueueItem
		kind, status string
		releaseDate  sql.NullString
		submittedAt  sql.NullTime
		backendRef   sql.NullString
		detail       sql.NullString
		playlistName sql.NullString
	)
	if err := row.Scan(&item.ID, &item.Artist, &item.Album, &kind, &status, &releaseDate,
		&item.RequestedAt, &item.UpdatedAt, &submittedAt, &backendRef, &detail,
		&item.RequestedBy, &playlistName); err != nil {
		return nil, err
	}
	item.Kind = models.ReleaseKind(kind)
	item.Status = models.QueueStatus(status)
	item.ReleaseDate = releaseDate.String
	item.BackendRef = backendRef.String
	item.Detail = detail.String
	item.PlaylistName = playlistName.String
	if submittedAt.Valid {
		t := submittedAt.Time
		item.SubmittedAt = &t
	}
	return &item, nil
}

func queueIdentity(artist, album string, kind models.ReleaseKind) (string, string, string) {
	if kind == "" {
		kind = models.KindAlbum
	}
	return models.NormalizeName(artist), models.NormalizeName(album), string(kind)
}

// Enqueue inserts a pending request for (artist, album, kind) unless an
// active one already exists.
func (db *DB) Enqueue(ctx context.Context, req models.EnqueueRequest) (models.EnqueueResult, error) {
	artistKey, albumKey, kind := queueIdentity(req.Artist, req.Album, req.Kind)
	if artistKey == "" || albumKey == "" {
		return models.EnqueueResult{}, fmt.Errorf("enqueue requires artist and album")
	}
	requestedBy := req.RequestedBy
	if requestedBy == "" {
		requestedBy = models.RequestedByManual
	}

	db.queueMu.Lock()
	defer db.queueMu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return models.EnqueueResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}

	result, err := enqueueTx(ctx, tx, req, artistKey, albumKey, kind, requestedBy)
	if err != nil {
		rollback(tx, err)
		return models.EnqueueResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.EnqueueResult{}, fmt.Errorf("failed to commit enqueue: %w", err)
	}
	return result, nil
}

func enqueueTx(ctx context.Context, tx *sql.Tx, req models.EnqueueRequest, artistKey, albumKey, kind, requestedBy string) (models.EnqueueResult, error) {
	existing, err := scanQueueItem(tx.QueryRowContext(ctx,
		`SELECT `+queueColumns+` FROM acquisition_queue WHERE artist_key = ? AND album_key = ? AND kind = ?`,
		artistKey, albumKey, kind))

	now := time.Now().UTC()

	switch {
	case err == nil && existing.Status.Active():
		return models.EnqueueResult{Outcome: models.EnqueueAlreadyQueued, Item: *existing}, nil

	case err == nil:
		_, err = tx.ExecContext(ctx, `UPDATE acquisition_queue SET
			status = ?, requested_at = ?, updated_at = ?, submitted_at = NULL,
			backend_ref = NULL, detail = NULL, requested_by = ?, playlist_name = ?,
			release_date = COALESCE(?, release_date)
			WHERE id = ?`,
			string(models.QueuePending), now, now, requestedBy, nullString(req.PlaylistName),
			nullString(req.ReleaseDate), existing.ID)
		if err != nil {
			return models.EnqueueResult{}, fmt.Errorf("failed to requeue item %d: %w", existing.ID, err)
		}
		item, err := scanQueueItem(tx.QueryRowContext(ctx,
			`SELECT `+queueColumns+` FROM acquisition_queue WHERE id = ?`, existing.ID))
		if err != nil {
			return models.EnqueueResult{}, fmt.Errorf("failed to reload item %d: %w", existing.ID, err)
		}
		return models.EnqueueResult{Outcome: models.EnqueueRequeued, Item: *item}, nil

	case !errors.Is(err, sql.ErrNoRows):
		return models.EnqueueResult{}, fmt.Errorf("failed to look up queue item: %w", err)
	}

	var id int64
	err = tx.QueryRowContext(ctx, `INSERT INTO acquisition_queue (
		artist, album, kind, artist_key, album_key, status, release_date,
		requested_at, updated_at, requested_by, playlist_name
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		strings.TrimSpace(req.Artist), strings.TrimSpace(req.Album), kind, artistKey, albumKey,
		string(models.QueuePending), nullString(req.ReleaseDate), now, now, requestedBy,
		nullString(req.PlaylistName)).Scan(&id)
	if err != nil {
		if isUniqueConstraintError(err) {
			return models.EnqueueResult{}, fmt.Errorf("concurrent enqueue of %s - %s: %w", req.Artist, req.Album, err)
		}
		return models.EnqueueResult{}, fmt.Errorf("failed to insert queue item: %w", err)
	}

	return models.EnqueueResult{
		Outcome: models.EnqueueCreated,
		Item: models.QueueItem{
			ID:           id,
			Artist:       strings.TrimSpace(req.Artist),
			Album:        strings.TrimSpace(req.Album),
			Kind:         models.ReleaseKind(kind),
			Status:       models.QueuePending,
			ReleaseDate:  req.ReleaseDate,
			RequestedAt:  now,
			UpdatedAt:    now,
			RequestedBy:  requestedBy,
			PlaylistName: req.PlaylistName,
		},
	}, nil
}

// FindQueueItem returns the row for (artist, album, kind) or ErrNotFound.
// It never mutates and is used by dry runs to predict already_queued.
func (db *DB) FindQueueItem(ctx context.Context, artist, album string, kind models.ReleaseKind) (*models.QueueItem, error) {
	artistKey, albumKey, k := queueIdentity(artist, album, kind)
	item, err := scanQueueItem(db.conn.QueryRowContext(ctx,
		`SELECT `+queueColumns+` FROM acquisition_queue WHERE artist_key = ? AND album_key = ? AND kind = ?`,
		artistKey, albumKey, k))
	if err != nil {
		return nil, wrapNotFound(err, "queue item")
	}
	return item, nil
}

// GetQueueItem returns the row with the given id or ErrNotFound.
func (db *DB) GetQueueItem(ctx context.Context, id int64) (*models.QueueItem, error) {
	item, err := scanQueueItem(db.conn.QueryRowContext(ctx,
		`SELECT `+queueColumns+` FROM acquisition_queue WHERE id = ?`, id))
	if err != nil {
		return nil, wrapNotFound(err, fmt.Sprintf("queue item %d", id))
	}
	return item, nil
}

// ListQueue returns queue rows, newest request first.
func (db *DB) ListQueue(ctx context.Context, f QueueFilter) ([]models.QueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM acquisition_queue WHERE 1=1`
	args := []any{}
	if f.Status != "" {
		if !f.Status.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, f.Status)
		}
		query += " AND status = ?"
		args = append(args, string(f.Status))
	}
	query += " ORDER BY requested_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
		if f.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, f.Offset)
		}
	}
	return db.queryQueue(ctx, query, args...)
}

// ListActive returns every pending or submitted row, oldest first.
func (db *DB) ListActive(ctx context.Context) ([]models.QueueItem, error) {
	return db.queryQueue(ctx, `SELECT `+queueColumns+` FROM acquisition_queue
		WHERE status IN (?, ?) ORDER BY requested_at ASC, id ASC`,
		string(models.QueuePending), string(models.QueueSubmitted))
}

func (db *DB) queryQueue(ctx context.Context, query string, args ...any) ([]models.QueueItem, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}
	defer rows.Close()

	items := make([]models.QueueItem, 0)
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queue: %w", err)
	}
	return items, nil
}

// AdvanceStatus moves item id to status `to` only if its current status is
// one of from. It reports whether a row changed.
func (db *DB) AdvanceStatus(ctx context.Context, id int64, from []models.QueueStatus, to models.QueueStatus, upd QueueUpdate) (bool, error) {
	if !to.Valid() {
		return false, fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}
	if len(from) == 0 {
		return false, nil
	}

	now := time.Now().UTC()
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(from)), ", ")
	args := []any{string(to), now, nullString(upd.BackendRef), nullString(upd.Detail)}

	submitted := "submitted_at"
	if to == models.QueueSubmitted {
		submitted = "COALESCE(submitted_at, ?)"
		args = append(args, now)
	}
	args = append(args, id)
	for _, s := range from {
		args = append(args, string(s))
	}

	query := fmt.Sprintf(`UPDATE acquisition_queue SET
		status = ?, updated_at = ?,
		backend_ref = COALESCE(?, backend_ref),
		detail = COALESCE(?, detail),
		submitted_at = %s
		WHERE id = ? AND status IN (%s)`, submitted, placeholders)

	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		if isTransactionConflict(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to advance queue item %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// SetQueueStatus unconditionally sets the status of item id.
func (db *DB) SetQueueStatus(ctx context.Context, id int64, to models.QueueStatus, detail string) (*models.QueueItem, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}

	db.queueMu.Lock()
	defer db.queueMu.Unlock()

	now := time.Now().UTC()
	query := `UPDATE acquisition_queue SET status = ?, updated_at = ?, detail = ? WHERE id = ?`
	args := []any{string(to), now, nullString(detail), id}
	// Retrying clears backend state so reconcile resubmits from scratch.
	if to == models.QueuePending {
		query = `UPDATE acquisition_queue SET status = ?, updated_at = ?, detail = ?,
			submitted_at = NULL, backend_ref = NULL WHERE id = ?`
	}

	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update queue item %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("queue item %d: %w", id, ErrNotFound)
	}
	return db.GetQueueItem(ctx, id)
}

// DeleteQueueItem removes item id.
func (db *DB) DeleteQueueItem(ctx context.Context, id int64) error {
	db.queueMu.Lock()
	defer db.queueMu.Unlock()

	res, err := db.conn.ExecContext(ctx, `DELETE FROM acquisition_queue WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete queue item %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("queue item %d: %w", id, ErrNotFound)
	}
	return nil
}

// QueueStats counts rows per status.
func (db *DB) QueueStats(ctx context.Context) (models.QueueStats, error) {
	var stats models.QueueStats
	rows, err := db.conn.QueryContext(ctx, `SELECT status, COUNT(*) FROM acquisition_queue GROUP BY status`)
	if err != nil {
		return stats, fmt.Errorf("failed to count queue: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return stats, fmt.Errorf("failed to scan queue stats: %w", err)
		}
		stats.Set(models.QueueStatus(status), int(n))
	}
	return stats, rows.Err()
}

func nullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}
