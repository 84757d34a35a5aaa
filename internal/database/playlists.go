// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tomtom215/cruisecontrol/internal/models"
)

// SavePlaylist stores p and its tracks and returns the new playlist id.
func (db *DB) SavePlaylist(ctx context.Context, p *models.Playlist) (int64, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	id, err := savePlaylistTx(ctx, tx, p)
	if err != nil {
		rollback(tx, err)
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit playlist: %w", err)
	}
	return id, nil
}

func savePlaylistTx(ctx context.Context, tx *sql.Tx, p *models.Playlist) (int64, error) {
	var id int64
	if err := tx.QueryRowContext(ctx, `INSERT INTO playlists (name, engine, run_id, created_at, published_id)
		VALUES (?, ?, ?, ?, ?) RETURNING id`,
		p.Name, string(p.Engine), p.RunID, p.CreatedAt.UTC(), nullString(p.PublishedID)).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert playlist: %w", err)
	}

	if len(p.Tracks) == 0 {
		return id, nil
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO playlist_tracks (
		playlist_id, position, title, artist, album, rating_key, owned, release_date
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare track insert: %w", err)
	}
	defer closeWithLog(stmt, "playlist track statement")

	for _, t := range p.Tracks {
		if _, err := stmt.ExecContext(ctx, id, t.Position, t.Title, t.Artist, t.Album,
			nullString(t.RatingKey), t.Owned, nullString(t.ReleaseDate)); err != nil {
			return 0, fmt.Errorf("failed to insert track %d: %w", t.Position, err)
		}
	}
	return id, nil
}

// LatestPlaylist returns the newest playlist generated by engine, or ErrNotFound.
func (db *DB) LatestPlaylist(ctx context.Context, engine models.Engine) (int64, *models.Playlist, error) {
	var (
		id        int64
		published sql.NullString
		engineStr string
	)
	p := &models.Playlist{}
	err := db.conn.QueryRowContext(ctx, `SELECT id, name, engine, run_id, created_at, published_id
		FROM playlists WHERE engine = ? ORDER BY created_at DESC, id DESC LIMIT 1`, string(engine)).
		Scan(&id, &p.Name, &engineStr, &p.RunID, &p.CreatedAt, &published)
	if err != nil {
		return 0, nil, wrapNotFound(err, string(engine)+" playlist")
	}
	p.Engine = models.Engine(engineStr)
	p.PublishedID = published.String

	rows, err := db.conn.QueryContext(ctx, `SELECT position, title, artist, album, rating_key, owned, release_date
		FROM playlist_tracks WHERE playlist_id = ? ORDER BY position`, id)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to load playlist tracks: %w", err)
	}
	defer rows.Close()

	p.Tracks = make([]models.PlaylistTrack, 0)
	for rows.Next() {
		var (
			t                      models.PlaylistTrack
			ratingKey, releaseDate sql.NullString
		)
		if err := rows.Scan(&t.Position, &t.Title, &t.Artist, &t.Album, &ratingKey, &t.Owned, &releaseDate); err != nil {
			return 0, nil, fmt.Errorf("failed to scan playlist track: %w", err)
		}
		t.RatingKey = ratingKey.String
		t.ReleaseDate = releaseDate.String
		p.Tracks = append(p.Tracks, t)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, fmt.Errorf("error iterating playlist tracks: %w", err)
	}
	return id, p, nil
}

// SetPlaylistPublished records the publishing target's id for playlist id.
func (db *DB) SetPlaylistPublished(ctx context.Context, id int64, publishedID string) error {
	res, err := db.conn.ExecContext(ctx, `UPDATE playlists SET published_id = ? WHERE id = ?`, publishedID, id)
	if err != nil {
		return fmt.Errorf("failed to mark playlist %d published: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("playlist %d: %w", id, ErrNotFound)
	}
	return nil
}
