// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DuckDBStore stores audit events in the application database.
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore creates a store over db. Call CreateTable before use.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// CreateTable creates the audit table and its indexes.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS audit_events (
			id TEXT PRIMARY KEY,
			timestamp TIMESTAMP NOT NULL,
			type TEXT NOT NULL,
			outcome TEXT NOT NULL,
			actor TEXT NOT NULL,
			role TEXT,
			source_ip TEXT,
			target TEXT,
			description TEXT NOT NULL,
			metadata TEXT,
			request_id TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_type ON audit_events(type)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create audit table: %w", err)
		}
	}
	return nil
}

// Save inserts event.
func (s *DuckDBStore) Save(ctx context.Context, event *Event) error {
	var metadata *string
	if len(event.Metadata) > 0 {
		m := string(event.Metadata)
		metadata = &m
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO audit_events (
		id, timestamp, type, outcome, actor, role, source_ip, target, description, metadata, request_id
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Timestamp.UTC(), string(event.Type), string(event.Outcome), event.Actor,
		nullable(event.Role), nullable(event.SourceIP), nullable(event.Target),
		event.Description, metadata, nullable(event.RequestID))
	if err != nil {
		return fmt.Errorf("failed to save audit event %s: %w", event.ID, err)
	}
	return nil
}

// Query returns events matching filter, newest first. Limit defaults to 100.
func (s *DuckDBStore) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	query := `SELECT id, timestamp, type, outcome, actor, role, source_ip, target, description, metadata, request_id
		FROM audit_events WHERE 1=1`
	var args []any
	if filter.Type != "" {
		query += " AND type = ?"
		args = append(args, string(filter.Type))
	}
	if filter.Since != nil {
		query += " AND timestamp >= ?"
		args = append(args, filter.Since.UTC())
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " ORDER BY timestamp DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0)
	for rows.Next() {
		var (
			e                                     Event
			typ, outcome                          string
			role, sourceIP, target, meta, request sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &typ, &outcome, &e.Actor, &role, &sourceIP,
			&target, &e.Description, &meta, &request); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.Type = EventType(typ)
		e.Outcome = Outcome(outcome)
		e.Role = role.String
		e.SourceIP = sourceIP.String
		e.Target = target.String
		e.RequestID = request.String
		if meta.Valid {
			e.Metadata = []byte(meta.String)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}
	return events, nil
}

// Delete removes events older than olderThan and returns the count.
func (s *DuckDBStore) Delete(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_events WHERE timestamp < ?`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete audit events: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
