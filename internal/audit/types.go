// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package audit

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// EventType categorizes an audit event.
type EventType string

const (
	TypeAuthSuccess     EventType = "auth.success"
	TypeAuthFailure     EventType = "auth.failure"
	TypeConfigChanged   EventType = "config.changed"
	TypeRunStarted      EventType = "run.started"
	TypeQueueAdded      EventType = "queue.added"
	TypeQueueOverridden EventType = "queue.overridden"
	TypeQueueDeleted    EventType = "queue.deleted"
	TypeCacheCleared    EventType = "cache.cleared"
	TypeScheduleChanged EventType = "schedule.changed"
)

// Outcome indicates whether an action succeeded.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Event is one audited action.
type Event struct {
	ID          string          `json:"id"`
	Timestamp   time.Time       `json:"timestamp"`
	Type        EventType       `json:"type"`
	Outcome     Outcome         `json:"outcome"`
	Actor       string          `json:"actor"`
	Role        string          `json:"role,omitempty"`
	SourceIP    string          `json:"source_ip,omitempty"`
	Target      string          `json:"target,omitempty"`
	Description string          `json:"description"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	RequestID   string          `json:"request_id,omitempty"`
}

// QueryFilter narrows Query. Results are newest first.
type QueryFilter struct {
	Type  EventType
	Since *time.Time
	Limit int
}

// Store persists audit events.
type Store interface {
	Save(ctx context.Context, event *Event) error
	Query(ctx context.Context, filter QueryFilter) ([]Event, error)
	Delete(ctx context.Context, olderThan time.Time) (int64, error)
}
