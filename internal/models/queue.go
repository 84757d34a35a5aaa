// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package models

import "time"

// QueueStatus is the lifecycle position of an acquisition request.
type QueueStatus string

const (
	QueuePending   QueueStatus = "pending"
	QueueSubmitted QueueStatus = "submitted"
	QueueFound     QueueStatus = "found"
	QueueFailed    QueueStatus = "failed"
	QueueSkipped   QueueStatus = "skipped"
)

// QueueStatuses lists every queue status in lifecycle order.
var QueueStatuses = []QueueStatus{QueuePending, QueueSubmitted, QueueFound, QueueFailed, QueueSkipped}

// Active reports whether the item is still in flight (pending or submitted).
func (s QueueStatus) Active() bool {
	return s == QueuePending || s == QueueSubmitted
}

// Valid reports whether s is a known queue status.
func (s QueueStatus) Valid() bool {
	for _, qs := range QueueStatuses {
		if s == qs {
			return true
		}
	}
	return false
}

// Queue item requesters.
const (
	RequestedByRun    = "run"
	RequestedByManual = "manual"
)

// QueueItem is one row of the acquisition queue. (Artist, Album, Kind) is unique.
type QueueItem struct {
	ID           int64       `json:"id"`
	Artist       string      `json:"artist"`
	Album        string      `json:"album"`
	Kind         ReleaseKind `json:"kind"`
	Status       QueueStatus `json:"status"`
	ReleaseDate  string      `json:"release_date,omitempty"`
	RequestedAt  time.Time   `json:"requested_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	SubmittedAt  *time.Time  `json:"submitted_at,omitempty"`
	BackendRef   string      `json:"backend_ref,omitempty"`
	Detail       string      `json:"detail,omitempty"`
	RequestedBy  string      `json:"requested_by"`
	PlaylistName string      `json:"playlist_name,omitempty"`
}

// EnqueueOutcome describes what Enqueue did.
type EnqueueOutcome string

const (
	// EnqueueCreated inserted a new pending row.
	EnqueueCreated EnqueueOutcome = "created"
	// EnqueueRequeued moved a settled (found/failed/skipped) row back to pending.
	EnqueueRequeued EnqueueOutcome = "requeued"
	// EnqueueAlreadyQueued left an existing pending/submitted row untouched.
	EnqueueAlreadyQueued EnqueueOutcome = "already_queued"
)

// EnqueueRequest carries the identity and optional metadata for an enqueue.
type EnqueueRequest struct {
	Artist       string      `json:"artist" validate:"required,max=512"`
	Album        string      `json:"album" validate:"required,max=512"`
	Kind         ReleaseKind `json:"kind" validate:"omitempty,oneof=album ep single compilation"`
	ReleaseDate  string      `json:"release_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	RequestedBy  string      `json:"-"`
	PlaylistName string      `json:"-"`
}

// EnqueueResult is returned by Enqueue.
type EnqueueResult struct {
	Outcome EnqueueOutcome `json:"outcome"`
	Item    QueueItem      `json:"item"`
}

// QueueStats counts queue rows by status.
type QueueStats struct {
	Pending   int `json:"pending"`
	Submitted int `json:"submitted"`
	Found     int `json:"found"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Total     int `json:"total"`
}

// Set records n rows for status s.
func (q *QueueStats) Set(s QueueStatus, n int) {
	switch s {
	case QueuePending:
		q.Pending = n
	case QueueSubmitted:
		q.Submitted = n
	case QueueFound:
		q.Found = n
	case QueueFailed:
		q.Failed = n
	case QueueSkipped:
		q.Skipped = n
	}
	q.Total = q.Pending + q.Submitted + q.Found + q.Failed + q.Skipped
}

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	Checked   int           `json:"checked"`
	Submitted int           `json:"submitted"`
	Found     int           `json:"found"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	TimedOut  int           `json:"timed_out"`
	Errors    int           `json:"errors"`
	Duration  time.Duration `json:"duration_ns"`
}

// Submission is the acquisition backend's answer to a submit.
type Submission struct {
	// Ref is the backend job id, empty when the backend returned none.
	Ref string `json:"ref,omitempty"`
	// AlreadyQueued is set when the backend already held the request.
	AlreadyQueued bool `json:"already_queued"`
}

// JobStatus is the acquisition backend's view of a submitted job.
type JobStatus struct {
	// State is the raw backend state.
	State string `json:"state"`
	// Status is State mapped onto the queue lifecycle, "" when unknown.
	Status QueueStatus `json:"status,omitempty"`
	Detail string      `json:"detail,omitempty"`
}
