// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package api

import (
	"net/http"
	"strconv"

	"github.com/tomtom215/cruisecontrol/internal/audit"
	"github.com/tomtom215/cruisecontrol/internal/database"
	"github.com/tomtom215/cruisecontrol/internal/logging"
	"github.com/tomtom215/cruisecontrol/internal/models"
)

// queueListResponse is the body of GET /acquisition/queue.
type queueListResponse struct {
	Items []models.QueueItem `json:"items"`
	Count int                `json:"count"`
}

// ListQueue lists queue rows, optionally filtered by status.
func (h *Handler) ListQueue(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", 200, 1, 1000)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeValidation, err.Error(), nil)
		return
	}
	offset, err := intQuery(r, "offset", 0, 0, 1_000_000)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeValidation, err.Error(), nil)
		return
	}
	items, err := h.deps.Store.ListQueue(r.Context(), database.QueueFilter{
		Status: models.QueueStatus(r.URL.Query().Get("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, queueListResponse{Items: items, Count: len(items)})
}

// AddToQueue enqueues a manual request. A new row answers 201; a requeued or
// already queued row answers 200.
func (h *Handler) AddToQueue(w http.ResponseWriter, r *http.Request) {
	var req models.EnqueueRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	req.RequestedBy = models.RequestedByManual

	result, err := h.deps.Store.Enqueue(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	logging.Ctx(r.Context()).Info().
		Int64("id", result.Item.ID).
		Str("outcome", string(result.Outcome)).
		Msg("Manual acquisition request")
	h.record(r, audit.TypeQueueAdded, audit.OutcomeSuccess, queueTarget(result.Item.ID),
		req.Artist+" - "+req.Album, map[string]string{"outcome": string(result.Outcome)})

	status := http.StatusOK
	if result.Outcome == models.EnqueueCreated {
		status = http.StatusCreated
	}
	respondJSON(w, r, status, result)
}

// queueUpdateRequest is the body of PATCH /acquisition/queue/{id}.
type queueUpdateRequest struct {
	Status models.QueueStatus `json:"status" validate:"required"`
	Detail string             `json:"detail" validate:"max=1024"`
}

// UpdateQueueItem overrides the status of a queue row.
func (h *Handler) UpdateQueueItem(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeValidation, err.Error(), nil)
		return
	}
	var req queueUpdateRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	detail := req.Detail
	if detail == "" {
		detail = "manual override"
	}
	item, err := h.deps.Store.SetQueueStatus(r.Context(), id, req.Status, detail)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	logging.Ctx(r.Context()).Info().Int64("id", id).Str("status", string(req.Status)).Msg("Queue item status overridden")
	h.record(r, audit.TypeQueueOverridden, audit.OutcomeSuccess, queueTarget(id), "status set to "+string(req.Status), req)
	respondJSON(w, r, http.StatusOK, item)
}

// DeleteQueueItem removes a queue row.
func (h *Handler) DeleteQueueItem(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeValidation, err.Error(), nil)
		return
	}
	if err := h.deps.Store.DeleteQueueItem(r.Context(), id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	logging.Ctx(r.Context()).Info().Int64("id", id).Msg("Queue item deleted")
	h.record(r, audit.TypeQueueDeleted, audit.OutcomeSuccess, queueTarget(id), "queue item deleted", nil)
	respondJSON(w, r, http.StatusOK, map[string]int64{"deleted": id})
}

func queueTarget(id int64) string {
	return "queue:" + strconv.FormatInt(id, 10)
}

// QueueStats counts queue rows by status.
func (h *Handler) QueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.deps.Store.QueueStats(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, stats)
}

// CheckNow runs a reconciliation pass and returns its report.
func (h *Handler) CheckNow(w http.ResponseWriter, r *http.Request) {
	report, err := h.deps.Reconciler.Reconcile(r.Context())
	if err != nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "reconciliation failed", err)
		return
	}
	if h.deps.Notifier != nil {
		h.deps.Notifier.PublishReconcile(report)
	}
	respondJSON(w, r, http.StatusOK, report)
}
