// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package api

import (
	"net/http"
	"strconv"

	"github.com/tomtom215/cruisecontrol/internal/artwork"
	"github.com/tomtom215/cruisecontrol/internal/audit"
	"github.com/tomtom215/cruisecontrol/internal/logging"
)

// ClearReleaseCache drops every cached artist so the next lookup refetches.
func (h *Handler) ClearReleaseCache(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.ReleaseCache.ForceRefreshAll(); err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternal, "failed to clear release cache", err)
		return
	}
	logging.Ctx(r.Context()).Info().Msg("Release cache cleared via API")
	h.record(r, audit.TypeCacheCleared, audit.OutcomeSuccess, "release-cache", "release cache cleared", nil)
	respondJSON(w, r, http.StatusOK, map[string]bool{"cleared": true})
}

// RefreshReleaseCache runs the scheduled refresh now.
func (h *Handler) RefreshReleaseCache(w http.ResponseWriter, r *http.Request) {
	report, err := h.deps.ReleaseCache.ScheduledRefresh(r.Context())
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternal, "release cache refresh failed", err)
		return
	}
	if h.deps.Notifier != nil {
		h.deps.Notifier.PublishCacheRefresh(report)
	}
	respondJSON(w, r, http.StatusOK, report)
}

// ResolveImage returns a cached artwork URL or pending=true after queueing a
// background fetch.
func (h *Handler) ResolveImage(w http.ResponseWriter, r *http.Request) {
	var req artwork.Request
	if !decodeAndValidate(w, r, &req) {
		return
	}
	result, err := h.deps.Artwork.Resolve(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, result)
}

// ScheduleStatus returns the enabled flag and every slot's next fire time.
func (h *Handler) ScheduleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.deps.Schedule.Status(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, st)
}

// scheduleEnabledRequest is the body of PUT /schedule/enabled.
type scheduleEnabledRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// SetScheduleEnabled toggles automatic runs.
func (h *Handler) SetScheduleEnabled(w http.ResponseWriter, r *http.Request) {
	var req scheduleEnabledRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if err := h.deps.Schedule.SetEnabled(r.Context(), *req.Enabled); err != nil {
		respondServiceError(w, r, err)
		return
	}
	logging.Ctx(r.Context()).Info().Bool("enabled", *req.Enabled).Msg("Schedule toggled via API")
	h.record(r, audit.TypeScheduleChanged, audit.OutcomeSuccess, "schedule",
		"automatic runs enabled="+strconv.FormatBool(*req.Enabled), nil)
	st, err := h.deps.Schedule.Status(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, st)
}
