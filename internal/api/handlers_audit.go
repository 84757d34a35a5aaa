// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package api

import (
	"net"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/cruisecontrol/internal/audit"
	"github.com/tomtom215/cruisecontrol/internal/auth"
)

// record queues an audit event for the caller of r. It is a no-op when no
// audit logger is configured.
func (h *Handler) record(r *http.Request, typ audit.EventType, outcome audit.Outcome, target, description string, metadata any) {
	if h.deps.Audit == nil {
		return
	}
	event := audit.Event{
		Type:        typ,
		Outcome:     outcome,
		Actor:       "anonymous",
		SourceIP:    clientIP(r),
		Target:      target,
		Description: description,
	}
	if claims := auth.GetClaims(r.Context()); claims != nil {
		event.Actor = claims.Username
		event.Role = claims.Role
	}
	if metadata != nil {
		if data, err := json.Marshal(metadata); err == nil {
			event.Metadata = data
		}
	}
	h.deps.Audit.Log(r.Context(), event)
}

// clientIP returns the host part of RemoteAddr (already rewritten by
// chi's RealIP middleware).
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// AuditEvents lists recorded operator actions, newest first.
func (h *Handler) AuditEvents(w http.ResponseWriter, r *http.Request) {
	if h.deps.Audit == nil {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "audit logging is disabled", nil)
		return
	}
	limit, err := intQuery(r, "limit", 100, 1, 1000)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeValidation, err.Error(), nil)
		return
	}
	filter := audit.QueryFilter{Type: audit.EventType(r.URL.Query().Get("type")), Limit: limit}
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, ErrCodeValidation, "since must be an RFC 3339 timestamp", nil)
			return
		}
		filter.Since = &since
	}
	events, err := h.deps.Audit.Query(r.Context(), filter)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, events)
}
