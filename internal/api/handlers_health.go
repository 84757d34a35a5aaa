// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/cruisecontrol/internal/models"
)

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status           string                            `json:"status"`
	Version          string                            `json:"version"`
	DatabaseOK       bool                              `json:"database_ok"`
	UptimeSeconds    float64                           `json:"uptime_seconds"`
	WebSocketClients int                               `json:"websocket_clients"`
	Breakers         map[string]string                 `json:"breakers"`
	Engines          map[models.Engine]models.RunState `json:"engines"`
}

// Health reports database reachability, breaker states and engine states.
// A failed database ping answers 503 with the same body.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	hs := HealthStatus{
		Status:        "healthy",
		Version:       h.version,
		DatabaseOK:    true,
		UptimeSeconds: time.Since(h.startTime).Seconds(),
		Breakers:      make(map[string]string, len(h.deps.Breakers)),
		Engines:       make(map[models.Engine]models.RunState, len(h.deps.Engines)),
	}
	if err := h.deps.Store.Ping(ctx); err != nil {
		hs.Status = "degraded"
		hs.DatabaseOK = false
	}
	for _, b := range h.deps.Breakers {
		hs.Breakers[b.Name()] = b.State()
	}
	for name, e := range h.deps.Engines {
		hs.Engines[name] = e.Status().State
	}
	if h.deps.Hub != nil {
		hs.WebSocketClients = h.deps.Hub.GetClientCount()
	}

	status := http.StatusOK
	if !hs.DatabaseOK {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, r, status, hs)
}
