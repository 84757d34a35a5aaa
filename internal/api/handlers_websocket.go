// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package api

import (
	"net/http"

	"github.com/tomtom215/cruisecontrol/internal/logging"
	ws "github.com/tomtom215/cruisecontrol/internal/websocket"
)

// WebSocket upgrades the connection and registers the client with the hub.
// Run progress, reconcile reports and cache refreshes are streamed to it.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.deps.Hub == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "websocket hub unavailable", nil)
		return
	}
	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logging.Ctx(r.Context()).Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := ws.NewClient(h.deps.Hub, conn)
	h.deps.Hub.Register(client)
	client.Start()

	// Push current engine states so a new client does not wait for the next
	// progress event.
	for _, e := range h.deps.Engines {
		h.deps.Hub.BroadcastJSON(ws.MessageTypeRunProgress, e.Status())
	}
}
