// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/cruisecontrol/internal/audit"
	"github.com/tomtom215/cruisecontrol/internal/logging"
	"github.com/tomtom215/cruisecontrol/internal/models"
)

// maxHistoryEntries caps the history endpoint.
const maxHistoryEntries = 500

// engineFromRequest resolves the {engine} path parameter, writing a 404
// when the engine is unknown.
func (h *Handler) engineFromRequest(w http.ResponseWriter, r *http.Request) (models.Engine, Engine, bool) {
	name := models.Engine(chi.URLParam(r, "engine"))
	engine, ok := h.deps.Engines[name]
	if !name.Valid() || !ok {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "unknown engine "+strconv.Quote(string(name)), nil)
		return "", nil, false
	}
	return name, engine, true
}

// EngineStatus returns the engine's current RunStatus.
func (h *Handler) EngineStatus(w http.ResponseWriter, r *http.Request) {
	_, engine, ok := h.engineFromRequest(w, r)
	if !ok {
		return
	}
	respondJSON(w, r, http.StatusOK, engine.Status())
}

// EngineConfig returns the engine's stored RunConfig.
func (h *Handler) EngineConfig(w http.ResponseWriter, r *http.Request) {
	_, engine, ok := h.engineFromRequest(w, r)
	if !ok {
		return
	}
	respondJSON(w, r, http.StatusOK, engine.Config())
}

// UpdateEngineConfig merges the body over the stored config, validates and
// persists it. Writing a config never starts a run.
func (h *Handler) UpdateEngineConfig(w http.ResponseWriter, r *http.Request) {
	name, engine, ok := h.engineFromRequest(w, r)
	if !ok {
		return
	}
	cfg := engine.Config()
	if err := decodeJSON(w, r, &cfg); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	if err := engine.UpdateConfig(r.Context(), cfg); err != nil {
		h.record(r, audit.TypeConfigChanged, audit.OutcomeFailure, "engine:"+string(name), err.Error(), nil)
		respondServiceError(w, r, err)
		return
	}
	logging.Ctx(r.Context()).Info().Str("engine", string(name)).Msg("Run config updated")
	h.record(r, audit.TypeConfigChanged, audit.OutcomeSuccess, "engine:"+string(name), "run config updated", cfg)
	respondJSON(w, r, http.StatusOK, engine.Config())
}

// StartRun launches a background run and answers 202 with the starting
// status.
func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	name, engine, ok := h.engineFromRequest(w, r)
	if !ok {
		return
	}
	override := models.RunOverride{Mode: r.URL.Query().Get("mode")}
	if raw := r.URL.Query().Get("force_refresh"); raw != "" {
		force, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, ErrCodeValidation, "force_refresh must be a boolean", nil)
			return
		}
		override.ForceRefresh = force
	}

	st, err := engine.Start(r.Context(), override)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	logging.Ctx(r.Context()).Info().
		Str("engine", string(name)).
		Str("run_id", st.RunID).
		Str("mode", string(st.RunMode)).
		Bool("dry_run", st.DryRun).
		Msg("Run started via API")
	h.record(r, audit.TypeRunStarted, audit.OutcomeSuccess, "engine:"+string(name), "run "+st.RunID+" started", override)
	respondJSON(w, r, http.StatusAccepted, st)
}

// EngineHistory returns the engine's latest ledger, keeping at most limit
// entries.
func (h *Handler) EngineHistory(w http.ResponseWriter, r *http.Request) {
	name, _, ok := h.engineFromRequest(w, r)
	if !ok {
		return
	}
	limit, err := intQuery(r, "limit", maxHistoryEntries, 1, maxHistoryEntries)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeValidation, err.Error(), nil)
		return
	}
	ledger, err := h.deps.Store.LatestLedger(r.Context(), name)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if len(ledger.Entries) > limit {
		ledger.Entries = ledger.Entries[:limit]
	}
	respondJSON(w, r, http.StatusOK, ledger)
}

// playlistResponse carries the stored playlist with its row id.
type playlistResponse struct {
	ID int64 `json:"id"`
	*models.Playlist
}

// LatestPlaylist returns the last persisted playlist and its tracks.
func (h *Handler) LatestPlaylist(w http.ResponseWriter, r *http.Request) {
	name, _, ok := h.engineFromRequest(w, r)
	if !ok {
		return
	}
	id, playlist, err := h.deps.Store.LatestPlaylist(r.Context(), name)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, playlistResponse{ID: id, Playlist: playlist})
}
