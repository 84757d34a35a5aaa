// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/tomtom215/cruisecontrol/internal/audit"
	"github.com/tomtom215/cruisecontrol/internal/auth"
	"github.com/tomtom215/cruisecontrol/internal/logging"
)

// loginRequest is the body of POST /auth/login.
type loginRequest struct {
	Username string `json:"username" validate:"required,max=128"`
	Password string `json:"password" validate:"required,max=1024"`
}

// loginResponse carries the issued token.
type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login issues a JWT for the admin account and sets it as an HttpOnly
// cookie for websocket clients. It answers 404 when auth is disabled.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if h.deps.Authenticator == nil {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "authentication is disabled", nil)
		return
	}
	var req loginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	token, expires, err := h.deps.Authenticator.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			logging.CtxWarn(r.Context()).Str("username", sanitizeLogValue(req.Username)).Msg("Failed login attempt")
			h.recordLogin(r, req.Username, audit.OutcomeFailure)
			respondError(w, r, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid username or password", nil)
			return
		}
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternal, "failed to issue token", err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteStrictMode,
	})
	logging.CtxInfo(r.Context()).Str("username", sanitizeLogValue(req.Username)).Msg("User logged in")
	h.recordLogin(r, req.Username, audit.OutcomeSuccess)
	respondJSON(w, r, http.StatusOK, loginResponse{Token: token, ExpiresAt: expires})
}

// recordLogin audits a login attempt. The request carries no claims yet, so
// the submitted username is the actor.
func (h *Handler) recordLogin(r *http.Request, username string, outcome audit.Outcome) {
	if h.deps.Audit == nil {
		return
	}
	typ, desc := audit.TypeAuthSuccess, "login succeeded"
	if outcome == audit.OutcomeFailure {
		typ, desc = audit.TypeAuthFailure, "invalid username or password"
	}
	if len(username) > 128 {
		username = username[:128]
	}
	h.deps.Audit.Log(r.Context(), audit.Event{
		Type:        typ,
		Outcome:     outcome,
		Actor:       username,
		SourceIP:    clientIP(r),
		Description: desc,
	})
}
