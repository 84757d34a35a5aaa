// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/cruisecontrol/internal/auth"
	"github.com/tomtom215/cruisecontrol/internal/middleware"
)

// Router wires handlers, authentication and middleware into a chi mux.
type Router struct {
	handler    *Handler
	auth       *auth.Middleware
	middleware *ChiMiddleware
}

// NewRouter creates a router.
func NewRouter(handler *Handler, authMiddleware *auth.Middleware, mw *ChiMiddleware) *Router {
	return &Router{handler: handler, auth: authMiddleware, middleware: mw}
}

// SetupChi builds the chi router.
func (router *Router) SetupChi() http.Handler {
	h := router.handler
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Compress(5, "application/json"))
	r.Use(router.middleware.CORS())
	r.Use(APISecurityHeaders())

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.PrometheusMetrics)

		r.With(router.middleware.RateLimitCustom("health", RateLimitHealth)).
			Get("/health", h.Health)
		r.With(router.middleware.RateLimitCustom("login", RateLimitLogin)).
			Post("/auth/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(router.middleware.RateLimit())
			r.Use(router.auth.Authenticate)
			r.Use(router.auth.Authorize)

			r.Route("/engines/{engine}", func(r chi.Router) {
				r.Get("/status", h.EngineStatus)
				r.Get("/config", h.EngineConfig)
				r.Put("/config", h.UpdateEngineConfig)
				r.With(router.middleware.RateLimitCustom("run", RateLimitRun)).
					Post("/run", h.StartRun)
				r.Get("/history", h.EngineHistory)
				r.Get("/playlists/latest", h.LatestPlaylist)
			})

			r.With(router.middleware.RateLimitCustom("run", RateLimitRun)).Group(func(r chi.Router) {
				r.Post("/release-cache/clear", h.ClearReleaseCache)
				r.Post("/release-cache/refresh", h.RefreshReleaseCache)
				r.Post("/acquisition/check-now", h.CheckNow)
			})

			r.Get("/acquisition/queue", h.ListQueue)
			r.Post("/acquisition/queue", h.AddToQueue)
			r.Patch("/acquisition/queue/{id}", h.UpdateQueueItem)
			r.Delete("/acquisition/queue/{id}", h.DeleteQueueItem)
			r.Get("/acquisition/stats", h.QueueStats)

			r.Post("/images/resolve", h.ResolveImage)

			r.Get("/schedule", h.ScheduleStatus)
			r.Put("/schedule/enabled", h.SetScheduleEnabled)

			r.Get("/audit", h.AuditEvents)

			r.Get("/ws", h.WebSocket)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, ErrCodeBadRequest, "method not allowed", nil)
	})

	return r
}
