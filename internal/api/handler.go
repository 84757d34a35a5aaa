// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/cruisecontrol/internal/artwork"
	"github.com/tomtom215/cruisecontrol/internal/audit"
	"github.com/tomtom215/cruisecontrol/internal/auth"
	"github.com/tomtom215/cruisecontrol/internal/database"
	"github.com/tomtom215/cruisecontrol/internal/logging"
	"github.com/tomtom215/cruisecontrol/internal/models"
	"github.com/tomtom215/cruisecontrol/internal/providers"
	"github.com/tomtom215/cruisecontrol/internal/releasecache"
	"github.com/tomtom215/cruisecontrol/internal/scheduler"
	ws "github.com/tomtom215/cruisecontrol/internal/websocket"
)

// Engine is the run coordinator surface the API drives.
type Engine interface {
	Status() models.RunStatus
	Config() models.RunConfig
	UpdateConfig(ctx context.Context, cfg models.RunConfig) error
	Start(ctx context.Context, override models.RunOverride) (models.RunStatus, error)
}

// Store is the persistence surface the API reads and edits.
type Store interface {
	Ping(ctx context.Context) error
	LatestLedger(ctx context.Context, engine models.Engine) (*models.Ledger, error)
	LatestPlaylist(ctx context.Context, engine models.Engine) (int64, *models.Playlist, error)
	ListQueue(ctx context.Context, f database.QueueFilter) ([]models.QueueItem, error)
	Enqueue(ctx context.Context, req models.EnqueueRequest) (models.EnqueueResult, error)
	SetQueueStatus(ctx context.Context, id int64, to models.QueueStatus, detail string) (*models.QueueItem, error)
	DeleteQueueItem(ctx context.Context, id int64) error
	QueueStats(ctx context.Context) (models.QueueStats, error)
}

// ReleaseCache is the release cache surface.
type ReleaseCache interface {
	ForceRefreshAll() error
	ScheduledRefresh(ctx context.Context) (releasecache.RefreshReport, error)
}

// Reconciler runs one acquisition queue pass.
type Reconciler interface {
	Reconcile(ctx context.Context) (models.ReconcileReport, error)
}

// ArtworkResolver answers image lookups.
type ArtworkResolver interface {
	Resolve(ctx context.Context, req artwork.Request) (artwork.Result, error)
}

// Schedule is the scheduler surface.
type Schedule interface {
	Status(ctx context.Context) (scheduler.Status, error)
	SetEnabled(ctx context.Context, enabled bool) error
}

// Notifier publishes background outcomes to websocket clients.
type Notifier interface {
	PublishReconcile(report models.ReconcileReport)
	PublishCacheRefresh(report any)
}

// Auditor records operator actions.
type Auditor interface {
	Log(ctx context.Context, event audit.Event)
	Query(ctx context.Context, filter audit.QueryFilter) ([]audit.Event, error)
}

// Deps are the handler's collaborators. Authenticator and Audit are nil when
// disabled; Breakers feed the health report.
type Deps struct {
	Engines       map[models.Engine]Engine
	Store         Store
	ReleaseCache  ReleaseCache
	Reconciler    Reconciler
	Artwork       ArtworkResolver
	Schedule      Schedule
	Notifier      Notifier
	Hub           *ws.Hub
	Authenticator *auth.Authenticator
	Audit         Auditor
	Breakers      []*providers.Breaker
}

// Handler contains dependencies for API handlers.
//
// Handler methods are split across files:
//   - handlers_engines.go: status, config, run, history, playlists
//   - handlers_queue.go: acquisition queue
//   - handlers_cache.go: release cache, artwork, schedule
//   - handlers_health.go, handlers_auth.go, handlers_websocket.go
//   - handlers_audit.go: operator audit trail
type Handler struct {
	deps           Deps
	allowedOrigins []string
	startTime      time.Time
	version        string
}

// NewHandler creates a handler. allowedOrigins gates websocket upgrades.
func NewHandler(deps Deps, allowedOrigins []string, version string) *Handler {
	if version == "" {
		version = "dev"
	}
	return &Handler{
		deps:           deps,
		allowedOrigins: allowedOrigins,
		startTime:      time.Now(),
		version:        version,
	}
}

// getUpgrader creates a websocket upgrader with origin checking and a
// handshake timeout.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin accepts requests without an Origin header (non-browser
// clients, already authenticated) and browser origins on the CORS list.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if origin == "http://"+r.Host || origin == "https://"+r.Host {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected: origin not allowed")
	return false
}
