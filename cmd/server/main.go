// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/cruisecontrol/internal/acquisition"
	"github.com/tomtom215/cruisecontrol/internal/api"
	"github.com/tomtom215/cruisecontrol/internal/artwork"
	"github.com/tomtom215/cruisecontrol/internal/audit"
	"github.com/tomtom215/cruisecontrol/internal/auth"
	"github.com/tomtom215/cruisecontrol/internal/config"
	"github.com/tomtom215/cruisecontrol/internal/database"
	"github.com/tomtom215/cruisecontrol/internal/events"
	"github.com/tomtom215/cruisecontrol/internal/kvstore"
	"github.com/tomtom215/cruisecontrol/internal/logging"
	"github.com/tomtom215/cruisecontrol/internal/models"
	"github.com/tomtom215/cruisecontrol/internal/pipeline"
	"github.com/tomtom215/cruisecontrol/internal/providers"
	"github.com/tomtom215/cruisecontrol/internal/providers/deezer"
	"github.com/tomtom215/cruisecontrol/internal/providers/itunes"
	"github.com/tomtom215/cruisecontrol/internal/providers/lastfm"
	"github.com/tomtom215/cruisecontrol/internal/providers/plex"
	"github.com/tomtom215/cruisecontrol/internal/providers/soulsync"
	"github.com/tomtom215/cruisecontrol/internal/releasecache"
	"github.com/tomtom215/cruisecontrol/internal/scheduler"
	"github.com/tomtom215/cruisecontrol/internal/supervisor"
	ws "github.com/tomtom215/cruisecontrol/internal/websocket"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

//nolint:gocyclo // Main initialization function with sequential setup steps
func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	if path := config.FindConfigFile(); path != "" {
		if err := config.WatchConfigFile(path, func() { reloadLogLevel(path) }); err != nil {
			logging.Warn().Err(err).Str("path", path).Msg("Config file watch unavailable")
		}
	}

	logging.Info().
		Str("version", version).
		Str("db_path", cfg.Database.Path).
		Str("auth_mode", cfg.Security.AuthMode).
		Bool("soulsync_enabled", cfg.SoulSync.Enabled).
		Msg("Starting Cruise Control with supervisor tree")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized successfully")

	kv, err := kvstore.Open(kvstore.Options{Path: cfg.Cache.Path, InMemory: cfg.Cache.Path == ""})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open cache store")
	}
	defer func() {
		if err := kv.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing cache store")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Providers
	history := lastfm.New(cfg.LastFM)
	releaseSource := deezer.New(cfg.Deezer)
	library := plex.New(cfg.Plex)
	art := itunes.New(cfg.ITunes)
	breakers := []*providers.Breaker{history.Breaker(), releaseSource.Breaker(), library.Breaker(), art.Breaker()}

	var backend acquisition.Backend
	if cfg.SoulSync.Enabled {
		ss := soulsync.New(cfg.SoulSync)
		backend = ss
		breakers = append(breakers, ss.Breaker())
		pingProvider(ctx, "soulsync", ss.Ping)
	} else {
		logging.Info().Msg("Acquisition backend disabled (SOULSYNC_ENABLED=false), queue rows stay pending")
	}
	pingProvider(ctx, "plex", library.Ping)

	releases := releasecache.New(kv, releaseSource, releasecache.Config{
		MaxAge:      cfg.Cache.ReleaseMaxAge,
		Concurrency: cfg.Cache.RefreshConcurrency,
	})

	bus := events.NewBus(events.Config{})
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event bus")
		}
	}()
	wsHub := ws.NewHub()

	// Coordinators
	deps := pipeline.Deps{
		History:   history,
		Releases:  releases,
		Library:   library,
		Publisher: library,
		Store:     db,
		Progress:  bus,
	}
	opts := pipeline.Options{
		Concurrency:  cfg.Pipeline.Concurrency,
		HistoryCycle: cfg.Pipeline.HistoryCycle,
	}
	engines := make(map[models.Engine]api.Engine, len(models.Engines))
	var runners []scheduler.Runner
	for _, engine := range models.Engines {
		coord := pipeline.NewCoordinator(engine, cfg.RunConfigFor(engine), deps, opts)
		if err := coord.Restore(ctx); err != nil {
			logging.Warn().Err(err).Str("engine", string(engine)).Msg("Failed to restore engine state, using configured defaults")
		}
		engines[engine] = coord
		runners = append(runners, coord)
	}
	logging.Info().Int("engines", len(engines)).Msg("Run coordinators initialized")

	reconciler := acquisition.NewReconciler(db, backend, library, acquisition.Config{
		Interval:    cfg.Acquisition.Interval,
		TimeoutDays: cfg.Acquisition.TimeoutDays,
		OnReport:    bus.PublishReconcile,
	})

	resolver := artwork.NewResolver(kv, art, cfg.Cache.ArtworkTTL, 256)

	sched := scheduler.New(db, runners, releases, func(report releasecache.RefreshReport) {
		bus.PublishCacheRefresh(report)
	}, scheduler.Config{
		Enabled:             cfg.Schedule.Enabled,
		TickInterval:        cfg.Schedule.TickInterval,
		CacheRefreshWeekday: time.Weekday(cfg.Schedule.CacheRefreshWeekday),
		CacheRefreshHour:    cfg.Schedule.CacheRefreshHour,
		Location:            cfg.Schedule.Location(),
	})

	auditStore := audit.NewDuckDBStore(db.Conn())
	if err := auditStore.CreateTable(context.Background()); err != nil {
		logging.Fatal().Err(err).Msg("Failed to create audit table")
	}
	auditLogger := audit.NewLogger(auditStore, audit.Config{})

	// Authentication
	enforcer, err := auth.NewEnforcer()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize authorization policy")
	}
	var (
		jwtManager    *auth.JWTManager
		authenticator *auth.Authenticator
	)
	if cfg.Security.AuthMode == auth.ModeJWT {
		jwtManager, err = auth.NewJWTManager(&cfg.Security)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize JWT manager")
		}
		authenticator, err = auth.NewAuthenticator(cfg.Security.AdminUsername, cfg.Security.AdminPasswordHash, jwtManager)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize authenticator")
		}
		logging.Info().Msg("JWT authentication enabled")
	} else {
		logging.Warn().Msg("============================================================")
		logging.Warn().Msg("  SECURITY WARNING: Authentication is DISABLED (AUTH_MODE=none)")
		logging.Warn().Msg("  Anyone who can reach the API can start runs and edit the queue.")
		logging.Warn().Msg("  Use AUTH_MODE=jwt on any shared network.")
		logging.Warn().Msg("============================================================")
	}
	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED (DISABLE_RATE_LIMIT=true)")
	}

	handler := api.NewHandler(api.Deps{
		Engines:       engines,
		Store:         db,
		ReleaseCache:  releases,
		Reconciler:    reconciler,
		Artwork:       resolver,
		Schedule:      sched,
		Notifier:      bus,
		Hub:           wsHub,
		Authenticator: authenticator,
		Audit:         auditLogger,
		Breakers:      breakers,
	}, cfg.Security.CORSOrigins, version)
	router := api.NewRouter(handler,
		auth.NewMiddleware(jwtManager, enforcer, cfg.Security.AuthMode),
		api.NewChiMiddleware(api.ChiMiddlewareFromSecurity(&cfg.Security)))

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.SetupChi(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       60 * time.Second,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: cfg.Supervisor.FailureThreshold,
		FailureDecay:     cfg.Supervisor.FailureDecay,
		FailureBackoff:   cfg.Supervisor.FailureBackoff,
		ShutdownTimeout:  cfg.Supervisor.ShutdownTimeout,
	})
	tree.Add(supervisor.LayerStorage, kv)
	tree.Add(supervisor.LayerStorage, auditLogger)
	tree.Add(supervisor.LayerPipeline, sched)
	tree.Add(supervisor.LayerPipeline, reconciler)
	tree.Add(supervisor.LayerPipeline, resolver)
	tree.Add(supervisor.LayerMessaging, wsHub)
	tree.Add(supervisor.LayerMessaging, events.NewRelay(bus, wsHub))
	tree.Add(supervisor.LayerAPI, supervisor.NewHTTPService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("Services added to supervisor tree")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	// Let an in-flight run record its outcome before storage closes.
	for _, e := range engines {
		if coord, ok := e.(*pipeline.Coordinator); ok {
			coord.Wait()
		}
	}

	logging.Info().Msg("Application stopped gracefully")
}

// pingProvider checks a provider at startup. Failures are logged; the
// breaker and per-stage checks handle a dependency that stays down.
func pingProvider(ctx context.Context, name string, ping func(context.Context) error) {
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := ping(pctx); err != nil {
		logging.Warn().Err(err).Str("provider", name).Msg("Provider unreachable at startup (will retry)")
		return
	}
	logging.Info().Str("provider", name).Msg("Provider reachable")
}

// reloadLogLevel applies the logging level from a changed config file. Every
// other setting takes effect on restart.
func reloadLogLevel(path string) {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Warn().Err(err).Str("path", path).Msg("Config reload failed, keeping current log level")
		return
	}
	logging.SetLevelString(cfg.Logging.Level)
	logging.Info().Str("level", cfg.Logging.Level).Msg("Log level reloaded")
}
