// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

/*
Package pipeline runs the discovery-to-acquisition pipeline for one engine.

A Coordinator owns the engine's RunStatus and executes at most one run at a
time. A run walks a fixed sequence of stages:

	1 Poll History       top artists with at least min_scrobbles plays
	2 Resolve Artists    dedupe, similarity expansion (discovery), ignore list
	3 Find New Releases  release cache lookups, ignore filter, lookback, prior ledger
	4 Check Library      ownership oracle per candidate
	5 Queue Tracks       acquisition queue writes (fetch mode)
	6 Create & Publish   playlist persistence and publishing

Build mode reports four stages; the playlist step runs under stage 4.

Per-candidate failures are recorded in the history ledger and the run goes
on. A collaborator that is unavailable before it has answered once in a
stage (transport failure, breaker open, 5xx, deadline) aborts the run with a
DependencyError; a 4xx or a data error on that call only skips the candidate. Dry runs make every read and decision but write nothing
except the run log record.
*/
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/cruisecontrol/internal/database"
	"github.com/tomtom215/cruisecontrol/internal/filter"
	"github.com/tomtom215/cruisecontrol/internal/logging"
	"github.com/tomtom215/cruisecontrol/internal/metrics"
	"github.com/tomtom215/cruisecontrol/internal/models"
	"github.com/tomtom215/cruisecontrol/internal/validation"
)

// Options tunes a coordinator.
type Options struct {
	// Concurrency bounds per-artist and per-candidate lookups (default 4).
	Concurrency int
	// HistoryCycle is how long a completed ledger suppresses its owned and
	// queued releases from later runs (default 7 days).
	HistoryCycle time.Duration
}

// Coordinator executes runs for one engine.
type Coordinator struct {
	engine models.Engine
	deps   Deps
	opts   Options
	logger zerolog.Logger
	now    func() time.Time

	config  atomic.Pointer[models.RunConfig]
	status  atomic.Pointer[models.RunStatus]
	running atomic.Bool
	wg      sync.WaitGroup
}

// NewCoordinator creates an idle coordinator for engine using cfg until a
// persisted config is restored or a new one is set.
func NewCoordinator(engine models.Engine, cfg models.RunConfig, deps Deps, opts Options) *Coordinator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.HistoryCycle <= 0 {
		opts.HistoryCycle = 7 * 24 * time.Hour
	}
	c := &Coordinator{
		engine: engine,
		deps:   deps,
		opts:   opts,
		logger: logging.WithComponent("pipeline").With().Str("engine", string(engine)).Logger(),
		now:    time.Now,
	}
	c.config.Store(&cfg)
	c.status.Store(&models.RunStatus{Engine: engine, State: models.RunStateIdle})
	return c
}

// Engine returns the engine this coordinator runs.
func (c *Coordinator) Engine() models.Engine {
	return c.engine
}

// Status returns the current status snapshot.
func (c *Coordinator) Status() models.RunStatus {
	return *c.status.Load()
}

// Running reports whether a run is in progress.
func (c *Coordinator) Running() bool {
	return c.running.Load()
}

// Config returns the stored run configuration.
func (c *Coordinator) Config() models.RunConfig {
	return *c.config.Load()
}

func configKey(engine models.Engine) string {
	return "engine." + string(engine) + ".run_config"
}

// UpdateConfig validates cfg, persists it and makes it the stored config.
// It never starts a run; an in-progress run keeps its snapshot.
func (c *Coordinator) UpdateConfig(ctx context.Context, cfg models.RunConfig) error {
	if err := validation.ValidateRunConfig(&cfg); err != nil {
		return err
	}
	if err := c.deps.Store.SetJSONSetting(ctx, configKey(c.engine), cfg); err != nil {
		return fmt.Errorf("persist %s config: %w", c.engine, err)
	}
	c.config.Store(&cfg)
	c.logger.Info().Str("run_mode", string(cfg.RunMode)).Int("weekday", cfg.Weekday).Int("hour", cfg.Hour).Msg("Run config updated")
	return nil
}

// Restore loads the persisted config and the last run record, if any.
func (c *Coordinator) Restore(ctx context.Context) error {
	var cfg models.RunConfig
	err := c.deps.Store.GetJSONSetting(ctx, configKey(c.engine), &cfg)
	switch {
	case errors.Is(err, database.ErrNotFound):
	case err != nil:
		return fmt.Errorf("load %s config: %w", c.engine, err)
	default:
		if verr := validation.ValidateRunConfig(&cfg); verr != nil {
			c.logger.Warn().Err(verr).Msg("Ignoring invalid persisted run config")
		} else {
			c.config.Store(&cfg)
		}
	}

	runs, err := c.deps.Store.RecentRuns(ctx, c.engine, 1)
	if err != nil {
		return fmt.Errorf("load %s run log: %w", c.engine, err)
	}
	if len(runs) > 0 && !c.running.Load() {
		last := runs[0]
		c.status.Store(&models.RunStatus{
			Engine:       c.engine,
			State:        models.RunStateIdle,
			LastRun:      last.LastRun,
			Summary:      last.Summary,
			PlaylistName: last.PlaylistName,
		})
	}
	return nil
}

// Start validates the effective config and launches a run in the
// background. It returns the starting snapshot, ErrRunInProgress when a run
// is active, or a *models.ConfigError. The run is detached from ctx.
func (c *Coordinator) Start(ctx context.Context, override models.RunOverride) (models.RunStatus, error) {
	cfg, err := override.Apply(c.Config())
	if err != nil {
		return c.Status(), err
	}
	if err := validation.ValidateRunConfig(&cfg); err != nil {
		return c.Status(), err
	}

	if !c.running.CompareAndSwap(false, true) {
		metrics.RunRejected.WithLabelValues(string(c.engine)).Inc()
		return c.Status(), ErrRunInProgress
	}

	if override.ForceRefresh {
		if err := c.deps.Releases.ForceRefreshAll(); err != nil {
			c.running.Store(false)
			return c.Status(), fmt.Errorf("force refresh release cache: %w", err)
		}
		c.logger.Info().Msg("Release cache cleared for forced refresh")
	}

	started := c.now()
	prev := c.Status()
	st := models.RunStatus{
		Engine:      c.engine,
		State:       models.RunStateRunning,
		TotalStages: cfg.TotalStages(),
		RunID:       uuid.NewString(),
		RunMode:     cfg.RunMode,
		DryRun:      cfg.DryRun,
		StartedAt:   &started,
		LastRun:     prev.LastRun,
	}
	c.publish(st)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.running.Store(false)
		c.execute(context.WithoutCancel(ctx), cfg, st)
	}()
	return st, nil
}

// Run starts a run and blocks until it finishes, returning the terminal status.
func (c *Coordinator) Run(ctx context.Context, override models.RunOverride) (models.RunStatus, error) {
	if _, err := c.Start(ctx, override); err != nil {
		return c.Status(), err
	}
	c.Wait()
	return c.Status(), nil
}

// Wait blocks until the in-progress run, if any, has finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// publish replaces the status snapshot and fans it out.
func (c *Coordinator) publish(st models.RunStatus) {
	snap := st
	c.status.Store(&snap)
	metrics.RunStage.WithLabelValues(string(c.engine)).Set(float64(st.Stage))
	if c.deps.Progress != nil {
		c.deps.Progress.PublishStatus(snap)
	}
}

// run is the mutable state of one execution, owned by its goroutine.
type run struct {
	env     stageEnv
	status  models.RunStatus
	history []models.HistoryEntry
	// carried holds prior ledger entries that suppressed a release this run.
	carried []models.HistoryEntry
}

func (r *run) enter(c *Coordinator, stage int) {
	if stage > r.status.Stage {
		r.status.Stage = stage
	}
	r.status.StageName = StageName(r.status.RunMode, r.status.Stage)
	c.publish(r.status)
	r.env.logger.Info().Int("stage", r.status.Stage).Int("total_stages", r.status.TotalStages).Str("stage_name", r.status.StageName).Msg("Stage started")
}

func (r *run) update(c *Coordinator) {
	c.publish(r.status)
}

func (c *Coordinator) execute(ctx context.Context, cfg models.RunConfig, st models.RunStatus) {
	ctx = logging.ContextWithRunID(ctx, st.RunID)
	logger := logging.Ctx(ctx).With().Str("component", "pipeline").Str("engine", string(c.engine)).Logger()
	r := &run{
		env: stageEnv{
			cfg:          cfg,
			engine:       c.engine,
			filter:       filter.FromRunConfig(cfg),
			concurrency:  c.opts.Concurrency,
			historyCycle: c.opts.HistoryCycle,
			now:          *st.StartedAt,
			logger:       logger,
		},
		status: st,
	}
	r.status.PlaylistName = cfg.PlaylistName(r.env.now)

	logger.Info().
		Str("run_mode", string(cfg.RunMode)).
		Bool("dry_run", cfg.DryRun).
		Str("seed_period", string(cfg.SeedPeriod)).
		Msg("Run started")

	err := c.runStages(ctx, r)
	finished := c.now()

	if err != nil {
		r.status.State = models.RunStateError
		r.status.Error = err.Error()
		logger.Error().Err(err).Int("stage", r.status.Stage).Msg("Run failed")
	} else {
		r.status.State = models.RunStateCompleted
		r.status.LastRun = &finished
		logger.Info().
			Int("artists_checked", r.status.Summary.ArtistsChecked).
			Int("new_releases", r.status.Summary.NewReleases).
			Int("owned", r.status.Summary.Owned).
			Int("queued", r.status.Summary.Queued).
			Dur("duration", finished.Sub(*st.StartedAt)).
			Msg("Run completed")
	}

	if recErr := c.deps.Store.RecordRun(ctx, r.status, finished); recErr != nil {
		logger.Warn().Err(recErr).Msg("Failed to record run")
	}
	metrics.RecordHistory(c.engine, r.history)
	metrics.RecordRun(r.status, finished.Sub(*st.StartedAt))

	final := r.status
	c.status.Store(&final)
	if c.deps.Progress != nil {
		c.deps.Progress.PublishStatus(final)
	}
}

func (c *Coordinator) runStages(ctx context.Context, r *run) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("run panicked in stage %d: %v", r.status.Stage, p)
		}
	}()

	env := r.env
	cfg := env.cfg

	r.enter(c, stagePollHistory)
	seeds, err := pollHistory(ctx, env, c.deps.History)
	if err != nil {
		return err
	}

	r.enter(c, stageResolve)
	artists, err := resolveArtists(ctx, env, c.deps.History, seeds)
	if err != nil {
		return err
	}
	r.status.Summary.ArtistsChecked = len(artists)
	r.update(c)

	r.enter(c, stageFindReleases)
	prior, err := c.deps.Store.LatestLedger(ctx, c.engine)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			env.logger.Warn().Err(err).Msg("Prior ledger unavailable, skipping history de-duplication")
		}
		prior = nil
	}
	candidates, carried, err := findReleases(ctx, env, c.deps.Releases, artists, prior)
	if err != nil {
		return err
	}
	r.carried = carried
	if len(carried) > 0 {
		env.logger.Debug().Int("carried", len(carried)).Msg("Prior ledger entries carried forward")
	}
	r.status.Summary.NewReleases = len(candidates)
	r.update(c)

	r.enter(c, stageCheckLibrary)
	checks, history, err := checkLibrary(ctx, env, c.deps.Library, candidates)
	if err != nil {
		return err
	}
	r.history = append(r.history, history...)

	var owned []libraryCheck
	var unowned []models.ReleaseCandidate
	for _, chk := range checks {
		switch {
		case chk.err != nil:
		case chk.owned:
			owned = append(owned, chk)
		default:
			unowned = append(unowned, chk.candidate)
		}
	}
	r.status.Summary.Owned = len(owned)
	r.update(c)

	if cfg.RunMode == models.RunModeFetch {
		r.enter(c, stageQueueTracks)
		queueHistory, queued, err := queueTracks(ctx, env, c.deps.Store, unowned, r.status.PlaylistName)
		if err != nil {
			return err
		}
		r.history = append(r.history, queueHistory...)
		r.status.Summary.Queued = queued
		r.update(c)

		r.enter(c, stageCreatePublish)
	} else {
		for _, cand := range unowned {
			r.history = append(r.history, historyEntry(env, cand, models.HistorySkipped, models.ReasonPlaylistMode))
		}
	}

	if err := c.createAndPublish(ctx, r, owned, unowned); err != nil {
		return err
	}

	if cfg.DryRun {
		env.logger.Info().Int("history_entries", len(r.history)).Msg("Dry run, ledger not replaced")
		return nil
	}
	ledger := &models.Ledger{
		RunID:       r.status.RunID,
		Engine:      c.engine,
		RunMode:     cfg.RunMode,
		CompletedAt: c.now(),
		Summary:     r.status.Summary,
		Entries:     append(append([]models.HistoryEntry(nil), r.history...), r.carried...),
	}
	if err := c.deps.Store.ReplaceLedger(ctx, ledger); err != nil {
		return fmt.Errorf("replace history ledger: %w", err)
	}
	return nil
}

// createAndPublish assembles, persists and optionally publishes the playlist.
func (c *Coordinator) createAndPublish(ctx context.Context, r *run, owned []libraryCheck, unowned []models.ReleaseCandidate) error {
	env := r.env
	tracks := buildPlaylist(ctx, env, c.deps.Library, owned, unowned)
	playlist := &models.Playlist{
		Name:      r.status.PlaylistName,
		Engine:    c.engine,
		RunID:     r.status.RunID,
		CreatedAt: env.now,
		Tracks:    tracks,
	}

	if env.cfg.DryRun {
		env.logger.Info().Str("playlist", playlist.Name).Int("tracks", len(tracks)).Msg("Dry run, playlist not saved")
		return nil
	}

	id, err := c.deps.Store.SavePlaylist(ctx, playlist)
	if err != nil {
		return fmt.Errorf("save playlist %s: %w", playlist.Name, err)
	}
	env.logger.Info().Str("playlist", playlist.Name).Int("tracks", len(tracks)).Msg("Playlist saved")

	if !env.cfg.AutoPublish || c.deps.Publisher == nil {
		return nil
	}
	keys := ownedRatingKeys(tracks)
	if len(keys) == 0 {
		env.logger.Info().Str("playlist", playlist.Name).Msg("No owned tracks, playlist not published")
		return nil
	}
	publishedID, err := c.deps.Publisher.PublishPlaylist(ctx, playlist.Name, keys)
	if err != nil {
		return &DependencyError{Dependency: "publisher", Stage: r.status.Stage, Err: err}
	}
	if err := c.deps.Store.SetPlaylistPublished(ctx, id, publishedID); err != nil {
		env.logger.Warn().Err(err).Str("playlist", playlist.Name).Msg("Failed to record published playlist id")
	}
	env.logger.Info().Str("playlist", playlist.Name).Str("published_id", publishedID).Int("tracks", len(keys)).Msg("Playlist published")
	return nil
}
