// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

// Package scheduler fires weekly slots: one run slot per engine and one
// release cache refresh slot.
//
// The loop ticks on a fixed interval (default: 1 minute). A slot fires when
// the current weekday and hour match and its last-fired key differs from the
// current one. Keys combine the ISO year-week with the slot's weekday and
// hour and are persisted in the settings table, so a restart inside the
// matching hour does not fire the slot again.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/cruisecontrol/internal/database"
	"github.com/tomtom215/cruisecontrol/internal/logging"
	"github.com/tomtom215/cruisecontrol/internal/metrics"
	"github.com/tomtom215/cruisecontrol/internal/models"
	"github.com/tomtom215/cruisecontrol/internal/pipeline"
	"github.com/tomtom215/cruisecontrol/internal/releasecache"
)

// Settings keys.
const (
	EnabledKey       = "schedule.cc_enabled"
	lastFiredKeyBase = "schedule.last_fired."
)

// CacheRefreshSlot names the release cache refresh slot.
const CacheRefreshSlot = "cache_refresh"

// Runner starts engine runs.
type Runner interface {
	Engine() models.Engine
	Config() models.RunConfig
	Start(ctx context.Context, override models.RunOverride) (models.RunStatus, error)
}

// Refresher refreshes the release cache.
type Refresher interface {
	ScheduledRefresh(ctx context.Context) (releasecache.RefreshReport, error)
}

// SettingsStore persists the enabled flag and last-fired keys.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Config holds configuration for the scheduler.
type Config struct {
	// Enabled is the default when no flag has been persisted.
	Enabled bool

	// TickInterval is how often slots are checked (default: 1 minute).
	TickInterval time.Duration

	// CacheRefreshWeekday and CacheRefreshHour place the refresh slot.
	CacheRefreshWeekday time.Weekday
	CacheRefreshHour    int

	// Location is the zone slots are evaluated in (default: local time).
	Location *time.Location

	// RefreshTimeout bounds one cache refresh (default: 30 minutes).
	RefreshTimeout time.Duration
}

// SlotStatus describes one slot for the schedule API.
type SlotStatus struct {
	Name      string    `json:"name"`
	Weekday   int       `json:"weekday"`
	Hour      int       `json:"hour"`
	LastFired string    `json:"last_fired,omitempty"`
	NextFire  time.Time `json:"next_fire"`
}

// Status is the scheduler snapshot returned by GET /schedule.
type Status struct {
	Enabled bool         `json:"enabled"`
	Slots   []SlotStatus `json:"slots"`
}

// slot is one weekly trigger. weekday and hour are read on every tick so
// config updates move the slot without a restart.
type slot struct {
	name string
	when func() (time.Weekday, int)
	fire func(ctx context.Context) error
}

// Scheduler runs the weekly slots.
type Scheduler struct {
	store     SettingsStore
	config    Config
	slots     []slot
	onRefresh func(releasecache.RefreshReport)
	logger    zerolog.Logger
	now       func() time.Time

	mu      sync.Mutex
	enabled bool
}

// New creates a scheduler with one run slot per runner and, when refresher is
// non-nil, a cache refresh slot. onRefresh receives every refresh report.
func New(store SettingsStore, runners []Runner, refresher Refresher, onRefresh func(releasecache.RefreshReport), cfg Config) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = 30 * time.Minute
	}

	s := &Scheduler{
		store:     store,
		config:    cfg,
		onRefresh: onRefresh,
		logger:    logging.WithComponent("scheduler"),
		now:       time.Now,
		enabled:   cfg.Enabled,
	}
	for _, r := range runners {
		s.slots = append(s.slots, slot{
			name: "run:" + string(r.Engine()),
			when: func() (time.Weekday, int) {
				rc := r.Config()
				return time.Weekday(rc.Weekday), rc.Hour
			},
			fire: func(ctx context.Context) error { return s.startRun(ctx, r) },
		})
	}
	if refresher != nil {
		s.slots = append(s.slots, slot{
			name: CacheRefreshSlot,
			when: func() (time.Weekday, int) { return cfg.CacheRefreshWeekday, cfg.CacheRefreshHour },
			fire: func(ctx context.Context) error { return s.refresh(ctx, refresher) },
		})
	}
	return s
}

// Load restores the persisted enabled flag. A missing flag keeps the
// configured default.
func (s *Scheduler) Load(ctx context.Context) error {
	raw, err := s.store.GetSetting(ctx, EnabledKey)
	if errors.Is(err, database.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load scheduler flag: %w", err)
	}
	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("invalid %s value %q: %w", EnabledKey, raw, err)
	}
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
	return nil
}

// Enabled reports whether slots fire.
func (s *Scheduler) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// SetEnabled persists and applies the enabled flag. Slots are kept either way.
func (s *Scheduler) SetEnabled(ctx context.Context, enabled bool) error {
	if err := s.store.SetSetting(ctx, EnabledKey, strconv.FormatBool(enabled)); err != nil {
		return err
	}
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
	s.logger.Info().Bool("enabled", enabled).Msg("Scheduler flag updated")
	return nil
}

// Serve ticks until ctx is canceled. It implements suture.Service.
func (s *Scheduler) Serve(ctx context.Context) error {
	if err := s.Load(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Using configured scheduler flag")
	}

	s.logger.Info().
		Dur("tick_interval", s.config.TickInterval).
		Int("slots", len(s.slots)).
		Bool("enabled", s.Enabled()).
		Msg("Starting scheduler")

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	// Check immediately on start
	s.Tick(ctx)

	for {
		select {
		case <-ticker.C:
			s.Tick(ctx)
		case <-ctx.Done():
			s.logger.Info().Msg("Scheduler stopped")
			return ctx.Err()
		}
	}
}

// String names the service in supervisor logs.
func (s *Scheduler) String() string {
	return "scheduler"
}

// Tick checks every slot once against the current time.
func (s *Scheduler) Tick(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	now := s.now().In(s.config.Location)
	for _, sl := range s.slots {
		weekday, hour := sl.when()
		if now.Weekday() != weekday || now.Hour() != hour {
			continue
		}
		key := firedKey(now)
		last, err := s.lastFired(ctx, sl.name)
		if err != nil {
			s.logger.Error().Err(err).Str("slot", sl.name).Msg("Failed to read last fired key")
			continue
		}
		if last == key {
			continue
		}
		// Record before firing so a crash mid-run does not fire twice.
		if err := s.store.SetSetting(ctx, lastFiredKeyBase+sl.name, key); err != nil {
			s.logger.Error().Err(err).Str("slot", sl.name).Msg("Failed to record slot fire")
			continue
		}
		metrics.SchedulerFires.WithLabelValues(sl.name).Inc()
		s.logger.Info().Str("slot", sl.name).Str("key", key).Msg("Slot fired")
		if err := sl.fire(ctx); err != nil {
			s.logger.Error().Err(err).Str("slot", sl.name).Msg("Slot action failed")
		}
	}
}

func (s *Scheduler) lastFired(ctx context.Context, name string) (string, error) {
	v, err := s.store.GetSetting(ctx, lastFiredKeyBase+name)
	if errors.Is(err, database.ErrNotFound) {
		return "", nil
	}
	return v, err
}

func (s *Scheduler) startRun(ctx context.Context, r Runner) error {
	st, err := r.Start(ctx, models.RunOverride{})
	if errors.Is(err, pipeline.ErrRunInProgress) {
		s.logger.Warn().Str("engine", string(r.Engine())).Msg("Scheduled run skipped, a run is already in progress")
		return nil
	}
	if err != nil {
		return fmt.Errorf("start %s run: %w", r.Engine(), err)
	}
	s.logger.Info().Str("engine", string(r.Engine())).Str("run_id", st.RunID).Msg("Scheduled run started")
	return nil
}

func (s *Scheduler) refresh(ctx context.Context, refresher Refresher) error {
	rctx, cancel := context.WithTimeout(ctx, s.config.RefreshTimeout)
	defer cancel()
	report, err := refresher.ScheduledRefresh(rctx)
	if err != nil {
		return fmt.Errorf("release cache refresh: %w", err)
	}
	if s.onRefresh != nil {
		s.onRefresh(report)
	}
	return nil
}

// Status returns the enabled flag, each slot's placement, its last-fired key
// and its next fire time.
func (s *Scheduler) Status(ctx context.Context) (Status, error) {
	now := s.now().In(s.config.Location)
	st := Status{Enabled: s.Enabled(), Slots: make([]SlotStatus, 0, len(s.slots))}
	for _, sl := range s.slots {
		weekday, hour := sl.when()
		last, err := s.lastFired(ctx, sl.name)
		if err != nil {
			return Status{}, err
		}
		st.Slots = append(st.Slots, SlotStatus{
			Name:      sl.name,
			Weekday:   int(weekday),
			Hour:      hour,
			LastFired: last,
			NextFire:  NextFire(now, weekday, hour, last),
		})
	}
	return st, nil
}

// firedKey identifies the slot occurrence containing t: ISO year-week plus
// weekday and hour.
func firedKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d-%d-%02d", year, week, int(t.Weekday()), t.Hour())
}

// NextFire returns the start of the next hour matching weekday and hour at or
// after now. The current hour counts only when it has not fired yet.
func NextFire(now time.Time, weekday time.Weekday, hour int, lastFired string) time.Time {
	loc := now.Location()
	start := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, loc)
	days := (int(weekday) - int(now.Weekday()) + 7) % 7
	next := start.AddDate(0, 0, days)
	if days == 0 && now.Hour() >= hour {
		if now.Hour() == hour && firedKey(now) != lastFired {
			return next
		}
		next = next.AddDate(0, 0, 7)
	}
	return next
}
