// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package models

import (
	"fmt"
	"strings"
	"time"
)

// Engine identifies one of the two pipeline variants.
type Engine string

const (
	// EngineReleases seeds runs from recent scrobbles.
	EngineReleases Engine = "releases"
	// EngineDiscovery seeds runs by similarity expansion around the top artists.
	EngineDiscovery Engine = "discovery"
)

// Engines lists every engine in startup order.
var Engines = []Engine{EngineReleases, EngineDiscovery}

// Valid reports whether e names a known engine.
func (e Engine) Valid() bool {
	return e == EngineReleases || e == EngineDiscovery
}

// RunMode selects how far a run goes.
type RunMode string

const (
	// RunModeBuild produces a playlist only.
	RunModeBuild RunMode = "build"
	// RunModeFetch also queues acquisitions for unowned releases.
	RunModeFetch RunMode = "fetch"
)

// SeedPeriod is the history window used to pick seed artists.
type SeedPeriod string

const (
	Period7Day    SeedPeriod = "7day"
	Period1Month  SeedPeriod = "1month"
	Period3Month  SeedPeriod = "3month"
	Period6Month  SeedPeriod = "6month"
	Period12Month SeedPeriod = "12month"
	PeriodOverall SeedPeriod = "overall"
)

// SeedPeriods lists every accepted seed period in ascending order.
var SeedPeriods = []SeedPeriod{Period7Day, Period1Month, Period3Month, Period6Month, Period12Month, PeriodOverall}

// Valid reports whether p is one of SeedPeriods.
func (p SeedPeriod) Valid() bool {
	for _, sp := range SeedPeriods {
		if p == sp {
			return true
		}
	}
	return false
}

// RunConfig is the immutable per-run snapshot of engine settings.
type RunConfig struct {
	RunMode           RunMode    `json:"run_mode" koanf:"run_mode" validate:"required,runmode"`
	SeedPeriod        SeedPeriod `json:"seed_period" koanf:"seed_period" validate:"required,seedperiod"`
	MinScrobbles      int        `json:"min_scrobbles" koanf:"min_scrobbles" validate:"gte=1,lte=100000"`
	LookbackDays      int        `json:"lookback_days" koanf:"lookback_days" validate:"gte=1,lte=3650"`
	MaxPerCycle       int        `json:"max_per_cycle" koanf:"max_per_cycle" validate:"gte=1,lte=500"`
	MaxPlaylistTracks int        `json:"max_playlist_tracks" koanf:"max_playlist_tracks" validate:"gte=1,lte=5000"`
	DryRun            bool       `json:"dry_run" koanf:"dry_run"`
	IgnoreKeywords    string     `json:"ignore_keywords" koanf:"ignore_keywords" validate:"max=4096"`
	IgnoreArtists     string     `json:"ignore_artists" koanf:"ignore_artists" validate:"max=4096"`
	AutoPublish       bool       `json:"auto_publish" koanf:"auto_publish"`
	Weekday           int        `json:"weekday" koanf:"weekday" validate:"gte=0,lte=6"`
	Hour              int        `json:"hour" koanf:"hour" validate:"gte=0,lte=23"`
	Closeness         int        `json:"closeness" koanf:"closeness" validate:"gte=1,lte=9"`
	PlaylistPrefix    string     `json:"playlist_prefix" koanf:"playlist_prefix" validate:"required,max=64"`
}

// TotalStages returns the number of reported stages for the config's mode.
func (c RunConfig) TotalStages() int {
	if c.RunMode == RunModeFetch {
		return 6
	}
	return 4
}

// PlaylistName returns "{prefix}_{YYYY-MM-DD}" for the given day.
func (c RunConfig) PlaylistName(day time.Time) string {
	return fmt.Sprintf("%s_%s", strings.TrimSpace(c.PlaylistPrefix), day.Format("2006-01-02"))
}

// RunOverride adjusts a stored RunConfig for a single invocation.
type RunOverride struct {
	// Mode is "", "build", "fetch" or "dry". "dry" keeps the stored mode and forces DryRun.
	Mode string
	// ForceRefresh drops the release cache before the run starts.
	ForceRefresh bool
}

// Apply returns cfg with the override applied.
func (o RunOverride) Apply(cfg RunConfig) (RunConfig, error) {
	switch strings.ToLower(strings.TrimSpace(o.Mode)) {
	case "":
	case string(RunModeBuild):
		cfg.RunMode = RunModeBuild
	case string(RunModeFetch):
		cfg.RunMode = RunModeFetch
	case "dry":
		cfg.DryRun = true
	default:
		return cfg, &ConfigError{Field: "mode", Message: fmt.Sprintf("unknown run mode %q (want build, fetch or dry)", o.Mode)}
	}
	return cfg, nil
}

// RunState is the coordinator state machine position.
type RunState string

const (
	RunStateIdle      RunState = "idle"
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStateError     RunState = "error"
)

// Terminal reports whether s ends a run.
func (s RunState) Terminal() bool {
	return s == RunStateCompleted || s == RunStateError
}

// Summary holds the per-run counters.
type Summary struct {
	ArtistsChecked int `json:"artists_checked"`
	NewReleases    int `json:"new_releases"`
	Owned          int `json:"owned"`
	Queued         int `json:"queued"`
}

// Add returns the field-wise sum of s and d.
func (s Summary) Add(d Summary) Summary {
	return Summary{
		ArtistsChecked: s.ArtistsChecked + d.ArtistsChecked,
		NewReleases:    s.NewReleases + d.NewReleases,
		Owned:          s.Owned + d.Owned,
		Queued:         s.Queued + d.Queued,
	}
}

// RunStatus is the published snapshot of an engine's run state.
// Snapshots are immutable once published; writers build a new value.
type RunStatus struct {
	Engine       Engine     `json:"engine"`
	State        RunState   `json:"state"`
	Stage        int        `json:"stage,omitempty"`
	TotalStages  int        `json:"total_stages,omitempty"`
	StageName    string     `json:"stage_name,omitempty"`
	RunID        string     `json:"run_id,omitempty"`
	RunMode      RunMode    `json:"run_mode,omitempty"`
	DryRun       bool       `json:"dry_run"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	Summary      Summary    `json:"summary"`
	PlaylistName string     `json:"playlist_name,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// ConfigError reports an invalid RunConfig value. It is raised before a run starts.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "invalid config: " + e.Message
	}
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Message)
}
