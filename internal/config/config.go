// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

// Package config loads Cruise Control configuration with koanf.
//
// Sources are layered in priority order (highest first):
//
//  1. Environment variables (explicit mapping table, see envTransformFunc)
//  2. YAML config file (CONFIG_PATH, ./config.yaml, /etc/cruisecontrol/config.yaml)
//  3. Built-in defaults (defaultConfig)
//
// The releases and discovery sections hold the boot-time RunConfig defaults for
// each engine. Values written through the API are persisted in DuckDB and take
// precedence over these on later starts.
package config

import (
	"time"

	"github.com/tomtom215/cruisecontrol/internal/models"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Database    DatabaseConfig    `koanf:"database"`
	Cache       CacheConfig       `koanf:"cache"`
	Logging     LoggingConfig     `koanf:"logging"`
	LastFM      LastFMConfig      `koanf:"lastfm"`
	Deezer      DeezerConfig      `koanf:"deezer"`
	Plex        PlexConfig        `koanf:"plex"`
	SoulSync    SoulSyncConfig    `koanf:"soulsync"`
	ITunes      ITunesConfig      `koanf:"itunes"`
	Schedule    ScheduleConfig    `koanf:"schedule"`
	Pipeline    PipelineConfig    `koanf:"pipeline"`
	Releases    models.RunConfig  `koanf:"releases"`
	Discovery   models.RunConfig  `koanf:"discovery"`
	Acquisition AcquisitionConfig `koanf:"acquisition"`
	Security    SecurityConfig    `koanf:"security"`
	Supervisor  SupervisorConfig  `koanf:"supervisor"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	Host            string        `koanf:"host"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"`
}

// CacheConfig holds the Badger-backed release and artwork cache settings.
type CacheConfig struct {
	// Path is the Badger directory. Empty runs Badger in memory.
	Path               string        `koanf:"path"`
	ReleaseMaxAge      time.Duration `koanf:"release_max_age"`
	RefreshConcurrency int           `koanf:"refresh_concurrency"`
	ArtworkTTL         time.Duration `koanf:"artwork_ttl"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// LastFMConfig holds the scrobble history provider settings.
type LastFMConfig struct {
	BaseURL           string        `koanf:"base_url"`
	APIKey            string        `koanf:"api_key"`
	Username          string        `koanf:"username"`
	Timeout           time.Duration `koanf:"timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	TopArtistLimit    int           `koanf:"top_artist_limit"`
}

// DeezerConfig holds the release metadata source settings.
type DeezerConfig struct {
	BaseURL           string        `koanf:"base_url"`
	Timeout           time.Duration `koanf:"timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	AlbumLimit        int           `koanf:"album_limit"`
}

// PlexConfig holds the library oracle and playlist target settings.
type PlexConfig struct {
	URL            string        `koanf:"url"`
	Token          string        `koanf:"token"`
	MusicSectionID string        `koanf:"music_section_id"`
	Timeout        time.Duration `koanf:"timeout"`
}

// SoulSyncConfig holds the acquisition backend settings.
type SoulSyncConfig struct {
	Enabled bool          `koanf:"enabled"`
	URL     string        `koanf:"url"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
}

// ITunesConfig holds the artwork lookup settings.
type ITunesConfig struct {
	BaseURL           string        `koanf:"base_url"`
	Country           string        `koanf:"country"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Timeout           time.Duration `koanf:"timeout"`
}

// ScheduleConfig holds the scheduler settings. The run slot lives in each
// engine's RunConfig (weekday, hour).
type ScheduleConfig struct {
	Enabled             bool          `koanf:"enabled"`
	TickInterval        time.Duration `koanf:"tick_interval"`
	CacheRefreshWeekday int           `koanf:"cache_refresh_weekday"`
	CacheRefreshHour    int           `koanf:"cache_refresh_hour"`
	Timezone            string        `koanf:"timezone"`
}

// PipelineConfig holds run coordinator settings.
type PipelineConfig struct {
	Concurrency  int           `koanf:"concurrency"`
	HistoryCycle time.Duration `koanf:"history_cycle"`
}

// AcquisitionConfig holds queue reconciliation settings.
type AcquisitionConfig struct {
	Interval    time.Duration `koanf:"interval"`
	TimeoutDays int           `koanf:"timeout_days"`
}

// SecurityConfig holds API authentication, rate limit and CORS settings.
type SecurityConfig struct {
	// AuthMode is "none" or "jwt".
	AuthMode          string        `koanf:"auth_mode"`
	JWTSecret         string        `koanf:"jwt_secret"`
	SessionTimeout    time.Duration `koanf:"session_timeout"`
	AdminUsername     string        `koanf:"admin_username"`
	AdminPasswordHash string        `koanf:"admin_password_hash"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// SupervisorConfig holds suture supervisor tree settings.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold"`
	FailureDecay     float64       `koanf:"failure_decay"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}

// RunConfigFor returns the boot-time RunConfig for engine.
func (c *Config) RunConfigFor(engine models.Engine) models.RunConfig {
	if engine == models.EngineDiscovery {
		return c.Discovery
	}
	return c.Releases
}

// Location returns the scheduler time zone, falling back to local time.
func (c *ScheduleConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
