// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/cruisecontrol/internal/models"
)

// DefaultConfigPaths lists the config file locations searched in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/cruisecontrol/config.yaml",
	"/etc/cruisecontrol/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultRunConfig(prefix string) models.RunConfig {
	return models.RunConfig{
		RunMode:           models.RunModeBuild,
		SeedPeriod:        models.Period1Month,
		MinScrobbles:      10,
		LookbackDays:      90,
		MaxPerCycle:       10,
		MaxPlaylistTracks: 50,
		DryRun:            false,
		AutoPublish:       false,
		Weekday:           int(time.Monday),
		Hour:              8,
		Closeness:         5,
		PlaylistPrefix:    prefix,
	}
}

func defaultReleasesConfig() models.RunConfig {
	rc := defaultRunConfig("New Music")
	rc.IgnoreKeywords = "remix,remaster,live,karaoke,instrumental"
	return rc
}

// defaultConfig returns the built-in defaults, overridden by file and env.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8009,
			Host:            "0.0.0.0",
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Path:      "/data/cruisecontrol.duckdb",
			MaxMemory: "512MB",
			Threads:   0,
		},
		Cache: CacheConfig{
			Path:               "/data/cache",
			ReleaseMaxAge:      7 * 24 * time.Hour,
			RefreshConcurrency: 4,
			ArtworkTTL:         30 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		LastFM: LastFMConfig{
			BaseURL:           "https://ws.audioscrobbler.com/2.0/",
			Timeout:           15 * time.Second,
			RequestsPerSecond: 5,
			TopArtistLimit:    200,
		},
		Deezer: DeezerConfig{
			BaseURL:           "https://api.deezer.com",
			Timeout:           15 * time.Second,
			RequestsPerSecond: 10,
			AlbumLimit:        100,
		},
		Plex: PlexConfig{
			Timeout: 30 * time.Second,
		},
		SoulSync: SoulSyncConfig{
			Enabled: false,
			Timeout: 15 * time.Second,
		},
		ITunes: ITunesConfig{
			BaseURL:           "https://itunes.apple.com",
			Country:           "US",
			RequestsPerSecond: 1,
			Timeout:           10 * time.Second,
		},
		Schedule: ScheduleConfig{
			Enabled:             false,
			TickInterval:        time.Minute,
			CacheRefreshWeekday: int(time.Thursday),
			CacheRefreshHour:    5,
		},
		Pipeline: PipelineConfig{
			Concurrency:  4,
			HistoryCycle: 7 * 24 * time.Hour,
		},
		Releases:  defaultReleasesConfig(),
		Discovery: defaultRunConfig("Discovery"),
		Acquisition: AcquisitionConfig{
			Interval:    time.Hour,
			TimeoutDays: 30,
		},
		Security: SecurityConfig{
			AuthMode:          "none",
			SessionTimeout:    24 * time.Hour,
			AdminUsername:     "admin",
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
			CORSOrigins:       []string{"*"},
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// LoadWithKoanf loads configuration from defaults, an optional YAML file and
// the environment, then validates it.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := FindConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// FindConfigFile returns the first existing config file, or "".
func FindConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are fields that accept comma-separated env values.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps lower-cased environment variable names to koanf paths.
var envMappings = map[string]string{
	"http_port":        "server.port",
	"http_host":        "server.host",
	"http_timeout":     "server.timeout",
	"shutdown_timeout": "server.shutdown_timeout",

	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	"cache_path":                "cache.path",
	"release_cache_max_age":     "cache.release_max_age",
	"cache_refresh_concurrency": "cache.refresh_concurrency",
	"artwork_cache_ttl":         "cache.artwork_ttl",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"lastfm_base_url":    "lastfm.base_url",
	"lastfm_api_key":     "lastfm.api_key",
	"lastfm_username":    "lastfm.username",
	"lastfm_timeout":     "lastfm.timeout",
	"lastfm_rate_limit":  "lastfm.requests_per_second",
	"lastfm_top_artists": "lastfm.top_artist_limit",

	"deezer_base_url":    "deezer.base_url",
	"deezer_timeout":     "deezer.timeout",
	"deezer_rate_limit":  "deezer.requests_per_second",
	"deezer_album_limit": "deezer.album_limit",

	"plex_url":              "plex.url",
	"plex_token":            "plex.token",
	"plex_music_section_id": "plex.music_section_id",
	"plex_timeout":          "plex.timeout",

	"soulsync_enabled": "soulsync.enabled",
	"soulsync_url":     "soulsync.url",
	"soulsync_api_key": "soulsync.api_key",
	"soulsync_timeout": "soulsync.timeout",

	"itunes_base_url":   "itunes.base_url",
	"itunes_country":    "itunes.country",
	"itunes_rate_limit": "itunes.requests_per_second",

	"cc_enabled":                    "schedule.enabled",
	"schedule_tick_interval":        "schedule.tick_interval",
	"cache_refresh_weekday":         "schedule.cache_refresh_weekday",
	"cache_refresh_hour":            "schedule.cache_refresh_hour",
	"schedule_timezone":             "schedule.timezone",
	"pipeline_concurrency":          "pipeline.concurrency",
	"pipeline_history_cycle":        "pipeline.history_cycle",
	"acquisition_interval":          "acquisition.interval",
	"cc_acquisition_timeout_days":   "acquisition.timeout_days",
	"cc_run_mode":                   "releases.run_mode",
	"cc_period":                     "releases.seed_period",
	"cc_min_listens":                "releases.min_scrobbles",
	"cc_lookback_days":              "releases.lookback_days",
	"cc_max_per_cycle":              "releases.max_per_cycle",
	"cc_max_playlist_tracks":        "releases.max_playlist_tracks",
	"cc_dry_run":                    "releases.dry_run",
	"cc_auto_push_playlist":         "releases.auto_publish",
	"cc_schedule_weekday":           "releases.weekday",
	"cc_schedule_hour":              "releases.hour",
	"cc_playlist_prefix":            "releases.playlist_prefix",
	"nr_ignore_keywords":            "releases.ignore_keywords",
	"nr_ignore_artists":             "releases.ignore_artists",
	"discovery_closeness":           "discovery.closeness",
	"discovery_period":              "discovery.seed_period",
	"discovery_min_listens":         "discovery.min_scrobbles",
	"discovery_max_playlist_tracks": "discovery.max_playlist_tracks",
	"discovery_playlist_prefix":     "discovery.playlist_prefix",

	"auth_mode":           "security.auth_mode",
	"jwt_secret":          "security.jwt_secret",
	"session_timeout":     "security.session_timeout",
	"admin_username":      "security.admin_username",
	"admin_password_hash": "security.admin_password_hash",
	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",
	"cors_origins":        "security.cors_origins",

	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",
}

// envTransformFunc maps an environment variable name to a koanf path.
// Unmapped variables return "" so unrelated environment does not leak into config.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// WatchConfigFile calls callback whenever the file at path changes.
func WatchConfigFile(path string, callback func()) error {
	return file.Provider(path).Watch(func(_ interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}
