// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/cruisecontrol/internal/models"
)

// setRequiredEnv sets the minimum environment for a valid configuration.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LASTFM_API_KEY", "lastfm-key")
	t.Setenv("LASTFM_USERNAME", "listener")
	t.Setenv("PLEX_URL", "http://plex.local:32400")
	t.Setenv("PLEX_TOKEN", "abcdefghijklmnopqrstuvwxyz")
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Cache.ReleaseMaxAge != 7*24*time.Hour {
		t.Errorf("Cache.ReleaseMaxAge = %v, want 168h", cfg.Cache.ReleaseMaxAge)
	}
	if cfg.Schedule.CacheRefreshWeekday != int(time.Thursday) || cfg.Schedule.CacheRefreshHour != 5 {
		t.Errorf("cache refresh slot = %d/%d, want Thursday 05:00", cfg.Schedule.CacheRefreshWeekday, cfg.Schedule.CacheRefreshHour)
	}
	if cfg.Releases.Weekday != int(time.Monday) || cfg.Releases.Hour != 8 {
		t.Errorf("run slot = %d/%d, want Monday 08:00", cfg.Releases.Weekday, cfg.Releases.Hour)
	}
	if cfg.Releases.PlaylistPrefix != "New Music" {
		t.Errorf("Releases.PlaylistPrefix = %q", cfg.Releases.PlaylistPrefix)
	}
	if cfg.Discovery.PlaylistPrefix != "Discovery" {
		t.Errorf("Discovery.PlaylistPrefix = %q", cfg.Discovery.PlaylistPrefix)
	}
	if cfg.Acquisition.TimeoutDays != 30 {
		t.Errorf("Acquisition.TimeoutDays = %d, want 30", cfg.Acquisition.TimeoutDays)
	}
	if cfg.Schedule.Enabled {
		t.Error("Schedule.Enabled should default to false")
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{"LASTFM_API_KEY", "lastfm.api_key"},
		{"CC_ENABLED", "schedule.enabled"},
		{"cc_period", "releases.seed_period"},
		{"NR_IGNORE_ARTISTS", "releases.ignore_artists"},
		{"DISCOVERY_CLOSENESS", "discovery.closeness"},
		{"LOG_LEVEL", "logging.level"},
		{"HOME", ""},
		{"PATH", ""},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			if got := envTransformFunc(tt.env); got != tt.want {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.env, got, tt.want)
			}
		})
	}
}

func TestLoadWithKoanfEnvVars(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("HTTP_PORT", "9100")
	t.Setenv("CC_ENABLED", "true")
	t.Setenv("CC_MAX_PER_CYCLE", "3")
	t.Setenv("CC_RUN_MODE", "fetch")
	t.Setenv("CC_PERIOD", "3month")
	t.Setenv("ACQUISITION_INTERVAL", "30m")
	t.Setenv("CORS_ORIGINS", "http://a.local, http://b.local")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("Server.Port = %d, want 9100", cfg.Server.Port)
	}
	if !cfg.Schedule.Enabled {
		t.Error("Schedule.Enabled should be true")
	}
	if cfg.Releases.MaxPerCycle != 3 || cfg.Releases.RunMode != models.RunModeFetch || cfg.Releases.SeedPeriod != models.Period3Month {
		t.Errorf("Releases = %+v", cfg.Releases)
	}
	if cfg.Acquisition.Interval != 30*time.Minute {
		t.Errorf("Acquisition.Interval = %v, want 30m", cfg.Acquisition.Interval)
	}
	if len(cfg.Security.CORSOrigins) != 2 || cfg.Security.CORSOrigins[1] != "http://b.local" {
		t.Errorf("CORSOrigins = %v", cfg.Security.CORSOrigins)
	}
	// Untouched defaults survive.
	if cfg.Discovery.Closeness != 5 {
		t.Errorf("Discovery.Closeness = %d, want 5", cfg.Discovery.Closeness)
	}
}

func TestLoadWithKoanfConfigFile(t *testing.T) {
	setRequiredEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9200
releases:
  run_mode: fetch
  ignore_keywords: "live,remaster"
discovery:
  closeness: 8
schedule:
  cache_refresh_weekday: 2
  cache_refresh_hour: 3
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("HTTP_PORT", "9300")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}
	if cfg.Server.Port != 9300 {
		t.Errorf("env should override file: Server.Port = %d, want 9300", cfg.Server.Port)
	}
	if cfg.Releases.RunMode != models.RunModeFetch || cfg.Releases.IgnoreKeywords != "live,remaster" {
		t.Errorf("Releases = %+v", cfg.Releases)
	}
	if cfg.Discovery.Closeness != 8 {
		t.Errorf("Discovery.Closeness = %d, want 8", cfg.Discovery.Closeness)
	}
	if cfg.Schedule.CacheRefreshWeekday != 2 || cfg.Schedule.CacheRefreshHour != 3 {
		t.Errorf("cache refresh slot = %d/%d", cfg.Schedule.CacheRefreshWeekday, cfg.Schedule.CacheRefreshHour)
	}
}

func TestLoadWithKoanfValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"missing lastfm key", map[string]string{"LASTFM_API_KEY": ""}, "LASTFM_API_KEY"},
		{"short plex token", map[string]string{"PLEX_TOKEN": "short"}, "PLEX_TOKEN"},
		{"plex url with path", map[string]string{"PLEX_URL": "http://plex.local/web"}, "PLEX_URL"},
		{"soulsync without url", map[string]string{"SOULSYNC_ENABLED": "true"}, "SOULSYNC_URL"},
		{"bad run mode", map[string]string{"CC_RUN_MODE": "cruise"}, "run_mode"},
		{"zero max per cycle", map[string]string{"CC_MAX_PER_CYCLE": "0"}, "max_per_cycle"},
		{"bad refresh weekday", map[string]string{"CACHE_REFRESH_WEEKDAY": "7"}, "CACHE_REFRESH_WEEKDAY"},
		{"jwt without secret", map[string]string{"AUTH_MODE": "jwt"}, "JWT_SECRET"},
		{"bad log level", map[string]string{"LOG_LEVEL": "loud"}, "LOG_LEVEL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadWithKoanf()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestScheduleConfig_Location(t *testing.T) {
	sc := ScheduleConfig{Timezone: "Europe/Berlin"}
	if sc.Location().String() != "Europe/Berlin" {
		t.Errorf("Location = %v", sc.Location())
	}
	sc.Timezone = "Not/AZone"
	if sc.Location() != time.Local {
		t.Error("unknown zone should fall back to time.Local")
	}
}

func TestFindConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cruisecontrol.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	if got := FindConfigFile(); got != path {
		t.Errorf("FindConfigFile() = %q, want %q", got, path)
	}

	// A missing override falls through to the defaults, which do not exist here.
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Chdir(t.TempDir())
	if got := FindConfigFile(); got != "" {
		t.Errorf("FindConfigFile() = %q, want empty", got)
	}
}
