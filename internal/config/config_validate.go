// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package config

import (
	"fmt"
	"strings"

	"github.com/tomtom215/cruisecontrol/internal/models"
	"github.com/tomtom215/cruisecontrol/internal/validation"
)

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateLastFM,
		c.validatePlex,
		c.validateSoulSync,
		c.validateSchedule,
		c.validatePipeline,
		c.validateRunConfigs,
		c.validateSecurity,
		c.validateLogging,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("DUCKDB_PATH is required")
	}
	return nil
}

func (c *Config) validateLastFM() error {
	if c.LastFM.APIKey == "" {
		return fmt.Errorf("LASTFM_API_KEY is required")
	}
	if c.LastFM.Username == "" {
		return fmt.Errorf("LASTFM_USERNAME is required")
	}
	if err := validateHTTPURL(c.LastFM.BaseURL, "LASTFM_BASE_URL", true); err != nil {
		return err
	}
	return validateHTTPURL(c.Deezer.BaseURL, "DEEZER_BASE_URL", false)
}

func (c *Config) validatePlex() error {
	if c.Plex.URL == "" {
		return fmt.Errorf("PLEX_URL is required")
	}
	if err := validateHTTPURL(c.Plex.URL, "PLEX_URL", false); err != nil {
		return err
	}
	if c.Plex.Token == "" {
		return fmt.Errorf("PLEX_TOKEN is required")
	}
	if len(c.Plex.Token) < 20 {
		return fmt.Errorf("PLEX_TOKEN appears invalid (too short, expected 20+ characters)")
	}
	return nil
}

func (c *Config) validateSoulSync() error {
	if !c.SoulSync.Enabled {
		return nil
	}
	if c.SoulSync.URL == "" {
		return fmt.Errorf("SOULSYNC_URL is required when SOULSYNC_ENABLED=true")
	}
	return validateHTTPURL(c.SoulSync.URL, "SOULSYNC_URL", false)
}

func (c *Config) validateSchedule() error {
	if c.Schedule.CacheRefreshWeekday < 0 || c.Schedule.CacheRefreshWeekday > 6 {
		return fmt.Errorf("CACHE_REFRESH_WEEKDAY must be between 0 (Sunday) and 6 (Saturday)")
	}
	if c.Schedule.CacheRefreshHour < 0 || c.Schedule.CacheRefreshHour > 23 {
		return fmt.Errorf("CACHE_REFRESH_HOUR must be between 0 and 23")
	}
	if c.Schedule.TickInterval <= 0 {
		return fmt.Errorf("SCHEDULE_TICK_INTERVAL must be positive")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.Concurrency < 1 || c.Pipeline.Concurrency > 32 {
		return fmt.Errorf("PIPELINE_CONCURRENCY must be between 1 and 32")
	}
	if c.Cache.ReleaseMaxAge <= 0 {
		return fmt.Errorf("RELEASE_CACHE_MAX_AGE must be positive")
	}
	if c.Acquisition.TimeoutDays < 1 {
		return fmt.Errorf("CC_ACQUISITION_TIMEOUT_DAYS must be at least 1")
	}
	if c.Acquisition.Interval <= 0 {
		return fmt.Errorf("ACQUISITION_INTERVAL must be positive")
	}
	return nil
}

func (c *Config) validateRunConfigs() error {
	for _, engine := range []models.Engine{models.EngineReleases, models.EngineDiscovery} {
		rc := c.RunConfigFor(engine)
		if err := validation.ValidateRunConfig(&rc); err != nil {
			return fmt.Errorf("%s: %w", engine, err)
		}
	}
	return nil
}

func (c *Config) validateSecurity() error {
	switch c.Security.AuthMode {
	case "none":
		return nil
	case "jwt":
	default:
		return fmt.Errorf("AUTH_MODE must be none or jwt, got %q", c.Security.AuthMode)
	}
	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters when AUTH_MODE=jwt")
	}
	if c.Security.AdminUsername == "" {
		return fmt.Errorf("ADMIN_USERNAME is required when AUTH_MODE=jwt")
	}
	if !strings.HasPrefix(c.Security.AdminPasswordHash, "$2") {
		return fmt.Errorf("ADMIN_PASSWORD_HASH must be a bcrypt hash when AUTH_MODE=jwt")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be trace, debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
		return nil
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
}
