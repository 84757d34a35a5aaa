// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/cruisecontrol/internal/logging"
	"github.com/tomtom215/cruisecontrol/internal/metrics"
)

// Config holds configuration for the audit logger.
type Config struct {
	// BufferSize is the size of the async write buffer (default 256).
	BufferSize int

	// Retention is how long events are kept (default 90 days).
	Retention time.Duration

	// CleanupInterval is how often retention cleanup runs (default 24h).
	CleanupInterval time.Duration
}

// Logger buffers events and writes them to a Store from its Serve loop.
type Logger struct {
	store  Store
	config Config
	events chan *Event
	logger zerolog.Logger
	now    func() time.Time
}

// NewLogger creates a logger. Events are only persisted while Serve runs.
func NewLogger(store Store, cfg Config) *Logger {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 90 * 24 * time.Hour
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 24 * time.Hour
	}
	return &Logger{
		store:  store,
		config: cfg,
		events: make(chan *Event, cfg.BufferSize),
		logger: logging.WithComponent("audit"),
		now:    time.Now,
	}
}

// Log queues event. ID, Timestamp and RequestID are filled when empty.
func (l *Logger) Log(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now()
	}
	if event.RequestID == "" {
		event.RequestID = logging.RequestIDFromContext(ctx)
	}

	select {
	case l.events <- &event:
	default:
		metrics.AuditEvents.WithLabelValues("dropped").Inc()
		l.logger.Warn().Str("type", string(event.Type)).Msg("Audit buffer full, dropping event")
	}
}

// Query returns stored events matching filter.
func (l *Logger) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	return l.store.Query(ctx, filter)
}

// Serve writes queued events and enforces retention until ctx is canceled.
// Queued events are flushed before it returns. It implements suture.Service.
func (l *Logger) Serve(ctx context.Context) error {
	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()

	l.cleanup(ctx)
	for {
		select {
		case <-ctx.Done():
			l.drain()
			return ctx.Err()
		case event := <-l.events:
			l.write(ctx, event)
		case <-ticker.C:
			l.cleanup(ctx)
		}
	}
}

// String names the service in supervisor logs.
func (l *Logger) String() string {
	return "audit-logger"
}

func (l *Logger) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case event := <-l.events:
			l.write(ctx, event)
		default:
			return
		}
	}
}

func (l *Logger) write(ctx context.Context, event *Event) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := l.store.Save(wctx, event); err != nil {
		metrics.AuditEvents.WithLabelValues("error").Inc()
		l.logger.Error().Err(err).Str("event_id", event.ID).Msg("Failed to save audit event")
		return
	}
	metrics.AuditEvents.WithLabelValues("written").Inc()
}

func (l *Logger) cleanup(ctx context.Context) {
	cutoff := l.now().Add(-l.config.Retention)
	n, err := l.store.Delete(ctx, cutoff)
	if err != nil {
		l.logger.Error().Err(err).Msg("Audit cleanup failed")
		return
	}
	if n > 0 {
		l.logger.Info().Int64("count", n).Msg("Cleaned up old audit events")
	}
}
