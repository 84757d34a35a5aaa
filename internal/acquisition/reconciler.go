// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

/*
Package acquisition reconciles the acquisition queue against the backend
and the library.

A reconciliation pass walks every active row:

	pending    -> submit to the backend -> submitted (409 counts as submitted)
	submitted  -> library holds the album             -> found
	           -> backend job completed               -> found
	           -> backend job failed                  -> failed
	           -> backend job not_found / declined    -> skipped
	           -> submitted longer than timeout_days  -> failed ("timeout")

Every transition is a conditional UPDATE that only applies if the row is
still in the status the pass read, so a pass never regresses a row that a
concurrent operator override or another pass already moved. Concurrent
Reconcile calls share one pass.
*/
package acquisition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/cruisecontrol/internal/database"
	"github.com/tomtom215/cruisecontrol/internal/logging"
	"github.com/tomtom215/cruisecontrol/internal/metrics"
	"github.com/tomtom215/cruisecontrol/internal/models"
	"github.com/tomtom215/cruisecontrol/internal/providers"
)

// Store is the queue persistence used by the reconciler.
type Store interface {
	ListActive(ctx context.Context) ([]models.QueueItem, error)
	GetQueueItem(ctx context.Context, id int64) (*models.QueueItem, error)
	AdvanceStatus(ctx context.Context, id int64, from []models.QueueStatus, to models.QueueStatus, upd database.QueueUpdate) (bool, error)
	QueueStats(ctx context.Context) (models.QueueStats, error)
}

// Backend is the acquisition backend.
type Backend interface {
	Submit(ctx context.Context, item models.QueueItem) (models.Submission, error)
	Status(ctx context.Context, ref string) (models.JobStatus, error)
}

// LibraryChecker answers whether the library already holds an album.
type LibraryChecker interface {
	HasAlbum(ctx context.Context, artist, album string) (bool, error)
}

// Config tunes the reconciler.
type Config struct {
	// Interval between background passes.
	Interval time.Duration
	// TimeoutDays after which a submitted row fails with "timeout".
	TimeoutDays int
	// OnReport, when set, receives the report of every background pass.
	OnReport func(models.ReconcileReport)
}

// Reconciler drives queue rows toward a terminal status.
type Reconciler struct {
	store   Store
	backend Backend
	library LibraryChecker
	cfg     Config
	logger  zerolog.Logger
	group   singleflight.Group
	now     func() time.Time
}

// NewReconciler creates a reconciler. backend and library may be nil, in
// which case the corresponding checks are skipped.
func NewReconciler(store Store, backend Backend, library LibraryChecker, cfg Config) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.TimeoutDays <= 0 {
		cfg.TimeoutDays = 30
	}
	return &Reconciler{
		store:   store,
		backend: backend,
		library: library,
		cfg:     cfg,
		logger:  logging.WithComponent("acquisition"),
		now:     time.Now,
	}
}

// reconcileResult is the outcome of one row.
type reconcileResult int

const (
	resultUnchanged reconcileResult = iota
	resultSubmitted
	resultFound
	resultFailed
	resultSkipped
	resultTimedOut
	resultError
)

// Reconcile runs one pass. Concurrent callers share the in-flight pass and
// its report. The pass is detached from the caller's cancellation so a
// disconnecting HTTP client does not abort it for the others.
func (r *Reconciler) Reconcile(ctx context.Context) (models.ReconcileReport, error) {
	v, err, shared := r.group.Do("reconcile", func() (interface{}, error) {
		return r.reconcile(context.WithoutCancel(ctx))
	})
	if shared {
		r.logger.Debug().Msg("Joined in-flight reconciliation pass")
	}
	if err != nil {
		return models.ReconcileReport{}, err
	}
	return v.(models.ReconcileReport), nil
}

func (r *Reconciler) reconcile(ctx context.Context) (models.ReconcileReport, error) {
	start := time.Now()
	var report models.ReconcileReport

	items, err := r.store.ListActive(ctx)
	if err != nil {
		return report, fmt.Errorf("list active queue items: %w", err)
	}

	backendDown := false
	for i := range items {
		item := items[i]
		report.Checked++

		var result reconcileResult
		switch item.Status {
		case models.QueuePending:
			if r.backend == nil || backendDown {
				continue
			}
			result, err = r.submit(ctx, item)
		case models.QueueSubmitted:
			result, err = r.check(ctx, item, backendDown)
		}
		if err != nil {
			if errors.Is(err, providers.ErrUnavailable) {
				backendDown = true
			}
			r.logger.Warn().Err(err).Int64("id", item.ID).Str("artist", item.Artist).Str("album", item.Album).Msg("Reconcile item failed")
		}

		switch result {
		case resultSubmitted:
			report.Submitted++
		case resultFound:
			report.Found++
		case resultFailed:
			report.Failed++
		case resultSkipped:
			report.Skipped++
		case resultTimedOut:
			report.TimedOut++
			report.Failed++
		case resultError:
			report.Errors++
		}
	}

	report.Duration = time.Since(start)
	metrics.ReconcileDuration.Observe(report.Duration.Seconds())
	if stats, err := r.store.QueueStats(ctx); err == nil {
		metrics.UpdateQueueGauges(stats)
	}

	if report.Submitted+report.Found+report.Failed+report.Skipped+report.Errors > 0 {
		r.logger.Info().
			Int("checked", report.Checked).
			Int("submitted", report.Submitted).
			Int("found", report.Found).
			Int("failed", report.Failed).
			Int("skipped", report.Skipped).
			Int("timed_out", report.TimedOut).
			Int("errors", report.Errors).
			Dur("duration", report.Duration).
			Msg("Acquisition queue reconciled")
	}
	return report, nil
}

// submit hands a pending row to the backend.
func (r *Reconciler) submit(ctx context.Context, item models.QueueItem) (reconcileResult, error) {
	sub, err := r.backend.Submit(ctx, item)
	if err != nil {
		return resultError, err
	}
	upd := database.QueueUpdate{BackendRef: sub.Ref}
	if sub.AlreadyQueued {
		upd.Detail = "already queued at backend"
	}
	return r.advance(ctx, item, models.QueueSubmitted, upd, resultSubmitted)
}

// check resolves a submitted row: library first, then the backend job,
// then the timeout.
func (r *Reconciler) check(ctx context.Context, item models.QueueItem, backendDown bool) (reconcileResult, error) {
	if r.library != nil {
		owned, err := r.library.HasAlbum(ctx, item.Artist, item.Album)
		if err != nil {
			r.logger.Debug().Err(err).Int64("id", item.ID).Msg("Library recheck failed")
		} else if owned {
			return r.advance(ctx, item, models.QueueFound, database.QueueUpdate{Detail: "in library"}, resultFound)
		}
	}

	var backendErr error
	if r.backend != nil && !backendDown && item.BackendRef != "" {
		job, err := r.backend.Status(ctx, item.BackendRef)
		if err != nil {
			backendErr = err
		} else {
			switch job.Status {
			case models.QueueFound:
				return r.advance(ctx, item, models.QueueFound, database.QueueUpdate{Detail: detailOr(job.Detail, job.State)}, resultFound)
			case models.QueueFailed:
				return r.advance(ctx, item, models.QueueFailed, database.QueueUpdate{Detail: detailOr(job.Detail, job.State)}, resultFailed)
			case models.QueueSkipped:
				return r.advance(ctx, item, models.QueueSkipped, database.QueueUpdate{Detail: detailOr(job.Detail, job.State)}, resultSkipped)
			case "":
				r.logger.Debug().Str("state", job.State).Int64("id", item.ID).Msg("Unknown backend job state")
			}
		}
	}

	if r.timedOut(item) {
		res, err := r.advance(ctx, item, models.QueueFailed, database.QueueUpdate{Detail: "timeout"}, resultTimedOut)
		if err == nil {
			err = backendErr
		}
		return res, err
	}
	if backendErr != nil {
		return resultError, backendErr
	}
	return resultUnchanged, nil
}

func (r *Reconciler) timedOut(item models.QueueItem) bool {
	since := item.RequestedAt
	if item.SubmittedAt != nil {
		since = *item.SubmittedAt
	}
	return r.now().Sub(since) > time.Duration(r.cfg.TimeoutDays)*24*time.Hour
}

// advance applies a conditional transition from the status the pass read.
// A lost race is reported as unchanged.
func (r *Reconciler) advance(ctx context.Context, item models.QueueItem, to models.QueueStatus, upd database.QueueUpdate, onSuccess reconcileResult) (reconcileResult, error) {
	ok, err := r.store.AdvanceStatus(ctx, item.ID, []models.QueueStatus{item.Status}, to, upd)
	if err != nil {
		return resultError, err
	}
	if !ok {
		return resultUnchanged, nil
	}
	metrics.QueueTransitions.WithLabelValues(string(to)).Inc()
	r.logger.Debug().Int64("id", item.ID).Str("from", string(item.Status)).Str("to", string(to)).Msg("Queue item advanced")
	return onSuccess, nil
}

func detailOr(detail, fallback string) string {
	if detail != "" {
		return detail
	}
	return fallback
}

// Serve runs reconciliation passes on the configured interval until ctx is
// canceled. It implements suture.Service.
func (r *Reconciler) Serve(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", r.cfg.Interval).Int("timeout_days", r.cfg.TimeoutDays).Msg("Acquisition reconciler started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			report, err := r.Reconcile(ctx)
			if err != nil {
				r.logger.Error().Err(err).Msg("Reconciliation pass failed")
				continue
			}
			if r.cfg.OnReport != nil {
				r.cfg.OnReport(report)
			}
		}
	}
}

// String names the service in supervisor logs.
func (r *Reconciler) String() string {
	return "acquisition-reconciler"
}
