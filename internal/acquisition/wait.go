// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package acquisition

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/cruisecontrol/internal/models"
)

// ErrOutcomePending is returned by WaitForOutcome when the item is still
// active after the last attempt.
var ErrOutcomePending = errors.New("acquisition outcome still pending")

// OutcomeDelays are the waits before each re-read. One read happens per
// delay, so the schedule also bounds the number of attempts.
var OutcomeDelays = []time.Duration{
	500 * time.Millisecond,
	time.Second,
	2 * time.Second,
	4 * time.Second,
}

// ItemGetter reads one queue row.
type ItemGetter interface {
	GetQueueItem(ctx context.Context, id int64) (*models.QueueItem, error)
}

// WaitForOutcome polls item id until it leaves pending/submitted, waiting
// OutcomeDelays between reads. It returns the last item read together with
// ErrOutcomePending when every attempt saw an active status.
func WaitForOutcome(ctx context.Context, store ItemGetter, id int64) (*models.QueueItem, error) {
	return waitForOutcome(ctx, store, id, OutcomeDelays)
}

func waitForOutcome(ctx context.Context, store ItemGetter, id int64, delays []time.Duration) (*models.QueueItem, error) {
	var last *models.QueueItem
	for _, d := range delays {
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return last, ctx.Err()
		case <-timer.C:
		}

		item, err := store.GetQueueItem(ctx, id)
		if err != nil {
			return last, err
		}
		last = item
		if !item.Status.Active() {
			return item, nil
		}
	}
	return last, ErrOutcomePending
}
