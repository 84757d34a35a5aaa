// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package artwork

import (
	"context"
	"errors"
	"time"
)

// ErrArtworkPending is returned when the image is still pending after the
// last retry.
var ErrArtworkPending = errors.New("artwork still pending")

// DefaultDelays is the fixed retry schedule. Its length is the attempt cap.
var DefaultDelays = []time.Duration{
	500 * time.Millisecond,
	time.Second,
	2 * time.Second,
	4 * time.Second,
}

// ResolveFunc performs one resolve call.
type ResolveFunc func(ctx context.Context) (Result, error)

// Poller re-asks a pending resolve on a fixed escalating schedule.
type Poller struct {
	Delays []time.Duration
}

// NewPoller returns a poller using DefaultDelays.
func NewPoller() *Poller {
	return &Poller{Delays: DefaultDelays}
}

// Poll calls resolve once, then once after each delay while the result is
// pending. It returns the URL ("" when the source has none), or
// ErrArtworkPending when every retry came back pending.
func (p *Poller) Poll(ctx context.Context, resolve ResolveFunc) (string, error) {
	res, err := resolve(ctx)
	if err != nil {
		return "", err
	}
	for attempt := 0; res.Pending; attempt++ {
		if attempt >= len(p.Delays) {
			return "", ErrArtworkPending
		}
		timer := time.NewTimer(p.Delays[attempt])
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
		if res, err = resolve(ctx); err != nil {
			return "", err
		}
	}
	return res.ImageURL, nil
}
