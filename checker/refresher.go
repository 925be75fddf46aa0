// SPDX-License-Identifier: GPL-3.0-or-later

package checker

import (
	"context"
	"time"
)

// DefaultInterval is the default interval between refreshes.
const DefaultInterval = 6 * time.Hour

// Updater is the part of [*Checker] driven by [*Refresher].
type Updater interface {
	UpdateAll(ctx context.Context) int
}

// Ticker abstracts [*time.Ticker] so tests can drive the refresh.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }

func (t timeTicker) Stop() { t.t.Stop() }

// Refresher periodically refreshes the datasets.
type Refresher struct {
	// Interval is the interval between refreshes. When zero,
	// we use [DefaultInterval].
	Interval time.Duration

	// NewTicker is the optional factory for the [Ticker].
	NewTicker func(d time.Duration) Ticker

	// Updater is the [Updater] to drive.
	Updater Updater
}

// Run refreshes immediately and then once per tick until ctx is done.
func (r *Refresher) Run(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	newTicker := r.NewTicker
	if newTicker == nil {
		newTicker = func(d time.Duration) Ticker {
			return timeTicker{time.NewTicker(d)}
		}
	}
	ticker := newTicker(interval)
	defer ticker.Stop()

	r.Updater.UpdateAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			r.Updater.UpdateAll(ctx)
		}
	}
}
