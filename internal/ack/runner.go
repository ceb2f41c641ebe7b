package ack

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is the poll cadence when the configuration leaves it
// unset. Gateways take minutes to hours per stage; half an hour keeps the
// latency reasonable without hammering the remote side.
const DefaultInterval = 30 * time.Minute

// Runner drives a Poller on a ticker. Single-flight: if a pass is still
// running when the ticker fires again, the tick is dropped rather than
// opening a second gateway session.
type Runner struct {
	poller   *Poller
	interval time.Duration
	mu       sync.Mutex
}

// NewRunner creates a Runner. A non-positive interval falls back to
// DefaultInterval.
func NewRunner(p *Poller, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Runner{poller: p, interval: interval}
}

// Run polls immediately, then on every tick, until the context is
// cancelled. The context's cause is returned.
func (r *Runner) Run(ctx context.Context) error {
	r.runOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Runner) runOnce(ctx context.Context) {
	if !r.mu.TryLock() {
		slog.Debug("poll pass still running, tick dropped")
		return
	}
	defer r.mu.Unlock()

	updates, err := r.poller.Poll(ctx)
	if err != nil && ctx.Err() == nil {
		slog.Error("acknowledgment poll pass failed", "error", err)
		return
	}
	if len(updates) > 0 {
		slog.Info("acknowledgment poll pass finished", "updates", len(updates))
	}
}
