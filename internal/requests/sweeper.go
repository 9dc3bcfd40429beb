package requests

import (
	"context"
	"log/slog"
	"time"

	"github.com/SimonPP123/verto-digital-app-sub002/internal/metrics"
	"github.com/SimonPP123/verto-digital-app-sub002/internal/store"
)

const abandonedReason = "processing abandoned: no result within the allowed window"

// Sweeper periodically forces requests that have sat in processing past the
// external-call timeout plus a grace period into the error state. This is
// the recovery path for a process crash mid-call and for a lost persistence
// write; without it such rows would stay processing forever.
type Sweeper struct {
	store    store.Store
	metrics  *metrics.Metrics
	interval time.Duration
	maxAge   time.Duration
}

// NewSweeper creates a Sweeper. maxAge should exceed the longest external
// call timeout so the sweep never races a live submission.
func NewSweeper(st store.Store, m *metrics.Metrics, interval, maxAge time.Duration) *Sweeper {
	return &Sweeper{store: st, metrics: m, interval: interval, maxAge: maxAge}
}

// Run blocks, sweeping on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.maxAge)
	released, err := s.store.ReleaseStuck(ctx, cutoff, abandonedReason)
	if err != nil {
		slog.Error("staleness sweep failed", "error", err)
		return
	}
	if released > 0 {
		slog.Warn("released stuck requests", "count", released, "cutoff", cutoff)
		s.metrics.StuckReleased.Add(float64(released))
	}
}
