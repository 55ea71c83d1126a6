package worker

import (
	"context"
	"log/slog"
	"time"

	"groupbuy-backend/internal/metrics"
	"groupbuy-backend/internal/service"
)

// Sweeper periodically finalizes groups whose recruiting window expired.
type Sweeper struct {
	groups    service.GroupService
	interval  time.Duration
	batchSize int
}

func NewSweeper(groups service.GroupService, interval time.Duration, batchSize int) *Sweeper {
	return &Sweeper{
		groups:    groups,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Run blocks until ctx is cancelled.
func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("group sweeper stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Sweeper) sweep(ctx context.Context) {
	metrics.SweepRuns.Inc()

	processed, err := w.groups.FinalizeExpired(ctx, w.batchSize)
	if err != nil {
		slog.Error("finalize expired groups", "error", err)
		return
	}
	if processed > 0 {
		slog.Info("finalized expired groups", "count", processed)
	}
}
