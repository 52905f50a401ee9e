package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/mtlprog/livefolio/internal/domain"
)

// HoldingsRefresher refreshes the holdings snapshot.
type HoldingsRefresher interface {
	Refresh(ctx context.Context) (domain.Snapshot, error)
}

// HoldingsWorker periodically refreshes the holdings baseline.
type HoldingsWorker struct {
	refresher HoldingsRefresher
	interval  time.Duration
}

// NewHoldingsWorker creates a new HoldingsWorker.
func NewHoldingsWorker(refresher HoldingsRefresher, interval time.Duration) *HoldingsWorker {
	return &HoldingsWorker{
		refresher: refresher,
		interval:  interval,
	}
}

// Run starts the holdings worker loop. It blocks until the context is cancelled.
func (w *HoldingsWorker) Run(ctx context.Context) {
	slog.Info("HoldingsWorker: starting", "interval", w.interval)

	// Refresh immediately on startup
	if snapshot, err := w.refresher.Refresh(ctx); err != nil {
		slog.Error("HoldingsWorker: initial refresh failed", "error", err)
	} else {
		slog.Info("HoldingsWorker: initial refresh completed", "holdings", len(snapshot.Holdings))
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("HoldingsWorker: shutting down")
			return
		case <-ticker.C:
			if snapshot, err := w.refresher.Refresh(ctx); err != nil {
				slog.Error("HoldingsWorker: refresh failed", "error", err)
			} else {
				slog.Debug("HoldingsWorker: refresh completed", "holdings", len(snapshot.Holdings))
			}
		}
	}
}
