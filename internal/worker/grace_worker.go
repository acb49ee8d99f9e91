package worker

import (
	"context"
	"log/slog"
	"time"
)

// GraceWorker periodically abandons installment plans whose grace window
// ran out, refunding what was already paid.
type GraceWorker struct {
	sweeper  InstallmentSweeper
	interval time.Duration
	logger   *slog.Logger
}

func NewGraceWorker(sweeper InstallmentSweeper, interval time.Duration, logger *slog.Logger) *GraceWorker {
	return &GraceWorker{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger,
	}
}

func (w *GraceWorker) Start(ctx context.Context) {
	w.logger.Info("grace period worker started", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	if err := w.sweeper.CancelExpiredGracePeriods(ctx); err != nil {
		w.logger.Error("grace period sweep failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("grace period worker stopping")
			return
		case <-ticker.C:
			if err := w.sweeper.CancelExpiredGracePeriods(ctx); err != nil {
				w.logger.Error("grace period sweep failed", "error", err)
			}
		}
	}
}
