package worker

import (
	"context"
	"log/slog"
	"time"
)

// RetryWorker periodically re-charges failed installments that are still
// inside their grace window.
type RetryWorker struct {
	sweeper  InstallmentSweeper
	interval time.Duration
	logger   *slog.Logger
}

func NewRetryWorker(sweeper InstallmentSweeper, interval time.Duration, logger *slog.Logger) *RetryWorker {
	return &RetryWorker{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger,
	}
}

func (w *RetryWorker) Start(ctx context.Context) {
	w.logger.Info("retry worker started", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	if err := w.sweeper.RetryFailedInstallments(ctx); err != nil {
		w.logger.Error("retry sweep failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("retry worker stopping")
			return
		case <-ticker.C:
			if err := w.sweeper.RetryFailedInstallments(ctx); err != nil {
				w.logger.Error("retry sweep failed", "error", err)
			}
		}
	}
}
