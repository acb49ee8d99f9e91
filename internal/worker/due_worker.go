package worker

import (
	"context"
	"log/slog"
	"time"
)

// DueWorker periodically charges installments whose due date has arrived.
type DueWorker struct {
	sweeper  InstallmentSweeper
	interval time.Duration
	logger   *slog.Logger
}

func NewDueWorker(sweeper InstallmentSweeper, interval time.Duration, logger *slog.Logger) *DueWorker {
	return &DueWorker{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger,
	}
}

func (w *DueWorker) Start(ctx context.Context) {
	w.logger.Info("due installment worker started", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	if err := w.sweeper.ProcessDueInstallments(ctx); err != nil {
		w.logger.Error("due installment sweep failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("due installment worker stopping")
			return
		case <-ticker.C:
			if err := w.sweeper.ProcessDueInstallments(ctx); err != nil {
				w.logger.Error("due installment sweep failed", "error", err)
			}
		}
	}
}
