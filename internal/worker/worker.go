package worker

import (
	"context"
)

// InstallmentSweeper is the slice of the installment service the sweep
// workers drive.
type InstallmentSweeper interface {
	ProcessDueInstallments(ctx context.Context) error
	RetryFailedInstallments(ctx context.Context) error
	CancelExpiredGracePeriods(ctx context.Context) error
}
