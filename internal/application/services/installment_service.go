package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sweenu/pretix-postfinance-sub000/internal/application"
	"github.com/sweenu/pretix-postfinance-sub000/internal/domain"
)

// SweepConfig carries the fixed installment policy.
type SweepConfig struct {
	GracePeriod time.Duration
	BatchSize   int
}

// action recorded on the order audit trail when a plan is abandoned
const actionInstallmentsCancelled = "postfinance.installments.cancelled"

// InstallmentService runs the three installment sweeps: charging due
// installments, retrying failed ones inside their grace window, and
// abandoning plans whose grace window ran out.
type InstallmentService struct {
	installments application.InstallmentRepository
	orders       application.OrderStore
	gateway      application.GatewayClient
	mailer       application.Mailer
	cfg          SweepConfig
	logger       *slog.Logger
	now          func() time.Time
}

func NewInstallmentService(
	installments application.InstallmentRepository,
	orders application.OrderStore,
	gateway application.GatewayClient,
	mailer application.Mailer,
	cfg SweepConfig,
	logger *slog.Logger,
) *InstallmentService {
	return &InstallmentService{
		installments: installments,
		orders:       orders,
		gateway:      gateway,
		mailer:       mailer,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
	}
}

// ListInstallments returns the full schedule of an order.
func (s *InstallmentService) ListInstallments(ctx context.Context, orderCode string) ([]*domain.Installment, error) {
	return s.installments.FindByOrder(ctx, orderCode)
}

// ProcessDueInstallments charges every scheduled installment whose due date
// has arrived. A failure on one installment never aborts the sweep.
func (s *InstallmentService) ProcessDueInstallments(ctx context.Context) error {
	now := s.now()
	due, err := s.installments.FindDue(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("query due installments: %w", err)
	}

	var processed int
	for _, inst := range due {
		if err := s.chargeDue(ctx, inst); err != nil {
			s.logger.Error("due installment processing failed",
				"order", inst.OrderCode,
				"installment", inst.Number,
				"error", err)
			continue
		}
		processed++
	}

	if processed > 0 {
		s.logger.Info("processed due installments", "count", processed)
	}
	return nil
}

// RetryFailedInstallments re-charges failed installments that are still
// inside their grace window. The grace deadline is never extended by a
// failed retry.
func (s *InstallmentService) RetryFailedInstallments(ctx context.Context) error {
	now := s.now()
	retryable, err := s.installments.FindRetryable(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("query retryable installments: %w", err)
	}

	var recovered int
	for _, inst := range retryable {
		ok, err := s.retryInstallment(ctx, inst)
		if err != nil {
			s.logger.Error("installment retry failed",
				"order", inst.OrderCode,
				"installment", inst.Number,
				"error", err)
			continue
		}
		if ok {
			recovered++
		}
	}

	if recovered > 0 {
		s.logger.Info("recovered failed installments", "count", recovered)
	}
	return nil
}

// CancelExpiredGracePeriods abandons every plan with a failed installment
// whose grace window ran out: remaining installments are cancelled, paid
// amounts are aggregated into a single refund and the order is canceled.
func (s *InstallmentService) CancelExpiredGracePeriods(ctx context.Context) error {
	now := s.now()
	expired, err := s.installments.FindGraceExpired(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("query grace-expired installments: %w", err)
	}

	seen := make(map[string]struct{})
	orderCodes := make([]string, 0, len(expired))
	for _, inst := range expired {
		if _, ok := seen[inst.OrderCode]; ok {
			continue
		}
		seen[inst.OrderCode] = struct{}{}
		orderCodes = append(orderCodes, inst.OrderCode)
	}

	for _, code := range orderCodes {
		if err := s.cancelOrderPlan(ctx, code); err != nil {
			s.logger.Error("plan cancellation failed", "order", code, "error", err)
			continue
		}
		s.logger.Info("installment plan cancelled", "order", code)
	}
	return nil
}

func (s *InstallmentService) chargeDue(ctx context.Context, inst *domain.Installment) error {
	order, err := s.orders.FindByCode(ctx, inst.OrderCode)
	if err != nil {
		return fmt.Errorf("load order: %w", err)
	}

	if inst.TokenID == nil {
		return s.failInstallment(ctx, order, inst, "no stored payment token")
	}

	tx, err := s.gateway.ChargeToken(ctx, application.ChargeTokenRequest{
		TokenID:           *inst.TokenID,
		Currency:          inst.Currency,
		Amount:            inst.Amount,
		MerchantReference: merchantReference(inst, false),
		CustomerEmail:     order.CustomerEmail,
	})
	if err != nil {
		s.logger.Warn("token charge failed",
			"order", inst.OrderCode,
			"installment", inst.Number,
			"category", application.CategorizeError(err),
			"error", err)
		return s.failInstallment(ctx, order, inst, err.Error())
	}

	switch application.ClassifyTransactionState(tx.State) {
	case application.OutcomeSuccess:
		return s.settleInstallment(ctx, order, inst, tx, false)
	case application.OutcomeFailure:
		return s.failInstallment(ctx, order, inst, failureReason(tx))
	default:
		// A charge left unsettled at the gateway takes the failure path;
		// the retry sweep revisits the row inside the grace window.
		return s.failInstallment(ctx, order, inst, "charge pending: "+tx.State)
	}
}

func (s *InstallmentService) retryInstallment(ctx context.Context, inst *domain.Installment) (bool, error) {
	order, err := s.orders.FindByCode(ctx, inst.OrderCode)
	if err != nil {
		return false, fmt.Errorf("load order: %w", err)
	}

	if inst.TokenID == nil {
		return false, s.recordRetryFailure(ctx, inst, "no stored payment token")
	}

	tx, err := s.gateway.ChargeToken(ctx, application.ChargeTokenRequest{
		TokenID:           *inst.TokenID,
		Currency:          inst.Currency,
		Amount:            inst.Amount,
		MerchantReference: merchantReference(inst, true),
		CustomerEmail:     order.CustomerEmail,
	})
	if err != nil {
		s.logger.Warn("retry charge failed",
			"order", inst.OrderCode,
			"installment", inst.Number,
			"category", application.CategorizeError(err),
			"error", err)
		return false, s.recordRetryFailure(ctx, inst, err.Error())
	}

	switch application.ClassifyTransactionState(tx.State) {
	case application.OutcomeSuccess:
		if err := s.settleInstallment(ctx, order, inst, tx, true); err != nil {
			return false, err
		}
		return true, nil
	case application.OutcomeFailure:
		return false, s.recordRetryFailure(ctx, inst, failureReason(tx))
	default:
		// Still pending at the gateway; leave the row failed so the next
		// retry sweep revisits it. The grace deadline stays untouched.
		return false, s.recordRetryFailure(ctx, inst, "charge pending: "+tx.State)
	}
}

func (s *InstallmentService) settleInstallment(ctx context.Context, order *domain.Order, inst *domain.Installment, tx *application.Transaction, retry bool) error {
	now := s.now()
	if err := inst.MarkPaid(formatTransactionID(tx.ID), now); err != nil {
		return err
	}
	if err := s.installments.Update(ctx, inst); err != nil {
		return fmt.Errorf("persist paid installment: %w", err)
	}

	payment := &domain.OrderPayment{
		ID:        uuid.New().String(),
		OrderCode: inst.OrderCode,
		Amount:    inst.Amount,
		State:     domain.PaymentCreated,
		Info: map[string]any{
			"transaction_id":     tx.ID,
			"state":              tx.State,
			"installment_number": inst.Number,
			"type":               "installment",
			"retry":              retry,
		},
		CreatedAt: now,
	}
	payment.Confirm(now)
	if err := s.orders.CreatePayment(ctx, payment); err != nil {
		return fmt.Errorf("record installment payment: %w", err)
	}

	if err := s.mailer.SendInstallmentPaid(ctx, order, inst); err != nil {
		s.logger.Warn("payment confirmation email failed", "order", inst.OrderCode, "error", err)
	}
	return nil
}

func (s *InstallmentService) failInstallment(ctx context.Context, order *domain.Order, inst *domain.Installment, reason string) error {
	graceEnds := s.now().Add(s.cfg.GracePeriod)
	if err := inst.MarkFailed(reason, graceEnds); err != nil {
		return err
	}
	if err := s.installments.Update(ctx, inst); err != nil {
		return fmt.Errorf("persist failed installment: %w", err)
	}

	if err := s.mailer.SendInstallmentFailed(ctx, order, inst); err != nil {
		s.logger.Warn("failure email failed", "order", inst.OrderCode, "error", err)
	}
	if err := s.mailer.SendOrganizerFailureAlert(ctx, order, inst); err != nil {
		s.logger.Warn("organizer alert failed", "order", inst.OrderCode, "error", err)
	}
	return nil
}

func (s *InstallmentService) recordRetryFailure(ctx context.Context, inst *domain.Installment, reason string) error {
	if err := inst.RecordRetryFailure(reason); err != nil {
		return err
	}
	return s.installments.Update(ctx, inst)
}

func (s *InstallmentService) cancelOrderPlan(ctx context.Context, orderCode string) error {
	order, err := s.orders.FindByCode(ctx, orderCode)
	if err != nil {
		return fmt.Errorf("load order: %w", err)
	}

	all, err := s.installments.FindByOrder(ctx, orderCode)
	if err != nil {
		return fmt.Errorf("load installments: %w", err)
	}

	var unpaid []application.UnpaidInstallment
	var lastPaidTx *string
	for _, inst := range all {
		switch inst.Status {
		case domain.StatusScheduled, domain.StatusFailed, domain.StatusPending:
			row := application.UnpaidInstallment{Number: inst.Number, Amount: inst.Amount}
			if inst.FailureReason != nil {
				row.Reason = *inst.FailureReason
			}
			if err := inst.MarkCancelled(); err != nil {
				return err
			}
			if err := s.installments.Update(ctx, inst); err != nil {
				return fmt.Errorf("persist cancelled installment %d: %w", inst.Number, err)
			}
			unpaid = append(unpaid, row)
		case domain.StatusPaid:
			if inst.TransactionID != nil {
				lastPaidTx = inst.TransactionID
			}
		}
	}

	// The refund is the sum of the persisted paid amounts, never a
	// recomputation from the schedule.
	refundTotal, err := s.installments.SumPaidByOrder(ctx, orderCode)
	if err != nil {
		return fmt.Errorf("sum paid installments: %w", err)
	}

	if refundTotal.IsPositive() {
		refund := &domain.OrderRefund{
			ID:         uuid.New().String(),
			OrderCode:  orderCode,
			Amount:     refundTotal,
			ExternalID: fmt.Sprintf("pretix-refund-%s-R-%s", orderCode, uuid.New().String()),
			State:      domain.RefundCreated,
			CreatedAt:  s.now(),
		}
		if lastPaidTx != nil {
			if txID, ok := parseTransactionID(*lastPaidTx); ok {
				result, err := s.gateway.RefundTransaction(ctx, application.RefundRequest{
					TransactionID: txID,
					Amount:        refundTotal,
					Currency:      order.Currency,
					ExternalID:    refund.ExternalID,
				})
				if err != nil {
					s.logger.Error("gateway refund failed, record kept for manual follow-up",
						"order", orderCode, "error", err)
				} else {
					refund.State = domain.RefundDone
					s.logger.Info("refund issued", "order", orderCode, "refund_id", result.ID)
				}
			}
		}
		if err := s.orders.CreateRefund(ctx, refund); err != nil {
			return fmt.Errorf("record refund: %w", err)
		}
	}

	if order.CanCancel() {
		if err := s.orders.MarkCanceled(ctx, orderCode); err != nil {
			return fmt.Errorf("cancel order: %w", err)
		}
	}

	installmentRows := make([]map[string]any, 0, len(unpaid))
	for _, row := range unpaid {
		entry := map[string]any{
			"number": row.Number,
			"amount": row.Amount.String(),
		}
		if row.Reason != "" {
			entry["reason"] = row.Reason
		}
		installmentRows = append(installmentRows, entry)
	}
	if err := s.orders.LogAction(ctx, orderCode, actionInstallmentsCancelled, map[string]any{
		"reason":       "installment grace period expired",
		"installments": installmentRows,
		"refunded":     refundTotal.String(),
	}); err != nil {
		s.logger.Warn("audit log write failed", "order", orderCode, "error", err)
	}

	if err := s.mailer.SendOrderCanceled(ctx, order, refundTotal, unpaid); err != nil {
		s.logger.Warn("cancellation email failed", "order", orderCode, "error", err)
	}
	return nil
}

func merchantReference(inst *domain.Installment, retry bool) string {
	ref := fmt.Sprintf("pretix-%s-installment-%d", inst.OrderCode, inst.Number)
	if retry {
		ref += "-retry"
	}
	return ref
}

func failureReason(tx *application.Transaction) string {
	if tx.FailureReason != "" {
		return tx.FailureReason
	}
	return "transaction state " + tx.State
}
