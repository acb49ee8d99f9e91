package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sweenu/pretix-postfinance-sub000/internal/application"
	"github.com/sweenu/pretix-postfinance-sub000/internal/domain"
)

// CheckoutConfig carries the provider settings that shape every checkout.
type CheckoutConfig struct {
	// BaseReturnURL is the public base the gateway redirects back to,
	// e.g. https://tickets.example.com
	BaseReturnURL string

	// CaptureMode is "immediate" or "deferred".
	CaptureMode string

	AllowedPaymentMethods []int64
}

// CheckoutCommand starts a payment for an order. NumInstallments zero means
// a plain full payment.
type CheckoutCommand struct {
	OrderCode       string
	NumInstallments int
}

// CheckoutResult points the customer at the gateway's payment page.
type CheckoutResult struct {
	PaymentID      string
	TransactionID  int64
	PaymentPageURL string
}

// CheckoutService drives the gateway checkout: creating transactions,
// settling returned customers, manual capture, void and refund.
type CheckoutService struct {
	orders       application.OrderStore
	installments application.InstallmentRepository
	plans        application.PlanRepository
	gateway      application.GatewayClient
	cfg          CheckoutConfig
	logger       *slog.Logger
	now          func() time.Time
}

func NewCheckoutService(
	orders application.OrderStore,
	installments application.InstallmentRepository,
	plans application.PlanRepository,
	gateway application.GatewayClient,
	cfg CheckoutConfig,
	logger *slog.Logger,
) *CheckoutService {
	return &CheckoutService{
		orders:       orders,
		installments: installments,
		plans:        plans,
		gateway:      gateway,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
	}
}

// CreateCheckout creates a gateway transaction for the order and returns the
// payment page the customer is redirected to. When installments are chosen,
// only the first installment is charged now and the gateway is asked to
// store a token for the rest.
func (s *CheckoutService) CreateCheckout(ctx context.Context, cmd CheckoutCommand) (*CheckoutResult, error) {
	order, err := s.orders.FindByCode(ctx, cmd.OrderCode)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.OrderPending {
		return nil, application.NewInvalidStateError(fmt.Errorf("order %s is %s", order.Code, order.Status))
	}
	if !domain.SupportedCurrency(order.Currency) {
		return nil, application.NewInvalidInputError(domain.NewUnsupportedCurrencyError(order.Currency))
	}

	paymentID := uuid.New().String()
	req := application.CreateTransactionRequest{
		Currency:              order.Currency,
		CustomerEmail:         order.CustomerEmail,
		MerchantReference:     "pretix-" + order.Code,
		SuccessURL:            s.returnURL(order.Code, paymentID, "success"),
		FailedURL:             s.returnURL(order.Code, paymentID, "failed"),
		CompletionBehavior:    s.completionBehavior(),
		AllowedPaymentMethods: s.cfg.AllowedPaymentMethods,
	}

	chargedNow := order.Total
	info := map[string]any{"type": "full"}

	if cmd.NumInstallments > 0 {
		schedule, err := s.installmentSchedule(ctx, order, cmd.NumInstallments)
		if err != nil {
			return nil, err
		}
		chargedNow = schedule[0].Amount
		req.MerchantReference = merchantReference(&domain.Installment{OrderCode: order.Code, Number: 1}, false)
		req.TokenizationMode = application.TokenizationForced
		req.LineItems = []application.LineItem{{
			UniqueID: fmt.Sprintf("%s-installment-1", order.Code),
			Name:     fmt.Sprintf("Installment 1 of %d for order %s", cmd.NumInstallments, order.Code),
			Type:     "PRODUCT",
			Quantity: 1,
			Amount:   chargedNow,
		}}
		info = map[string]any{
			"type":               "installment",
			"installment_number": 1,
			"num_installments":   cmd.NumInstallments,
		}
	} else {
		req.LineItems = []application.LineItem{{
			UniqueID: order.Code,
			Name:     fmt.Sprintf("Order %s (%s)", order.Code, order.EventName),
			Type:     "PRODUCT",
			Quantity: 1,
			Amount:   order.Total,
		}}
	}

	payment := &domain.OrderPayment{
		ID:        paymentID,
		OrderCode: order.Code,
		Amount:    chargedNow,
		State:     domain.PaymentCreated,
		Info:      info,
		CreatedAt: s.now(),
	}
	if err := s.orders.CreatePayment(ctx, payment); err != nil {
		return nil, application.NewInternalError(err)
	}

	tx, err := s.gateway.CreateTransaction(ctx, req)
	if err != nil {
		return nil, application.NewGatewayRejectedError(err)
	}

	payment.Info["transaction_id"] = tx.ID
	payment.State = domain.PaymentPending
	if err := s.orders.UpdatePayment(ctx, payment); err != nil {
		return nil, application.NewInternalError(err)
	}

	pageURL, err := s.gateway.PaymentPageURL(ctx, tx.ID)
	if err != nil {
		return nil, application.NewGatewayRejectedError(err)
	}

	s.logger.Info("checkout created",
		"order", order.Code,
		"transaction_id", tx.ID,
		"installments", cmd.NumInstallments)

	return &CheckoutResult{
		PaymentID:      payment.ID,
		TransactionID:  tx.ID,
		PaymentPageURL: pageURL,
	}, nil
}

// ExecutePayment settles a payment after the customer returned from the
// gateway or a webhook fired. It re-queries the transaction and confirms,
// fails or leaves the payment pending. Safe to call repeatedly.
func (s *CheckoutService) ExecutePayment(ctx context.Context, paymentID string) error {
	payment, err := s.orders.FindPayment(ctx, paymentID)
	if err != nil {
		return err
	}
	if payment.State == domain.PaymentConfirmed || payment.State == domain.PaymentFailed {
		return nil
	}

	txID, ok := transactionIDFromInfo(payment.Info)
	if !ok {
		return application.NewInvalidStateError(fmt.Errorf("payment %s has no transaction", payment.ID))
	}

	tx, err := s.gateway.GetTransaction(ctx, txID)
	if err != nil {
		return application.NewGatewayRejectedError(err)
	}
	payment.Info["state"] = tx.State

	switch application.ClassifyTransactionState(tx.State) {
	case application.OutcomeSuccess:
		return s.confirmPayment(ctx, payment, tx)
	case application.OutcomeFailure:
		payment.Fail()
		payment.Info["failure_reason"] = failureReason(tx)
		return s.orders.UpdatePayment(ctx, payment)
	default:
		return s.orders.UpdatePayment(ctx, payment)
	}
}

func (s *CheckoutService) confirmPayment(ctx context.Context, payment *domain.OrderPayment, tx *application.Transaction) error {
	now := s.now()
	payment.Confirm(now)
	if err := s.orders.UpdatePayment(ctx, payment); err != nil {
		return application.NewInternalError(err)
	}

	if payment.Info["type"] == "installment" {
		if err := s.materializeSchedule(ctx, payment, tx); err != nil {
			return err
		}
	}

	if err := s.orders.MarkPaid(ctx, payment.OrderCode); err != nil {
		return application.NewInternalError(err)
	}

	s.logger.Info("payment confirmed", "order", payment.OrderCode, "transaction_id", tx.ID)
	return nil
}

// HandleTransactionUpdate settles the payment behind a gateway webhook
// notification. Notifications for unknown transactions are ignored, the
// gateway also notifies about transactions we never created.
func (s *CheckoutService) HandleTransactionUpdate(ctx context.Context, transactionID int64) error {
	payment, err := s.orders.FindPaymentByTransaction(ctx, transactionID)
	if err != nil {
		if application.IsErrorNotFound(err) {
			s.logger.Debug("webhook for unknown transaction", "transaction_id", transactionID)
			return nil
		}
		return err
	}
	return s.ExecutePayment(ctx, payment.ID)
}

// materializeSchedule persists the installment rows once the first charge
// succeeded and the gateway handed us a reusable token. The first row is
// settled with the checkout transaction.
func (s *CheckoutService) materializeSchedule(ctx context.Context, payment *domain.OrderPayment, tx *application.Transaction) error {
	existing, err := s.installments.FindByOrder(ctx, payment.OrderCode)
	if err != nil {
		return application.NewInternalError(err)
	}
	if len(existing) > 0 {
		return nil
	}

	order, err := s.orders.FindByCode(ctx, payment.OrderCode)
	if err != nil {
		return err
	}

	numInstallments, ok := intFromInfo(payment.Info, "num_installments")
	if !ok {
		return application.NewInvalidStateError(fmt.Errorf("payment %s has no installment count", payment.ID))
	}

	schedule, err := domain.CalculateSchedule(order.Total, numInstallments, payment.CreatedAt)
	if err != nil {
		return application.NewInvalidInputError(err)
	}

	token := ""
	if tx.TokenID != nil {
		token = *tx.TokenID
	}
	installments, err := domain.NewInstallments(order.Code, order.Currency, token, schedule, s.now())
	if err != nil {
		return application.NewInvalidInputError(err)
	}

	if err := installments[0].MarkPaid(formatTransactionID(tx.ID), s.now()); err != nil {
		return err
	}

	if err := s.installments.CreateBatch(ctx, installments); err != nil {
		return application.NewInternalError(err)
	}

	s.logger.Info("installment schedule created",
		"order", order.Code,
		"installments", numInstallments,
		"token_stored", token != "")
	return nil
}

// installmentSchedule checks the offer and calculates the schedule for the
// chosen count.
func (s *CheckoutService) installmentSchedule(ctx context.Context, order *domain.Order, numInstallments int) ([]domain.ScheduleEntry, error) {
	plan, err := s.plans.FindByEvent(ctx, order.EventSlug)
	if err != nil {
		if application.IsErrorNotFound(err) {
			return nil, application.NewNotOfferedError()
		}
		return nil, err
	}

	offered := plan.Offer(order.Total, order.EventDate, s.now())
	if !slices.Contains(offered, numInstallments) {
		return nil, application.NewNotOfferedError()
	}

	schedule, err := domain.CalculateSchedule(order.Total, numInstallments, s.now())
	if err != nil {
		return nil, application.NewInvalidInputError(err)
	}
	if !domain.ValidateSchedule(schedule, order.EventDate) {
		return nil, application.NewNotOfferedError()
	}
	return schedule, nil
}

// Capture completes a deferred transaction for an order payment.
func (s *CheckoutService) Capture(ctx context.Context, paymentID string) error {
	payment, err := s.orders.FindPayment(ctx, paymentID)
	if err != nil {
		return err
	}
	txID, ok := transactionIDFromInfo(payment.Info)
	if !ok {
		return application.NewInvalidStateError(fmt.Errorf("payment %s has no transaction", payment.ID))
	}

	tx, err := s.gateway.CompleteTransaction(ctx, txID)
	if err != nil {
		return application.NewGatewayRejectedError(err)
	}

	s.logger.Info("transaction captured", "order", payment.OrderCode, "transaction_id", tx.ID, "state", tx.State)
	return nil
}

// Void cancels an uncaptured transaction and fails the payment record.
func (s *CheckoutService) Void(ctx context.Context, paymentID string) error {
	payment, err := s.orders.FindPayment(ctx, paymentID)
	if err != nil {
		return err
	}
	txID, ok := transactionIDFromInfo(payment.Info)
	if !ok {
		return application.NewInvalidStateError(fmt.Errorf("payment %s has no transaction", payment.ID))
	}

	if _, err := s.gateway.VoidTransaction(ctx, txID); err != nil {
		return application.NewGatewayRejectedError(err)
	}

	payment.Fail()
	return s.orders.UpdatePayment(ctx, payment)
}

// RefundPayment refunds part or all of a confirmed payment.
func (s *CheckoutService) RefundPayment(ctx context.Context, paymentID string, amount decimal.Decimal) (*domain.OrderRefund, error) {
	payment, err := s.orders.FindPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.State != domain.PaymentConfirmed {
		return nil, application.NewInvalidStateError(fmt.Errorf("payment %s is %s", payment.ID, payment.State))
	}
	if !amount.IsPositive() || amount.GreaterThan(payment.Amount) {
		return nil, application.NewInvalidInputError(domain.NewInvalidAmountError(amount))
	}

	order, err := s.orders.FindByCode(ctx, payment.OrderCode)
	if err != nil {
		return nil, err
	}

	txID, ok := transactionIDFromInfo(payment.Info)
	if !ok {
		return nil, application.NewInvalidStateError(fmt.Errorf("payment %s has no transaction", payment.ID))
	}

	refund := &domain.OrderRefund{
		ID:         uuid.New().String(),
		OrderCode:  payment.OrderCode,
		Amount:     amount,
		ExternalID: fmt.Sprintf("pretix-refund-%s-R-%s", payment.OrderCode, uuid.New().String()),
		State:      domain.RefundCreated,
		CreatedAt:  s.now(),
	}

	if _, err := s.gateway.RefundTransaction(ctx, application.RefundRequest{
		TransactionID: txID,
		Amount:        amount,
		Currency:      order.Currency,
		ExternalID:    refund.ExternalID,
	}); err != nil {
		return nil, application.NewGatewayRejectedError(err)
	}

	refund.State = domain.RefundDone
	if err := s.orders.CreateRefund(ctx, refund); err != nil {
		return nil, application.NewInternalError(err)
	}
	return refund, nil
}

// TestConnection verifies the configured space against the gateway.
func (s *CheckoutService) TestConnection(ctx context.Context) error {
	return s.gateway.GetSpace(ctx)
}

func (s *CheckoutService) completionBehavior() string {
	if s.cfg.CaptureMode == "deferred" {
		return application.CompletionDeferred
	}
	return application.CompletionImmediate
}

func (s *CheckoutService) returnURL(orderCode, paymentID, outcome string) string {
	return fmt.Sprintf("%s/api/v1/orders/%s/payments/%s/return?outcome=%s",
		s.cfg.BaseReturnURL, orderCode, paymentID, outcome)
}

func transactionIDFromInfo(info map[string]any) (int64, bool) {
	switch v := info["transaction_id"].(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case string:
		return parseTransactionID(v)
	default:
		return 0, false
	}
}

func intFromInfo(info map[string]any, key string) (int, bool) {
	switch v := info[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
