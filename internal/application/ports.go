package application

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sweenu/pretix-postfinance-sub000/internal/domain"
)

// GatewayClient is the port for the PostFinance Checkout API.
type GatewayClient interface {
	CreateTransaction(ctx context.Context, req CreateTransactionRequest) (*Transaction, error)
	GetTransaction(ctx context.Context, transactionID int64) (*Transaction, error)
	ChargeToken(ctx context.Context, req ChargeTokenRequest) (*Transaction, error)
	CompleteTransaction(ctx context.Context, transactionID int64) (*Transaction, error)
	VoidTransaction(ctx context.Context, transactionID int64) (*Transaction, error)
	RefundTransaction(ctx context.Context, req RefundRequest) (*RefundResult, error)
	PaymentPageURL(ctx context.Context, transactionID int64) (string, error)
	GetSpace(ctx context.Context) error
}

// InstallmentRepository is the port for installment schedule persistence.
type InstallmentRepository interface {
	CreateBatch(ctx context.Context, installments []*domain.Installment) error
	FindByOrder(ctx context.Context, orderCode string) ([]*domain.Installment, error)
	FindDue(ctx context.Context, asOf time.Time, limit int) ([]*domain.Installment, error)
	FindRetryable(ctx context.Context, now time.Time, limit int) ([]*domain.Installment, error)
	FindGraceExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Installment, error)
	Update(ctx context.Context, installment *domain.Installment) error
	SumPaidByOrder(ctx context.Context, orderCode string) (decimal.Decimal, error)
}

// PlanRepository is the port for installment plan persistence.
type PlanRepository interface {
	Create(ctx context.Context, plan *domain.InstallmentPlan) error
	Update(ctx context.Context, plan *domain.InstallmentPlan) error
	FindByID(ctx context.Context, id string) (*domain.InstallmentPlan, error)
	FindByEvent(ctx context.Context, eventSlug string) (*domain.InstallmentPlan, error)
}

// OrderStore is the port into the host ticketing system's order data.
type OrderStore interface {
	FindByCode(ctx context.Context, code string) (*domain.Order, error)
	CreatePayment(ctx context.Context, payment *domain.OrderPayment) error
	UpdatePayment(ctx context.Context, payment *domain.OrderPayment) error
	FindPayment(ctx context.Context, id string) (*domain.OrderPayment, error)
	FindPaymentByTransaction(ctx context.Context, transactionID int64) (*domain.OrderPayment, error)
	CreateRefund(ctx context.Context, refund *domain.OrderRefund) error
	MarkPaid(ctx context.Context, code string) error
	MarkCanceled(ctx context.Context, code string) error
	LogAction(ctx context.Context, code, action string, data map[string]any) error
}

// UnpaidInstallment summarizes an installment left unpaid when a plan is
// abandoned. Reason is empty for installments that were never charged.
type UnpaidInstallment struct {
	Number int
	Amount decimal.Decimal
	Reason string
}

// Mailer is the port for customer and organizer notifications.
type Mailer interface {
	SendInstallmentPaid(ctx context.Context, order *domain.Order, installment *domain.Installment) error
	SendInstallmentFailed(ctx context.Context, order *domain.Order, installment *domain.Installment) error
	SendOrganizerFailureAlert(ctx context.Context, order *domain.Order, installment *domain.Installment) error
	SendOrderCanceled(ctx context.Context, order *domain.Order, refunded decimal.Decimal, unpaid []UnpaidInstallment) error
}
