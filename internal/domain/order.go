package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus represents the current state of a ticket order
type OrderStatus string

const (
	OrderPending  OrderStatus = "pending"
	OrderPaid     OrderStatus = "paid"
	OrderCanceled OrderStatus = "canceled"
	OrderExpired  OrderStatus = "expired"
)

// Order is a ticket order together with the event context the sweeps need.
// Carrying the event data on the row keeps sweep runs free of per-order
// settings lookups.
type Order struct {
	Code      string
	EventSlug string
	EventName string
	EventDate time.Time
	Currency  string
	Total     decimal.Decimal
	Status    OrderStatus

	CustomerEmail   string
	OrganizerEmails []string

	CreatedAt time.Time
}

// CanCancel reports whether the order may still be moved to canceled.
func (o *Order) CanCancel() bool {
	return o.Status == OrderPending || o.Status == OrderPaid
}

// PaymentState values mirror the order payment lifecycle.
type PaymentState string

const (
	PaymentCreated   PaymentState = "created"
	PaymentPending   PaymentState = "pending"
	PaymentConfirmed PaymentState = "confirmed"
	PaymentFailed    PaymentState = "failed"
)

// OrderPayment is a money movement recorded against an order.
type OrderPayment struct {
	ID        string
	OrderCode string
	Amount    decimal.Decimal
	State     PaymentState

	// Info carries the provider payload (transaction id, state,
	// installment number) for later inspection.
	Info map[string]any

	CreatedAt   time.Time
	ConfirmedAt *time.Time
}

// Confirm marks the payment as settled. Confirming twice is a no-op.
func (p *OrderPayment) Confirm(at time.Time) {
	if p.State == PaymentConfirmed {
		return
	}
	p.State = PaymentConfirmed
	p.ConfirmedAt = &at
}

// Fail marks the payment as failed. Failing twice is a no-op, and a
// confirmed payment stays confirmed.
func (p *OrderPayment) Fail() {
	if p.State == PaymentConfirmed || p.State == PaymentFailed {
		return
	}
	p.State = PaymentFailed
}

// RefundState values mirror the order refund lifecycle.
type RefundState string

const (
	RefundCreated RefundState = "created"
	RefundDone    RefundState = "done"
	RefundFailed  RefundState = "failed"
)

// OrderRefund is a refund issued against an order. ExternalID makes refund
// creation idempotent at the gateway.
type OrderRefund struct {
	ID         string
	OrderCode  string
	Amount     decimal.Decimal
	ExternalID string
	State      RefundState
	CreatedAt  time.Time
}
