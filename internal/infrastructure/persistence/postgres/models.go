package postgres

import (
	"time"
)

// InstallmentModel mirrors the installment_schedules table. Amounts are
// scanned as text and converted in the mappers to keep numeric precision.
type InstallmentModel struct {
	ID              string
	OrderCode       string
	Number          int
	NumInstallments int
	Amount          string
	Currency        string
	DueDate         time.Time
	Status          string
	TokenID         *string
	TransactionID   *string
	FailureReason   *string
	GracePeriodEnds *time.Time
	PaidAt          *time.Time
	CreatedAt       time.Time
	Version         int
}

// PlanModel mirrors the installment_plans table.
type PlanModel struct {
	ID                      string
	EventSlug               string
	Name                    string
	NumInstallments         int
	MinAmount               string
	MaxInstallmentsOverride int
	Enabled                 bool
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// OrderModel mirrors the orders table.
type OrderModel struct {
	Code            string
	EventSlug       string
	EventName       string
	EventDate       time.Time
	Currency        string
	Total           string
	Status          string
	CustomerEmail   string
	OrganizerEmails []string
	CreatedAt       time.Time
}

// PaymentModel mirrors the order_payments table.
type PaymentModel struct {
	ID          string
	OrderCode   string
	Amount      string
	State       string
	Info        []byte
	CreatedAt   time.Time
	ConfirmedAt *time.Time
}

// RefundModel mirrors the order_refunds table.
type RefundModel struct {
	ID         string
	OrderCode  string
	Amount     string
	ExternalID string
	State      string
	CreatedAt  time.Time
}
