package handlers

import (
	"time"

	"github.com/sweenu/pretix-postfinance-sub000/internal/domain"
)

type CheckoutView struct {
	PaymentID      string `json:"payment_id"`
	TransactionID  int64  `json:"transaction_id"`
	PaymentPageURL string `json:"payment_page_url"`
}

type OfferView struct {
	OrderCode    string `json:"order_code"`
	Installments []int  `json:"installments"`
}

type InstallmentView struct {
	ID              string     `json:"id"`
	OrderCode       string     `json:"order_code"`
	Number          int        `json:"number"`
	NumInstallments int        `json:"num_installments"`
	Amount          string     `json:"amount"`
	Currency        string     `json:"currency"`
	DueDate         time.Time  `json:"due_date"`
	Status          string     `json:"status"`
	FailureReason   *string    `json:"failure_reason,omitempty"`
	GracePeriodEnds *time.Time `json:"grace_period_ends,omitempty"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
}

type PlanView struct {
	ID                      string `json:"id"`
	EventSlug               string `json:"event_slug"`
	Name                    string `json:"name"`
	NumInstallments         int    `json:"num_installments"`
	MinAmount               string `json:"min_amount"`
	MaxInstallmentsOverride int    `json:"max_installments_override"`
	Enabled                 bool   `json:"enabled"`
}

type RefundView struct {
	ID         string `json:"id"`
	OrderCode  string `json:"order_code"`
	Amount     string `json:"amount"`
	ExternalID string `json:"external_id"`
	State      string `json:"state"`
}

func toInstallmentView(inst *domain.Installment) InstallmentView {
	return InstallmentView{
		ID:              inst.ID,
		OrderCode:       inst.OrderCode,
		Number:          inst.Number,
		NumInstallments: inst.NumInstallments,
		Amount:          inst.Amount.StringFixed(2),
		Currency:        inst.Currency,
		DueDate:         inst.DueDate,
		Status:          string(inst.Status),
		FailureReason:   inst.FailureReason,
		GracePeriodEnds: inst.GracePeriodEnds,
		PaidAt:          inst.PaidAt,
	}
}

func toPlanView(plan *domain.InstallmentPlan) PlanView {
	return PlanView{
		ID:                      plan.ID,
		EventSlug:               plan.EventSlug,
		Name:                    plan.Name,
		NumInstallments:         plan.NumInstallments,
		MinAmount:               plan.MinAmount.StringFixed(2),
		MaxInstallmentsOverride: plan.MaxInstallmentsOverride,
		Enabled:                 plan.Enabled,
	}
}

func toRefundView(refund *domain.OrderRefund) RefundView {
	return RefundView{
		ID:         refund.ID,
		OrderCode:  refund.OrderCode,
		Amount:     refund.Amount.StringFixed(2),
		ExternalID: refund.ExternalID,
		State:      string(refund.State),
	}
}
