package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sweenu/pretix-postfinance-sub000/internal/domain"
)

// toInstallment: maps db model to domain entity
func toInstallment(m InstallmentModel) (*domain.Installment, error) {
	amount, err := decimal.NewFromString(m.Amount)
	if err != nil {
		return nil, fmt.Errorf("parse installment amount %q: %w", m.Amount, err)
	}
	return domain.ReconstituteInstallment(
		m.ID,
		m.OrderCode,
		m.Number,
		m.NumInstallments,
		amount,
		m.Currency,
		m.DueDate,
		domain.InstallmentStatus(m.Status),
		m.TokenID,
		m.TransactionID,
		m.FailureReason,
		m.GracePeriodEnds,
		m.PaidAt,
		m.CreatedAt,
		m.Version,
	), nil
}

// toPlan: maps db model to domain entity
func toPlan(m PlanModel) (*domain.InstallmentPlan, error) {
	minAmount, err := decimal.NewFromString(m.MinAmount)
	if err != nil {
		return nil, fmt.Errorf("parse plan min amount %q: %w", m.MinAmount, err)
	}
	return &domain.InstallmentPlan{
		ID:                      m.ID,
		EventSlug:               m.EventSlug,
		Name:                    m.Name,
		NumInstallments:         m.NumInstallments,
		MinAmount:               minAmount,
		MaxInstallmentsOverride: m.MaxInstallmentsOverride,
		Enabled:                 m.Enabled,
		CreatedAt:               m.CreatedAt,
		UpdatedAt:               m.UpdatedAt,
	}, nil
}

// toOrder: maps db model to domain entity
func toOrder(m OrderModel) (*domain.Order, error) {
	total, err := decimal.NewFromString(m.Total)
	if err != nil {
		return nil, fmt.Errorf("parse order total %q: %w", m.Total, err)
	}
	return &domain.Order{
		Code:            m.Code,
		EventSlug:       m.EventSlug,
		EventName:       m.EventName,
		EventDate:       m.EventDate,
		Currency:        m.Currency,
		Total:           total,
		Status:          domain.OrderStatus(m.Status),
		CustomerEmail:   m.CustomerEmail,
		OrganizerEmails: m.OrganizerEmails,
		CreatedAt:       m.CreatedAt,
	}, nil
}

// toPayment: maps db model to domain entity
func toPayment(m PaymentModel) (*domain.OrderPayment, error) {
	amount, err := decimal.NewFromString(m.Amount)
	if err != nil {
		return nil, fmt.Errorf("parse payment amount %q: %w", m.Amount, err)
	}
	info := map[string]any{}
	if len(m.Info) > 0 {
		if err := json.Unmarshal(m.Info, &info); err != nil {
			return nil, fmt.Errorf("parse payment info: %w", err)
		}
	}
	return &domain.OrderPayment{
		ID:          m.ID,
		OrderCode:   m.OrderCode,
		Amount:      amount,
		State:       domain.PaymentState(m.State),
		Info:        info,
		CreatedAt:   m.CreatedAt,
		ConfirmedAt: m.ConfirmedAt,
	}, nil
}

func paymentInfoJSON(payment *domain.OrderPayment) ([]byte, error) {
	if payment.Info == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(payment.Info)
	if err != nil {
		return nil, fmt.Errorf("encode payment info: %w", err)
	}
	return data, nil
}
