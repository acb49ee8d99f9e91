package domain

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

// InstallmentPlan is an organizer's per-event installment offering.
type InstallmentPlan struct {
	ID        string
	EventSlug string
	Name      string

	// NumInstallments is the default count offered at checkout.
	NumInstallments int

	// MinAmount is the order total below which installments are not offered.
	MinAmount decimal.Decimal

	// MaxInstallmentsOverride caps the time-derived maximum when above zero.
	MaxInstallmentsOverride int

	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate enforces the plan constraints at write time.
func (p *InstallmentPlan) Validate() error {
	err := validation.ValidateStruct(p,
		validation.Field(&p.EventSlug, validation.Required),
		validation.Field(&p.Name, validation.Required, validation.Length(1, 190)),
		validation.Field(&p.NumInstallments,
			validation.Required,
			validation.Min(MinInstallmentCount),
			validation.Max(MaxInstallmentCount),
		),
		validation.Field(&p.MaxInstallmentsOverride,
			validation.When(p.MaxInstallmentsOverride != 0,
				validation.Min(MinInstallmentCount),
				validation.Max(MaxInstallmentCount),
			),
		),
	)
	if err != nil {
		return NewInvalidPlanError(err)
	}
	if p.MinAmount.IsNegative() {
		return NewInvalidPlanError(NewInvalidAmountError(p.MinAmount))
	}
	if p.MaxInstallmentsOverride != 0 && p.MaxInstallmentsOverride < p.NumInstallments {
		return NewInvalidPlanError(NewInvalidInstallmentCountError(p.MaxInstallmentsOverride))
	}
	return nil
}

// Offer computes the installment counts available at checkout for an order
// total, or nil when installments are not offered.
func (p *InstallmentPlan) Offer(orderTotal decimal.Decimal, eventDate, now time.Time) []int {
	if !p.Enabled {
		return nil
	}
	if orderTotal.LessThan(p.MinAmount) {
		return nil
	}

	max := MaxInstallments(eventDate, now, p.MaxInstallmentsOverride)
	if max < MinInstallmentCount {
		return nil
	}

	counts := make([]int, 0, max-MinInstallmentCount+1)
	for n := MinInstallmentCount; n <= max; n++ {
		counts = append(counts, n)
	}
	return counts
}
