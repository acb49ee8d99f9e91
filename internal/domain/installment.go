package domain

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// InstallmentStatus represents the current state of an installment in its lifecycle
type InstallmentStatus string

const (
	StatusScheduled InstallmentStatus = "scheduled"
	StatusPending   InstallmentStatus = "pending"
	StatusPaid      InstallmentStatus = "paid"
	StatusFailed    InstallmentStatus = "failed"
	StatusCancelled InstallmentStatus = "cancelled"
)

// FailureState distinguishes a failed installment that is still inside its
// grace period from one whose grace period has run out.
type FailureState int

const (
	FailureNone FailureState = iota
	FailureInGrace
	FailureExpired
)

type Installment struct {
	ID              string
	OrderCode       string
	Number          int
	NumInstallments int
	Amount          decimal.Decimal
	Currency        string
	DueDate         time.Time
	Status          InstallmentStatus

	TokenID       *string
	TransactionID *string

	FailureReason   *string
	GracePeriodEnds *time.Time
	PaidAt          *time.Time

	CreatedAt time.Time
	Version   int
}

// NewInstallments materializes a calculated schedule into installment rows
// for an order. The token is the gateway payment token charged for every
// installment after the first.
func NewInstallments(orderCode, currency, tokenID string, schedule []ScheduleEntry, now time.Time) ([]*Installment, error) {
	if orderCode == "" {
		return nil, NewMissingRequiredFieldError("order code")
	}
	if currency == "" {
		return nil, NewMissingRequiredFieldError("currency")
	}
	if len(schedule) == 0 {
		return nil, NewInvalidScheduleError("schedule is empty")
	}

	installments := make([]*Installment, 0, len(schedule))
	for _, entry := range schedule {
		inst := &Installment{
			OrderCode:       orderCode,
			Number:          entry.Number,
			NumInstallments: len(schedule),
			Amount:          entry.Amount,
			Currency:        currency,
			DueDate:         entry.DueDate,
			Status:          StatusScheduled,
			CreatedAt:       now,
			Version:         1,
		}
		if tokenID != "" {
			token := tokenID
			inst.TokenID = &token
		}
		installments = append(installments, inst)
	}
	return installments, nil
}

// MarkPending records that a charge is in flight at the gateway.
func (i *Installment) MarkPending(transactionID string) error {
	if err := i.transition(StatusPending); err != nil {
		return err
	}
	i.TransactionID = &transactionID
	return nil
}

// MarkPaid settles the installment. Reapplying to an already paid
// installment is a no-op.
func (i *Installment) MarkPaid(transactionID string, paidAt time.Time) error {
	if i.Status == StatusPaid {
		return nil
	}
	if err := i.transition(StatusPaid); err != nil {
		return err
	}
	i.TransactionID = &transactionID
	i.PaidAt = &paidAt
	i.FailureReason = nil
	i.GracePeriodEnds = nil
	return nil
}

// MarkFailed records a charge failure and opens the grace window.
func (i *Installment) MarkFailed(reason string, gracePeriodEnds time.Time) error {
	if err := i.transition(StatusFailed); err != nil {
		return err
	}
	i.FailureReason = &reason
	i.GracePeriodEnds = &gracePeriodEnds
	return nil
}

// RecordRetryFailure updates the failure reason after an unsuccessful retry.
// The grace deadline is deliberately left untouched.
func (i *Installment) RecordRetryFailure(reason string) error {
	if i.Status != StatusFailed {
		return NewInvalidTransitionError(i.Status, StatusFailed)
	}
	i.FailureReason = &reason
	return nil
}

// MarkCancelled takes the installment out of the schedule. Reapplying to an
// already cancelled installment is a no-op. Grace bookkeeping only exists
// while the installment is failed, so it is cleared here too.
func (i *Installment) MarkCancelled() error {
	if i.Status == StatusCancelled {
		return nil
	}
	if err := i.transition(StatusCancelled); err != nil {
		return err
	}
	i.FailureReason = nil
	i.GracePeriodEnds = nil
	return nil
}

func (i *Installment) transition(target InstallmentStatus) error {
	if err := i.canTransitionTo(target); err != nil {
		return err
	}
	i.Status = target
	return nil
}

// defines the installment statuses that can be transitioned to
func (i *Installment) canTransitionTo(target InstallmentStatus) error {
	switch i.Status {
	case StatusScheduled:
		return i.allow(target, StatusPending, StatusPaid, StatusFailed, StatusCancelled)
	case StatusPending:
		return i.allow(target, StatusPaid, StatusFailed, StatusCancelled)
	case StatusFailed:
		return i.allow(target, StatusPaid, StatusCancelled)
	}
	return NewInvalidTransitionError(i.Status, target)
}

// Helper to check allowed state transitions
func (i *Installment) allow(target InstallmentStatus, allowed ...InstallmentStatus) error {
	if slices.Contains(allowed, target) {
		return nil
	}
	return NewInvalidTransitionError(i.Status, target)
}

// FailureState classifies a failed installment against its grace deadline.
func (i *Installment) FailureState(now time.Time) FailureState {
	if i.Status != StatusFailed || i.GracePeriodEnds == nil {
		return FailureNone
	}
	if now.Before(*i.GracePeriodEnds) {
		return FailureInGrace
	}
	return FailureExpired
}

// helper to identify installment statuses that are terminal
func (i *Installment) IsTerminal() bool {
	switch i.Status {
	case StatusPaid, StatusCancelled:
		return true
	default:
		return false
	}
}

// ReconstituteInstallment - Special constructor for loading from DB
func ReconstituteInstallment(
	id string, orderCode string,
	number, numInstallments int,
	amount decimal.Decimal, currency string,
	dueDate time.Time,
	status InstallmentStatus,
	tokenID, transactionID, failureReason *string,
	gracePeriodEnds, paidAt *time.Time,
	createdAt time.Time,
	version int,
) *Installment {
	return &Installment{
		ID:              id,
		OrderCode:       orderCode,
		Number:          number,
		NumInstallments: numInstallments,
		Amount:          amount,
		Currency:        currency,
		DueDate:         dueDate,
		Status:          status,
		TokenID:         tokenID,
		TransactionID:   transactionID,
		FailureReason:   failureReason,
		GracePeriodEnds: gracePeriodEnds,
		PaidAt:          paidAt,
		CreatedAt:       createdAt,
		Version:         version,
	}
}
