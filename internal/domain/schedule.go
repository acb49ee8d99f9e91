// Package domain encodes installment schedules, their lifecycle and the
// plan and order entities they attach to.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// MinInstallmentCount and MaxInstallmentCount bound every schedule.
	MinInstallmentCount = 2
	MaxInstallmentCount = 12

	// InstallmentSpacingDays is the fixed stride between due dates. The
	// final installment must also clear the event by this many days.
	InstallmentSpacingDays = 30
)

// ScheduleEntry is one planned installment before it is persisted.
type ScheduleEntry struct {
	Number  int
	Amount  decimal.Decimal
	DueDate time.Time
}

// MaxInstallments returns the largest installment count so that, with the
// fixed 30-day spacing, the final installment still falls at least 30 days
// before the event. Capped at MaxInstallmentCount. An organizerMax above
// zero can only tighten the result, never raise it.
func MaxInstallments(eventDate, startDate time.Time, organizerMax int) int {
	latest := startOfDay(eventDate).AddDate(0, 0, -InstallmentSpacingDays)
	daysAvailable := int(latest.Sub(startOfDay(startDate)).Hours() / 24)

	months := 1
	if daysAvailable >= 0 {
		months = (daysAvailable-1)/InstallmentSpacingDays + 1
		if months < 1 {
			months = 1
		}
	}
	if months > MaxInstallmentCount {
		months = MaxInstallmentCount
	}
	if organizerMax > 0 && organizerMax < months {
		months = organizerMax
	}
	return months
}

// CalculateSchedule splits totalAmount into numInstallments entries due at a
// fixed 30-day stride from startDate. Every entry except the last carries
// round-half-up(total/n, 2dp); the last absorbs the rounding remainder so the
// amounts always sum exactly to totalAmount.
func CalculateSchedule(totalAmount decimal.Decimal, numInstallments int, startDate time.Time) ([]ScheduleEntry, error) {
	if numInstallments < MinInstallmentCount || numInstallments > MaxInstallmentCount {
		return nil, NewInvalidInstallmentCountError(numInstallments)
	}
	if !totalAmount.IsPositive() {
		return nil, NewInvalidAmountError(totalAmount)
	}

	base := totalAmount.Div(decimal.NewFromInt(int64(numInstallments))).Round(2)
	start := startOfDay(startDate)

	entries := make([]ScheduleEntry, 0, numInstallments)
	allocated := decimal.Zero
	for i := 1; i < numInstallments; i++ {
		entries = append(entries, ScheduleEntry{
			Number:  i,
			Amount:  base,
			DueDate: start.AddDate(0, 0, (i-1)*InstallmentSpacingDays),
		})
		allocated = allocated.Add(base)
	}
	entries = append(entries, ScheduleEntry{
		Number:  numInstallments,
		Amount:  totalAmount.Sub(allocated),
		DueDate: start.AddDate(0, 0, (numInstallments-1)*InstallmentSpacingDays),
	})

	return entries, nil
}

// ValidateSchedule reports whether the schedule is non-empty and its last
// due date falls at least 30 days before the event. Exactly 30 days of lead
// is still valid.
func ValidateSchedule(schedule []ScheduleEntry, eventDate time.Time) bool {
	if len(schedule) == 0 {
		return false
	}
	lastDue := startOfDay(schedule[len(schedule)-1].DueDate)
	latest := startOfDay(eventDate).AddDate(0, 0, -InstallmentSpacingDays)
	return !lastDue.After(latest)
}

// ScheduleTotal sums the entry amounts.
func ScheduleTotal(schedule []ScheduleEntry) decimal.Decimal {
	total := decimal.Zero
	for _, entry := range schedule {
		total = total.Add(entry.Amount)
	}
	return total
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
