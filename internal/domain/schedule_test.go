package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func TestMaxInstallments(t *testing.T) {
	t.Run("full year ahead allows the system maximum", func(t *testing.T) {
		got := MaxInstallments(date(2026, 12, 31), date(2026, 1, 1), 0)
		assert.Equal(t, 12, got)
	})

	t.Run("organizer override tightens the cap", func(t *testing.T) {
		got := MaxInstallments(date(2026, 12, 31), date(2026, 1, 1), 6)
		assert.Equal(t, 6, got)
	})

	t.Run("organizer override above the system cap is ignored", func(t *testing.T) {
		got := MaxInstallments(date(2026, 12, 31), date(2026, 1, 1), 20)
		assert.Equal(t, 12, got)
	})

	t.Run("event too close yields a single installment", func(t *testing.T) {
		got := MaxInstallments(date(2026, 1, 20), date(2026, 1, 1), 0)
		assert.Equal(t, 1, got)
	})

	t.Run("start after the latest possible due date yields one", func(t *testing.T) {
		got := MaxInstallments(date(2026, 2, 1), date(2026, 1, 15), 0)
		assert.Equal(t, 1, got)
	})
}

func TestCalculateSchedule(t *testing.T) {
	start := date(2026, 1, 15)

	t.Run("splits evenly divisible totals", func(t *testing.T) {
		schedule, err := CalculateSchedule(decimal.RequireFromString("120.00"), 4, start)
		require.NoError(t, err)
		require.Len(t, schedule, 4)

		for _, entry := range schedule {
			assert.True(t, entry.Amount.Equal(decimal.RequireFromString("30.00")))
		}
	})

	t.Run("last entry absorbs the rounding remainder", func(t *testing.T) {
		schedule, err := CalculateSchedule(decimal.RequireFromString("99.99"), 7, start)
		require.NoError(t, err)
		require.Len(t, schedule, 7)

		for _, entry := range schedule[:6] {
			assert.True(t, entry.Amount.Equal(decimal.RequireFromString("14.28")),
				"entry %d: got %s", entry.Number, entry.Amount)
		}
		assert.True(t, schedule[6].Amount.Equal(decimal.RequireFromString("14.31")),
			"got %s", schedule[6].Amount)
	})

	t.Run("amounts always sum exactly to the total", func(t *testing.T) {
		total := decimal.RequireFromString("100.01")
		for n := 2; n <= 12; n++ {
			schedule, err := CalculateSchedule(total, n, start)
			require.NoError(t, err)
			assert.True(t, ScheduleTotal(schedule).Equal(total), "n=%d sum=%s", n, ScheduleTotal(schedule))
		}
	})

	t.Run("due dates follow a fixed 30-day stride", func(t *testing.T) {
		schedule, err := CalculateSchedule(decimal.RequireFromString("90.00"), 3, start)
		require.NoError(t, err)

		assert.Equal(t, date(2026, 1, 15), schedule[0].DueDate)
		assert.Equal(t, date(2026, 2, 14), schedule[1].DueDate)
		assert.Equal(t, date(2026, 3, 16), schedule[2].DueDate)
	})

	t.Run("rejects counts outside the allowed range", func(t *testing.T) {
		for _, n := range []int{0, 1, 13} {
			_, err := CalculateSchedule(decimal.RequireFromString("100.00"), n, start)
			require.Error(t, err)
			assert.True(t, IsErrorCode(err, ErrCodeInvalidInstallmentCount), "n=%d", n)
		}
	})

	t.Run("rejects non-positive totals", func(t *testing.T) {
		for _, total := range []string{"0", "-1.00"} {
			_, err := CalculateSchedule(decimal.RequireFromString(total), 3, start)
			require.Error(t, err)
			assert.True(t, IsErrorCode(err, ErrCodeInvalidAmount), "total=%s", total)
		}
	})
}

func TestValidateSchedule(t *testing.T) {
	t.Run("empty schedule is invalid", func(t *testing.T) {
		assert.False(t, ValidateSchedule(nil, date(2026, 6, 1)))
	})

	t.Run("valid at exactly 30 days before the event", func(t *testing.T) {
		schedule := []ScheduleEntry{
			{Number: 1, Amount: decimal.RequireFromString("50.00"), DueDate: date(2026, 4, 2)},
			{Number: 2, Amount: decimal.RequireFromString("50.00"), DueDate: date(2026, 5, 2)},
		}
		assert.True(t, ValidateSchedule(schedule, date(2026, 6, 1)))
	})

	t.Run("invalid at 29 days before the event", func(t *testing.T) {
		schedule := []ScheduleEntry{
			{Number: 1, Amount: decimal.RequireFromString("50.00"), DueDate: date(2026, 4, 3)},
			{Number: 2, Amount: decimal.RequireFromString("50.00"), DueDate: date(2026, 5, 3)},
		}
		assert.False(t, ValidateSchedule(schedule, date(2026, 6, 1)))
	})
}
