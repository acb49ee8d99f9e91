package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInstallment(status InstallmentStatus) *Installment {
	return &Installment{
		ID:              "inst-1",
		OrderCode:       "ABC12",
		Number:          2,
		NumInstallments: 4,
		Amount:          decimal.RequireFromString("25.00"),
		Currency:        "CHF",
		DueDate:         date(2026, 3, 1),
		Status:          status,
		CreatedAt:       date(2026, 1, 1),
		Version:         1,
	}
}

func TestInstallmentTransitions(t *testing.T) {
	t.Run("scheduled to pending to paid", func(t *testing.T) {
		inst := newTestInstallment(StatusScheduled)

		require.NoError(t, inst.MarkPending("tx-1"))
		assert.Equal(t, StatusPending, inst.Status)
		require.NotNil(t, inst.TransactionID)
		assert.Equal(t, "tx-1", *inst.TransactionID)

		paidAt := date(2026, 3, 1)
		require.NoError(t, inst.MarkPaid("tx-1", paidAt))
		assert.Equal(t, StatusPaid, inst.Status)
		require.NotNil(t, inst.PaidAt)
		assert.Equal(t, paidAt, *inst.PaidAt)
	})

	t.Run("paying clears failure bookkeeping", func(t *testing.T) {
		inst := newTestInstallment(StatusScheduled)
		require.NoError(t, inst.MarkFailed("card_declined", date(2026, 3, 4)))
		require.NotNil(t, inst.FailureReason)
		require.NotNil(t, inst.GracePeriodEnds)

		require.NoError(t, inst.MarkPaid("tx-2", date(2026, 3, 2)))
		assert.Nil(t, inst.FailureReason)
		assert.Nil(t, inst.GracePeriodEnds)
	})

	t.Run("terminal statuses reject further transitions", func(t *testing.T) {
		paid := newTestInstallment(StatusPaid)
		err := paid.MarkFailed("late decline", date(2026, 3, 4))
		require.Error(t, err)
		assert.True(t, IsErrorCode(err, ErrCodeInvalidTransition))

		cancelled := newTestInstallment(StatusCancelled)
		err = cancelled.MarkPending("tx-9")
		require.Error(t, err)
		assert.True(t, IsErrorCode(err, ErrCodeInvalidTransition))
	})

	t.Run("reapplying a terminal status is a no-op", func(t *testing.T) {
		paid := newTestInstallment(StatusPaid)
		paidAt := date(2026, 2, 1)
		paid.PaidAt = &paidAt
		require.NoError(t, paid.MarkPaid("tx-later", date(2026, 3, 1)))
		assert.Equal(t, paidAt, *paid.PaidAt)

		cancelled := newTestInstallment(StatusCancelled)
		require.NoError(t, cancelled.MarkCancelled())
		assert.Equal(t, StatusCancelled, cancelled.Status)
	})

	t.Run("cancelling clears failure bookkeeping", func(t *testing.T) {
		inst := newTestInstallment(StatusScheduled)
		require.NoError(t, inst.MarkFailed("card_declined", date(2026, 3, 4)))

		require.NoError(t, inst.MarkCancelled())
		assert.Equal(t, StatusCancelled, inst.Status)
		assert.Nil(t, inst.FailureReason)
		assert.Nil(t, inst.GracePeriodEnds)
	})

	t.Run("cancelled cannot become paid", func(t *testing.T) {
		cancelled := newTestInstallment(StatusCancelled)
		err := cancelled.MarkPaid("tx-1", date(2026, 3, 1))
		require.Error(t, err)
		assert.True(t, IsErrorCode(err, ErrCodeInvalidTransition))
	})

	t.Run("failed can recover to paid", func(t *testing.T) {
		inst := newTestInstallment(StatusFailed)
		require.NoError(t, inst.MarkPaid("tx-retry", date(2026, 3, 2)))
		assert.Equal(t, StatusPaid, inst.Status)
	})
}

func TestRecordRetryFailure(t *testing.T) {
	t.Run("updates the reason without touching the grace deadline", func(t *testing.T) {
		inst := newTestInstallment(StatusScheduled)
		graceEnds := date(2026, 3, 4)
		require.NoError(t, inst.MarkFailed("card_declined", graceEnds))

		require.NoError(t, inst.RecordRetryFailure("insufficient_funds"))
		assert.Equal(t, "insufficient_funds", *inst.FailureReason)
		assert.Equal(t, graceEnds, *inst.GracePeriodEnds)
	})

	t.Run("rejected outside the failed status", func(t *testing.T) {
		inst := newTestInstallment(StatusScheduled)
		err := inst.RecordRetryFailure("nope")
		require.Error(t, err)
		assert.True(t, IsErrorCode(err, ErrCodeInvalidTransition))
	})
}

func TestFailureState(t *testing.T) {
	graceEnds := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	t.Run("not failed means no failure state", func(t *testing.T) {
		inst := newTestInstallment(StatusScheduled)
		assert.Equal(t, FailureNone, inst.FailureState(graceEnds))
	})

	t.Run("within grace", func(t *testing.T) {
		inst := newTestInstallment(StatusFailed)
		inst.GracePeriodEnds = &graceEnds
		assert.Equal(t, FailureInGrace, inst.FailureState(graceEnds.Add(-time.Hour)))
	})

	t.Run("expired at and after the deadline", func(t *testing.T) {
		inst := newTestInstallment(StatusFailed)
		inst.GracePeriodEnds = &graceEnds
		assert.Equal(t, FailureExpired, inst.FailureState(graceEnds))
		assert.Equal(t, FailureExpired, inst.FailureState(graceEnds.Add(time.Hour)))
	})
}

func TestNewInstallments(t *testing.T) {
	schedule, err := CalculateSchedule(decimal.RequireFromString("100.00"), 4, date(2026, 1, 15))
	require.NoError(t, err)

	t.Run("materializes schedule entries with the token", func(t *testing.T) {
		installments, err := NewInstallments("ABC12", "CHF", "token-1", schedule, date(2026, 1, 10))
		require.NoError(t, err)
		require.Len(t, installments, 4)

		for idx, inst := range installments {
			assert.Equal(t, idx+1, inst.Number)
			assert.Equal(t, 4, inst.NumInstallments)
			assert.Equal(t, StatusScheduled, inst.Status)
			require.NotNil(t, inst.TokenID)
			assert.Equal(t, "token-1", *inst.TokenID)
		}
	})

	t.Run("requires an order code", func(t *testing.T) {
		_, err := NewInstallments("", "CHF", "token-1", schedule, date(2026, 1, 10))
		require.Error(t, err)
		assert.True(t, IsErrorCode(err, ErrCodeMissingRequiredField))
	})

	t.Run("rejects an empty schedule", func(t *testing.T) {
		_, err := NewInstallments("ABC12", "CHF", "token-1", nil, date(2026, 1, 10))
		require.Error(t, err)
		assert.True(t, IsErrorCode(err, ErrCodeInvalidSchedule))
	})
}
