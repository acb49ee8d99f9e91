package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sweenu/pretix-postfinance-sub000/internal/application"
	"github.com/sweenu/pretix-postfinance-sub000/internal/domain"
)

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type sweepFixture struct {
	svc          *InstallmentService
	installments *MockInstallmentRepository
	orders       *MockOrderStore
	gateway      *MockGatewayClient
	mailer       *MockMailer
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()
	installments := NewMockInstallmentRepository()
	orders := NewMockOrderStore()
	gateway := &MockGatewayClient{}
	mailer := &MockMailer{}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewInstallmentService(installments, orders, gateway, mailer, SweepConfig{
		GracePeriod: 3 * 24 * time.Hour,
		BatchSize:   50,
	}, logger)
	svc.now = func() time.Time { return testNow }

	orders.SeedOrder(&domain.Order{
		Code:            "ABC12",
		EventSlug:       "democon",
		EventName:       "DemoCon",
		EventDate:       time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		Currency:        "CHF",
		Total:           decimal.RequireFromString("100.00"),
		Status:          domain.OrderPaid,
		CustomerEmail:   "customer@example.org",
		OrganizerEmails: []string{"orga@example.org"},
	})

	return &sweepFixture{svc: svc, installments: installments, orders: orders, gateway: gateway, mailer: mailer}
}

func seedInstallment(f *sweepFixture, number int, status domain.InstallmentStatus, due time.Time) *domain.Installment {
	token := "token-1"
	inst := &domain.Installment{
		ID:              "inst-" + string(rune('0'+number)),
		OrderCode:       "ABC12",
		Number:          number,
		NumInstallments: 4,
		Amount:          decimal.RequireFromString("25.00"),
		Currency:        "CHF",
		DueDate:         due,
		Status:          status,
		TokenID:         &token,
		CreatedAt:       testNow.AddDate(0, -1, 0),
		Version:         1,
	}
	f.installments.Seed(inst)
	return inst
}

func TestProcessDueInstallments(t *testing.T) {
	t.Run("successful charge settles the installment", func(t *testing.T) {
		f := newSweepFixture(t)
		inst := seedInstallment(f, 2, domain.StatusScheduled, testNow.AddDate(0, 0, -1))

		require.NoError(t, f.svc.ProcessDueInstallments(context.Background()))

		assert.Equal(t, domain.StatusPaid, inst.Status)
		require.NotNil(t, inst.PaidAt)
		assert.Equal(t, testNow, *inst.PaidAt)

		payments := f.orders.Payments()
		require.Len(t, payments, 1)
		assert.Equal(t, domain.PaymentConfirmed, payments[0].State)
		assert.True(t, payments[0].Amount.Equal(decimal.RequireFromString("25.00")))
		assert.Equal(t, "installment", payments[0].Info["type"])
		assert.Equal(t, 2, payments[0].Info["installment_number"])
		assert.Equal(t, false, payments[0].Info["retry"])

		sent := f.mailer.Sent()
		require.Len(t, sent, 1)
		assert.Equal(t, "installment_paid", sent[0].Kind)
	})

	t.Run("gateway error opens the grace window", func(t *testing.T) {
		f := newSweepFixture(t)
		inst := seedInstallment(f, 2, domain.StatusScheduled, testNow.AddDate(0, 0, -1))
		f.gateway.ChargeTokenFn = func(ctx context.Context, req application.ChargeTokenRequest) (*application.Transaction, error) {
			return nil, &application.GatewayError{Code: "internal_error", Message: "boom", StatusCode: 500}
		}

		require.NoError(t, f.svc.ProcessDueInstallments(context.Background()))

		assert.Equal(t, domain.StatusFailed, inst.Status)
		require.NotNil(t, inst.GracePeriodEnds)
		assert.Equal(t, testNow.Add(3*24*time.Hour), *inst.GracePeriodEnds)
		require.NotNil(t, inst.FailureReason)

		kinds := make([]string, 0, 2)
		for _, mail := range f.mailer.Sent() {
			kinds = append(kinds, mail.Kind)
		}
		assert.ElementsMatch(t, []string{"installment_failed", "organizer_alert"}, kinds)
	})

	t.Run("declined transaction fails the installment", func(t *testing.T) {
		f := newSweepFixture(t)
		inst := seedInstallment(f, 2, domain.StatusScheduled, testNow.AddDate(0, 0, -1))
		f.gateway.ChargeTokenFn = func(ctx context.Context, req application.ChargeTokenRequest) (*application.Transaction, error) {
			return &application.Transaction{ID: 2001, State: "DECLINE", FailureReason: "card_declined"}, nil
		}

		require.NoError(t, f.svc.ProcessDueInstallments(context.Background()))

		assert.Equal(t, domain.StatusFailed, inst.Status)
		assert.Equal(t, "card_declined", *inst.FailureReason)
	})

	t.Run("unsettled transaction fails into the grace window", func(t *testing.T) {
		f := newSweepFixture(t)
		inst := seedInstallment(f, 2, domain.StatusScheduled, testNow.AddDate(0, 0, -1))
		f.gateway.ChargeTokenFn = func(ctx context.Context, req application.ChargeTokenRequest) (*application.Transaction, error) {
			return &application.Transaction{ID: 2001, State: "PENDING"}, nil
		}

		require.NoError(t, f.svc.ProcessDueInstallments(context.Background()))

		assert.Equal(t, domain.StatusFailed, inst.Status)
		require.NotNil(t, inst.GracePeriodEnds)
		assert.Equal(t, testNow.Add(3*24*time.Hour), *inst.GracePeriodEnds)
		require.NotNil(t, inst.FailureReason)
		assert.Contains(t, *inst.FailureReason, "charge pending")
		assert.Empty(t, f.orders.Payments())
	})

	t.Run("unsettled charge is picked up again by the retry sweep", func(t *testing.T) {
		f := newSweepFixture(t)
		inst := seedInstallment(f, 2, domain.StatusScheduled, testNow.AddDate(0, 0, -1))
		f.gateway.ChargeTokenFn = func(ctx context.Context, req application.ChargeTokenRequest) (*application.Transaction, error) {
			return &application.Transaction{ID: 2001, State: "PENDING"}, nil
		}

		require.NoError(t, f.svc.ProcessDueInstallments(context.Background()))
		require.Equal(t, domain.StatusFailed, inst.Status)

		f.gateway.ChargeTokenFn = func(ctx context.Context, req application.ChargeTokenRequest) (*application.Transaction, error) {
			return &application.Transaction{ID: 2002, State: "COMPLETED"}, nil
		}

		require.NoError(t, f.svc.RetryFailedInstallments(context.Background()))

		assert.Equal(t, domain.StatusPaid, inst.Status)
		assert.Nil(t, inst.GracePeriodEnds)
		require.Len(t, f.orders.Payments(), 1)
	})

	t.Run("missing token fails without calling the gateway", func(t *testing.T) {
		f := newSweepFixture(t)
		inst := seedInstallment(f, 2, domain.StatusScheduled, testNow.AddDate(0, 0, -1))
		inst.TokenID = nil

		require.NoError(t, f.svc.ProcessDueInstallments(context.Background()))

		assert.Equal(t, domain.StatusFailed, inst.Status)
		assert.Zero(t, f.gateway.GetCalls("ChargeToken"))
	})

	t.Run("one broken row does not abort the sweep", func(t *testing.T) {
		f := newSweepFixture(t)
		broken := seedInstallment(f, 2, domain.StatusScheduled, testNow.AddDate(0, 0, -2))
		healthy := seedInstallment(f, 3, domain.StatusScheduled, testNow.AddDate(0, 0, -1))

		f.installments.UpdateFn = func(ctx context.Context, installment *domain.Installment) error {
			if installment.ID == broken.ID {
				return errors.New("write failed")
			}
			f.installments.UpdateFn = nil
			return f.installments.Update(ctx, installment)
		}
		// deterministic order for the assertion
		f.installments.FindDueFn = func(ctx context.Context, asOf time.Time, limit int) ([]*domain.Installment, error) {
			return []*domain.Installment{broken, healthy}, nil
		}

		require.NoError(t, f.svc.ProcessDueInstallments(context.Background()))
		assert.Equal(t, domain.StatusPaid, healthy.Status)
	})
}

func TestRetryFailedInstallments(t *testing.T) {
	graceEnds := testNow.Add(48 * time.Hour)

	failedInstallment := func(f *sweepFixture) *domain.Installment {
		inst := seedInstallment(f, 2, domain.StatusScheduled, testNow.AddDate(0, 0, -2))
		require.NoError(t, inst.MarkFailed("card_declined", graceEnds))
		return inst
	}

	t.Run("successful retry settles and flags the payment", func(t *testing.T) {
		f := newSweepFixture(t)
		inst := failedInstallment(f)

		require.NoError(t, f.svc.RetryFailedInstallments(context.Background()))

		assert.Equal(t, domain.StatusPaid, inst.Status)
		assert.Nil(t, inst.GracePeriodEnds)
		assert.Nil(t, inst.FailureReason)

		payments := f.orders.Payments()
		require.Len(t, payments, 1)
		assert.Equal(t, true, payments[0].Info["retry"])
	})

	t.Run("failed retry updates the reason but not the deadline", func(t *testing.T) {
		f := newSweepFixture(t)
		inst := failedInstallment(f)
		f.gateway.ChargeTokenFn = func(ctx context.Context, req application.ChargeTokenRequest) (*application.Transaction, error) {
			return nil, &application.GatewayError{Code: "insufficient_funds", Message: "no funds", StatusCode: 402}
		}

		require.NoError(t, f.svc.RetryFailedInstallments(context.Background()))

		assert.Equal(t, domain.StatusFailed, inst.Status)
		assert.Contains(t, *inst.FailureReason, "insufficient_funds")
		require.NotNil(t, inst.GracePeriodEnds)
		assert.Equal(t, graceEnds, *inst.GracePeriodEnds)
		assert.Empty(t, f.mailer.Sent())
	})

	t.Run("retry uses a distinct merchant reference", func(t *testing.T) {
		f := newSweepFixture(t)
		failedInstallment(f)

		var gotRef string
		f.gateway.ChargeTokenFn = func(ctx context.Context, req application.ChargeTokenRequest) (*application.Transaction, error) {
			gotRef = req.MerchantReference
			return &application.Transaction{ID: 2002, State: "COMPLETED"}, nil
		}

		require.NoError(t, f.svc.RetryFailedInstallments(context.Background()))
		assert.Equal(t, "pretix-ABC12-installment-2-retry", gotRef)
	})

	t.Run("expired rows are not retried", func(t *testing.T) {
		f := newSweepFixture(t)
		inst := seedInstallment(f, 2, domain.StatusScheduled, testNow.AddDate(0, 0, -5))
		require.NoError(t, inst.MarkFailed("card_declined", testNow.Add(-time.Hour)))

		require.NoError(t, f.svc.RetryFailedInstallments(context.Background()))
		assert.Zero(t, f.gateway.GetCalls("ChargeToken"))
	})
}

func TestCancelExpiredGracePeriods(t *testing.T) {
	expiredGrace := testNow.Add(-time.Hour)

	setup := func(t *testing.T) (*sweepFixture, *domain.Installment, *domain.Installment, *domain.Installment) {
		f := newSweepFixture(t)

		paidTx := "9001"
		paidAt := testNow.AddDate(0, -1, 0)
		paid := seedInstallment(f, 1, domain.StatusPaid, testNow.AddDate(0, -1, 0))
		paid.TransactionID = &paidTx
		paid.PaidAt = &paidAt

		failed := seedInstallment(f, 2, domain.StatusScheduled, testNow.AddDate(0, 0, -4))
		require.NoError(t, failed.MarkFailed("card_declined", expiredGrace))

		scheduled := seedInstallment(f, 3, domain.StatusScheduled, testNow.AddDate(0, 1, 0))
		return f, paid, failed, scheduled
	}

	t.Run("cancels open rows and refunds the paid sum once", func(t *testing.T) {
		f, paid, failed, scheduled := setup(t)

		require.NoError(t, f.svc.CancelExpiredGracePeriods(context.Background()))

		assert.Equal(t, domain.StatusPaid, paid.Status)
		assert.Equal(t, domain.StatusCancelled, failed.Status)
		assert.Equal(t, domain.StatusCancelled, scheduled.Status)

		refunds := f.orders.Refunds()
		require.Len(t, refunds, 1)
		assert.True(t, refunds[0].Amount.Equal(decimal.RequireFromString("25.00")))
		assert.Equal(t, domain.RefundDone, refunds[0].State)
		assert.Contains(t, refunds[0].ExternalID, "pretix-refund-ABC12-R-")

		order, err := f.orders.FindByCode(context.Background(), "ABC12")
		require.NoError(t, err)
		assert.Equal(t, domain.OrderCanceled, order.Status)

		actions := f.orders.Actions()
		require.Len(t, actions, 1)
		assert.Equal(t, "postfinance.installments.cancelled", actions[0].Action)
		assert.Equal(t, "installment grace period expired", actions[0].Data["reason"])
		assert.Equal(t, "25", actions[0].Data["refunded"])

		rows, ok := actions[0].Data["installments"].([]map[string]any)
		require.True(t, ok)
		require.Len(t, rows, 2)
		assert.Equal(t, 2, rows[0]["number"])
		assert.Equal(t, "card_declined", rows[0]["reason"])
		assert.Equal(t, 3, rows[1]["number"])
		assert.NotContains(t, rows[1], "reason")
	})

	t.Run("cancellation email enumerates the open installments", func(t *testing.T) {
		f, _, _, _ := setup(t)

		require.NoError(t, f.svc.CancelExpiredGracePeriods(context.Background()))

		var canceled *SentMail
		for _, mail := range f.mailer.Sent() {
			if mail.Kind == "order_canceled" {
				canceled = &mail
				break
			}
		}
		require.NotNil(t, canceled)
		require.Len(t, canceled.Unpaid, 2)
		assert.Equal(t, 2, canceled.Unpaid[0].Number)
		assert.Equal(t, "card_declined", canceled.Unpaid[0].Reason)
		assert.Equal(t, 3, canceled.Unpaid[1].Number)
		assert.Empty(t, canceled.Unpaid[1].Reason)
	})

	t.Run("refund amount is the persisted paid sum, not the schedule", func(t *testing.T) {
		f, paid, _, _ := setup(t)
		// the persisted amount differs from what the schedule math would say
		paid.Amount = decimal.RequireFromString("30.00")

		require.NoError(t, f.svc.CancelExpiredGracePeriods(context.Background()))

		refunds := f.orders.Refunds()
		require.Len(t, refunds, 1)
		assert.True(t, refunds[0].Amount.Equal(decimal.RequireFromString("30.00")))
	})

	t.Run("no refund when nothing was paid", func(t *testing.T) {
		f := newSweepFixture(t)
		failed := seedInstallment(f, 1, domain.StatusScheduled, testNow.AddDate(0, 0, -4))
		require.NoError(t, failed.MarkFailed("card_declined", expiredGrace))

		require.NoError(t, f.svc.CancelExpiredGracePeriods(context.Background()))

		assert.Empty(t, f.orders.Refunds())
		assert.Zero(t, f.gateway.GetCalls("RefundTransaction"))
	})

	t.Run("two expired rows on one order cancel the plan once", func(t *testing.T) {
		f := newSweepFixture(t)
		first := seedInstallment(f, 1, domain.StatusScheduled, testNow.AddDate(0, 0, -8))
		require.NoError(t, first.MarkFailed("card_declined", expiredGrace))
		second := seedInstallment(f, 2, domain.StatusScheduled, testNow.AddDate(0, 0, -4))
		require.NoError(t, second.MarkFailed("card_declined", expiredGrace))

		require.NoError(t, f.svc.CancelExpiredGracePeriods(context.Background()))

		actions := f.orders.Actions()
		assert.Len(t, actions, 1)
	})

	t.Run("already canceled order keeps its status", func(t *testing.T) {
		f, _, _, _ := setup(t)
		order, err := f.orders.FindByCode(context.Background(), "ABC12")
		require.NoError(t, err)
		order.Status = domain.OrderCanceled

		var markCanceledCalls int
		f.orders.MarkCanceledFn = func(ctx context.Context, code string) error {
			markCanceledCalls++
			return nil
		}

		require.NoError(t, f.svc.CancelExpiredGracePeriods(context.Background()))
		assert.Zero(t, markCanceledCalls)
	})

	t.Run("gateway refund failure keeps the record for follow-up", func(t *testing.T) {
		f, _, _, _ := setup(t)
		f.gateway.RefundTransactionFn = func(ctx context.Context, req application.RefundRequest) (*application.RefundResult, error) {
			return nil, &application.GatewayError{Code: "internal_error", Message: "boom", StatusCode: 500}
		}

		require.NoError(t, f.svc.CancelExpiredGracePeriods(context.Background()))

		refunds := f.orders.Refunds()
		require.Len(t, refunds, 1)
		assert.Equal(t, domain.RefundCreated, refunds[0].State)
	})
}
