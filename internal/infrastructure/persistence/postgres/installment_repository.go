package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/sweenu/pretix-postfinance-sub000/internal/application"
	"github.com/sweenu/pretix-postfinance-sub000/internal/domain"
)

const installmentColumns = `
	id, order_code, installment_number, num_installments, amount::text,
	currency, due_date, status, token_id, transaction_id, failure_reason,
	grace_period_ends, paid_at, created_at, version
`

type InstallmentRepository struct {
	db *pgxpool.Pool
}

func NewInstallmentRepository(db *pgxpool.Pool) *InstallmentRepository {
	return &InstallmentRepository{db: db}
}

// CreateBatch inserts a full schedule in one transaction. The unique
// constraint on (order_code, installment_number) guards against a schedule
// being materialized twice.
func (r *InstallmentRepository) CreateBatch(ctx context.Context, installments []*domain.Installment) error {
	query := `
		INSERT INTO installment_schedules (
			id, order_code, installment_number, num_installments, amount,
			currency, due_date, status, token_id, transaction_id, failure_reason,
			grace_period_ends, paid_at, created_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin schedule insert: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, inst := range installments {
		if inst.ID == "" {
			inst.ID = uuid.New().String()
		}
		_, err := tx.Exec(ctx, query,
			inst.ID,
			inst.OrderCode,
			inst.Number,
			inst.NumInstallments,
			inst.Amount.String(),
			inst.Currency,
			inst.DueDate,
			string(inst.Status),
			inst.TokenID,
			inst.TransactionID,
			inst.FailureReason,
			inst.GracePeriodEnds,
			inst.PaidAt,
			inst.CreatedAt,
			inst.Version,
		)
		if err != nil {
			return fmt.Errorf("insert installment %d for %s: %w", inst.Number, inst.OrderCode, err)
		}
	}

	return tx.Commit(ctx)
}

// FindByOrder retrieves every installment of an order, ordered by number.
func (r *InstallmentRepository) FindByOrder(ctx context.Context, orderCode string) ([]*domain.Installment, error) {
	query := `
		SELECT ` + installmentColumns + `
		FROM installment_schedules
		WHERE order_code = $1
		ORDER BY installment_number ASC
	`

	rows, err := r.db.Query(ctx, query, orderCode)
	if err != nil {
		return nil, fmt.Errorf("query installments by order: %w", err)
	}
	return collectInstallments(rows)
}

// FindDue retrieves scheduled installments whose due date has arrived.
func (r *InstallmentRepository) FindDue(ctx context.Context, asOf time.Time, limit int) ([]*domain.Installment, error) {
	query := `
		SELECT ` + installmentColumns + `
		FROM installment_schedules
		WHERE status = 'scheduled'
		  AND due_date <= $1
		ORDER BY due_date ASC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("query due installments: %w", err)
	}
	return collectInstallments(rows)
}

// FindRetryable retrieves failed installments still inside their grace window.
func (r *InstallmentRepository) FindRetryable(ctx context.Context, now time.Time, limit int) ([]*domain.Installment, error) {
	query := `
		SELECT ` + installmentColumns + `
		FROM installment_schedules
		WHERE status = 'failed'
		  AND grace_period_ends > $1
		ORDER BY grace_period_ends ASC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query retryable installments: %w", err)
	}
	return collectInstallments(rows)
}

// FindGraceExpired retrieves failed installments whose grace window ran out.
func (r *InstallmentRepository) FindGraceExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Installment, error) {
	query := `
		SELECT ` + installmentColumns + `
		FROM installment_schedules
		WHERE status = 'failed'
		  AND grace_period_ends <= $1
		ORDER BY grace_period_ends ASC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query grace-expired installments: %w", err)
	}
	return collectInstallments(rows)
}

// Update writes an installment back with optimistic locking. A concurrent
// sweep that updated the row first wins; the loser gets ErrStaleInstallment.
func (r *InstallmentRepository) Update(ctx context.Context, inst *domain.Installment) error {
	query := `
		UPDATE installment_schedules
		SET status = $1,
			token_id = $2, transaction_id = $3, failure_reason = $4,
			grace_period_ends = $5, paid_at = $6,
			version = version + 1
		WHERE id = $7 AND version = $8
	`

	result, err := r.db.Exec(ctx, query,
		string(inst.Status),
		inst.TokenID,
		inst.TransactionID,
		inst.FailureReason,
		inst.GracePeriodEnds,
		inst.PaidAt,
		inst.ID,
		inst.Version,
	)
	if err != nil {
		return fmt.Errorf("update installment: %w", err)
	}

	if result.RowsAffected() == 0 {
		return application.ErrStaleInstallment
	}
	inst.Version++
	return nil
}

// SumPaidByOrder sums the persisted amounts of an order's paid installments.
func (r *InstallmentRepository) SumPaidByOrder(ctx context.Context, orderCode string) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)::text
		FROM installment_schedules
		WHERE order_code = $1 AND status = 'paid'
	`

	var total string
	if err := r.db.QueryRow(ctx, query, orderCode).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("sum paid installments: %w", err)
	}

	sum, err := decimal.NewFromString(total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse paid sum %q: %w", total, err)
	}
	return sum, nil
}

func collectInstallments(rows pgx.Rows) ([]*domain.Installment, error) {
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Installment, error) {
		var m InstallmentModel
		if err := row.Scan(
			&m.ID, &m.OrderCode, &m.Number, &m.NumInstallments, &m.Amount,
			&m.Currency, &m.DueDate, &m.Status, &m.TokenID, &m.TransactionID, &m.FailureReason,
			&m.GracePeriodEnds, &m.PaidAt, &m.CreatedAt, &m.Version,
		); err != nil {
			return nil, err
		}
		return toInstallment(m)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan installments: %w", err)
	}
	return results, nil
}
