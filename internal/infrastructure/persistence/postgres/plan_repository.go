package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sweenu/pretix-postfinance-sub000/internal/application"
	"github.com/sweenu/pretix-postfinance-sub000/internal/domain"
)

const planColumns = `
	id, event_slug, name, num_installments, min_amount::text,
	max_installments_override, enabled, created_at, updated_at
`

type PlanRepository struct {
	db *pgxpool.Pool
}

func NewPlanRepository(db *pgxpool.Pool) *PlanRepository {
	return &PlanRepository{db: db}
}

func (r *PlanRepository) Create(ctx context.Context, plan *domain.InstallmentPlan) error {
	query := `
		INSERT INTO installment_plans (
			id, event_slug, name, num_installments, min_amount,
			max_installments_override, enabled, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	if plan.ID == "" {
		plan.ID = uuid.New().String()
	}

	_, err := r.db.Exec(ctx, query,
		plan.ID,
		plan.EventSlug,
		plan.Name,
		plan.NumInstallments,
		plan.MinAmount.String(),
		plan.MaxInstallmentsOverride,
		plan.Enabled,
		plan.CreatedAt,
		plan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert plan for %s: %w", plan.EventSlug, err)
	}
	return nil
}

func (r *PlanRepository) Update(ctx context.Context, plan *domain.InstallmentPlan) error {
	query := `
		UPDATE installment_plans
		SET name = $1, num_installments = $2, min_amount = $3,
			max_installments_override = $4, enabled = $5, updated_at = $6
		WHERE id = $7
	`

	result, err := r.db.Exec(ctx, query,
		plan.Name,
		plan.NumInstallments,
		plan.MinAmount.String(),
		plan.MaxInstallmentsOverride,
		plan.Enabled,
		plan.UpdatedAt,
		plan.ID,
	)
	if err != nil {
		return fmt.Errorf("update plan %s: %w", plan.ID, err)
	}
	if result.RowsAffected() == 0 {
		return application.ErrPlanNotFound
	}
	return nil
}

func (r *PlanRepository) FindByID(ctx context.Context, id string) (*domain.InstallmentPlan, error) {
	query := `
		SELECT ` + planColumns + `
		FROM installment_plans
		WHERE id = $1
	`
	return r.queryPlan(ctx, query, id)
}

// FindByEvent retrieves the plan configured for an event. Each event carries
// at most one plan; the unique index on event_slug enforces that.
func (r *PlanRepository) FindByEvent(ctx context.Context, eventSlug string) (*domain.InstallmentPlan, error) {
	query := `
		SELECT ` + planColumns + `
		FROM installment_plans
		WHERE event_slug = $1
	`
	return r.queryPlan(ctx, query, eventSlug)
}

func (r *PlanRepository) queryPlan(ctx context.Context, query string, arg any) (*domain.InstallmentPlan, error) {
	var m PlanModel
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&m.ID, &m.EventSlug, &m.Name, &m.NumInstallments, &m.MinAmount,
		&m.MaxInstallmentsOverride, &m.Enabled, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, application.ErrPlanNotFound
		}
		return nil, fmt.Errorf("query plan: %w", err)
	}
	return toPlan(m)
}
